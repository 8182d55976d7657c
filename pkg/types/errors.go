package types

import "errors"

// Error taxonomy shared across components. Boundary layers map these onto
// HTTP status codes and WebSocket error envelopes; everything below the
// boundary compares with errors.Is.
var (
	ErrUnauthorized       = errors.New("missing or invalid bearer token")
	ErrForbidden          = errors.New("not a participant or member of the target channel")
	ErrNotFound           = errors.New("connection or community not found")
	ErrEmptyContent       = errors.New("message content cannot be empty")
	ErrContentTooLong     = errors.New("message content exceeds maximum length")
	ErrChannelUnavailable = errors.New("channel temporarily unavailable, retry with backoff")
	ErrInvalidUserID      = errors.New("user ID must be 1-50 characters, alphanumeric plus underscore/hyphen")
)
