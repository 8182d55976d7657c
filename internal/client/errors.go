package client

import "errors"

var (
	ErrSessionClosed      = errors.New("session is closed")
	ErrNotLive            = errors.New("no live conversation is open")
	ErrNoEarlierMessages  = errors.New("no earlier messages to load")
	ErrUnexpectedResponse = errors.New("unexpected server response")
)
