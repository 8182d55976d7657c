package broker

import "errors"

var (
	ErrBrokerClosed = errors.New("broker is closed")
	ErrNotAttached  = errors.New("peer is not attached to the channel")
	ErrRateLimited  = errors.New("message rate limit exceeded")
)
