package store

import "errors"

var (
	ErrStoreClosed = errors.New("message store is closed")
)
