package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnknownEvent  = errors.New("unknown event topic")
	ErrStreamClosed  = errors.New("event stream closed")
	ErrTornDown      = errors.New("market view torn down")
	ErrLockHeld      = errors.New("lock already held")
)
