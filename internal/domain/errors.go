package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidQuote  = errors.New("invalid quote")
	ErrEmitterClosed = errors.New("emitter closed")
	ErrSinkOpen      = errors.New("sink circuit open")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
)
