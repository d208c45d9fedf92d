package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotReady       = errors.New("store not ready")
	ErrInvalidSession = errors.New("invalid session id")
	ErrDecode         = errors.New("decode stored value")
	ErrDisconnected   = errors.New("feed connection lost")
)
