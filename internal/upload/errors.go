package upload

import "errors"

// Sentinel kinds for upload errors.
var (
	ErrFlush        = errors.New("flush failed")
	ErrDrainTimeout = errors.New("drain timed out")
)
