package prediction

import "errors"

// Sentinel kinds for prediction errors.
var (
	ErrMalformed = errors.New("malformed prediction")
	ErrFeed      = errors.New("prediction feed error")
)
