package feature

import "errors"

// Sentinel kinds for feature store errors.
var (
	ErrNotFound           = errors.New("feature set not found")
	ErrInvalidObservation = errors.New("invalid observation")
)
