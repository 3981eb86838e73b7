package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrModelNotFound    = errors.New("scoring model not found")
	ErrInvalidModel     = errors.New("invalid scoring model")
	ErrDataGap          = errors.New("required feature missing")
	ErrEvaluatorFailure = errors.New("factor evaluation failed")
)
