package calibration

import "errors"

// Sentinel kinds for calibration errors.
var (
	ErrInvalidFeedback       = errors.New("invalid feedback record")
	ErrCalibrationDivergence = errors.New("calibration rejected: weights outside sanity bounds")
	ErrInsufficientOutcomes  = errors.New("not enough outcome history to recalibrate")
)
