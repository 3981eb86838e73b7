package bundle

import "errors"

// Sentinel kinds for bundler errors.
var (
	ErrNoOpenBundle  = errors.New("no open bundle for entity")
	ErrBadTransition = errors.New("invalid bundle state transition")
)
