package narrative

import "errors"

// ErrExternalTimeout marks a summarizer call that exceeded its
// deadline, as opposed to a refusal or a bad response.
var ErrExternalTimeout = errors.New("summarizer timed out")
