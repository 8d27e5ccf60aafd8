package core

import "errors"

// ErrFinished is returned when work is submitted to a conveyor that has
// already been destroyed. Not retryable.
var ErrFinished = errors.New("conveyor: already shut down")
