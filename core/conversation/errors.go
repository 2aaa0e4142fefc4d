package conversation

import (
	"errors"

	"github.com/m3rciful/mergebot/core/compositor"
)

var (
	// ErrInputType reports an event kind the current state does not accept.
	ErrInputType = errors.New("expected image, got other type")
	// ErrEmptyInput reports a blank label.
	ErrEmptyInput = errors.New("expected non-empty text")
	// ErrLabelTooLong reports a label above the configured rune limit.
	ErrLabelTooLong = errors.New("label too long")
)

// Recoverable reports whether err leaves the session in place.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInputType) || errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrLabelTooLong)
}

// Fatal reports whether err reset the session.
func Fatal(err error) bool {
	var de *compositor.DecodeError
	var ce *compositor.CompositeError
	return errors.As(err, &de) || errors.As(err, &ce)
}
