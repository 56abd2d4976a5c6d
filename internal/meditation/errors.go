package meditation

import (
	"errors"
	"fmt"
)

// Fatal failure kinds. A run that returns one of these published nothing.
var (
	ErrNoAudio      = errors.New("no segment produced usable audio")
	ErrTooShort     = errors.New("meditation is shorter than the minimum duration")
	ErrAssetMissing = errors.New("required audio asset is missing")
	ErrTimeout      = errors.New("meditation run timed out")
)

// Error carries a failure kind plus the underlying cause. errors.Is matches
// both.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Message is the text shown to users for a failed run. Internal detail
// stays in the logs.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Error()
	}
	return "meditation could not be generated"
}
