package inline

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceUnavailable is reported when a reference cannot be fetched.
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrMalformedReference is reported for empty or unparseable resource names.
	ErrMalformedReference = errors.New("malformed reference")
	// ErrImportCycle marks an @import that points back into its own chain.
	ErrImportCycle = errors.New("import cycle")
)

// FetchError wraps a failed fetch of ref. It matches ErrResourceUnavailable
// with errors.Is regardless of the underlying transport error.
type FetchError struct {
	Ref string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrResourceUnavailable }

// CSSParseError is a recoverable stylesheet problem located in Origin.
type CSSParseError struct {
	Origin string
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *CSSParseError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Origin, e.Line, e.Column, msg)
}

func (e *CSSParseError) Unwrap() error { return e.Err }

func malformed(name, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrMalformedReference, name, reason)
}
