package domain

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by a refresh attempted before the layout loaded.
var ErrNotInitialized = errors.New("stand layout not initialized")

// FormatError reports malformed input: a layout line, a coordinate token or a
// response body. The operation that hit it is aborted as a whole.
type FormatError struct {
	Input  string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "invalid format"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Input != "" {
		msg += fmt.Sprintf(" (%q)", e.Input)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// FetchError reports a failed transport request. StatusCode is zero when no
// response was received.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status code: %d", e.Source, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
	default:
		return fmt.Sprintf("fetch %s failed", e.Source)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFormatError reports whether err wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// IsFetchError reports whether err wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
