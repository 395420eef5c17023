package resource

import (
	"errors"
	"fmt"
)

// Sentinel errors for model and collection operations.
var (
	// ErrSuperseded is returned by a network operation whose response arrived
	// after a newer operation was issued on the same model or collection.
	// The response was discarded; the newer operation's result stands.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrNoClient is returned when a network operation is attempted without a fetch client.
	ErrNoClient = errors.New("no fetch client configured")
	// ErrNoURL is returned when a network operation has no URL to target.
	ErrNoURL = errors.New("no URL configured")
)

// ParseError is returned when a payload does not have the shape a schema
// expects: a missing envelope or array key, a required field that is absent,
// or a field of the wrong type.
type ParseError struct {
	// Resource is the schema name.
	Resource string
	// Field is the wire key or JSON pointer of the offending value, if known.
	Field string
	// Reason describes what was wrong.
	Reason string
	// Code is the server error code when the payload was a failure envelope.
	Code int
	// Err is the underlying cause, if any.
	Err error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s", e.Resource)
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Hint returns a suggestion for resolving the error.
func (e *ParseError) Hint() string {
	if e.Code != 0 {
		return fmt.Sprintf("The server reported error %d; the request itself likely needs fixing.", e.Code)
	}
	if e.Field != "" {
		return fmt.Sprintf("Check that the server payload for %s carries %q with the expected type.", e.Resource, e.Field)
	}
	return "Check that the endpoint URL points at the expected resource type."
}

// IndexError is returned by Collection.At for an out-of-range index.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}

func parseErrorf(resource, field, format string, args ...any) *ParseError {
	return &ParseError{
		Resource: resource,
		Field:    field,
		Reason:   fmt.Sprintf(format, args...),
	}
}
