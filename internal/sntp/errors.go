package sntp

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidField is returned when a field name is not in the field table.
	ErrInvalidField = errors.New("invalid field")
	// ErrValueOutOfRange is returned when a value does not fit the field width.
	ErrValueOutOfRange = errors.New("value out of range")
	// ErrMessageSize is returned when parsing a buffer that is not MessageSize bytes.
	ErrMessageSize = errors.New("invalid message size")

	// ErrReplayMismatch rejects a response whose originate timestamp does not
	// echo the transmit timestamp of our request.
	ErrReplayMismatch = errors.New("originate timestamp does not match request")
	// ErrNonCompliant rejects a response that violates RFC 4330 section 5.
	ErrNonCompliant = errors.New("response does not comply with RFC 4330")

	// ErrTransport wraps socket-level failures, including timeouts.
	ErrTransport = errors.New("transport error")
)

// FieldError reports a codec failure on a specific field.
type FieldError struct {
	Field string
	Value uint64
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrValueOutOfRange) {
		return fmt.Sprintf("field %s: %v: %d", e.Field, e.Err, e.Value)
	}
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
