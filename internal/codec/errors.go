package codec

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage matches every *DecodeError.
var ErrMalformedMessage = errors.New("malformed message")

// DecodeError reports which field of an inbound message could not be decoded.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s: %v", e.Field, ErrMalformedMessage)
	}
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrMalformedMessage }

func malformed(field, format string, args ...any) error {
	return &DecodeError{Field: field, Err: fmt.Errorf(format, args...)}
}
