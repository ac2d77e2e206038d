package events

import (
	"errors"
	"fmt"
)

var ErrUnknownEventType = errors.New("no decoder registered for event type")

// DecodeError reports a payload that could not be decoded into the record type
// registered for TypeName. It never carries a partial record.
type DecodeError struct {
	TypeName string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.TypeName, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
