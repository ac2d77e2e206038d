package bcs

import (
	"errors"
	"fmt"

	gobcs "github.com/fardream/go-bcs/bcs"
)

// ErrMalformed wraps errors reported by the underlying codec.
var ErrMalformed = errors.New("malformed bcs payload")

// Unmarshal decodes data into v, which must be a pointer. All of data must be
// consumed.
func Unmarshal(data []byte, v any) error {
	n, err := gobcs.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if n != len(data) {
		return fmt.Errorf("%d bytes left at offset %d: %w", len(data)-n, n, ErrTrailingBytes)
	}
	return nil
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	b, err := gobcs.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bcs marshal: %w", err)
	}
	return b, nil
}
