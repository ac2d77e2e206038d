package bcs

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxSequenceLength is the largest length prefix BCS accepts (2^31 - 1).
const MaxSequenceLength = 1<<31 - 1

var (
	ErrUnexpectedEOF       = errors.New("unexpected end of input")
	ErrInvalidUTF8         = errors.New("string is not valid utf-8")
	ErrLengthOverflow      = errors.New("length prefix exceeds maximum sequence length")
	ErrNonCanonicalULEB128 = errors.New("non-canonical uleb128 encoding")
	ErrTrailingBytes       = errors.New("trailing bytes after last field")
)

// Reader is a forward-only cursor that validates the variable-length parts
// of a BCS buffer.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the cursor position.
func (r *Reader) Offset() int {
	return r.off
}

// Skip advances the cursor over n bytes without inspecting them.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Remaining() < n {
		return fmt.Errorf("skip %d bytes at offset %d, %d remaining: %w", n, r.off, r.Remaining(), ErrUnexpectedEOF)
	}
	r.off += n
	return nil
}

// ReadLength reads a ULEB128 sequence length. Non-minimal encodings and values
// above MaxSequenceLength are rejected.
func (r *Reader) ReadLength() (int, error) {
	start := r.off
	var v uint64
	for shift := uint(0); shift < 32; shift += 7 {
		if r.off >= len(r.buf) {
			r.off = start
			return 0, fmt.Errorf("read uleb128 at offset %d: %w", start, ErrUnexpectedEOF)
		}
		b := r.buf[r.off]
		r.off++
		digit := uint64(b & 0x7f)
		v |= digit << shift
		if b&0x80 != 0 {
			continue
		}
		if shift > 0 && digit == 0 {
			r.off = start
			return 0, fmt.Errorf("read uleb128 at offset %d: %w", start, ErrNonCanonicalULEB128)
		}
		if v > MaxSequenceLength {
			r.off = start
			return 0, fmt.Errorf("read uleb128 at offset %d: value %d: %w", start, v, ErrLengthOverflow)
		}
		return int(v), nil
	}
	r.off = start
	return 0, fmt.Errorf("read uleb128 at offset %d: %w", start, ErrLengthOverflow)
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	start := r.off
	n, err := r.ReadLength()
	if err != nil {
		return "", err
	}
	if r.Remaining() < n {
		r.off = start
		return "", fmt.Errorf("read string of %d bytes at offset %d, %d remaining: %w",
			n, start, r.Remaining(), ErrUnexpectedEOF)
	}
	raw := r.buf[r.off : r.off+n]
	if !utf8.Valid(raw) {
		r.off = start
		return "", fmt.Errorf("read string at offset %d: %w", start, ErrInvalidUTF8)
	}
	r.off += n
	return string(raw), nil
}

// Finish reports ErrTrailingBytes if the buffer was not fully consumed.
func (r *Reader) Finish() error {
	if n := r.Remaining(); n > 0 {
		return fmt.Errorf("%d bytes left at offset %d: %w", n, r.off, ErrTrailingBytes)
	}
	return nil
}
