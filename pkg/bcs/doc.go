// Package bcs decodes Binary Canonical Serialization payloads of Move events.
//
// Field decoding and encoding is done by github.com/fardream/go-bcs. On top of
// it this package adds the strictness a canonical decoder needs: Unmarshal
// rejects trailing bytes, and Reader validates ULEB128 length prefixes
// (minimal encoding, at most MaxSequenceLength) and UTF-8 string contents.
//
// Nothing here panics on malformed input. Every failure wraps one of the
// sentinel errors below.
package bcs
