// Package events defines the typed records decoded from Move event payloads and
// the dispatch table that maps an event type name to its decoder.
package events

import (
	"errors"
	"fmt"
	"slices"
)

// Record is a decoded event payload.
type Record interface {
	TypeName() string
}

// DecodeFunc decodes a BCS payload into a Record. Implementations must be pure
// and must not panic on malformed input.
type DecodeFunc func(contents []byte) (Record, error)

// knownDecoders is the closed set of event types this indexer understands.
var knownDecoders = map[string]DecodeFunc{
	TicketBoughtType: decodeTicketBought,
}

// KnownTypes lists every event type name with a built-in decoder.
func KnownTypes() []string {
	names := make([]string, 0, len(knownDecoders))
	for name := range knownDecoders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Registry is the set of tracked event types. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	decoders map[string]DecodeFunc
}

// NewRegistry tracks the given event type names. Every name must have a
// built-in decoder.
func NewRegistry(typeNames ...string) (*Registry, error) {
	if len(typeNames) == 0 {
		return nil, errors.New("invalid event types: at least one type name is required")
	}
	decoders := make(map[string]DecodeFunc, len(typeNames))
	for _, name := range typeNames {
		fn, ok := knownDecoders[name]
		if !ok {
			return nil, fmt.Errorf("invalid event type %q: %w", name, ErrUnknownEventType)
		}
		decoders[name] = fn
	}
	return &Registry{decoders: decoders}, nil
}

// Matches reports whether typeName is a tracked event type.
func (r *Registry) Matches(typeName string) bool {
	_, ok := r.decoders[typeName]
	return ok
}

// Decode dispatches contents to the decoder registered for typeName.
func (r *Registry) Decode(typeName string, contents []byte) (Record, error) {
	fn, ok := r.decoders[typeName]
	if !ok {
		return nil, &DecodeError{TypeName: typeName, Err: ErrUnknownEventType}
	}
	return fn(contents)
}

// TypeNames returns the tracked type names in sorted order.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
