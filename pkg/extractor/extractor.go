// Package extractor walks a checkpoint and yields one Outcome per tracked event.
//
// Transactions are visited in checkpoint order and events in transaction order.
// A decode failure is reported as an Outcome and never stops the walk.
package extractor

import (
	"iter"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/events"
)

// Matcher decides whether an event type name is tracked.
type Matcher interface {
	Matches(typeName string) bool
}

// Decoder turns the contents of a tracked event into a Record.
type Decoder interface {
	Decode(typeName string, contents []byte) (events.Record, error)
}

// Outcome is the result of decoding one tracked event. Exactly one of Record
// and Err is set.
type Outcome struct {
	TxIndex    int
	EventIndex int
	TxDigest   string
	Event      *checkpoint.Event
	Record     events.Record
	Err        error
}

// Failed reports whether the event could not be decoded.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Extract lazily walks cp. Untracked events yield nothing, so a checkpoint
// without tracked events yields an empty sequence. Nil transactions and events
// are skipped; callers that need them rejected run cp.Validate first.
//
// The sequence is single use: each range re-walks cp from the start.
func Extract(cp *checkpoint.Checkpoint, m Matcher, d Decoder) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		if cp == nil {
			return
		}
		for i, tx := range cp.Transactions {
			if tx == nil {
				continue
			}
			for j, ev := range tx.Events {
				if ev == nil {
					continue
				}
				name := ev.TypeName()
				if !m.Matches(name) {
					continue
				}
				out := Outcome{
					TxIndex:    i,
					EventIndex: j,
					TxDigest:   tx.Digest,
					Event:      ev,
				}
				if ev.ContentsErr != nil {
					out.Err = &events.DecodeError{TypeName: name, Err: ev.ContentsErr}
				} else {
					out.Record, out.Err = d.Decode(name, ev.Contents)
					if out.Err != nil {
						out.Record = nil
					}
				}
				if !yield(out) {
					return
				}
			}
		}
	}
}
