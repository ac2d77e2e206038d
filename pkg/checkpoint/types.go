// Package checkpoint holds the in-memory representation of a Sui checkpoint as
// handed to the extraction pipeline: an ordered batch of transactions, each
// carrying the events it emitted.
package checkpoint

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNilCheckpoint  = errors.New("checkpoint is nil")
	ErrNilTransaction = errors.New("transaction is nil")
	ErrNilEvent       = errors.New("event is nil")
)

// Summary identifies a checkpoint within the chain history.
type Summary struct {
	SequenceNumber uint64 `json:"sequenceNumber"`
	Digest         string `json:"digest"`
	Epoch          uint64 `json:"epoch"`
	TimestampMs    uint64 `json:"timestampMs"`
}

func (s Summary) String() string {
	return fmt.Sprintf("checkpoint %d (epoch %d, digest %s)", s.SequenceNumber, s.Epoch, s.Digest)
}

type Checkpoint struct {
	Summary      Summary
	Transactions []*Transaction
}

type Transaction struct {
	Digest string
	Events []*Event
}

// Event is a Move event emitted by a transaction. Contents is the BCS encoding
// of the event struct named by Type. ContentsErr is set instead when the
// fetch layer could not recover the payload bytes; it only matters for
// tracked events.
type Event struct {
	// Type is the fully qualified Move struct tag, e.g.
	// 0x2f1c...::lottery::TicketBought.
	Type        string
	PackageID   string
	Module      string
	Sender      string
	EventSeq    uint64
	Contents    []byte
	ContentsErr error
}

// TypeName returns the bare struct name of the event type: the last path
// segment of the struct tag with any type parameters removed.
func (e *Event) TypeName() string {
	return StructName(e.Type)
}

// StructName extracts the struct name from a Move struct tag.
//
//	0x2::coin::CoinMetadata<0x2::sui::SUI> -> CoinMetadata
//	TicketBought                           -> TicketBought
func StructName(tag string) string {
	if i := strings.IndexByte(tag, '<'); i >= 0 {
		tag = tag[:i]
	}
	if i := strings.LastIndex(tag, "::"); i >= 0 {
		tag = tag[i+2:]
	}
	return tag
}

// Validate checks the structural invariants the extraction pipeline relies on.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return ErrNilCheckpoint
	}
	for i, tx := range c.Transactions {
		if tx == nil {
			return fmt.Errorf("transaction %d: %w", i, ErrNilTransaction)
		}
		for j, ev := range tx.Events {
			if ev == nil {
				return fmt.Errorf("transaction %d (%s) event %d: %w", i, tx.Digest, j, ErrNilEvent)
			}
		}
	}
	return nil
}
