package sui

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mr-tron/base58"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
)

// BigInt is a u64 that the Sui JSON-RPC API serialises as a decimal string.
// Plain JSON numbers are accepted as well.
type BigInt uint64

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint64
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return fmt.Errorf("invalid u64 %s: %w", data, err)
		}
		*b = BigInt(n)
		return nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid u64 %q: %w", s, err)
	}
	*b = BigInt(n)
	return nil
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(b), 10))
}

// Checkpoint is the sui_getCheckpoint response.
type Checkpoint struct {
	Epoch          BigInt   `json:"epoch"`
	SequenceNumber BigInt   `json:"sequenceNumber"`
	Digest         string   `json:"digest"`
	PreviousDigest string   `json:"previousDigest,omitempty"`
	TimestampMs    BigInt   `json:"timestampMs"`
	Transactions   []string `json:"transactions"`
}

// TransactionBlock is one sui_multiGetTransactionBlocks entry requested with
// showEvents.
type TransactionBlock struct {
	Digest string  `json:"digest"`
	Events []Event `json:"events"`
}

type EventID struct {
	TxDigest string `json:"txDigest"`
	EventSeq BigInt `json:"eventSeq"`
}

// Event is a Move event as returned by the node. BCS is base58 unless
// BCSEncoding says otherwise.
type Event struct {
	ID                EventID         `json:"id"`
	PackageID         string          `json:"packageId"`
	TransactionModule string          `json:"transactionModule"`
	Sender            string          `json:"sender"`
	Type              string          `json:"type"`
	ParsedJSON        json.RawMessage `json:"parsedJson,omitempty"`
	BCSEncoding       string          `json:"bcsEncoding,omitempty"`
	BCS               string          `json:"bcs"`
}

// Contents decodes the BCS payload of the event.
func (e Event) Contents() ([]byte, error) {
	switch e.BCSEncoding {
	case "base64":
		b, err := base64.StdEncoding.DecodeString(e.BCS)
		if err != nil {
			return nil, fmt.Errorf("decode base64 bcs: %w", err)
		}
		return b, nil
	case "", "base58":
		b, err := base58.Decode(e.BCS)
		if err != nil {
			return nil, fmt.Errorf("decode base58 bcs: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported bcs encoding %q", e.BCSEncoding)
	}
}

// toEvent converts a wire event into the pipeline's representation. A
// payload that cannot be decoded is kept as ContentsErr so it only fails
// the event, and only if the event is tracked.
func (e Event) toEvent() *checkpoint.Event {
	ev := &checkpoint.Event{
		Type:      e.Type,
		PackageID: e.PackageID,
		Module:    e.TransactionModule,
		Sender:    e.Sender,
		EventSeq:  uint64(e.ID.EventSeq),
	}
	ev.Contents, ev.ContentsErr = e.Contents()
	return ev
}

func (c Checkpoint) summary() checkpoint.Summary {
	return checkpoint.Summary{
		SequenceNumber: uint64(c.SequenceNumber),
		Digest:         c.Digest,
		Epoch:          uint64(c.Epoch),
		TimestampMs:    uint64(c.TimestampMs),
	}
}
