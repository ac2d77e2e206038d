// Package messages provides the Kafka payloads published by the checkpoint
// indexer, along with conversion from decoded events.
package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/events"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

const (
	TypeTicketBought    = events.TicketBoughtType
	TicketBoughtVersion = 1
)

var (
	ErrNotTicketBought = errors.New("record is not a TicketBought")
	ErrMissingTxDigest = errors.New("message has no transaction digest")
)

// TicketBought is a decoded TicketBought event with its chain position.
type TicketBought struct {
	Checkpoint       uint64 `json:"checkpoint"`
	CheckpointDigest string `json:"checkpointDigest"`
	Epoch            uint64 `json:"epoch"`
	TimestampMs      uint64 `json:"timestampMs"`

	TxDigest   string `json:"txDigest"`
	TxIndex    int    `json:"txIndex"`
	EventIndex int    `json:"eventIndex"`
	EventSeq   uint64 `json:"eventSeq"`
	EventType  string `json:"eventType"`
	PackageID  string `json:"packageId"`
	Sender     string `json:"sender"`

	Receiver string `json:"receiver"`
	SpinID   uint64 `json:"spinId"`
	Price    uint64 `json:"price"`
	Amount   uint64 `json:"amount"`
	CoinType string `json:"coinType"`
}

// TicketBoughtFromDecoded flattens a decoded event into its Kafka payload.
func TicketBoughtFromDecoded(ev processor.DecodedEvent) (*TicketBought, error) {
	rec, ok := ev.Record.(events.TicketBought)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotTicketBought, ev.Record)
	}
	msg := &TicketBought{
		Checkpoint:       ev.Checkpoint.SequenceNumber,
		CheckpointDigest: ev.Checkpoint.Digest,
		Epoch:            ev.Checkpoint.Epoch,
		TimestampMs:      ev.Checkpoint.TimestampMs,
		TxDigest:         ev.TxDigest,
		TxIndex:          ev.TxIndex,
		EventIndex:       ev.EventIndex,
		Receiver:         rec.ReceiverHex(),
		SpinID:           rec.SpinID,
		Price:            rec.Price,
		Amount:           rec.Amount,
		CoinType:         rec.CoinType,
	}
	if ev.Event != nil {
		msg.EventSeq = ev.Event.EventSeq
		msg.EventType = ev.Event.Type
		msg.PackageID = ev.Event.PackageID
		msg.Sender = ev.Event.Sender
	}
	return msg, nil
}

// Key identifies the event uniquely on chain. Messages for the same
// transaction land on the same partition.
func (t *TicketBought) Key() string {
	return t.TxDigest + ":" + strconv.FormatUint(t.EventSeq, 10)
}

func (t *TicketBought) Validate() error {
	if t.TxDigest == "" {
		return ErrMissingTxDigest
	}
	return nil
}

func (t *TicketBought) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func (t *TicketBought) Unmarshal(data []byte) error {
	return json.Unmarshal(data, t)
}
