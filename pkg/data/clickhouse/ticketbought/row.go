package ticketbought

import (
	"errors"
	"time"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/messages"
)

var ErrNilMessage = errors.New("nil ticket message")

// Row is one TicketBought event as stored in ClickHouse. Receiver stays in
// hex here and is converted to FixedString(32) on write.
type Row struct {
	Checkpoint       uint64
	CheckpointDigest string
	Epoch            uint64
	CheckpointTime   time.Time
	TxDigest         string
	TxIndex          uint32
	EventIndex       uint32
	EventSeq         uint64
	EventType        string
	PackageID        string
	Sender           string
	Receiver         string
	SpinID           uint64
	Price            uint64
	Amount           uint64
	CoinType         string
}

// RowFromMessage maps a published ticket onto a table row.
func RowFromMessage(m *messages.TicketBought) (*Row, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Row{
		Checkpoint:       m.Checkpoint,
		CheckpointDigest: m.CheckpointDigest,
		Epoch:            m.Epoch,
		CheckpointTime:   time.UnixMilli(int64(m.TimestampMs)).UTC(),
		TxDigest:         m.TxDigest,
		TxIndex:          uint32(m.TxIndex),
		EventIndex:       uint32(m.EventIndex),
		EventSeq:         m.EventSeq,
		EventType:        m.EventType,
		PackageID:        m.PackageID,
		Sender:           m.Sender,
		Receiver:         m.Receiver,
		SpinID:           m.SpinID,
		Price:            m.Price,
		Amount:           m.Amount,
		CoinType:         m.CoinType,
	}, nil
}
