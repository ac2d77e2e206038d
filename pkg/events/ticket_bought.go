package events

import (
	"encoding/hex"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/bcs"
)

// TicketBoughtType is the Move struct name of the lottery purchase event.
const TicketBoughtType = "TicketBought"

// ticketBoughtFixedSize is the receiver plus the three u64 fields.
const ticketBoughtFixedSize = 32 + 8 + 8 + 8

// TicketBought is emitted by the lottery package for every ticket purchase.
type TicketBought struct {
	Receiver [32]byte
	SpinID   uint64
	Price    uint64
	Amount   uint64
	CoinType string
}

func (TicketBought) TypeName() string { return TicketBoughtType }

// ReceiverHex returns the receiver address as 0x-prefixed hex.
func (t TicketBought) ReceiverHex() string {
	return "0x" + hex.EncodeToString(t.Receiver[:])
}

// ticketBoughtWire has the field order of the Move struct and no methods, so
// the codec encodes it field by field.
type ticketBoughtWire struct {
	Receiver [32]byte
	SpinID   uint64
	Price    uint64
	Amount   uint64
	CoinType string
}

// DecodeTicketBought decodes the BCS layout
//
//	receiver [32]u8 | spin_id u64 | price u64 | amount u64 | coin_type string
//
// Any short, oversized or non UTF-8 input yields a *DecodeError.
func DecodeTicketBought(b []byte) (TicketBought, error) {
	if len(b) < ticketBoughtFixedSize {
		return TicketBought{}, &DecodeError{TypeName: TicketBoughtType, Err: bcs.ErrUnexpectedEOF}
	}

	// The codec accepts padded length prefixes and invalid UTF-8.
	r := bcs.NewReader(b)
	if err := r.Skip(ticketBoughtFixedSize); err != nil {
		return TicketBought{}, &DecodeError{TypeName: TicketBoughtType, Err: err}
	}
	if _, err := r.ReadString(); err != nil {
		return TicketBought{}, &DecodeError{TypeName: TicketBoughtType, Err: err}
	}
	if err := r.Finish(); err != nil {
		return TicketBought{}, &DecodeError{TypeName: TicketBoughtType, Err: err}
	}

	var wire ticketBoughtWire
	if err := bcs.Unmarshal(b, &wire); err != nil {
		return TicketBought{}, &DecodeError{TypeName: TicketBoughtType, Err: err}
	}
	return TicketBought(wire), nil
}

// MarshalBCS encodes t with the same layout DecodeTicketBought reads.
func (t TicketBought) MarshalBCS() []byte {
	b, err := bcs.Marshal(ticketBoughtWire(t))
	if err != nil {
		// fixed arrays, integers and strings always encode
		panic(err)
	}
	return b
}

func decodeTicketBought(b []byte) (Record, error) {
	rec, err := DecodeTicketBought(b)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
