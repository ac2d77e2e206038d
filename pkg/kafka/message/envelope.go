// Package message defines the envelope every record published to Kafka is
// wrapped in, so consumers can route by type and version before decoding.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrEmptyEnvelope = errors.New("envelope has no type or data")

type Envelope struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"id,omitempty"`
	TS      string          `json:"ts,omitempty"` // RFC 3339, millisecond precision
	Data    json.RawMessage `json:"data"`
}

// Open parses an envelope without decoding its payload.
func Open(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	if env.Type == "" || len(env.Data) == 0 {
		return nil, ErrEmptyEnvelope
	}
	return &env, nil
}

func New(msgType string, version int, id string, ts time.Time, data json.RawMessage) *Envelope {
	e := &Envelope{
		Type:    msgType,
		Version: version,
		ID:      id,
		Data:    data,
	}
	if !ts.IsZero() {
		e.TS = ts.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return e
}

// Seal marshals payload and wraps it in an envelope.
func Seal(msgType string, version int, id string, ts time.Time, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(New(msgType, version, id, ts, data))
}
