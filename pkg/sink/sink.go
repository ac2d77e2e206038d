// Package sink holds the processor.Sink implementations the checkpoint
// fetcher can write decoded events to.
package sink

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/kafka/messages"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/processor"
)

// Sink names, as accepted by --sinks and used as the metrics label.
const (
	NameLog        = "log"
	NameKafka      = "kafka"
	NameClickHouse = "clickhouse"
	NamePostgres   = "postgres"
)

var ErrUnknownSink = errors.New("unknown sink")

// ParseNames splits a comma separated sink list, dropping blanks and
// duplicates. An empty list selects the log sink.
func ParseNames(list []string) ([]string, error) {
	seen := make(map[string]struct{})
	var names []string
	for _, item := range list {
		for _, name := range strings.Split(item, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			switch name {
			case NameLog, NameKafka, NameClickHouse, NamePostgres:
			default:
				return nil, fmt.Errorf("%w: %q", ErrUnknownSink, name)
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return []string{NameLog}, nil
	}
	return names, nil
}

// timed runs one write and reports it under the sink's name.
func timed(m *metrics.Metrics, name string, write func() error) error {
	start := time.Now()
	err := write()
	m.RecordSinkWrite(name, err, time.Since(start).Seconds())
	return err
}

// ticketMessage flattens ev for the persistent sinks. Records of other types
// are skipped with a warning rather than failing the checkpoint.
func ticketMessage(log *zap.SugaredLogger, sinkName string, ev processor.DecodedEvent) (*messages.TicketBought, bool) {
	msg, err := messages.TicketBoughtFromDecoded(ev)
	if err != nil {
		log.Warnw("skipping record",
			"sink", sinkName,
			"tx", ev.TxDigest,
			"eventIndex", ev.EventIndex,
			"error", err,
		)
		return nil, false
	}
	return msg, true
}
