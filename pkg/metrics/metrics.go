package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "checkpoint_indexer"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	RPC      = "rpc"
	Events   = "events"
	Sink     = "sink"
	Consumer = "consumer"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple indexer instances.
type Labels struct {
	Chain         string // Chain identifier (e.g., "mainnet", "testnet")
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Chain != "" {
		labels["chain"] = l.Chain
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Sliding window state
	lowest           prometheus.Gauge
	highest          prometheus.Gauge
	processedSetSize prometheus.Gauge

	// Processing counters
	checkpointsCommitted prometheus.Counter
	lowestAdvances       prometheus.Counter
	errors               *prometheus.CounterVec

	// RPC metrics
	rpcCalls           *prometheus.CounterVec
	rpcDuration        *prometheus.HistogramVec
	rpcInFlight        prometheus.Gauge
	transactionsLoaded prometheus.Counter

	// Processing latency
	checkpointProcessingDuration prometheus.Histogram

	// Event extraction
	eventsDecoded  *prometheus.CounterVec // by type
	decodeFailures *prometheus.CounterVec // by type

	// Sink writes
	sinkWrites   *prometheus.CounterVec   // by sink, status
	sinkDuration *prometheus.HistogramVec // by sink

	// Resume point persistence
	checkpointWrites   *prometheus.CounterVec // by status
	lastPersistedCheck prometheus.Gauge

	// Ticket consumer
	messagesConsumed  *prometheus.CounterVec // by status
	messageDuration   prometheus.Histogram
	dlqPublished      prometheus.Counter
	semaphoreWaitTime prometheus.Histogram
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., chain), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lowest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "lowest",
			Help:      "Lowest unprocessed checkpoint (window lower bound)",
		}),
		highest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "highest",
			Help:      "Highest known checkpoint (window upper bound)",
		}),
		processedSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "processed_set_size",
			Help:      "Number of checkpoints processed out of order and awaiting commit",
		}),
		checkpointsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "checkpoints_committed_total",
			Help:      "Total number of checkpoints processed and committed in order",
		}),
		lowestAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lowest_advances_total",
			Help:      "Total number of times the lowest unprocessed checkpoint advanced",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		transactionsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: RPC,
			Name:      "transactions_loaded_total",
			Help:      "Total transaction blocks loaded with their events",
		}),
		checkpointProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "checkpoint_processing_duration_seconds",
			Help:      "Time to walk a checkpoint and hand its records to the sinks",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		eventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Events,
			Name:      "decoded_total",
			Help:      "Total tracked events decoded by type",
		}, []string{"type"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Events,
			Name:      "decode_failures_total",
			Help:      "Total tracked events whose payload could not be decoded, by type",
		}, []string{"type"}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Sink,
			Name:      "writes_total",
			Help:      "Total record writes by sink and status",
		}, []string{"sink", "status"}),
		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Sink,
			Name:      "write_duration_seconds",
			Help:      "Record write duration by sink",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"sink"}),
		checkpointWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "checkpointer",
			Name:      "writes_total",
			Help:      "Total resume point writes by status",
		}, []string{"status"}),
		lastPersistedCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "checkpointer",
			Name:      "last_persisted",
			Help:      "Last lowest unprocessed checkpoint written to the store",
		}),
		messagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "messages_total",
			Help:      "Total consumed messages by processing status",
		}, []string{"status"}),
		messageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing one consumed message",
			Buckets:   prometheus.DefBuckets,
		}),
		dlqPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "dlq_published_total",
			Help:      "Total messages published to the dead letter queue",
		}),
		semaphoreWaitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Consumer,
			Name:      "semaphore_wait_seconds",
			Help:      "Time waiting for a free processing slot",
			Buckets:   []float64{.0001, .001, .01, .1, .5, 1, 5},
		}),
	}

	err := errors.Join(
		reg.Register(m.lowest),
		reg.Register(m.highest),
		reg.Register(m.processedSetSize),
		reg.Register(m.checkpointsCommitted),
		reg.Register(m.lowestAdvances),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.transactionsLoaded),
		reg.Register(m.checkpointProcessingDuration),
		reg.Register(m.eventsDecoded),
		reg.Register(m.decodeFailures),
		reg.Register(m.sinkWrites),
		reg.Register(m.sinkDuration),
		reg.Register(m.checkpointWrites),
		reg.Register(m.lastPersistedCheck),
		reg.Register(m.messagesConsumed),
		reg.Register(m.messageDuration),
		reg.Register(m.dlqPublished),
		reg.Register(m.semaphoreWaitTime),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants for non-RPC errors (RPC errors are tracked via rpcCalls{status="error"}).
const (
	ErrTypeOutOfWindow       = "out_of_window"
	ErrTypeInvalidCheckpoint = "invalid_checkpoint"
	ErrTypeSinkRecord        = "sink_record"
	ErrTypeSinkFailure       = "sink_failure"
	ErrTypeSinkCheckpoint    = "sink_checkpoint"
	ErrTypeWorkerFailure     = "worker_failure"
	ErrTypeMaxFailures       = "max_failures"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// CommitCheckpoints records checkpoints being committed when the lowest watermark advances.
func (m *Metrics) CommitCheckpoints(count, lowest, highest uint64, processedSetSize int) {
	if m == nil {
		return
	}
	m.lowestAdvances.Inc()
	m.checkpointsCommitted.Add(float64(count))
	m.UpdateWindowMetrics(lowest, highest, processedSetSize)
}

// UpdateWindowMetrics updates sliding window state gauges.
func (m *Metrics) UpdateWindowMetrics(lowest, highest uint64, processedSetSize int) {
	if m == nil {
		return
	}
	m.lowest.Set(float64(lowest))
	m.highest.Set(float64(highest))
	m.processedSetSize.Set(float64(processedSetSize))
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// AddTransactionsLoaded counts transaction blocks fetched for a checkpoint.
func (m *Metrics) AddTransactionsLoaded(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.transactionsLoaded.Add(float64(count))
}

// RecordCheckpointProcessed records a checkpoint processing duration.
func (m *Metrics) RecordCheckpointProcessed(seconds float64) {
	if m == nil {
		return
	}
	m.checkpointProcessingDuration.Observe(seconds)
}

func (m *Metrics) RecordEventDecoded(typeName string) {
	if m == nil {
		return
	}
	m.eventsDecoded.WithLabelValues(typeName).Inc()
}

func (m *Metrics) RecordDecodeFailure(typeName string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(typeName).Inc()
}

// RecordSinkWrite records the outcome of handing one record to a sink.
func (m *Metrics) RecordSinkWrite(sink string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.sinkWrites.WithLabelValues(sink, status).Inc()
	m.sinkDuration.WithLabelValues(sink).Observe(durationSeconds)
}

// RecordCheckpointPersisted records a resume point write. The gauge only moves
// on success.
func (m *Metrics) RecordCheckpointPersisted(sequence uint64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.checkpointWrites.WithLabelValues(StatusError).Inc()
		return
	}
	m.checkpointWrites.WithLabelValues(StatusSuccess).Inc()
	m.lastPersistedCheck.Set(float64(sequence))
}

// RecordMessageProcessed records one consumed message.
func (m *Metrics) RecordMessageProcessed(err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.messagesConsumed.WithLabelValues(status).Inc()
	m.messageDuration.Observe(durationSeconds)
}

func (m *Metrics) IncDLQPublished() {
	if m == nil {
		return
	}
	m.dlqPublished.Inc()
}

func (m *Metrics) ObserveSemaphoreWait(seconds float64) {
	if m == nil {
		return
	}
	m.semaphoreWaitTime.Observe(seconds)
}
