// Package metrics provides Prometheus metrics for the tapsense telemetry pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds shared by flush, store and HTTP histograms.
var defaultLatencyBuckets = []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000} //nolint:gochecknoglobals // read-only defaults

// Manager owns every Prometheus collector of the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	sizeBuckets      []float64
	enabled          bool
	registry         prometheus.Registerer

	// Sampling and buffering
	samplesSeen      prometheus.Counter
	samplesBuffered  *prometheus.CounterVec
	samplesDiscarded *prometheus.CounterVec
	bufferSize       *prometheus.GaugeVec
	windowsOpened    *prometheus.CounterVec
	sampleQueueDrops prometheus.Counter

	// Flush lifecycle
	flushes       *prometheus.CounterVec
	flushSize     *prometheus.HistogramVec
	flushDuration *prometheus.HistogramVec

	// Prediction wait and coordinator
	waits       *prometheus.CounterVec
	predictions *prometheus.CounterVec

	// Event bus
	busPublishes *prometheus.CounterVec
	busHandlers  *prometheus.CounterVec
	busSkipped   *prometheus.CounterVec

	// Store
	storeOps      *prometheus.CounterVec
	storeErrors   *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	globalMu      sync.RWMutex         //nolint:gochecknoglobals // guards globalManager
	globalManager *Manager             //nolint:gochecknoglobals // intentional global for singleton metrics manager
	registry      *prometheus.Registry //nolint:gochecknoglobals // custom registry to avoid default Go metrics
)

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	registry = prometheus.NewRegistry()
	globalManager = NewManager(WithPrometheusRegistry(registry))
}

// NewManager creates a Manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tapsense",
		subsystem:        "pipeline",
		histogramBuckets: defaultLatencyBuckets,
		sizeBuckets:      prometheus.ExponentialBuckets(1, 2, 9),
		enabled:          true,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.samplesSeen = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "samples_seen_total",
		Help:      "Total number of samples produced by the sample source",
	})
	m.samplesBuffered = m.counterVec("samples_buffered_total",
		"Samples retained by an upload strategy", "strategy")
	m.samplesDiscarded = m.counterVec("samples_discarded_total",
		"Samples dropped by an upload strategy, by reason", "strategy", "reason")
	m.bufferSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "buffer_size",
		Help:      "Current number of samples held in a strategy buffer",
	}, []string{"strategy"})
	m.windowsOpened = m.counterVec("windows_opened_total",
		"Recording windows opened, by hand", "strategy", "hand")
	m.sampleQueueDrops = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sample_queue_drops_total",
		Help:      "Samples dropped because the sample queue was full",
	})

	m.flushes = m.counterVec("flushes_total",
		"Flush attempts by outcome: started, succeeded, failed, dropped", "strategy", "outcome")
	m.flushSize = m.histogramVec("flush_size_samples",
		"Number of samples per flushed batch", m.sizeBuckets, "strategy")
	m.flushDuration = m.histogramVec("flush_duration_milliseconds",
		"Flush write latency in milliseconds", m.histogramBuckets, "strategy", "outcome")

	m.waits = m.counterVec("prediction_waits_total",
		"Prediction waits by outcome: started, acked, timed_out, cancelled", "outcome")
	m.predictions = m.counterVec("predictions_total",
		"Prediction feed messages by outcome: received, stale, published, unmapped, malformed", "outcome")

	m.busPublishes = m.counterVec("bus_publishes_total",
		"Event bus publishes per channel", "channel")
	m.busHandlers = m.counterVec("bus_handler_invocations_total",
		"Event bus handler invocations per channel", "channel")
	m.busSkipped = m.counterVec("bus_skipped_deliveries_total",
		"Deliveries skipped because the payload type did not match", "channel")

	m.storeOps = m.counterVec("store_operations_total",
		"Store operations by backend and operation", "backend", "op")
	m.storeErrors = m.counterVec("store_errors_total",
		"Store operation failures by backend and operation", "backend", "op")
	m.storeDuration = m.histogramVec("store_duration_milliseconds",
		"Store operation latency in milliseconds", m.histogramBuckets, "backend", "op")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")
}

func current() *Manager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// SetGlobal swaps the manager used by the package-level helpers and returns the previous one.
func SetGlobal(m *Manager) *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := globalManager
	if m != nil {
		globalManager = m
	}
	return prev
}

// Enabled reports whether recording is active on the global manager.
func Enabled() bool {
	return current().enabled
}

// RecordSampleSeen counts a sample produced by the sample source.
func RecordSampleSeen() {
	if m := current(); m.enabled {
		m.samplesSeen.Inc()
	}
}

// RecordSampleBuffered counts a sample retained by a strategy.
func RecordSampleBuffered(strategy string) {
	if m := current(); m.enabled {
		m.samplesBuffered.WithLabelValues(strategy).Inc()
	}
}

// RecordSamplesDiscarded counts n samples dropped by a strategy.
func RecordSamplesDiscarded(strategy, reason string, n int) {
	if n <= 0 {
		return
	}
	if m := current(); m.enabled {
		m.samplesDiscarded.WithLabelValues(strategy, reason).Add(float64(n))
	}
}

// UpdateBufferSize sets the current buffer length of a strategy.
func UpdateBufferSize(strategy string, size int) {
	if m := current(); m.enabled {
		m.bufferSize.WithLabelValues(strategy).Set(float64(size))
	}
}

// RecordWindowOpened counts a recording window opened by hand.
func RecordWindowOpened(strategy, hand string) {
	if m := current(); m.enabled {
		m.windowsOpened.WithLabelValues(strategy, hand).Inc()
	}
}

// RecordSampleQueueDrop counts a sample lost to a full queue.
func RecordSampleQueueDrop() {
	if m := current(); m.enabled {
		m.sampleQueueDrops.Inc()
	}
}

// Flush outcomes.
const (
	FlushStarted   = "started"
	FlushSucceeded = "succeeded"
	FlushFailed    = "failed"
	FlushDropped   = "dropped"
)

// RecordFlush counts a flush transition.
func RecordFlush(strategy, outcome string) {
	if m := current(); m.enabled {
		m.flushes.WithLabelValues(strategy, outcome).Inc()
	}
}

// RecordFlushSize observes the number of samples in a flushed batch.
func RecordFlushSize(strategy string, size int) {
	if m := current(); m.enabled {
		m.flushSize.WithLabelValues(strategy).Observe(float64(size))
	}
}

// RecordFlushDuration observes flush latency in milliseconds.
func RecordFlushDuration(strategy, outcome string, latencyMs float64) {
	if m := current(); m.enabled {
		m.flushDuration.WithLabelValues(strategy, outcome).Observe(latencyMs)
	}
}

// Prediction wait outcomes.
const (
	WaitStarted   = "started"
	WaitAcked     = "acked"
	WaitTimedOut  = "timed_out"
	WaitCancelled = "cancelled"
)

// RecordWait counts a prediction wait transition.
func RecordWait(outcome string) {
	if m := current(); m.enabled {
		m.waits.WithLabelValues(outcome).Inc()
	}
}

// Prediction feed outcomes.
const (
	PredictionReceived  = "received"
	PredictionStale     = "stale"
	PredictionPublished = "published"
	PredictionUnmapped  = "unmapped"
	PredictionMalformed = "malformed"
)

// RecordPrediction counts a prediction feed message by outcome.
func RecordPrediction(outcome string) {
	if m := current(); m.enabled {
		m.predictions.WithLabelValues(outcome).Inc()
	}
}

// RecordBusPublish counts a publish and the handlers it reached.
func RecordBusPublish(channel string, handlers int) {
	if m := current(); m.enabled {
		m.busPublishes.WithLabelValues(channel).Inc()
		if handlers > 0 {
			m.busHandlers.WithLabelValues(channel).Add(float64(handlers))
		}
	}
}

// RecordBusSkipped counts typed deliveries skipped on a channel.
func RecordBusSkipped(channel string) {
	if m := current(); m.enabled {
		m.busSkipped.WithLabelValues(channel).Inc()
	}
}

// RecordStoreOp observes one store operation.
func RecordStoreOp(backend, op string, latencyMs float64, err error) {
	m := current()
	if !m.enabled {
		return
	}
	m.storeOps.WithLabelValues(backend, op).Inc()
	m.storeDuration.WithLabelValues(backend, op).Observe(latencyMs)
	if err != nil {
		m.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := current(); m.enabled {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := current(); m.enabled {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return registry
}
