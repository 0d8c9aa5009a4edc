package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragkit"

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors of one ragkit process on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	EmbeddingRequests *prometheus.CounterVec
	EmbeddingLatency  *prometheus.HistogramVec
	EmbeddingTexts    *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	VectorStoreOps    *prometheus.CounterVec
	QueryLatency      *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EmbeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding provider calls by provider, model and outcome.",
		}, []string{"provider", "model", "outcome"}),
		EmbeddingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "request_duration_seconds",
			Help:      "Latency of embedding provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		EmbeddingTexts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batch_texts",
			Help:      "Number of texts sent per provider call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
		VectorStoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Vector store operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End to end query latency by query mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EmbeddingRequests,
		m.EmbeddingLatency,
		m.EmbeddingTexts,
		m.CacheLookups,
		m.VectorStoreOps,
		m.QueryLatency,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ObserveEmbedding records one provider call.
func (m *Metrics) ObserveEmbedding(provider, model string, texts int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.EmbeddingRequests.WithLabelValues(provider, model, outcome(err)).Inc()
	m.EmbeddingLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.EmbeddingTexts.WithLabelValues(provider).Observe(float64(texts))
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveVectorStore records one vector store operation.
func (m *Metrics) ObserveVectorStore(op string, err error) {
	if m == nil {
		return
	}
	m.VectorStoreOps.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveQuery records a completed query.
func (m *Metrics) ObserveQuery(mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueryLatency.WithLabelValues(mode).Observe(elapsed.Seconds())
}
