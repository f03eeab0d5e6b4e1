package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records RAG pipeline events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	EmbeddingDegraded(reason string)
	RetrievalDegraded(reason string)
	ChunksIndexed(n int)
	StreamFinished(state string)
	AssistantMessageLost()
	ObserveGeneration(mode string, d time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) EmbeddingDegraded(string)                {}
func (NopMetrics) RetrievalDegraded(string)                {}
func (NopMetrics) ChunksIndexed(int)                       {}
func (NopMetrics) StreamFinished(string)                   {}
func (NopMetrics) AssistantMessageLost()                   {}
func (NopMetrics) ObserveGeneration(string, time.Duration) {}

// PrometheusMetrics is the Prometheus-backed Metrics implementation.
type PrometheusMetrics struct {
	embeddingDegraded *prometheus.CounterVec
	retrievalDegraded *prometheus.CounterVec
	chunksIndexed     prometheus.Counter
	streams           *prometheus.CounterVec
	messagesLost      prometheus.Counter
	generation        *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		embeddingDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "embedding_degraded_total",
			Help:      "Embeddings replaced by the zero vector, by failure reason.",
		}, []string{"reason"}),
		retrievalDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "retrieval_degraded_total",
			Help:      "Retrievals that fell back to no grounding, by reason.",
		}, []string{"reason"}),
		chunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index.",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "chat_streams_total",
			Help:      "Chat answer streams by terminal state.",
		}, []string{"state"}),
		messagesLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docchat",
			Name:      "assistant_messages_lost_total",
			Help:      "Completed answers that could not be persisted.",
		}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docchat",
			Name:      "generation_duration_seconds",
			Help:      "Time spent producing an answer.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"mode"}),
	}

	for _, c := range []prometheus.Collector{
		m.embeddingDegraded, m.retrievalDegraded, m.chunksIndexed,
		m.streams, m.messagesLost, m.generation,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) EmbeddingDegraded(reason string) {
	m.embeddingDegraded.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) RetrievalDegraded(reason string) {
	m.retrievalDegraded.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) ChunksIndexed(n int) {
	m.chunksIndexed.Add(float64(n))
}

func (m *PrometheusMetrics) StreamFinished(state string) {
	m.streams.WithLabelValues(state).Inc()
}

func (m *PrometheusMetrics) AssistantMessageLost() {
	m.messagesLost.Inc()
}

func (m *PrometheusMetrics) ObserveGeneration(mode string, d time.Duration) {
	m.generation.WithLabelValues(mode).Observe(d.Seconds())
}
