package services

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 摄取、检索与生成的 Prometheus 指标，nil 时所有方法为空操作
type Metrics struct {
	gatherer prometheus.Gatherer

	ingestions    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	chunksIndexed prometheus.Counter
	compensations *prometheus.CounterVec

	retrievals       *prometheus.CounterVec
	retrievalLatency prometheus.Histogram

	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec
}

// NewMetrics 在给定注册表上创建指标
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edurag_ingestions_total",
			Help: "Document ingestion runs by result",
		}, []string{"result"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edurag_ingestion_step_seconds",
			Help:    "Duration of each ingestion pipeline step",
			Buckets: prometheus.ExponentialBuckets(0.005, 3, 10),
		}, []string{"step"}),
		chunksIndexed: f.NewCounter(prometheus.CounterOpts{
			Name: "edurag_chunks_indexed_total",
			Help: "Chunks written to the vector index",
		}),
		compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edurag_compensations_total",
			Help: "Compensating chunk deletions after a failed ingestion",
		}, []string{"result"}),
		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edurag_retrievals_total",
			Help: "Scoped retrieval calls by result",
		}, []string{"result"}),
		retrievalLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edurag_retrieval_seconds",
			Help:    "Scoped retrieval latency including query embedding",
			Buckets: prometheus.DefBuckets,
		}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edurag_generations_total",
			Help: "Generation calls by mode and result",
		}, []string{"mode", "result"}),
		generationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edurag_generation_seconds",
			Help:    "Generation latency by mode",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"mode"}),
	}
}

// Handler 返回 /metrics 处理器，同时输出默认注册表中的进程与错误指标
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(prometheus.Gatherers{m.gatherer, prometheus.DefaultGatherer}, promhttp.HandlerOpts{})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) observeStep(step string, started time.Time) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ingestionDone(chunks int, err error) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(resultLabel(err)).Inc()
	if err == nil {
		m.chunksIndexed.Add(float64(chunks))
	}
}

func (m *Metrics) compensated(err error) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) retrievalDone(started time.Time, err error) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(resultLabel(err)).Inc()
	m.retrievalLatency.Observe(time.Since(started).Seconds())
}

func (m *Metrics) generationDone(mode string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(mode, resultLabel(err)).Inc()
	m.generationLatency.WithLabelValues(mode).Observe(time.Since(started).Seconds())
}
