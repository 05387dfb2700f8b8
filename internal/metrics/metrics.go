package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stickerquote"

// Metrics owns a private registry so tests and multiple app instances do not
// collide on the global one. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry     *prometheus.Registry
	calculations *prometheus.CounterVec
	quotes       *prometheus.CounterVec
	renderTime   *prometheus.HistogramVec
	pdfCache     *prometheus.CounterVec
	tokens       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Per-sticker price calculations by result.",
		}, []string{"result"}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Quotes built by output format.",
		}, []string{"format"}),
		renderTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent rendering a quote export.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"format"}),
		pdfCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pdf_cache_total",
			Help:      "PDF cache lookups by outcome.",
		}, []string{"outcome"}),
		tokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_tokens_loaded",
			Help:      "API tokens currently held in memory.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.calculations,
		m.quotes,
		m.renderTime,
		m.pdfCache,
		m.tokens,
	)
	return m
}

// Calculation records one calculator call; result is "valid" or the invalid reason.
func (m *Metrics) Calculation(result string) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(result).Inc()
}

func (m *Metrics) Quote(format string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(format).Inc()
}

func (m *Metrics) ObserveRender(format string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderTime.WithLabelValues(format).Observe(d.Seconds())
}

func (m *Metrics) PDFCache(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.pdfCache.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokensLoaded(n int) {
	if m == nil {
		return
	}
	m.tokens.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
