// Package metrics exposes Prometheus instruments for quoting and orders.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid"
	OutcomeAnalysisFailed = "analysis_failed"
	OutcomeError          = "error"
)

type Metrics struct {
	quotes           *prometheus.CounterVec
	quoteAmount      prometheus.Histogram
	analysisDuration prometheus.Histogram
	orders           *prometheus.CounterVec
}

// New builds the instruments and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_total",
			Help: "Quote requests by outcome.",
		}, []string{"outcome"}),
		quoteAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quote_total_amount",
			Help:    "Total including tax of issued quotes.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Time spent analyzing uploaded models.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Orders by status transition.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.quotes, m.quoteAmount, m.analysisDuration, m.orders)
	}
	return m
}

// Quote records a quote attempt. total is observed only for OutcomeOK.
func (m *Metrics) Quote(outcome string, total float64) {
	m.quotes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.quoteAmount.Observe(total)
	}
}

func (m *Metrics) Analysis(d time.Duration) {
	m.analysisDuration.Observe(d.Seconds())
}

func (m *Metrics) Order(status string) {
	m.orders.WithLabelValues(status).Inc()
}

// Handler serves the gathered metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
