package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	datasetsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_datasets_ingested_total",
			Help: "Total number of dataset ingestions by outcome.",
		},
		[]string{"outcome"},
	)
	ingestRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_ingest_rows_total",
			Help: "Total number of rows materialized by ingestion.",
		},
	)
	ingestLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabquery_ingest_latency_ms",
			Help:    "End-to-end ingestion latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_translations_total",
			Help: "Total number of question translations by outcome and attempts used.",
		},
		[]string{"outcome", "attempts"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_executions_total",
			Help: "Total number of query executions by status.",
		},
		[]string{"status"},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabquery_execution_latency_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 15000},
		},
	)
	executionTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_execution_truncated_total",
			Help: "Total number of results truncated by the row cap.",
		},
	)
	executionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabquery_executions_in_flight",
			Help: "Current number of admitted query executions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		datasetsIngestedTotal,
		ingestRowsTotal,
		ingestLatencyMs,
		translationsTotal,
		executionsTotal,
		executionLatencyMs,
		executionTruncatedTotal,
		executionsInFlight,
	)
}

func ObserveIngest(success bool, rows int64, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	datasetsIngestedTotal.WithLabelValues(outcome).Inc()
	if rows > 0 {
		ingestRowsTotal.Add(float64(rows))
	}
	ingestLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveTranslation(success bool, attempts int) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	label := "1"
	if attempts > 1 {
		label = "2"
	}
	translationsTotal.WithLabelValues(outcome, label).Inc()
}

// ObserveExecution records one finished execution. status is one of
// success, error or timeout.
func ObserveExecution(status string, truncated bool, elapsed time.Duration) {
	executionsTotal.WithLabelValues(status).Inc()
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if truncated {
		executionTruncatedTotal.Inc()
	}
}

func SetExecutionsInFlight(n int64) {
	if n < 0 {
		n = 0
	}
	executionsInFlight.Set(float64(n))
}
