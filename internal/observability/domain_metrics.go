package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the generate and execute counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	generateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_generate_requests_total",
			Help: "Total number of SQL generation requests by outcome.",
		},
		[]string{"outcome"},
	)
	executeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlassist_execute_requests_total",
			Help: "Total number of SQL execution requests by outcome.",
		},
		[]string{"outcome"},
	)
	completionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlassist_completion_latency_ms",
			Help:    "Chat completion round trip latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 20000, 60000},
		},
	)
	queryLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlassist_query_latency_ms",
			Help:    "Database query latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlassist_query_rows_returned",
			Help:    "Number of rows returned per executed query.",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 100000},
		},
	)
	sanitizedLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlassist_sanitized_lines_total",
			Help: "Total number of USE lines removed before execution.",
		},
	)
	extractFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlassist_extract_fallback_total",
			Help: "Total number of completions returned without a usable SQL fence.",
		},
	)
	journalEntriesFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlassist_journal_entries_flushed_total",
			Help: "Total number of journal entries written to object storage.",
		},
	)
	journalEntriesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlassist_journal_entries_dropped_total",
			Help: "Total number of journal entries dropped because the buffer was full or a flush failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generateRequestsTotal,
		executeRequestsTotal,
		completionLatencyMs,
		queryLatencyMs,
		queryRowsReturned,
		sanitizedLinesTotal,
		extractFallbackTotal,
		journalEntriesFlushedTotal,
		journalEntriesDroppedTotal,
	)
}

func ObserveGenerate(outcome string, elapsed time.Duration, fellBack bool) {
	generateRequestsTotal.WithLabelValues(outcome).Inc()
	completionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if fellBack {
		extractFallbackTotal.Inc()
	}
}

func ObserveExecute(outcome string, elapsed time.Duration, rows, removedLines int) {
	executeRequestsTotal.WithLabelValues(outcome).Inc()
	queryLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if outcome == OutcomeOK {
		queryRowsReturned.Observe(float64(rows))
	}
	if removedLines > 0 {
		sanitizedLinesTotal.Add(float64(removedLines))
	}
}

func ObserveJournalFlushed(entries int) {
	if entries > 0 {
		journalEntriesFlushedTotal.Add(float64(entries))
	}
}

func ObserveJournalDropped(entries int) {
	if entries > 0 {
		journalEntriesDroppedTotal.Add(float64(entries))
	}
}
