// Package metrics holds the Prometheus instruments for the persist pipeline
// and the HTTP ingest surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	documentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamtag",
			Name:      "documents_total",
			Help:      "Documents accepted by the pipeline, by activity verb",
		},
		[]string{"verb"},
	)

	bulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamtag",
			Name:      "bulk_items_total",
			Help:      "Bulk write items by outcome",
		},
		[]string{"status"},
	)

	batchFlushesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streamtag",
			Name:      "batch_flushes_total",
			Help:      "Completed bulk flush calls",
		},
	)

	flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "streamtag",
			Name:      "flush_duration_seconds",
			Help:      "Bulk flush round-trip duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ruleMatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "streamtag",
			Name:      "rule_matches_total",
			Help:      "Rule ids attached to documents",
		},
	)

	reconcileOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamtag",
			Name:      "reconcile_ops_total",
			Help:      "Rule reconciliation mutations by kind",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		documentsTotal,
		bulkItemsTotal,
		batchFlushesTotal,
		flushDuration,
		ruleMatchesTotal,
		reconcileOpsTotal,
	)
}

// IncDocument counts one accepted document.
func IncDocument(verb string) {
	if verb == "" {
		verb = "unknown"
	}
	documentsTotal.WithLabelValues(verb).Inc()
}

// AddBulkItems counts bulk items by outcome status.
func AddBulkItems(status string, n int) {
	if n > 0 {
		bulkItemsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// ObserveFlush records one completed flush call.
func ObserveFlush(d time.Duration) {
	batchFlushesTotal.Inc()
	flushDuration.Observe(d.Seconds())
}

// AddRuleMatches counts rule ids attached to a document.
func AddRuleMatches(n int) {
	if n > 0 {
		ruleMatchesTotal.Add(float64(n))
	}
}

// AddReconcileOps counts reconcile mutations ("add" or "delete").
func AddReconcileOps(op string, n int) {
	if n > 0 {
		reconcileOpsTotal.WithLabelValues(op).Add(float64(n))
	}
}
