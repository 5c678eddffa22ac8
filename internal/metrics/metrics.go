// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatementsProcessed counts finished processing runs by terminal status
	StatementsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_statements_processed_total",
		Help: "Processing runs finished, labelled by terminal status.",
	}, []string{"status"})

	// ProcessingDuration observes wall-clock time per processing run
	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_processing_duration_seconds",
		Help:    "Wall-clock duration of a processing run.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"strategy"})

	// TransactionsPersisted counts rows written vs deduplicated
	TransactionsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_transactions_persisted_total",
		Help: "Transactions written to storage, labelled inserted or skipped.",
	}, []string{"outcome"})

	// ExtractionWarnings counts page and row level warnings by kind
	ExtractionWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_warnings_total",
		Help: "Warnings raised during extraction, parsing and validation.",
	}, []string{"kind"})

	// OCRConfidence observes the final per-page OCR confidence
	OCRConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_ocr_confidence",
		Help:    "Final per-page OCR confidence after engine fallback.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	// QueueDepth tracks pending jobs as seen by the sweeper
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_queue_pending_jobs",
		Help: "Pending jobs at the last sweeper run.",
	})

	// StaleClaimsReleased counts claims the sweeper gave back
	StaleClaimsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_stale_claims_released_total",
		Help: "Queue claims released after exceeding the claim TTL.",
	})
)
