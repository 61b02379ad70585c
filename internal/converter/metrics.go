package converter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics.
var (
	// filesProcessedTotal counts finished runs by final state.
	filesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_files_total",
			Help: "Files that finished a processing run, by final state",
		},
		[]string{"state"},
	)

	// rowsProcessedTotal counts rows by outcome.
	rowsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Spreadsheet rows processed, by outcome",
		},
		[]string{"outcome"},
	)

	// processingDuration observes the wall-clock time of one run.
	processingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_seconds",
			Help:    "Duration of a file processing run in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"file_type"},
	)
)

// Row outcome labels.
const (
	outcomeSucceeded  = "succeeded"
	outcomeFailed     = "failed"
	outcomeDuplicated = "duplicated"
)
