package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	ProcessedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_processed_blocks_total",
		Help: "The total number of blocks processed to completion",
	})

	FailedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_failed_blocks_total",
		Help: "The total number of block invocations that ended in a stage error",
	})

	LastProcessedBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_last_processed_block",
		Help: "The last successfully processed block number",
	})

	ValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_validation_errors_total",
		Help: "The total number of recoverable validation errors collected during transformation",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "pipeline_stage_duration_seconds",
		Help: "Duration of each pipeline stage",
	}, []string{"stage"})
)

// Registry metrics
var (
	GapCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_gap_counter",
		Help: "The number of missing-block gaps detected by the retryer",
	})

	RetriedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_retried_blocks_total",
		Help: "The number of failed or missing blocks re-run by the retryer",
	})
)

// Publisher metrics
var PublishedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "publisher_published_events_total",
	Help: "The total number of domain events published to the message bus",
})
