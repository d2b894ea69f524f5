// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_pipeline_runs_total",
			Help: "Total number of inquiry ingestion runs by outcome",
		},
		[]string{"outcome"},
	)

	DraftLinesNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_draft_lines_total",
			Help: "Draft lines seen during normalization by disposition",
		},
		[]string{"disposition"}, // "kept" | "rejected"
	)

	PriceMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_price_matches_total",
			Help: "Quotation line price-list matches by status",
		},
		[]string{"status"}, // "matched" | "not_found"
	)

	BrandAliasLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inquiry_brand_alias_lookups_total",
			Help: "Brand alias lookups by source",
		},
		[]string{"source"}, // "cache" | "database" | "fallback"
	)
)
