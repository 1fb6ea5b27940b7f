// Package telemetry exposes pipeline metrics and tracing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the shared tracer for pipeline spans.
var Tracer trace.Tracer = otel.Tracer("chronicle/pipeline")

// Telemetry bundles the prometheus instruments used across the pipeline.
type Telemetry struct {
	QueriesTotal     prometheus.Counter
	QueryDuration    prometheus.Histogram
	JobsStarted      prometheus.Counter
	JobsFailed       prometheus.Counter
	JobRetries       prometheus.Counter
	TokensEstimated  prometheus.Counter
	ReduceFallbacks  prometheus.Counter
	RefineIterations prometheus.Counter
	RetrievalEmpty   prometheus.Counter
	PartitionsPerRun prometheus.Histogram
}

// New registers the instruments on the given registerer; pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Telemetry {
	f := promauto.With(reg)
	return &Telemetry{
		QueriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_queries_total", Help: "Queries processed end to end.",
		}),
		QueryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name: "chronicle_query_duration_seconds", Help: "Wall-clock query latency.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		JobsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_generation_jobs_started_total", Help: "Generation jobs submitted.",
		}),
		JobsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_generation_jobs_failed_total", Help: "Generation jobs failed after retries.",
		}),
		JobRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_generation_job_retries_total", Help: "Generation job retry attempts.",
		}),
		TokensEstimated: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_tokens_estimated_total", Help: "Estimated tokens admitted by the rate limiter.",
		}),
		ReduceFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_reduce_fallbacks_total", Help: "Reduce calls that fell back to concatenation.",
		}),
		RefineIterations: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_refine_iterations_total", Help: "Answer refinement cycles executed.",
		}),
		RetrievalEmpty: f.NewCounter(prometheus.CounterOpts{
			Name: "chronicle_retrieval_empty_total", Help: "Queries that matched no chunks.",
		}),
		PartitionsPerRun: f.NewHistogram(prometheus.HistogramOpts{
			Name: "chronicle_partitions_per_query", Help: "Partitions generated per query.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
	}
}
