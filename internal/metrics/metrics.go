package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EvaluationsTotal   prometheus.Counter
	EvaluationErrors   prometheus.Counter
	EvaluationSeconds  prometheus.Histogram
	RulesSkippedTotal  prometheus.Counter
	ValidationFailures prometheus.Counter
	SynthesisRetries   prometheus.Counter
	CompileFailures    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_evaluations_total",
			Help: "Total number of completed rule set evaluations",
		}),
		EvaluationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_evaluation_errors_total",
			Help: "Total number of evaluations aborted with a structural error",
		}),
		EvaluationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbiter_evaluation_duration_seconds",
			Help:    "Wall time of a single evaluation run",
			Buckets: prometheus.DefBuckets,
		}),
		RulesSkippedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_rules_skipped_total",
			Help: "Total number of rules skipped for missing data or unmet conditions",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_compile_validation_failures_total",
			Help: "Total number of candidate rule sets rejected by the validator",
		}),
		SynthesisRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_compile_synthesis_retries_total",
			Help: "Total number of synthesis calls retried after validation failure",
		}),
		CompileFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_compile_failures_total",
			Help: "Total number of compile sessions surfaced to humans for manual repair",
		}),
	}
}
