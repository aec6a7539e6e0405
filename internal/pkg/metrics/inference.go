package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactoruq_evaluations_total",
			Help: "Total number of forward-model evaluations by outcome",
		},
		[]string{"evaluator", "outcome"},
	)

	evaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reactoruq_evaluation_duration_seconds",
			Help:    "Forward-model evaluation duration in seconds",
			Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 5, 30, 120, 300},
		},
		[]string{"evaluator"},
	)

	evaluationCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactoruq_evaluation_cache_lookups_total",
			Help: "Evaluation cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	chainIterations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactoruq_chain_iterations_total",
			Help: "Sampler iterations by phase",
		},
		[]string{"algorithm", "phase"},
	)

	chainAcceptance = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reactoruq_chain_acceptance_rate",
			Help:    "Acceptance rate of finished chains",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"algorithm"},
	)

	chainsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactoruq_chains_finished_total",
			Help: "Finished chains by terminal state",
		},
		[]string{"algorithm", "state"},
	)

	runsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reactoruq_runs_active",
			Help: "Number of inference runs currently executing",
		},
	)
)

// RecordEvaluation records the outcome and duration of one evaluation
func RecordEvaluation(evaluator, outcome string, duration time.Duration) {
	evaluationsTotal.WithLabelValues(evaluator, outcome).Inc()
	evaluationDuration.WithLabelValues(evaluator).Observe(duration.Seconds())
}

// RecordCacheLookup records an evaluation cache lookup
func RecordCacheLookup(result string) {
	evaluationCacheLookups.WithLabelValues(result).Inc()
}

// RecordIteration records one sampler iteration in the given phase
func RecordIteration(algorithm, phase string) {
	chainIterations.WithLabelValues(algorithm, phase).Inc()
}

// RecordChainFinished records the terminal state and acceptance of a chain
func RecordChainFinished(algorithm, state string, acceptance float64) {
	chainsFinished.WithLabelValues(algorithm, state).Inc()
	chainAcceptance.WithLabelValues(algorithm).Observe(acceptance)
}

// RunStarted increments the active run gauge; call the returned func when done.
func RunStarted() func() {
	runsActive.Inc()
	return runsActive.Dec
}
