// Package metrics exposes Prometheus instrumentation for the trust
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PipelineRuns counts orchestrator runs by outcome.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veracity_pipeline_runs_total",
		Help: "Pipeline runs by outcome (completed, failed, inherited).",
	}, []string{"outcome"})

	// PipelineDuration tracks end-to-end pipeline latency.
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "veracity_pipeline_duration_seconds",
		Help:    "End-to-end pipeline duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// StageFailures counts isolated stage failures by stage name.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veracity_stage_failures_total",
		Help: "Stage failures caught and isolated by the orchestrator.",
	}, []string{"stage"})

	// SideEffectFailures counts swallowed side-effect errors.
	SideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veracity_side_effect_failures_total",
		Help: "Ledger/trust side-effect failures (logged, never fatal).",
	}, []string{"effect"})

	// ClaimsChecked counts individual claim verifications attempted.
	ClaimsChecked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veracity_claims_checked_total",
		Help: "Claims sent through the verification chain.",
	})

	// VerdictsReused counts verdicts inherited via quote similarity.
	VerdictsReused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veracity_verdicts_reused_total",
		Help: "Verdicts reused from quoted posts instead of re-verifying.",
	})

	// VerificationFallbacks counts deterministic unknown fallbacks.
	VerificationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veracity_verification_fallbacks_total",
		Help: "Claims that fell through to the deterministic unknown verdict.",
	})

	// AuthFailures counts credential-class agent failures.
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veracity_agent_auth_failures_total",
		Help: "Agent authentication failures (operational incidents).",
	})

	// SweepRuns counts periodic sweep executions.
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veracity_sweep_runs_total",
		Help: "Periodic retry sweep executions.",
	})

	// SweepItems counts items reprocessed by the sweep, by result.
	SweepItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veracity_sweep_items_total",
		Help: "Items reprocessed by the sweep, by result.",
	}, []string{"result"})
)
