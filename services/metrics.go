package services

import "github.com/prometheus/client_golang/prometheus"

var (
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_task_completions_total",
			Help: "Task completion attempts by outcome",
		},
		[]string{"outcome"},
	)
	joinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_joins_total",
			Help: "Challenge join attempts by outcome",
		},
		[]string{"outcome"},
	)
	sideEffectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_side_effects_total",
			Help: "Side effects dispatched after completions by kind and result",
		},
		[]string{"kind", "result"},
	)
	engagementCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_engagement_cache_lookups_total",
			Help: "Engagement cache lookups by result",
		},
		[]string{"result"},
	)
)

// RegisterMetrics registers the engine collectors. Call this once from main.go.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(completionsTotal, joinsTotal, sideEffectsTotal, engagementCacheLookups)
}
