// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Progress commit metrics track the core engine.
var (
	// ProgressCommitsTotal counts commit transactions by outcome
	// ("committed", "rejected", "failed").
	ProgressCommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_commits_total",
			Help: "Total number of progress commit transactions",
		},
		[]string{"outcome"},
	)

	// ProgressCommitDuration measures commit transaction duration
	ProgressCommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "progress_commit_duration_seconds",
			Help:    "Progress commit transaction duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// RewardsGrantedTotal counts reward grants
	RewardsGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_granted_total",
			Help: "Total number of reward grants",
		},
	)

	// RewardsDeniedTotal counts commits where the write succeeded but the
	// reward was zeroed, by reason
	RewardsDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_denied_total",
			Help: "Total number of commits with the reward zeroed, by reason",
		},
		[]string{"reason"},
	)

	// UnitsBackfilledTotal counts bulk-backfilled unit read records
	UnitsBackfilledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "units_backfilled_total",
			Help: "Total number of unit read records written by backfill",
		},
	)

	// TrustViolationsTotal counts trust violations applied, by kind
	TrustViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trust_violations_total",
			Help: "Total number of trust violations applied",
		},
		[]string{"kind"},
	)

	// AchievementsUnlockedTotal counts achievement unlocks, by code
	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_unlocked_total",
			Help: "Total number of achievement unlocks",
		},
		[]string{"code"},
	)

	// AchievementRetriesTotal counts deferred achievement re-evaluations
	// by result ("completed", "rescheduled")
	AchievementRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievement_retries_total",
			Help: "Total number of achievement retry task executions",
		},
		[]string{"result"},
	)

	// FeedInvalidationsTotal counts feed cache invalidation signals by
	// result ("sent", "dropped", "failed")
	FeedInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_invalidations_total",
			Help: "Total number of feed cache invalidation signals",
		},
		[]string{"result"},
	)
)
