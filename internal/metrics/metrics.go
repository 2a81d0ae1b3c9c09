package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded label values
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"

	// Reasons a pool entry is skipped
	SkipUnknownClass = "unknown_class"
	SkipBadParams    = "bad_params"
	SkipNoViable     = "no_viable_combination"
	SkipOther        = "other"

	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// NormalizeSkipReason maps an arbitrary skip cause to the bounded set
func NormalizeSkipReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "unknown") || strings.Contains(lower, "not registered"):
		return SkipUnknownClass
	case strings.Contains(lower, "viable"):
		return SkipNoViable
	case strings.Contains(lower, "param"):
		return SkipBadParams
	default:
		return SkipOther
	}
}

// Grid search
var (
	GridEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_grid_evaluations_total",
		Help: "Parameter combinations evaluated, by strategy class and outcome",
	}, []string{"strategy", "outcome"})

	GridSearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "alphafuse_grid_search_duration_seconds",
		Help:    "Wall time of one strategy's parameter search",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"strategy"})

	StrategiesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_strategies_skipped_total",
		Help: "Pool entries skipped during a run, by reason",
	}, []string{"reason"})
)

// Runs and decisions
var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_runs_total",
		Help: "Symbol runs by final status",
	}, []string{"status"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alphafuse_run_duration_seconds",
		Help:    "Wall time of one symbol run",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	RunFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_run_failures_total",
		Help: "Failed symbol runs by stage",
	}, []string{"stage"})

	SuggestedPosition = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphafuse_suggested_position",
		Help: "Latest suggested position fraction per symbol",
	}, []string{"symbol"})

	SignalScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alphafuse_signal_score",
		Help: "Latest blended signal score per symbol",
	}, []string{"symbol"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_decisions_total",
		Help: "Ensemble decisions by execution status",
	}, []string{"status"})

	DecisionsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_decisions_published_total",
		Help: "Decision publish attempts by outcome",
	}, []string{"outcome"})
)

// Infrastructure
var (
	CandleCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_candle_cache_requests_total",
		Help: "Candle cache lookups by result",
	}, []string{"result"})

	StoreCircuitBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alphafuse_store_circuit_breaker_open",
		Help: "1 when the result store circuit breaker is open",
	})

	StoreCircuitBreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alphafuse_store_circuit_breaker_trips_total",
		Help: "Times the result store circuit breaker opened",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alphafuse_http_requests_total",
		Help: "Requests served by the metrics server",
	}, []string{"path", "status"})
)

// RecordGridEvaluations records one finished parameter search
func RecordGridEvaluations(strategy string, evaluated, failed int, seconds float64) {
	GridEvaluations.WithLabelValues(strategy, OutcomeOK).Add(float64(evaluated - failed))
	if failed > 0 {
		GridEvaluations.WithLabelValues(strategy, OutcomeFailed).Add(float64(failed))
	}
	GridSearchDuration.WithLabelValues(strategy).Observe(seconds)
}

// RecordSkippedStrategy counts one skipped pool entry
func RecordSkippedStrategy(reason string) {
	StrategiesSkipped.WithLabelValues(NormalizeSkipReason(reason)).Inc()
}

// RecordRun records the end of a symbol run. stage is empty on success.
func RecordRun(status, stage string, seconds float64) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(seconds)
	if stage != "" {
		RunFailures.WithLabelValues(stage).Inc()
	}
}

// RecordDecision exports the headline numbers of a decision
func RecordDecision(symbol, status string, position, score float64) {
	SuggestedPosition.WithLabelValues(symbol).Set(position)
	SignalScore.WithLabelValues(symbol).Set(score)
	Decisions.WithLabelValues(status).Inc()
}

// RecordPublish counts one decision publish attempt
func RecordPublish(err error) {
	if err != nil {
		DecisionsPublished.WithLabelValues(OutcomeFailed).Inc()
		return
	}
	DecisionsPublished.WithLabelValues(OutcomeOK).Inc()
}

// RecordCacheResult counts one candle cache lookup
func RecordCacheResult(result string) {
	CandleCacheRequests.WithLabelValues(result).Inc()
}

// UpdateCircuitBreaker exports the breaker state
func UpdateCircuitBreaker(open bool) {
	if open {
		StoreCircuitBreakerOpen.Set(1)
		StoreCircuitBreakerTrips.Inc()
		return
	}
	StoreCircuitBreakerOpen.Set(0)
}
