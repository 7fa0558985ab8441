package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the game server.
type Metrics struct {
	// --- Round engine ---
	SubmissionsAccepted prometheus.Counter
	SubmissionsRejected *prometheus.CounterVec
	RoundTransitions    prometheus.Counter
	RoundDuration       prometheus.Histogram
	GamesStarted        prometheus.Counter
	GamesFinished       prometheus.Counter
	LiveLobbies         prometheus.Gauge

	// --- Game events ---
	GameEventsFired *prometheus.CounterVec

	// --- Persistence ---
	SnapshotWrites   prometheus.Counter
	SnapshotFailures prometheus.Counter

	// --- Broadcast ---
	BroadcastSubscribers prometheus.Gauge
	BroadcastDrops       prometheus.Counter
	RelayPublishes       *prometheus.CounterVec
	RelayErrors          prometheus.Counter

	// --- Query API ---
	StatsQueries       *prometheus.CounterVec
	StatsQueryDuration prometheus.Histogram
	QueryErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once
// per process; promauto panics on duplicate registration.
func NewMetrics() *Metrics {
	return &Metrics{
		SubmissionsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_submissions_accepted_total",
			Help: "Round-end submissions applied to game state",
		}),

		SubmissionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supply_submissions_rejected_total",
			Help: "Round-end submissions rejected before mutation",
		}, []string{"reason"}),

		RoundTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_round_transitions_total",
			Help: "Completed round transitions across all lobbies",
		}),

		RoundDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "supply_round_transition_duration_seconds",
			Help:    "Time to advance a round, persist it, and broadcast",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),

		GamesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_games_started_total",
			Help: "Games started",
		}),

		GamesFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_games_finished_total",
			Help: "Games that reached their final round",
		}),

		LiveLobbies: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "supply_live_lobbies",
			Help: "Lobbies with a running game held in memory",
		}),

		GameEventsFired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supply_game_events_fired_total",
			Help: "Configured game events whose condition was met",
		}, []string{"condition"}),

		SnapshotWrites: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_snapshot_writes_total",
			Help: "Round snapshots persisted",
		}),

		SnapshotFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_snapshot_failures_total",
			Help: "Round snapshot writes that failed (transition aborted)",
		}),

		BroadcastSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "supply_broadcast_subscribers",
			Help: "Active broadcast subscribers across all lobbies",
		}),

		BroadcastDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_broadcast_drops_total",
			Help: "Messages dropped on full subscriber backlogs",
		}),

		RelayPublishes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supply_relay_publishes_total",
			Help: "Broadcast messages relayed to JetStream",
		}, []string{"kind"}),

		RelayErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "supply_relay_errors_total",
			Help: "JetStream relay publish failures",
		}),

		StatsQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supply_stats_queries_total",
			Help: "Statistics replay queries",
		}, []string{"stat"}),

		StatsQueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "supply_stats_query_duration_seconds",
			Help:    "Statistics replay latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "supply_query_errors_total",
			Help: "HTTP API errors",
		}, []string{"endpoint", "kind"}),
	}
}

// RecordRejection counts a rejected submission by failure reason. Safe
// on a nil receiver so tests can wire an engine without a registry.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.SubmissionsRejected.WithLabelValues(reason).Inc()
}

// RecordAccepted counts an applied submission.
func (m *Metrics) RecordAccepted() {
	if m == nil {
		return
	}
	m.SubmissionsAccepted.Inc()
}

// RecordTransition counts one round transition and its duration.
func (m *Metrics) RecordTransition(seconds float64) {
	if m == nil {
		return
	}
	m.RoundTransitions.Inc()
	m.RoundDuration.Observe(seconds)
}

// RecordEventFired counts a fired game event by condition kind.
func (m *Metrics) RecordEventFired(condition string) {
	if m == nil {
		return
	}
	m.GameEventsFired.WithLabelValues(condition).Inc()
}

// RecordBroadcastDrops folds newly observed bus drops into the counter.
func (m *Metrics) RecordBroadcastDrops(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.BroadcastDrops.Add(float64(n))
}
