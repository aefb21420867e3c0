// Package metrics defines the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session registry metrics
var (
	// SessionsActive tracks the number of currently tracked sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of currently tracked websocket sessions",
		},
	)

	// SessionsCreatedTotal tracks lifetime session creations
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Total sessions created since process start",
		},
	)

	// SessionsReapedTotal tracks sessions evicted by the stale-session reaper
	SessionsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_reaped_total",
			Help: "Total stale sessions evicted by the reaper",
		},
	)

	// SessionsForceCleanedTotal tracks sessions removed by administrative cleanup
	SessionsForceCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_force_cleaned_total",
			Help: "Total sessions removed by forced per-user cleanup",
		},
	)

	// SessionDrift tracks the last observed difference between the external
	// connection registry and internally tracked sessions
	SessionDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_drift",
			Help: "Absolute difference between external registry user count and tracked active sessions",
		},
	)

	// SessionDriftWarningsTotal tracks drift threshold breaches
	SessionDriftWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_drift_warnings_total",
			Help: "Total health monitor drift warnings emitted",
		},
	)

	// OldestSessionAgeSeconds reports the age of the oldest tracked session
	OldestSessionAgeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oldest_session_age_seconds",
			Help: "Age of the oldest tracked session (leak-detection signal)",
		},
	)

	// PongSendFailures tracks heartbeat replies that could not be delivered
	PongSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pong_send_failures_total",
			Help: "Total pong payloads that failed to send",
		},
	)
)

// Fan-out metrics
var (
	// FanoutDeliveredTotal tracks per-recipient sends that succeeded, by event kind
	FanoutDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_delivered_total",
			Help: "Per-recipient deliveries by event kind",
		},
		[]string{"kind"},
	)

	// FanoutSuppressedTotal tracks recipients skipped by mute preferences, by event kind
	FanoutSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_suppressed_total",
			Help: "Recipients suppressed by mute preferences, by event kind",
		},
		[]string{"kind"},
	)

	// FanoutSendFailuresTotal tracks per-recipient sends that failed, by event kind
	FanoutSendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_send_failures_total",
			Help: "Per-recipient send failures by event kind",
		},
		[]string{"kind"},
	)

	// FanoutDuration tracks end-to-end broadcast duration by event kind
	FanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fanout_duration_seconds",
			Help:    "Broadcast duration by event kind",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"kind"},
	)

	// PreferenceLookupFailures tracks preference-store errors resolved fail-open
	PreferenceLookupFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preference_lookup_failures_total",
			Help: "Preference store lookup errors (treated as deliver)",
		},
	)
)

// Transport metrics
var (
	// WebSocketConnectionsCurrent tracks current active WebSocket connections
	WebSocketConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_current",
			Help: "Current number of active WebSocket connections",
		},
	)

	// WebSocketConnectionsTotal tracks connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketMessageSendDuration tracks frame write duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket frame send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketPingFailures tracks protocol-level ping write failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// SlowClientsEvicted tracks clients dropped because their send buffer filled
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slow_clients_evicted_total",
			Help: "Total WebSocket clients evicted due to full send buffer",
		},
	)

	// TransportErrorsTotal tracks classified transport errors
	TransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_errors_total",
			Help: "Transport errors by classification (benign/fault)",
		},
		[]string{"class"},
	)

	// DisconnectsTotal tracks connection closures by close-code class
	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disconnects_total",
			Help: "Connection closures by close-code class (normal/abnormal/unusual)",
		},
		[]string{"class"},
	)

	// HubCommandChannelDepth tracks current hub command channel depth
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current hub command channel depth",
		},
	)

	// HubStopTimeoutsTotal tracks hub stops that exceeded the shutdown timeout
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Hub stops that exceeded timeout",
		},
	)

	// LongPollSessionsCurrent tracks parked long-poll fallback sessions
	LongPollSessionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "longpoll_sessions_current",
			Help: "Current number of long-poll fallback sessions",
		},
	)
)

// Presence metrics
var (
	// PresenceRegisteredUsers tracks users registered in the external presence hash
	PresenceRegisteredUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_registered_users",
			Help: "Users currently registered in the presence backend",
		},
	)

	// PresenceErrors tracks presence backend operation failures
	PresenceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_errors_total",
			Help: "Total presence backend operation failures",
		},
	)
)

// HTTP Request Metrics
// Note: http_requests_total and http_request_duration_seconds come from the
// echo middleware in internal/server.
