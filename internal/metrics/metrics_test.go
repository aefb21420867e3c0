package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	metrics := []prometheus.Collector{
		SessionsActive,
		SessionsCreatedTotal,
		SessionsReapedTotal,
		SessionsForceCleanedTotal,
		SessionDrift,
		SessionDriftWarningsTotal,
		OldestSessionAgeSeconds,
		PongSendFailures,

		FanoutDeliveredTotal,
		FanoutSuppressedTotal,
		FanoutSendFailuresTotal,
		FanoutDuration,
		PreferenceLookupFailures,

		WebSocketConnectionsCurrent,
		WebSocketConnectionsTotal,
		WebSocketMessageSendDuration,
		WebSocketPingFailures,
		SlowClientsEvicted,
		TransportErrorsTotal,
		DisconnectsTotal,
		HubCommandChannelDepth,
		HubStopTimeoutsTotal,
		LongPollSessionsCurrent,

		PresenceRegisteredUsers,
		PresenceErrors,
	}

	for _, m := range metrics {
		require.NotNil(t, m)
	}
}

func TestCounterVecLabels(t *testing.T) {
	before := testutil.ToFloat64(FanoutDeliveredTotal.WithLabelValues("family_message"))
	FanoutDeliveredTotal.WithLabelValues("family_message").Inc()
	after := testutil.ToFloat64(FanoutDeliveredTotal.WithLabelValues("family_message"))
	assert.Equal(t, before+1, after)
}

func TestGaugeSet(t *testing.T) {
	SessionDrift.Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(SessionDrift))
}
