package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

// ErrorClass is the classifier's verdict on a transport error.
type ErrorClass int

const (
	ClassBenign ErrorClass = iota
	ClassFault
)

func (c ErrorClass) String() string {
	if c == ClassBenign {
		return "benign"
	}
	return "fault"
}

// Close codes per RFC 6455.
const (
	closeNormal    = websocket.CloseNormalClosure   // 1000: explicit close
	closeGoingAway = websocket.CloseGoingAway       // 1001: page navigation
	closeAbnormal  = websocket.CloseAbnormalClosure // 1006: no close frame received
)

// disconnectSummaryEvery controls how often an aggregate counter summary
// replaces per-event disconnect logging, so churny mobile clients do not
// flood the logs.
const disconnectSummaryEvery = 50

// ErrorClassifier separates routine network noise (connection resets,
// abnormal closures typical of mobile network transitions) from genuine
// transport faults. Counters feed the health monitor.
type ErrorClassifier struct {
	benignResets   atomic.Int64
	faults         atomic.Int64
	normalCloses   atomic.Int64
	abnormalCloses atomic.Int64
	unusualCloses  atomic.Int64
	disconnects    atomic.Int64
}

func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// Classify inspects a connection-level error. Reset-type errors are benign:
// counted and logged at debug. Anything else is a fault logged at warn.
func (c *ErrorClassifier) Classify(err error) ErrorClass {
	if err == nil {
		return ClassBenign
	}

	if isResetError(err) {
		c.benignResets.Add(1)
		metrics.TransportErrorsTotal.WithLabelValues("benign").Inc()
		slog.Debug("Benign transport error", "error", err)
		return ClassBenign
	}

	c.faults.Add(1)
	metrics.TransportErrorsTotal.WithLabelValues("fault").Inc()
	slog.Warn("Transport fault", "error", err)
	return ClassFault
}

// RecordDisconnect classifies a close code. 1000/1001 are normal closures,
// 1006 is the expected mobile-network abnormal closure, anything else is
// logged distinctly as unusual.
func (c *ErrorClassifier) RecordDisconnect(code int) {
	total := c.disconnects.Add(1)

	switch code {
	case closeNormal, closeGoingAway:
		c.normalCloses.Add(1)
		metrics.DisconnectsTotal.WithLabelValues("normal").Inc()
		if total%disconnectSummaryEvery != 0 {
			slog.Debug("Normal closure", "code", code)
		}
	case closeAbnormal:
		c.abnormalCloses.Add(1)
		metrics.DisconnectsTotal.WithLabelValues("abnormal").Inc()
		if total%disconnectSummaryEvery != 0 {
			slog.Debug("Abnormal closure, expected mobile network behavior", "code", code)
		}
	default:
		c.unusualCloses.Add(1)
		metrics.DisconnectsTotal.WithLabelValues("unusual").Inc()
		if total%disconnectSummaryEvery != 0 {
			slog.Info("Unusual close code", "code", code)
		}
	}

	if total%disconnectSummaryEvery == 0 {
		snap := c.Snapshot()
		slog.Info("Disconnect summary",
			"total", snap.TotalDisconnect,
			"normal", snap.NormalCloses,
			"abnormal", snap.AbnormalCloses,
			"unusual", snap.UnusualCloses,
			"benign_resets", snap.BenignResets,
			"faults", snap.Faults,
		)
	}
}

// Snapshot returns the current counter values.
func (c *ErrorClassifier) Snapshot() domain.TransportErrorSnapshot {
	return domain.TransportErrorSnapshot{
		BenignResets:    c.benignResets.Load(),
		Faults:          c.faults.Load(),
		NormalCloses:    c.normalCloses.Load(),
		AbnormalCloses:  c.abnormalCloses.Load(),
		UnusualCloses:   c.unusualCloses.Load(),
		TotalDisconnect: c.disconnects.Load(),
	}
}

func isResetError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if websocket.IsCloseError(err, closeAbnormal, websocket.CloseNoStatusReceived) {
		return true
	}

	// Wrapped OS errors that do not survive errors.Is across platforms.
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "use of closed network connection")
}
