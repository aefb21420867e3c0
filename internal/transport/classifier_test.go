package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestClassify_ResetErrorsAreBenign(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"econnreset", syscall.ECONNRESET},
		{"epipe", syscall.EPIPE},
		{"net closed", net.ErrClosed},
		{"unexpected eof", io.ErrUnexpectedEOF},
		{"close 1006", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}},
		{"close 1005", &websocket.CloseError{Code: websocket.CloseNoStatusReceived}},
		{"wrapped reset", fmt.Errorf("read tcp 10.0.0.1:443: %w", errors.New("connection reset by peer"))},
		{"broken pipe string", errors.New("write: broken pipe")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewErrorClassifier()
			assert.Equal(t, ClassBenign, c.Classify(tc.err))
			assert.Equal(t, int64(1), c.Snapshot().BenignResets)
			assert.Zero(t, c.Snapshot().Faults)
		})
	}
}

func TestClassify_OtherErrorsAreFaults(t *testing.T) {
	buf := captureLogs(t)

	c := NewErrorClassifier()
	assert.Equal(t, ClassFault, c.Classify(errors.New("invalid frame header")))

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.Faults)
	assert.Zero(t, snap.BenignResets)
	assert.Contains(t, buf.String(), "Transport fault")
}

func TestClassify_NilIsBenignAndUncounted(t *testing.T) {
	c := NewErrorClassifier()
	assert.Equal(t, ClassBenign, c.Classify(nil))
	assert.Zero(t, c.Snapshot().BenignResets)
}

func TestRecordDisconnect_CloseCodeBuckets(t *testing.T) {
	c := NewErrorClassifier()

	c.RecordDisconnect(websocket.CloseNormalClosure)
	c.RecordDisconnect(websocket.CloseGoingAway)
	c.RecordDisconnect(websocket.CloseAbnormalClosure)
	c.RecordDisconnect(4000)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.NormalCloses)
	assert.Equal(t, int64(1), snap.AbnormalCloses)
	assert.Equal(t, int64(1), snap.UnusualCloses)
	assert.Equal(t, int64(4), snap.TotalDisconnect)
}

func TestRecordDisconnect_AggregateSummaryEveryFiftieth(t *testing.T) {
	buf := captureLogs(t)

	c := NewErrorClassifier()
	for i := 0; i < disconnectSummaryEvery-1; i++ {
		c.RecordDisconnect(websocket.CloseAbnormalClosure)
	}
	assert.NotContains(t, buf.String(), "Disconnect summary")

	c.RecordDisconnect(websocket.CloseAbnormalClosure)
	assert.Contains(t, buf.String(), "Disconnect summary")
	assert.Contains(t, buf.String(), "abnormal=50")
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "benign", ClassBenign.String())
	assert.Equal(t, "fault", ClassFault.String())
}
