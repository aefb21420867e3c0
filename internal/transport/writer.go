package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

const (
	writeDeadline   = 5 * time.Second
	pingInterval    = 30 * time.Second
	pongDeadline    = 60 * time.Second
	frameBufferSize = 16
)

// client is one attached delivery endpoint: a websocket connection or a
// parked long-poll session. enqueue must not block; returning false marks the
// client as too slow to keep.
type client interface {
	enqueue(frame []byte) bool
	stop()
	stopGraceful(reason string)
}

// wsClient owns all writes to one websocket connection. Frames are queued on
// a buffered channel and written by a single goroutine, which also drives
// protocol pings and deadlines.
type wsClient struct {
	conn       *websocket.Conn
	clock      clockwork.Clock
	sendCh     chan []byte
	doneCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	onActivity func()
}

// newWSClient starts the writer goroutine. onActivity fires on every protocol
// pong so transport-level liveness refreshes the session too; it may be nil.
func newWSClient(conn *websocket.Conn, clock clockwork.Clock, onActivity func()) *wsClient {
	cw := &wsClient{
		conn:       conn,
		clock:      clock,
		sendCh:     make(chan []byte, frameBufferSize),
		doneCh:     make(chan struct{}),
		onActivity: onActivity,
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

func (cw *wsClient) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				return
			}
		case <-cw.doneCh:
			return
		}
	}
}

func (cw *wsClient) enqueue(frame []byte) bool {
	select {
	case cw.sendCh <- frame:
		return true
	default:
		return false
	}
}

func (cw *wsClient) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneCh)
		_ = cw.conn.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *wsClient) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		// Stop the writer goroutine first so the close frame is the only
		// concurrent write.
		close(cw.doneCh)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.conn.Close()
	})
}

func (cw *wsClient) configurePongHandler() {
	cw.updateReadDeadline()
	cw.conn.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		if cw.onActivity != nil {
			cw.onActivity()
		}
		return nil
	})
}

func (cw *wsClient) updateWriteDeadline() {
	_ = cw.conn.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *wsClient) updateReadDeadline() {
	_ = cw.conn.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
