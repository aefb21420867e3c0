// Package transport carries frames to connected clients over websocket or the
// long-polling fallback, and classifies connection-level errors.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/anthonypate54/familynest-backend-sub002/internal/domain"
	"github.com/anthonypate54/familynest-backend-sub002/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	cmdBufferSize  = 256
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type attachCmd struct {
	baseHubCmd
	userID int64
	cl     client
	conn   *websocket.Conn // nil for poll clients
	errCh  chan error
}

type detachCmd struct {
	baseHubCmd
	conn *websocket.Conn
	cl   client
}

type subscribeCmd struct {
	baseHubCmd
	conn        *websocket.Conn
	cl          client
	destination string
	errCh       chan error
}

type sendUserCmd struct {
	baseHubCmd
	userID int64
	frame  []byte
	errCh  chan error
}

type publishCmd struct {
	baseHubCmd
	destination string
	frame       []byte
}

type userCountCmd struct {
	baseHubCmd
	replyCh chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub routes frames to every live connection of a user and to destination
// subscribers. All state is owned by a single actor goroutine fed by a
// command channel; per-connection writer goroutines isolate slow clients.
type Hub struct {
	cmdCh chan hubCmd
	clock clockwork.Clock

	clients    map[int64]map[client]struct{}
	owners     map[client]int64
	connIndex  map[*websocket.Conn]client
	subs       map[string]map[client]struct{}
	clientSubs map[client]map[string]struct{}

	maxConnsPerUser int
	doneCh          chan struct{}
}

var _ domain.Pusher = (*Hub)(nil)

// NewHub creates and starts the hub actor.
func NewHub(clock clockwork.Clock, maxConnsPerUser int) *Hub {
	h := &Hub{
		cmdCh:           make(chan hubCmd, cmdBufferSize),
		clock:           clock,
		clients:         make(map[int64]map[client]struct{}),
		owners:          make(map[client]int64),
		connIndex:       make(map[*websocket.Conn]client),
		subs:            make(map[string]map[client]struct{}),
		clientSubs:      make(map[client]map[string]struct{}),
		maxConnsPerUser: maxConnsPerUser,
		doneCh:          make(chan struct{}),
	}
	go h.run()
	return h
}

// --- Public API ---

// Attach registers a websocket connection for userID. onActivity fires on
// protocol pongs. Returns an error when the per-user connection limit is hit;
// the connection is closed in that case.
func (h *Hub) Attach(userID int64, conn *websocket.Conn, onActivity func()) error {
	errCh := make(chan error, 1)
	cl := newWSClient(conn, h.clock, onActivity)
	h.cmdCh <- attachCmd{userID: userID, cl: cl, conn: conn, errCh: errCh}
	return h.await(errCh, "attach")
}

// Detach removes a websocket connection. Unknown connections are a no-op.
func (h *Hub) Detach(conn *websocket.Conn) {
	h.cmdCh <- detachCmd{conn: conn}
}

// AttachPoll registers a long-poll client for userID.
func (h *Hub) AttachPoll(userID int64, pc *PollClient) error {
	errCh := make(chan error, 1)
	h.cmdCh <- attachCmd{userID: userID, cl: pc, errCh: errCh}
	return h.await(errCh, "attach poll")
}

// DetachPoll removes a long-poll client.
func (h *Hub) DetachPoll(pc *PollClient) {
	h.cmdCh <- detachCmd{cl: pc}
}

// Subscribe adds a websocket connection to a shared destination
// (legacy family broadcasts, DM topics).
func (h *Hub) Subscribe(conn *websocket.Conn, destination string) error {
	errCh := make(chan error, 1)
	h.cmdCh <- subscribeCmd{conn: conn, destination: destination, errCh: errCh}
	return h.await(errCh, "subscribe")
}

// SubscribePoll adds a long-poll client to a shared destination.
func (h *Hub) SubscribePoll(pc *PollClient, destination string) error {
	errCh := make(chan error, 1)
	h.cmdCh <- subscribeCmd{cl: pc, destination: destination, errCh: errCh}
	return h.await(errCh, "subscribe poll")
}

// SendToUser delivers a frame to every live connection of userID. Returns
// domain.ErrNoRecipient when the user has no connection that accepted it.
func (h *Hub) SendToUser(_ context.Context, userID int64, destination string, payload any) error {
	frame, err := json.Marshal(domain.Frame{Destination: destination, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	errCh := make(chan error, 1)
	h.cmdCh <- sendUserCmd{userID: userID, frame: frame, errCh: errCh}
	return h.await(errCh, "send")
}

// Publish delivers a frame to every subscriber of destination. Zero
// subscribers is not an error; broadcasts are best-effort.
func (h *Hub) Publish(_ context.Context, destination string, payload any) error {
	frame, err := json.Marshal(domain.Frame{Destination: destination, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	h.cmdCh <- publishCmd{destination: destination, frame: frame}
	return nil
}

// UserCount returns the number of distinct users with at least one attached
// connection. Returns -1 if the command times out.
func (h *Hub) UserCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- userCountCmd{replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		slog.Warn("UserCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, closing all client connections. Blocks until the
// actor goroutine has exited or the timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.doneCh:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		metrics.HubStopTimeoutsTotal.Inc()
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) await(errCh chan error, op string) error {
	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("%s command timed out after %v", op, commandTimeout)
	case <-h.doneCh:
		return domain.ErrHubStopped
	}
}

// --- Actor loop ---

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAll("hub panic")
		}
	}()

	depthTicker := h.clock.NewTicker(time.Second)
	defer depthTicker.Stop()
	defer close(h.doneCh)

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > cap(h.cmdCh)*4/5 {
				slog.Warn("Hub command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case attachCmd:
				h.handleAttach(c)
			case detachCmd:
				h.handleDetach(c)
			case subscribeCmd:
				h.handleSubscribe(c)
			case sendUserCmd:
				h.handleSendUser(c)
			case publishCmd:
				h.handlePublish(c)
			case userCountCmd:
				c.replyCh <- len(h.clients)
			case stopCmd:
				h.closeAll("Server shutting down")
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleAttach(c attachCmd) {
	conns, exists := h.clients[c.userID]
	if !exists {
		conns = make(map[client]struct{})
		h.clients[c.userID] = conns
	}

	if len(conns) >= h.maxConnsPerUser {
		slog.Warn("Rejecting connection: per-user limit reached", "user_id", c.userID, "max_conns", h.maxConnsPerUser)
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		c.cl.stop()
		c.errCh <- domain.ErrTooManyConnections
		return
	}

	conns[c.cl] = struct{}{}
	h.owners[c.cl] = c.userID
	if c.conn != nil {
		h.connIndex[c.conn] = c.cl
	}

	metrics.WebSocketConnectionsCurrent.Set(float64(len(h.owners)))
	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()
	slog.Debug("Client attached", "user_id", c.userID, "user_conns", len(conns))
	c.errCh <- nil
}

func (h *Hub) handleDetach(c detachCmd) {
	cl := c.cl
	if cl == nil {
		var ok bool
		if cl, ok = h.connIndex[c.conn]; !ok {
			return
		}
	}
	h.removeClient(cl, c.conn)
}

func (h *Hub) removeClient(cl client, conn *websocket.Conn) {
	userID, exists := h.owners[cl]
	if !exists {
		return
	}

	cl.stop()
	delete(h.owners, cl)
	if conn != nil {
		delete(h.connIndex, conn)
	} else {
		// Poll clients carry no conn key; find any stale index entry.
		for k, v := range h.connIndex {
			if v == cl {
				delete(h.connIndex, k)
				break
			}
		}
	}

	if conns, ok := h.clients[userID]; ok {
		delete(conns, cl)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}

	for dest := range h.clientSubs[cl] {
		if set, ok := h.subs[dest]; ok {
			delete(set, cl)
			if len(set) == 0 {
				delete(h.subs, dest)
			}
		}
	}
	delete(h.clientSubs, cl)

	metrics.WebSocketConnectionsCurrent.Set(float64(len(h.owners)))
	slog.Debug("Client detached", "user_id", userID)
}

func (h *Hub) handleSubscribe(c subscribeCmd) {
	cl := c.cl
	if cl == nil {
		var ok bool
		if cl, ok = h.connIndex[c.conn]; !ok {
			c.errCh <- fmt.Errorf("subscribe: unknown connection")
			return
		}
	}
	if _, attached := h.owners[cl]; !attached {
		c.errCh <- fmt.Errorf("subscribe: client not attached")
		return
	}

	set, ok := h.subs[c.destination]
	if !ok {
		set = make(map[client]struct{})
		h.subs[c.destination] = set
	}
	set[cl] = struct{}{}

	subs, ok := h.clientSubs[cl]
	if !ok {
		subs = make(map[string]struct{})
		h.clientSubs[cl] = subs
	}
	subs[c.destination] = struct{}{}

	c.errCh <- nil
}

func (h *Hub) handleSendUser(c sendUserCmd) {
	conns := h.clients[c.userID]
	if len(conns) == 0 {
		c.errCh <- domain.ErrNoRecipient
		return
	}

	delivered := 0
	var slow []client
	for cl := range conns {
		if cl.enqueue(c.frame) {
			delivered++
		} else {
			slow = append(slow, cl)
		}
	}

	for _, cl := range slow {
		slog.Warn("Evicting slow client", "user_id", c.userID)
		metrics.SlowClientsEvicted.Inc()
		h.removeClient(cl, nil)
	}

	if delivered == 0 {
		c.errCh <- domain.ErrNoRecipient
		return
	}
	c.errCh <- nil
}

func (h *Hub) handlePublish(c publishCmd) {
	var slow []client
	for cl := range h.subs[c.destination] {
		if !cl.enqueue(c.frame) {
			slow = append(slow, cl)
		}
	}
	for _, cl := range slow {
		slog.Warn("Evicting slow subscriber", "destination", c.destination)
		metrics.SlowClientsEvicted.Inc()
		h.removeClient(cl, nil)
	}
}

func (h *Hub) closeAll(reason string) {
	total := len(h.owners)
	for cl := range h.owners {
		cl.stopGraceful(reason)
	}
	h.clients = make(map[int64]map[client]struct{})
	h.owners = make(map[client]int64)
	h.connIndex = make(map[*websocket.Conn]client)
	h.subs = make(map[string]map[client]struct{})
	h.clientSubs = make(map[client]map[string]struct{})
	metrics.WebSocketConnectionsCurrent.Set(0)
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}
