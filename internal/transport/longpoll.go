package transport

import (
	"context"
	"sync"
	"time"
)

// maxPollBacklog bounds frames parked for an absent long-poll client.
const maxPollBacklog = 64

// PollClient buffers frames for a client on the long-polling fallback
// transport. The hub enqueues like any other client; the HTTP handler drains.
type PollClient struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

func NewPollClient() *PollClient {
	return &PollClient{
		notify: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

func (pc *PollClient) enqueue(frame []byte) bool {
	pc.mu.Lock()
	if len(pc.frames) >= maxPollBacklog {
		pc.mu.Unlock()
		return false
	}
	pc.frames = append(pc.frames, frame)
	pc.mu.Unlock()

	select {
	case pc.notify <- struct{}{}:
	default:
	}
	return true
}

// Drain returns all buffered frames, blocking up to wait for the first one.
// It returns nil on timeout, cancellation, or client stop.
func (pc *PollClient) Drain(ctx context.Context, wait time.Duration) [][]byte {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		pc.mu.Lock()
		if len(pc.frames) > 0 {
			frames := pc.frames
			pc.frames = nil
			pc.mu.Unlock()
			return frames
		}
		pc.mu.Unlock()

		select {
		case <-pc.notify:
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		case <-pc.doneCh:
			return nil
		}
	}
}

func (pc *PollClient) stop() {
	pc.once.Do(func() { close(pc.doneCh) })
}

func (pc *PollClient) stopGraceful(string) { pc.stop() }
