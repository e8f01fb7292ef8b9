// Package hub is a generic fanout broadcaster: Broadcast pushes each value
// to every registered client's outbound queue, honoring a backpressure
// policy when a queue falls behind. cmd/rollback-lab uses it to fan session
// events out to observers; the session packages do not use it.
package hub

import (
	"sync"

	"github.com/nullframe/rollback/internal/metrics"
)

// BackpressurePolicy selects what happens when a client's queue is full.
type BackpressurePolicy int

const (
	// PolicyDrop discards the newest item for a full client and keeps it
	// connected.
	PolicyDrop BackpressurePolicy = iota
	// PolicyKick closes the client so the host can disconnect it.
	PolicyKick
)

// Client is one subscriber's outbound queue.
type Client[T any] struct {
	Out       chan T
	Closed    chan struct{}
	closeOnce sync.Once
}

// Close signals the client is closed. Idempotent.
func (c *Client[T]) Close() {
	c.closeOnce.Do(func() {
		close(c.Closed)
	})
}

// Hub fans broadcast values out to every registered Client, applying
// Policy when a client's Out channel is full.
type Hub[T any] struct {
	mu         sync.RWMutex
	clients    map[*Client[T]]struct{}
	OutBufSize int
	Policy     BackpressurePolicy
}

// New creates an empty Hub with the given per-client queue depth.
func New[T any](outBufSize int) *Hub[T] {
	if outBufSize <= 0 {
		outBufSize = 64
	}
	return &Hub[T]{clients: make(map[*Client[T]]struct{}), OutBufSize: outBufSize}
}

// NewClient allocates and registers a client using the hub's buffer size.
func (h *Hub[T]) NewClient() *Client[T] {
	c := &Client[T]{Out: make(chan T, h.OutBufSize), Closed: make(chan struct{})}
	h.Add(c)
	return c
}

// Add registers a client with the hub.
func (h *Hub[T]) Add(c *Client[T]) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetSpectatorFanout(n)
}

// Remove unregisters a client and closes it. Safe to call multiple times.
func (h *Hub[T]) Remove(c *Client[T]) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	select {
	case <-c.Closed:
	default:
		c.Close()
	}
	metrics.SetSpectatorFanout(n)
}

// Broadcast pushes v to every connected client's Out channel, dropping or
// kicking per Policy when a channel is full.
func (h *Hub[T]) Broadcast(v T) {
	clients := h.Snapshot()
	metrics.SetSpectatorFanout(len(clients))
	for _, c := range clients {
		select {
		case c.Out <- v:
		default:
			if h.Policy == PolicyKick {
				c.Close()
			} else {
				metrics.IncSpectatorQueueDrop()
			}
		}
	}
}

// Snapshot returns a point-in-time slice of connected clients.
func (h *Hub[T]) Snapshot() []*Client[T] {
	h.mu.RLock()
	clients := make([]*Client[T], 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	return clients
}

// Count returns the number of connected clients.
func (h *Hub[T]) Count() int {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return n
}
