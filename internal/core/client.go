package core

import (
	"context"
	"sync"
)

// Client is a live connection handle as seen by the core layer.
// Events queued on a client are written to the wire by the transport.
type Client struct {
	ID         string
	RemoteAddr string
	Events     chan *Event

	mu   sync.RWMutex
	uid  string
	done chan struct{}
	once sync.Once
}

// NewClient constructs a client with an event buffer of the given size.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// UID returns the user bound to this connection, or "" before login.
func (c *Client) UID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

// SetUID records the user bound to this connection.
func (c *Client) SetUID(uid string) {
	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
}

// Send queues an event without blocking. It reports false when the client
// is closed or its buffer is full; the event is dropped in both cases.
func (c *Client) Send(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// SendWait queues an event, waiting for buffer space until the client
// closes or ctx ends. Used for replies, which must not be dropped.
func (c *Client) SendWait(ctx context.Context, ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close marks the client as finished. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
