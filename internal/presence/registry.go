// Package presence tracks which users are connected and through which client.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// Observer is notified after a uid goes online or offline. Calls happen
// outside the registry lock.
type Observer interface {
	Online(ctx context.Context, uid, connID string) error
	Offline(ctx context.Context, uid string) error
}

const observerTimeout = 2 * time.Second

// Registry maps uids to live clients and back.
type Registry struct {
	mu       sync.RWMutex
	byUID    map[string]*core.Client
	byConn   map[string]string
	observer Observer
	log      *zerolog.Logger
}

// NewRegistry creates an empty registry. observer may be nil.
func NewRegistry(observer Observer, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		byUID:    make(map[string]*core.Client),
		byConn:   make(map[string]string),
		observer: observer,
		log:      logger,
	}
}

// Bind routes uid to c. The client previously bound to uid, if any and if
// different from c, is returned so the caller can retire it.
func (r *Registry) Bind(ctx context.Context, uid string, c *core.Client) *core.Client {
	r.mu.Lock()
	prev := r.byUID[uid]
	if prev == c {
		prev = nil
	}
	if prev != nil {
		delete(r.byConn, prev.ID)
	}
	// a connection that logs in as a different user drops its old route
	displaced := ""
	if old, ok := r.byConn[c.ID]; ok && old != uid && r.byUID[old] == c {
		delete(r.byUID, old)
		displaced = old
	}
	r.byUID[uid] = c
	r.byConn[c.ID] = uid
	r.mu.Unlock()

	c.SetUID(uid)
	if displaced != "" {
		r.notify(ctx, func(ctx context.Context) error { return r.observer.Offline(ctx, displaced) })
	}
	r.notify(ctx, func(ctx context.Context) error { return r.observer.Online(ctx, uid, c.ID) })
	r.log.Debug().Str("uid", uid).Str("client_id", c.ID).Bool("superseded", prev != nil).Msg("presence bound")
	return prev
}

// Unbind removes the route owned by c. It reports the uid that went offline;
// a client that was already superseded owns no route and ok is false.
func (r *Registry) Unbind(ctx context.Context, c *core.Client) (uid string, ok bool) {
	r.mu.Lock()
	uid, ok = r.byConn[c.ID]
	if ok {
		delete(r.byConn, c.ID)
		if r.byUID[uid] == c {
			delete(r.byUID, uid)
		} else {
			ok = false
		}
	}
	r.mu.Unlock()

	if ok {
		r.notify(ctx, func(ctx context.Context) error { return r.observer.Offline(ctx, uid) })
		r.log.Debug().Str("uid", uid).Str("client_id", c.ID).Msg("presence unbound")
	}
	return uid, ok
}

// Resolve returns the live client for uid.
func (r *Registry) Resolve(uid string) (*core.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUID[uid]
	return c, ok
}

// IsOnline reports whether uid has a live client.
func (r *Registry) IsOnline(uid string) bool {
	_, ok := r.Resolve(uid)
	return ok
}

// Emit queues ev on uid's client. A missing or saturated client is logged
// and the event dropped.
func (r *Registry) Emit(uid string, ev *core.Event) bool {
	c, ok := r.Resolve(uid)
	if !ok {
		return false
	}
	if !c.Send(ev) {
		r.log.Warn().Str("uid", uid).Str("event", ev.Name).Str("client_id", c.ID).Msg("dropped event for slow or closed client")
		return false
	}
	return true
}

// Touch re-announces a live binding to the observer, refreshing any expiry
// it keeps. Superseded clients are ignored.
func (r *Registry) Touch(ctx context.Context, c *core.Client) {
	uid := c.UID()
	if cur, ok := r.Resolve(uid); !ok || cur != c {
		return
	}
	r.notify(ctx, func(ctx context.Context) error { return r.observer.Online(ctx, uid, c.ID) })
}

// Online returns the number of bound users.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUID)
}

func (r *Registry) notify(ctx context.Context, fn func(ctx context.Context) error) {
	if r.observer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), observerTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.log.Warn().Err(err).Msg("presence observer failed")
	}
}
