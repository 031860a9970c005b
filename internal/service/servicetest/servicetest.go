// Package servicetest wires an in-memory environment for service tests.
package servicetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/service/inbox"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

// Env bundles the collaborators shared by services.
type Env struct {
	Store    *sqlite.SQLiteStore
	Presence *presence.Registry
	Locks    *core.KeyLock
	Inbox    *inbox.Service
}

// New creates a fresh environment backed by an in-memory database.
func New(t *testing.T) *Env {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := presence.NewRegistry(nil, nil)
	return &Env{
		Store:    st,
		Presence: reg,
		Locks:    core.NewKeyLock(),
		Inbox:    inbox.NewService(st, reg, nil),
	}
}

// User creates a user whose username and nickname are name, returning its uid.
func (e *Env) User(t *testing.T, name string) string {
	t.Helper()

	u := &store.User{
		UID:          uuid.NewString(),
		Username:     name,
		PasswordHash: "hash",
		Nickname:     name,
	}
	if err := e.Store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return u.UID
}

// Connect binds a fresh client to uid.
func (e *Env) Connect(t *testing.T, uid string) *core.Client {
	t.Helper()

	c := core.NewClient(uuid.NewString(), 64)
	e.Presence.Bind(context.Background(), uid, c)
	return c
}
