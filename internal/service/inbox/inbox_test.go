package inbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

func setup(t *testing.T) (*Service, *presence.Registry, *sqlite.SQLiteStore) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := presence.NewRegistry(nil, nil)
	return NewService(st, reg, nil), reg, st
}

func TestRouteLiveDoesNotPersist(t *testing.T) {
	svc, reg, st := setup(t)
	ctx := context.Background()
	c := core.NewClient("c1", 4)
	reg.Bind(ctx, "u2", c)

	live, err := svc.Route(ctx, &store.PendingRequest{Type: store.PendingFriend, FromUID: "u1", FromNickname: "alice", ToUID: "u2"})
	require.NoError(t, err)
	assert.True(t, live)

	ev := <-c.Events
	assert.Equal(t, core.EventFriendRequest, ev.Name)
	assert.Equal(t, core.FriendRequestPayload{FromUID: "u1", FromNickname: "alice"}, ev.Payload)

	pending, err := st.ListPendingFor(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRouteOfflineThenDeliver(t *testing.T) {
	svc, _, st := setup(t)
	ctx := context.Background()

	live, err := svc.Route(ctx, &store.PendingRequest{Type: store.PendingFriend, FromUID: "u1", ToUID: "u2"})
	require.NoError(t, err)
	assert.False(t, live)
	_, err = svc.Route(ctx, &store.PendingRequest{Type: store.PendingGroupInvite, FromUID: "u3", ToUID: "u2", GroupID: "g1", GroupName: "G"})
	require.NoError(t, err)

	var got []*core.Event
	n, err := svc.Deliver(ctx, "u2", func(ev *core.Event) bool {
		got = append(got, ev)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got, 2)
	assert.Equal(t, core.EventFriendRequest, got[0].Name)
	assert.Equal(t, core.EventInviteToGroup, got[1].Name)

	pending, err := st.ListPendingFor(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeliverKeepsRejected(t *testing.T) {
	svc, _, st := setup(t)
	ctx := context.Background()

	_, err := svc.Route(ctx, &store.PendingRequest{Type: store.PendingFriend, FromUID: "u1", ToUID: "u2"})
	require.NoError(t, err)

	n, err := svc.Deliver(ctx, "u2", func(*core.Event) bool { return false })
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err := st.ListPendingFor(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestEventForUnknownType(t *testing.T) {
	_, err := EventFor(&store.PendingRequest{Type: "bogus"})
	assert.Error(t, err)
}
