package friends

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/core/coretest"
	"github.com/vovakirdan/wirechat-relay/internal/service/servicetest"
)

func newService(t *testing.T) (*Service, *servicetest.Env) {
	t.Helper()
	env := servicetest.New(t)
	return New(env.Store, env.Presence, env.Inbox, env.Locks, nil), env
}

func TestFriendRequestAndAccept(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")
	aliceConn := env.Connect(t, alice)
	bobConn := env.Connect(t, bob)

	require.NoError(t, svc.SendRequest(ctx, alice, bob))
	ev := coretest.MustEvent(t, bobConn, core.EventFriendRequest)
	assert.Equal(t, core.FriendRequestPayload{FromUID: alice, FromNickname: "alice"}, ev.Payload)

	chat, err := svc.Accept(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{alice, bob}, chat.Members)

	toAlice := coretest.MustEvent(t, aliceConn, core.EventFriendRequestAccepted).Payload.(core.FriendAcceptedPayload)
	assert.Equal(t, bob, toAlice.FromUID)
	assert.Equal(t, chat.ChatID, toAlice.ChatID)
	toBob := coretest.MustEvent(t, bobConn, core.EventFriendRequestAccepted).Payload.(core.FriendAcceptedPayload)
	assert.Equal(t, alice, toBob.FromUID)

	aliceFriends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []Friend{{UID: bob, Nickname: "bob", Online: true}}, aliceFriends)
	bobFriends, err := svc.ListFriends(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []Friend{{UID: alice, Nickname: "alice", Online: true}}, bobFriends)

	chatID, err := svc.StartChat(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, chat.ChatID, chatID)
}

func TestAcceptIsIdempotent(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")
	require.NoError(t, svc.SendRequest(ctx, alice, bob))

	first, err := svc.Accept(ctx, bob, alice)
	require.NoError(t, err)

	aliceConn := env.Connect(t, alice)
	second, err := svc.Accept(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ChatID, second.ChatID)
	coretest.NoEvent(t, aliceConn, core.EventFriendRequestAccepted, 50*time.Millisecond)

	friends, err := svc.ListFriends(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, friends, 1)

	chats, err := env.Store.ListChats(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestConcurrentAcceptCreatesOneChat(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")
	require.NoError(t, svc.SendRequest(ctx, alice, bob))

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat, err := svc.Accept(ctx, bob, alice)
			if assert.NoError(t, err) {
				ids[i] = chat.ChatID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSendRequestErrors(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")

	assert.ErrorIs(t, svc.SendRequest(ctx, alice, alice), ErrCannotFriendSelf)
	assert.ErrorIs(t, svc.SendRequest(ctx, alice, "ghost"), core.ErrUserNotFound)

	require.NoError(t, svc.SendRequest(ctx, alice, bob))
	assert.ErrorIs(t, svc.SendRequest(ctx, alice, bob), ErrDuplicateRequest)
	// the reverse direction counts as the same pending request
	assert.ErrorIs(t, svc.SendRequest(ctx, bob, alice), ErrDuplicateRequest)

	_, err := svc.Accept(ctx, bob, alice)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.SendRequest(ctx, bob, alice), ErrAlreadyFriends)
}

func TestAcceptRequiresIncomingRequest(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")

	_, err := svc.Accept(ctx, bob, alice)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	require.NoError(t, svc.SendRequest(ctx, alice, bob))
	// the sender cannot accept their own request
	_, err = svc.Accept(ctx, alice, bob)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestOfflineRequestIsQueued(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")

	require.NoError(t, svc.SendRequest(ctx, alice, bob))

	pending, err := env.Store.ListPendingFor(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, alice, pending[0].FromUID)
	assert.Equal(t, "alice", pending[0].FromNickname)

	// accepting clears the queued copy
	_, err = svc.Accept(ctx, bob, alice)
	require.NoError(t, err)
	pending, err = env.Store.ListPendingFor(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReject(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")
	aliceConn := env.Connect(t, alice)

	require.NoError(t, svc.SendRequest(ctx, alice, bob))
	require.NoError(t, svc.Reject(ctx, bob, alice))

	ev := coretest.MustEvent(t, aliceConn, core.EventFriendRequestRejected)
	assert.Equal(t, core.FriendRejectedPayload{FromUID: bob}, ev.Payload)

	assert.ErrorIs(t, svc.Reject(ctx, bob, alice), ErrRequestNotFound)
	// a fresh request is allowed after rejection
	require.NoError(t, svc.SendRequest(ctx, alice, bob))
}

func TestSendRequestByNickname(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")

	to, err := svc.SendRequestByNickname(ctx, alice, "BOB")
	require.NoError(t, err)
	assert.Equal(t, bob, to)

	_, err = svc.SendRequestByNickname(ctx, alice, "alice")
	assert.ErrorIs(t, err, ErrNicknameNotFound)
}

func TestUpdateNicknamePropagates(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	bob := env.User(t, "bob")
	require.NoError(t, svc.SendRequest(ctx, alice, bob))
	_, err := svc.Accept(ctx, bob, alice)
	require.NoError(t, err)

	nick, err := svc.UpdateNickname(ctx, alice, "  Ally ")
	require.NoError(t, err)
	assert.Equal(t, "Ally", nick)

	friends, err := svc.ListFriends(ctx, bob)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "Ally", friends[0].Nickname)

	_, err = svc.UpdateNickname(ctx, alice, "")
	assert.ErrorIs(t, err, ErrInvalidNickname)
	_, err = svc.UpdateNickname(ctx, "ghost", "x")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestSearchUsersAndStartChat(t *testing.T) {
	svc, env := newService(t)
	ctx := context.Background()

	alice := env.User(t, "alice")
	env.User(t, "alan")
	bob := env.User(t, "bob")
	env.Connect(t, bob)

	found, err := svc.SearchUsers(ctx, alice, "ala")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alan", found[0].Nickname)

	found, err = svc.SearchUsers(ctx, alice, "BO")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].Online)

	_, err = svc.StartChat(ctx, alice, bob)
	assert.ErrorIs(t, err, core.ErrChatNotFound)
}
