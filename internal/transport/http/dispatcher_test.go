package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/core/coretest"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

func TestDispatchRequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	s := newTestSession()

	env.dispatch(t, s, proto.TypeGetChatList, proto.UIDData{})
	resp := reply[proto.Response](t, s, proto.TypeGetChatList)
	require.False(t, resp.Success)
	require.Equal(t, core.ErrCodeLoginRequired, resp.Code)
}

func TestDispatchRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	s := newTestSession()

	env.dispatch(t, s, proto.TypeRegister, proto.RegisterData{Username: "alice", Password: testPassword, Nickname: "Al"})
	reg := reply[proto.RegisterResponse](t, s, proto.TypeRegister)
	require.True(t, reg.Success)
	require.NotEmpty(t, reg.UID)
	require.Empty(t, s.client.UID(), "register must not bind the session")

	env.dispatch(t, s, proto.TypeRegister, proto.RegisterData{Username: "alice", Password: testPassword})
	dup := reply[proto.Response](t, s, proto.TypeRegister)
	require.False(t, dup.Success)
	require.Equal(t, "duplicate_username", dup.Code)

	env.dispatch(t, s, proto.TypeLogin, proto.LoginData{Username: "alice", Password: "wrong"})
	bad := reply[proto.Response](t, s, proto.TypeLogin)
	require.False(t, bad.Success)
	require.Equal(t, "invalid_credentials", bad.Code)

	env.dispatch(t, s, proto.TypeLogin, proto.LoginData{Username: "alice", Password: testPassword})
	ok := reply[proto.LoginResponse](t, s, proto.TypeLogin)
	require.True(t, ok.Success)
	require.Equal(t, reg.UID, ok.UID)
	require.Equal(t, "Al", ok.Nickname)
	require.NotEmpty(t, ok.Token)
	require.Equal(t, reg.UID, s.client.UID())

	resumed := newTestSession()
	env.dispatch(t, resumed, proto.TypeLogin, proto.LoginData{Token: ok.Token})
	again := reply[proto.LoginResponse](t, resumed, proto.TypeLogin)
	require.True(t, again.Success)
	require.Equal(t, reg.UID, again.UID)
}

func TestDispatchRejectsForeignActor(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	bob := env.register(t, "bob")
	s := env.login(t, "alice")

	env.dispatch(t, s, proto.TypeFriendRequest, proto.PairData{FromUID: bob, ToUID: bob})
	resp := reply[proto.Response](t, s, proto.TypeFriendRequest)
	require.False(t, resp.Success)
	require.Equal(t, core.ErrWrongActor.Code, resp.Code)

	env.dispatch(t, s, proto.TypeAcceptFriendRequest, proto.PairData{FromUID: bob, ToUID: "someone-else"})
	resp = reply[proto.Response](t, s, proto.TypeAcceptFriendRequest)
	require.Equal(t, core.ErrWrongActor.Code, resp.Code)
}

func TestDispatchFriendshipAndPrivateMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	as := env.login(t, "alice")
	bs := env.login(t, "bob")

	env.dispatch(t, as, proto.TypeFriendRequest, proto.PairData{FromUID: alice, ToUID: bob})
	require.True(t, reply[proto.FriendRequestResponse](t, as, proto.TypeFriendRequest).Success)
	incoming := coretest.MustEvent(t, bs.client, core.EventFriendRequest).Payload.(core.FriendRequestPayload)
	require.Equal(t, alice, incoming.FromUID)

	// the accepter names itself as toUid and the requester as fromUid
	env.dispatch(t, bs, proto.TypeAcceptFriendRequest, proto.PairData{FromUID: alice, ToUID: bob})
	accepted := reply[proto.ChatIDResponse](t, bs, proto.TypeAcceptFriendRequest)
	require.True(t, accepted.Success)
	note := coretest.MustEvent(t, as.client, core.EventFriendRequestAccepted).Payload.(core.FriendAcceptedPayload)
	require.Equal(t, accepted.ChatID, note.ChatID)

	// accepting again is a no-op returning the same chat
	env.dispatch(t, bs, proto.TypeAcceptFriendRequest, proto.PairData{FromUID: bob, ToUID: alice})
	require.Equal(t, accepted.ChatID, reply[proto.ChatIDResponse](t, bs, proto.TypeAcceptFriendRequest).ChatID)

	env.dispatch(t, as, proto.TypeChatMessage, proto.ChatMessageData{ChatID: accepted.ChatID, FromUID: alice, Message: "hi bob"})
	sent := reply[proto.SendMessageResponse](t, as, proto.TypeChatMessage)
	require.Equal(t, "hi bob", sent.Message.Message)

	got := coretest.MustEvent(t, bs.client, core.EventChatMessage).Payload.(core.MessagePayload)
	require.Equal(t, "hi bob", got.Message)
	require.Equal(t, alice, got.FromUID)
	require.Equal(t, "alice", got.Nickname)
	coretest.NoEvent(t, as.client, core.EventChatMessage, 50*time.Millisecond)

	env.dispatch(t, bs, proto.TypeGetFriendList, proto.UIDData{UID: bob})
	friendList := reply[proto.GetFriendListResponse](t, bs, proto.TypeGetFriendList)
	require.Len(t, friendList.Friends, 1)
	require.Equal(t, alice, friendList.Friends[0].UID)
	require.True(t, friendList.Friends[0].Online)

	env.dispatch(t, bs, proto.TypeGetChatList, proto.UIDData{})
	chats := reply[proto.GetChatListResponse](t, bs, proto.TypeGetChatList)
	require.Len(t, chats.ChatList, 1)
	require.Equal(t, "alice", chats.ChatList[0].Name)
	require.NotNil(t, chats.ChatList[0].LastMessage)

	env.dispatch(t, bs, proto.TypeGetChatHistory, proto.ChatHistoryData{ChatID: accepted.ChatID})
	history := reply[proto.GetChatHistoryResponse](t, bs, proto.TypeGetChatHistory)
	require.Len(t, history.Messages, 1)
}

func TestDispatchMessageFailedForOutsider(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	env.register(t, "carol")
	as := env.login(t, "alice")
	bs := env.login(t, "bob")
	cs := env.login(t, "carol")

	env.dispatch(t, as, proto.TypeFriendRequest, proto.PairData{FromUID: alice, ToUID: bob})
	reply[proto.FriendRequestResponse](t, as, proto.TypeFriendRequest)
	env.dispatch(t, bs, proto.TypeAcceptFriendRequest, proto.PairData{FromUID: alice, ToUID: bob})
	chatID := reply[proto.ChatIDResponse](t, bs, proto.TypeAcceptFriendRequest).ChatID

	env.dispatch(t, cs, proto.TypeChatMessage, proto.ChatMessageData{ChatID: chatID, Message: "let me in"})
	ev := coretest.MustEvent(t, cs.client, proto.FailedName(proto.TypeChatMessage))
	failed := ev.Payload.(proto.MessageFailed)
	require.Equal(t, chatID, failed.ChatID)
	require.Equal(t, core.ErrCodeNotMember, failed.Code)
	coretest.NoEvent(t, bs.client, core.EventChatMessage, 50*time.Millisecond)

	env.dispatch(t, as, proto.TypeGroupMessage, proto.ChatMessageData{ChatID: chatID, Message: "wrong kind"})
	failed = coretest.MustEvent(t, as.client, proto.FailedName(proto.TypeGroupMessage)).Payload.(proto.MessageFailed)
	require.Equal(t, core.ErrCodeChatNotFound, failed.Code)
}

func TestDispatchDeliversPendingAfterLoginResponse(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	as := env.login(t, "alice")

	env.dispatch(t, as, proto.TypeFriendRequest, proto.PairData{FromUID: alice, ToUID: bob})
	require.True(t, reply[proto.FriendRequestResponse](t, as, proto.TypeFriendRequest).Success)

	bs := newTestSession()
	env.dispatch(t, bs, proto.TypeLogin, proto.LoginData{Username: "bob", Password: testPassword})

	events := coretest.Drain(bs.client)
	require.Len(t, events, 2)
	require.Equal(t, proto.ResponseName(proto.TypeLogin), events[0].Name)
	require.Equal(t, core.EventFriendRequest, events[1].Name)

	// delivered requests are not replayed on the next login
	again := newTestSession()
	env.dispatch(t, again, proto.TypeLogin, proto.LoginData{Username: "bob", Password: testPassword})
	coretest.NoEvent(t, again.client, core.EventFriendRequest, 50*time.Millisecond)
}

func TestDispatchDrainsPendingBeyondClientBuffer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	bob := env.register(t, "bob")
	for _, name := range []string{"alice", "carol", "dave"} {
		uid := env.register(t, name)
		require.NoError(t, env.svc.Friends.SendRequest(ctx, uid, bob))
	}

	bs := newSession(core.NewClient(uuid.NewString(), 1), newRateLimiter(0, time.Minute))
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.dispatch(t, bs, proto.TypeLogin, proto.LoginData{Username: "bob", Password: testPassword})
	}()

	coretest.MustEvent(t, bs.client, proto.ResponseName(proto.TypeLogin))
	for i := 0; i < 3; i++ {
		coretest.MustEvent(t, bs.client, core.EventFriendRequest)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("login did not finish draining")
	}

	left, err := env.store.ListPendingFor(ctx, bob)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestDispatchSupersedesPreviousSession(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	first := env.login(t, "alice")
	second := env.login(t, "alice")

	coretest.MustEvent(t, first.client, core.EventSessionSuperseded)
	select {
	case <-first.client.Done():
	case <-time.After(time.Second):
		t.Fatal("superseded client was not closed")
	}

	current, ok := env.svc.Presence.Resolve(alice)
	require.True(t, ok)
	require.Same(t, second.client, current)
}

func TestDispatchGroupJoinFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	as := env.login(t, "alice")
	bs := env.login(t, "bob")
	cs := env.login(t, "carol")

	env.dispatch(t, as, proto.TypeCreateGroupChat, proto.CreateGroupChatData{GroupName: "hikers", Password: "pw", MemberUIDs: []string{bob}})
	created := reply[proto.GroupResponse](t, as, proto.TypeCreateGroupChat)
	require.True(t, created.Success)
	coretest.MustEvent(t, bs.client, core.EventGroupChatCreated)

	env.dispatch(t, cs, proto.TypeJoinGroupRequest, proto.JoinGroupData{GroupID: created.GroupID, Password: "nope"})
	wrong := reply[proto.Response](t, cs, proto.TypeJoinGroupRequest)
	require.False(t, wrong.Success)
	require.Equal(t, "wrong_password", wrong.Code)

	env.dispatch(t, cs, proto.TypeJoinGroupRequest, proto.JoinGroupData{GroupID: created.GroupID, Password: "pw", FromUID: carol})
	pending := reply[proto.JoinGroupResponse](t, cs, proto.TypeJoinGroupRequest)
	require.True(t, pending.Success)
	require.False(t, pending.Joined)

	req := coretest.MustEvent(t, as.client, core.EventJoinGroupRequest).Payload.(core.JoinRequestPayload)
	require.Equal(t, carol, req.FromUID)

	// only the admin may approve
	env.dispatch(t, bs, proto.TypeApproveJoinGroup, proto.GroupPairData{GroupID: created.GroupID, FromUID: carol, ToUID: bob})
	require.Equal(t, "admin_required", reply[proto.Response](t, bs, proto.TypeApproveJoinGroup).Code)

	env.dispatch(t, as, proto.TypeApproveJoinGroup, proto.GroupPairData{GroupID: created.GroupID, FromUID: carol, ToUID: alice})
	require.True(t, reply[proto.GroupResponse](t, as, proto.TypeApproveJoinGroup).Success)
	approved := coretest.MustEvent(t, cs.client, core.EventJoinGroupApproved).Payload.(core.JoinApprovedPayload)
	require.Equal(t, created.ChatID, approved.ChatID)

	env.dispatch(t, cs, proto.TypeGroupMessage, proto.ChatMessageData{ChatID: created.ChatID, Message: "hello all"})
	require.True(t, reply[proto.SendMessageResponse](t, cs, proto.TypeGroupMessage).Success)
	for _, s := range []*session{as, bs} {
		for {
			msg := coretest.MustEvent(t, s.client, core.EventGroupMessage).Payload.(core.MessagePayload)
			if msg.Type == "text" {
				require.Equal(t, "hello all", msg.Message)
				break
			}
		}
	}

	env.dispatch(t, bs, proto.TypeLeaveGroup, proto.LeaveGroupData{GroupID: created.GroupID, UID: bob})
	require.True(t, reply[proto.GroupResponse](t, bs, proto.TypeLeaveGroup).Success)

	env.dispatch(t, bs, proto.TypeGroupMessage, proto.ChatMessageData{ChatID: created.ChatID, Message: "still here?"})
	failed := coretest.MustEvent(t, bs.client, proto.FailedName(proto.TypeGroupMessage)).Payload.(proto.MessageFailed)
	require.Equal(t, core.ErrCodeNotMember, failed.Code)

	g, err := env.store.GetGroup(context.Background(), created.GroupID)
	require.NoError(t, err)
	require.Equal(t, []string{alice, carol}, g.Members)
}

func TestDispatchSearchGroupsWithPasswordJoins(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")
	env.register(t, "bob")
	as := env.login(t, "alice")
	bs := env.login(t, "bob")

	env.dispatch(t, as, proto.TypeCreateGroupChat, proto.CreateGroupChatData{GroupName: "Chess Club", Password: "knight"})
	created := reply[proto.GroupResponse](t, as, proto.TypeCreateGroupChat)

	env.dispatch(t, bs, proto.TypeSearchGroups, proto.SearchGroupsData{Query: "chess"})
	found := reply[proto.SearchGroupsResponse](t, bs, proto.TypeSearchGroups)
	require.Len(t, found.Groups, 1)
	require.Equal(t, created.GroupID, found.Groups[0].GroupID)

	env.dispatch(t, bs, proto.TypeSearchGroups, proto.SearchGroupsData{Query: "chess", Password: "knight"})
	joined := reply[proto.SearchGroupsResponse](t, bs, proto.TypeSearchGroups)
	require.True(t, joined.Joined)
	require.Equal(t, created.ChatID, joined.ChatID)
}

func TestDispatchProtocolErrors(t *testing.T) {
	env := newTestEnv(t)
	s := newTestSession()

	env.dispatcher.Dispatch(context.Background(), s, proto.Inbound{Type: "teleport"})
	ev := coretest.Drain(s.client)
	require.Len(t, ev, 1)
	out := outboundFromEvent(ev[0])
	require.Equal(t, proto.OutboundTypeError, out.Type)
	require.Equal(t, "unknown_type", out.Error.Code)

	env.dispatcher.Dispatch(context.Background(), s, proto.Inbound{Type: proto.TypeRegister, Data: json.RawMessage(`"not an object"`)})
	resp := reply[proto.Response](t, s, proto.TypeRegister)
	require.Equal(t, core.ErrCodeBadRequest, resp.Code)
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.routes["boom"] = route{public: true, handle: func(context.Context, *session, json.RawMessage) (any, error) {
		panic("kaboom")
	}}
	s := newTestSession()

	env.dispatcher.Dispatch(context.Background(), s, proto.Inbound{Type: "boom"})
	resp := reply[proto.Response](t, s, "boom")
	require.False(t, resp.Success)
	require.Equal(t, core.ErrCodeInternal, resp.Code)
	require.Equal(t, msgInternal, resp.Message)

	env.dispatch(t, s, proto.TypeRegister, proto.RegisterData{Username: "after", Password: testPassword})
	require.True(t, reply[proto.RegisterResponse](t, s, proto.TypeRegister).Success)
}

func TestDispatchRateLimited(t *testing.T) {
	env := newTestEnv(t)
	s := newSession(core.NewClient("c1", 8), newRateLimiter(1, time.Hour))

	env.dispatch(t, s, proto.TypeRegister, proto.RegisterData{Username: "alice", Password: testPassword})
	require.True(t, reply[proto.RegisterResponse](t, s, proto.TypeRegister).Success)

	env.dispatch(t, s, proto.TypeRegister, proto.RegisterData{Username: "bob", Password: testPassword})
	require.Equal(t, core.ErrCodeRateLimited, reply[proto.Response](t, s, proto.TypeRegister).Code)
}
