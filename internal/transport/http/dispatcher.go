package http

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/service/friends"
	"github.com/vovakirdan/wirechat-relay/internal/service/groups"
	"github.com/vovakirdan/wirechat-relay/internal/service/inbox"
	"github.com/vovakirdan/wirechat-relay/internal/service/messages"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

var (
	errInvalidPayload = core.Validation(core.ErrCodeBadRequest, "invalid payload")
	errMissingUser    = core.Validation(core.ErrCodeBadRequest, "fromUid and toUid are required")
	errHandlerPanic   = errors.New("event handler panicked")
)

// Services bundles the collaborators the gateway dispatches to.
type Services struct {
	Auth     *auth.Service
	Presence *presence.Registry
	Inbox    *inbox.Service
	Friends  *friends.Service
	Groups   *groups.Service
	Messages *messages.Service
}

// session is the per-connection state seen by handlers.
type session struct {
	client  *core.Client
	limiter *rateLimiter
}

func newSession(client *core.Client, limiter *rateLimiter) *session {
	return &session{client: client, limiter: limiter}
}

// actor checks a payload uid against the bound user. An empty uid stands for
// the caller.
func (s *session) actor(uid string) (string, error) {
	bound := s.client.UID()
	if uid == "" || uid == bound {
		return bound, nil
	}
	return "", core.ErrWrongActor
}

// counterpart finds the caller in a two-user payload and returns the other user.
func (s *session) counterpart(fromUID, toUID string) (actor, other string, err error) {
	bound := s.client.UID()
	switch bound {
	case toUID:
		other = fromUID
	case fromUID:
		other = toUID
	default:
		return "", "", core.ErrWrongActor
	}
	if other == "" {
		return "", "", errMissingUser
	}
	return bound, other, nil
}

type handlerFunc func(ctx context.Context, s *session, data json.RawMessage) (any, error)

type route struct {
	public bool // allowed before login
	failed bool // failures go out as <type>Failed
	handle handlerFunc
	after  func(ctx context.Context, s *session)
}

// Dispatcher executes inbound events against the services and queues the
// replies on the calling connection.
type Dispatcher struct {
	svc             Services
	routes          map[string]route
	historyPageSize int
	log             *zerolog.Logger
}

// NewDispatcher wires every inbound event type to its handler.
func NewDispatcher(svc Services, historyPageSize int, logger *zerolog.Logger) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	d := &Dispatcher{svc: svc, historyPageSize: historyPageSize, log: logger}
	d.routes = map[string]route{
		proto.TypeRegister:                {public: true, handle: handle(d.register)},
		proto.TypeLogin:                   {public: true, handle: handle(d.login), after: d.deliverPending},
		proto.TypeUpdateNickname:          {handle: handle(d.updateNickname)},
		proto.TypeFriendRequest:           {handle: handle(d.friendRequest)},
		proto.TypeFriendRequestByNickname: {handle: handle(d.friendRequestByNickname)},
		proto.TypeAcceptFriendRequest:     {handle: handle(d.acceptFriendRequest)},
		proto.TypeRejectFriendRequest:     {handle: handle(d.rejectFriendRequest)},
		proto.TypeSearchUsers:             {handle: handle(d.searchUsers)},
		proto.TypeStartFriendChat:         {handle: handle(d.startFriendChat)},
		proto.TypeCreateGroupChat:         {handle: handle(d.createGroupChat)},
		proto.TypeSearchGroups:            {handle: handle(d.searchGroups)},
		proto.TypeJoinGroupRequest:        {handle: handle(d.joinGroupRequest)},
		proto.TypeApproveJoinGroup:        {handle: handle(d.approveJoinGroup)},
		proto.TypeRejectJoinGroup:         {handle: handle(d.rejectJoinGroup)},
		proto.TypeInviteToGroup:           {handle: handle(d.inviteToGroup)},
		proto.TypeAcceptGroupInvite:       {handle: handle(d.acceptGroupInvite)},
		proto.TypeRejectGroupInvite:       {handle: handle(d.rejectGroupInvite)},
		proto.TypeLeaveGroup:              {handle: handle(d.leaveGroup)},
		proto.TypeChatMessage:             {failed: true, handle: handle(d.sendMessage(messages.KindPrivate))},
		proto.TypeGroupMessage:            {failed: true, handle: handle(d.sendMessage(messages.KindGroup))},
		proto.TypeGetChatList:             {handle: handle(d.getChatList)},
		proto.TypeGetFriendList:           {handle: handle(d.getFriendList)},
		proto.TypeGetChatHistory:          {handle: handle(d.getChatHistory)},
	}
	return d
}

func handle[T any](fn func(ctx context.Context, s *session, req T) (any, error)) handlerFunc {
	return func(ctx context.Context, s *session, data json.RawMessage) (any, error) {
		var req T
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &req); err != nil {
				return nil, errInvalidPayload
			}
		}
		return fn(ctx, s, req)
	}
}

// Dispatch handles one inbound frame to completion. The reply is queued on the
// session's client ahead of anything the handler's follow-up emits.
func (d *Dispatcher) Dispatch(ctx context.Context, s *session, in proto.Inbound) {
	rt, ok := d.routes[in.Type]
	if !ok {
		s.client.SendWait(ctx, protocolError("unknown_type", "unknown message type"))
		return
	}

	start := time.Now()
	// a disconnect must not abort a half-applied operation
	opCtx := context.WithoutCancel(ctx)
	payload, err := d.run(opCtx, s, in, rt)

	name := proto.ResponseName(in.Type)
	if err != nil {
		if rt.failed {
			name = proto.FailedName(in.Type)
		}
		payload = d.failurePayload(s, in, rt, err)
	}
	d.log.Debug().
		Str("type", in.Type).
		Str("client_id", s.client.ID).
		Str("uid", s.client.UID()).
		Bool("success", err == nil).
		Dur("took", time.Since(start)).
		Msg("event handled")

	if !s.client.SendWait(ctx, core.NewEvent(name, payload)) {
		return
	}
	if err == nil && rt.after != nil {
		rt.after(opCtx, s)
	}
}

func (d *Dispatcher) run(ctx context.Context, s *session, in proto.Inbound, rt route) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("type", in.Type).
				Str("client_id", s.client.ID).
				Msg("event handler panicked")
			payload, err = nil, errHandlerPanic
		}
	}()

	if !s.limiter.allow() {
		return nil, core.ErrRateLimited
	}
	if !rt.public && s.client.UID() == "" {
		return nil, core.ErrLoginRequired
	}
	return rt.handle(ctx, s, in.Data)
}

func (d *Dispatcher) failurePayload(s *session, in proto.Inbound, rt route, err error) any {
	code, msg, known := failure(err)
	switch {
	case known:
		d.log.Warn().Str("type", in.Type).Str("uid", s.client.UID()).Str("code", code).Msg(msg)
	case !errors.Is(err, errHandlerPanic):
		d.log.Error().Err(err).Str("type", in.Type).Str("uid", s.client.UID()).Msg("event failed")
	}

	if rt.failed {
		var req proto.ChatMessageData
		_ = json.Unmarshal(in.Data, &req)
		return proto.MessageFailed{ChatID: req.ChatID, Message: msg, Code: code}
	}
	return proto.Fail(code, msg)
}

func (d *Dispatcher) register(ctx context.Context, _ *session, req proto.RegisterData) (any, error) {
	u, err := d.svc.Auth.Register(ctx, req.Username, req.Password, req.Nickname)
	if err != nil {
		return nil, err
	}
	d.log.Info().Str("uid", u.UID).Str("username", u.Username).Msg("user registered")
	return proto.RegisterResponse{Response: proto.OK(), UID: u.UID}, nil
}

func (d *Dispatcher) login(ctx context.Context, s *session, req proto.LoginData) (any, error) {
	var (
		u     *store.User
		token string
		err   error
	)
	if req.Token != "" {
		u, token, err = d.svc.Auth.Resume(ctx, req.Token)
	} else {
		u, token, err = d.svc.Auth.Login(ctx, req.Username, req.Password)
	}
	if err != nil {
		return nil, err
	}

	if prev := d.svc.Presence.Bind(ctx, u.UID, s.client); prev != nil {
		prev.Send(core.NewEvent(core.EventSessionSuperseded, core.SupersededPayload{Reason: "logged in from another connection"}))
		prev.Close()
		d.log.Info().Str("uid", u.UID).Str("client_id", prev.ID).Msg("session superseded")
	}
	d.log.Info().Str("uid", u.UID).Str("client_id", s.client.ID).Msg("user logged in")

	return proto.LoginResponse{
		Response: proto.OK(),
		UID:      u.UID,
		Username: u.Username,
		Nickname: u.Nickname,
		Token:    token,
	}, nil
}

// pendingSendTimeout bounds how long the login drain waits for room in the
// client's buffer before leaving the rest queued.
const pendingSendTimeout = 5 * time.Second

func (d *Dispatcher) deliverPending(ctx context.Context, s *session) {
	uid := s.client.UID()
	n, err := d.svc.Inbox.Deliver(ctx, uid, func(ev *core.Event) bool {
		sendCtx, cancel := context.WithTimeout(ctx, pendingSendTimeout)
		defer cancel()
		return s.client.SendWait(sendCtx, ev)
	})
	if err != nil {
		d.log.Error().Err(err).Str("uid", uid).Msg("failed to deliver pending requests")
		return
	}
	if n > 0 {
		d.log.Debug().Str("uid", uid).Int("count", n).Msg("pending requests delivered")
	}
}

func (d *Dispatcher) updateNickname(ctx context.Context, s *session, req proto.UpdateNicknameData) (any, error) {
	uid, err := s.actor(req.UID)
	if err != nil {
		return nil, err
	}
	nick, err := d.svc.Friends.UpdateNickname(ctx, uid, req.Nickname)
	if err != nil {
		return nil, err
	}
	return proto.UpdateNicknameResponse{Response: proto.OK(), Nickname: nick}, nil
}

func (d *Dispatcher) friendRequest(ctx context.Context, s *session, req proto.PairData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	if err := d.svc.Friends.SendRequest(ctx, uid, req.ToUID); err != nil {
		return nil, err
	}
	return proto.FriendRequestResponse{Response: proto.OK(), ToUID: req.ToUID}, nil
}

func (d *Dispatcher) friendRequestByNickname(ctx context.Context, s *session, req proto.FriendRequestByNicknameData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	to, err := d.svc.Friends.SendRequestByNickname(ctx, uid, req.Nickname)
	if err != nil {
		return nil, err
	}
	return proto.FriendRequestResponse{Response: proto.OK(), ToUID: to}, nil
}

func (d *Dispatcher) acceptFriendRequest(ctx context.Context, s *session, req proto.PairData) (any, error) {
	uid, requester, err := s.counterpart(req.FromUID, req.ToUID)
	if err != nil {
		return nil, err
	}
	chat, err := d.svc.Friends.Accept(ctx, uid, requester)
	if err != nil {
		return nil, err
	}
	return proto.ChatIDResponse{Response: proto.OK(), ChatID: chat.ChatID}, nil
}

func (d *Dispatcher) rejectFriendRequest(ctx context.Context, s *session, req proto.PairData) (any, error) {
	uid, requester, err := s.counterpart(req.FromUID, req.ToUID)
	if err != nil {
		return nil, err
	}
	if err := d.svc.Friends.Reject(ctx, uid, requester); err != nil {
		return nil, err
	}
	return proto.OK(), nil
}

func (d *Dispatcher) searchUsers(ctx context.Context, s *session, req proto.SearchUsersData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	found, err := d.svc.Friends.SearchUsers(ctx, uid, req.Query)
	if err != nil {
		return nil, err
	}
	return proto.SearchUsersResponse{Response: proto.OK(), Users: userInfos(found)}, nil
}

func (d *Dispatcher) startFriendChat(ctx context.Context, s *session, req proto.PairData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	chatID, err := d.svc.Friends.StartChat(ctx, uid, req.ToUID)
	if err != nil {
		return nil, err
	}
	return proto.ChatIDResponse{Response: proto.OK(), ChatID: chatID}, nil
}

func (d *Dispatcher) createGroupChat(ctx context.Context, s *session, req proto.CreateGroupChatData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	g, err := d.svc.Groups.Create(ctx, uid, req.GroupName, req.MemberUIDs, req.Password)
	if err != nil {
		return nil, err
	}
	return proto.GroupResponse{Response: proto.OK(), ChatID: g.ChatID, GroupID: g.GroupID}, nil
}

func (d *Dispatcher) searchGroups(ctx context.Context, s *session, req proto.SearchGroupsData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	res, err := d.svc.Groups.Search(ctx, uid, req.Query, req.Password)
	if err != nil {
		return nil, err
	}
	if res.Joined != nil {
		return proto.SearchGroupsResponse{Response: proto.OK(), Joined: true, ChatID: res.Joined.ChatID}, nil
	}
	return proto.SearchGroupsResponse{Response: proto.OK(), Groups: groupInfos(res.Groups)}, nil
}

func (d *Dispatcher) joinGroupRequest(ctx context.Context, s *session, req proto.JoinGroupData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	g, joined, err := d.svc.Groups.RequestJoin(ctx, uid, req.GroupID, req.Password)
	if err != nil {
		return nil, err
	}
	resp := proto.JoinGroupResponse{Response: proto.OK(), GroupID: g.GroupID, Joined: joined}
	if joined {
		resp.ChatID = g.ChatID
	} else {
		resp.Message = "Join request sent"
	}
	return resp, nil
}

func (d *Dispatcher) approveJoinGroup(ctx context.Context, s *session, req proto.GroupPairData) (any, error) {
	uid, requester, err := s.counterpart(req.FromUID, req.ToUID)
	if err != nil {
		return nil, err
	}
	g, err := d.svc.Groups.Approve(ctx, uid, requester, req.GroupID)
	if err != nil {
		return nil, err
	}
	return proto.GroupResponse{Response: proto.OK(), ChatID: g.ChatID, GroupID: g.GroupID}, nil
}

func (d *Dispatcher) rejectJoinGroup(ctx context.Context, s *session, req proto.GroupPairData) (any, error) {
	uid, requester, err := s.counterpart(req.FromUID, req.ToUID)
	if err != nil {
		return nil, err
	}
	if err := d.svc.Groups.Reject(ctx, uid, requester, req.GroupID); err != nil {
		return nil, err
	}
	return proto.OK(), nil
}

func (d *Dispatcher) inviteToGroup(ctx context.Context, s *session, req proto.InviteToGroupData) (any, error) {
	uid, err := s.actor(req.FromUID)
	if err != nil {
		return nil, err
	}
	invited, err := d.svc.Groups.Invite(ctx, uid, req.GroupID, req.FriendUIDs)
	if err != nil {
		return nil, err
	}
	return proto.InviteToGroupResponse{Response: proto.OK(), Invited: invited}, nil
}

func (d *Dispatcher) acceptGroupInvite(ctx context.Context, s *session, req proto.GroupPairData) (any, error) {
	uid, err := s.actor(req.ToUID)
	if err != nil {
		return nil, err
	}
	g, err := d.svc.Groups.AcceptInvite(ctx, uid, req.GroupID)
	if err != nil {
		return nil, err
	}
	return proto.GroupResponse{Response: proto.OK(), ChatID: g.ChatID, GroupID: g.GroupID}, nil
}

func (d *Dispatcher) rejectGroupInvite(ctx context.Context, s *session, req proto.GroupPairData) (any, error) {
	uid, err := s.actor(req.ToUID)
	if err != nil {
		return nil, err
	}
	if err := d.svc.Groups.RejectInvite(ctx, uid, req.GroupID); err != nil {
		return nil, err
	}
	return proto.OK(), nil
}

func (d *Dispatcher) leaveGroup(ctx context.Context, s *session, req proto.LeaveGroupData) (any, error) {
	uid, err := s.actor(req.UID)
	if err != nil {
		return nil, err
	}
	g, err := d.svc.Groups.Leave(ctx, uid, req.GroupID)
	if err != nil {
		return nil, err
	}
	return proto.GroupResponse{Response: proto.OK(), ChatID: g.ChatID, GroupID: g.GroupID}, nil
}

func (d *Dispatcher) sendMessage(kind messages.Kind) func(context.Context, *session, proto.ChatMessageData) (any, error) {
	return func(ctx context.Context, s *session, req proto.ChatMessageData) (any, error) {
		uid, err := s.actor(req.FromUID)
		if err != nil {
			return nil, err
		}
		msg, err := d.svc.Messages.Send(ctx, kind, uid, req.ChatID, req.Message)
		if err != nil {
			return nil, err
		}
		return proto.SendMessageResponse{Response: proto.OK(), Message: messages.Payload(msg)}, nil
	}
}

func (d *Dispatcher) getChatList(ctx context.Context, s *session, req proto.UIDData) (any, error) {
	uid, err := s.actor(req.UID)
	if err != nil {
		return nil, err
	}
	entries, err := d.svc.Messages.ChatList(ctx, uid)
	if err != nil {
		return nil, err
	}
	return proto.GetChatListResponse{Response: proto.OK(), ChatList: chatListEntries(entries)}, nil
}

func (d *Dispatcher) getFriendList(ctx context.Context, s *session, req proto.UIDData) (any, error) {
	uid, err := s.actor(req.UID)
	if err != nil {
		return nil, err
	}
	list, err := d.svc.Friends.ListFriends(ctx, uid)
	if err != nil {
		return nil, err
	}
	return proto.GetFriendListResponse{Response: proto.OK(), Friends: userInfos(list)}, nil
}

func (d *Dispatcher) getChatHistory(ctx context.Context, s *session, req proto.ChatHistoryData) (any, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = d.historyPageSize
	}
	var before time.Time
	if req.Before > 0 {
		before = time.UnixMilli(req.Before)
	}
	msgs, err := d.svc.Messages.History(ctx, s.client.UID(), req.ChatID, limit, before)
	if err != nil {
		return nil, err
	}
	return proto.GetChatHistoryResponse{Response: proto.OK(), ChatID: req.ChatID, Messages: messagePayloads(msgs)}, nil
}
