// Package friends manages friend requests, friendships and user lookups.
package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Common errors for friend operations.
var (
	ErrCannotFriendSelf = core.Validation("cannot_friend_self", "Cannot send a friend request to yourself")
	ErrAlreadyFriends   = core.Conflict("already_friends", "Already friends")
	ErrDuplicateRequest = core.Conflict("duplicate_request", "A friend request between these users is already pending")
	ErrRequestNotFound  = core.NotFound("request_not_found", "No pending friend request")
	ErrNicknameNotFound = core.NotFound(core.ErrCodeUserNotFound, "No user found with this nickname")
	ErrInvalidNickname  = core.Validation("invalid_nickname", "Nickname must be 1 to 32 characters")
)

// Presence resolves and notifies online users.
type Presence interface {
	Emit(uid string, ev *core.Event) bool
	IsOnline(uid string) bool
}

// Router delivers a request live or queues it for later.
type Router interface {
	Route(ctx context.Context, p *store.PendingRequest) (bool, error)
}

// Friend is a friend list entry.
type Friend struct {
	UID      string
	Nickname string
	Online   bool
}

// Service provides friend management business logic.
type Service struct {
	store    store.Store
	presence Presence
	router   Router
	locks    *core.KeyLock
	log      *zerolog.Logger
}

// New creates a new friends service.
func New(st store.Store, presence Presence, router Router, locks *core.KeyLock, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if locks == nil {
		locks = core.NewKeyLock()
	}
	return &Service{
		store:    st,
		presence: presence,
		router:   router,
		locks:    locks,
		log:      logger,
	}
}

func (s *Service) user(ctx context.Context, uid string) (*store.User, error) {
	u, err := s.store.GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// SendRequest sends a friend request from one user to another. It is
// delivered live when the target is online and queued otherwise.
func (s *Service) SendRequest(ctx context.Context, fromUID, toUID string) error {
	if fromUID == toUID {
		return ErrCannotFriendSelf
	}

	unlock := s.locks.Lock(core.UserKey(fromUID), core.UserKey(toUID))
	defer unlock()

	from, err := s.user(ctx, fromUID)
	if err != nil {
		return err
	}
	if _, err := s.user(ctx, toUID); err != nil {
		return err
	}

	friends, err := s.store.AreFriends(ctx, fromUID, toUID)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if friends {
		return ErrAlreadyFriends
	}

	if _, err := s.store.GetFriendRequest(ctx, fromUID, toUID); err == nil {
		return ErrDuplicateRequest
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check friend request: %w", err)
	}

	if err := s.store.CreateFriendRequest(ctx, fromUID, toUID); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("create friend request: %w", err)
	}

	_, err = s.router.Route(ctx, &store.PendingRequest{
		Type:         store.PendingFriend,
		FromUID:      fromUID,
		FromNickname: from.Nickname,
		ToUID:        toUID,
	})
	return err
}

// SendRequestByNickname resolves a nickname case-insensitively, skipping the
// sender, and sends a friend request to that user. It returns the target uid.
func (s *Service) SendRequestByNickname(ctx context.Context, fromUID, nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", ErrNicknameNotFound
	}
	target, err := s.store.FindUserByNickname(ctx, nickname, fromUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNicknameNotFound
		}
		return "", err
	}
	return target.UID, s.SendRequest(ctx, fromUID, target.UID)
}

// Accept establishes the friendship requested by requesterUID and returns
// the private chat of the pair. Accepting an established friendship is a
// no-op that returns the existing chat.
func (s *Service) Accept(ctx context.Context, accepterUID, requesterUID string) (*store.Chat, error) {
	if accepterUID == requesterUID {
		return nil, ErrCannotFriendSelf
	}

	unlock := s.locks.Lock(core.UserKey(accepterUID), core.UserKey(requesterUID))
	defer unlock()

	accepter, err := s.user(ctx, accepterUID)
	if err != nil {
		return nil, err
	}
	requester, err := s.user(ctx, requesterUID)
	if err != nil {
		return nil, err
	}

	already, err := s.store.AreFriends(ctx, accepterUID, requesterUID)
	if err != nil {
		return nil, fmt.Errorf("check friendship: %w", err)
	}
	if !already {
		req, err := s.store.GetFriendRequest(ctx, requesterUID, accepterUID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && req.FromUID != requesterUID) {
			return nil, ErrRequestNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get friend request: %w", err)
		}
	}

	chat, created, err := s.store.AcceptFriendship(ctx, requesterUID, accepterUID, &store.Chat{ChatID: uuid.NewString()})
	if err != nil {
		return nil, fmt.Errorf("accept friendship: %w", err)
	}
	if already {
		return chat, nil
	}

	s.presence.Emit(requesterUID, core.NewEvent(core.EventFriendRequestAccepted, core.FriendAcceptedPayload{
		FromUID:      accepterUID,
		FromNickname: accepter.Nickname,
		ChatID:       chat.ChatID,
	}))
	s.presence.Emit(accepterUID, core.NewEvent(core.EventFriendRequestAccepted, core.FriendAcceptedPayload{
		FromUID:      requesterUID,
		FromNickname: requester.Nickname,
		ChatID:       chat.ChatID,
	}))

	s.log.Info().
		Str("requester", requesterUID).
		Str("accepter", accepterUID).
		Str("chat_id", chat.ChatID).
		Bool("chat_created", created).
		Msg("friendship established")
	return chat, nil
}

// Reject declines the request requesterUID sent to rejecterUID.
func (s *Service) Reject(ctx context.Context, rejecterUID, requesterUID string) error {
	unlock := s.locks.Lock(core.UserKey(rejecterUID), core.UserKey(requesterUID))
	defer unlock()

	req, err := s.store.GetFriendRequest(ctx, requesterUID, rejecterUID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && req.FromUID != requesterUID) {
		return ErrRequestNotFound
	}
	if err != nil {
		return fmt.Errorf("get friend request: %w", err)
	}

	if err := s.store.DeleteFriendRequest(ctx, requesterUID, rejecterUID); err != nil {
		return fmt.Errorf("reject request: %w", err)
	}

	s.presence.Emit(requesterUID, core.NewEvent(core.EventFriendRequestRejected, core.FriendRejectedPayload{
		FromUID: rejecterUID,
	}))
	return nil
}

// ListFriends returns uid's friends with their current online state.
func (s *Service) ListFriends(ctx context.Context, uid string) ([]Friend, error) {
	if _, err := s.user(ctx, uid); err != nil {
		return nil, err
	}

	records, err := s.store.ListFriends(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}

	friends := make([]Friend, 0, len(records))
	for _, f := range records {
		friends = append(friends, Friend{
			UID:      f.UID,
			Nickname: f.Nickname,
			Online:   s.presence.IsOnline(f.UID),
		})
	}
	return friends, nil
}

// UpdateNickname changes uid's nickname and every friend's copy of it.
func (s *Service) UpdateNickname(ctx context.Context, uid, nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || len(nickname) > 32 {
		return "", ErrInvalidNickname
	}

	unlock := s.locks.Lock(core.UserKey(uid))
	defer unlock()

	if err := s.store.UpdateNickname(ctx, uid, nickname); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", core.ErrUserNotFound
		}
		return "", fmt.Errorf("update nickname: %w", err)
	}
	return nickname, nil
}

// SearchUsers finds other users by nickname, username or uid substring.
func (s *Service) SearchUsers(ctx context.Context, uid, query string) ([]Friend, error) {
	users, err := s.store.SearchUsers(ctx, strings.TrimSpace(query), uid)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	out := make([]Friend, 0, len(users))
	for _, u := range users {
		out = append(out, Friend{
			UID:      u.UID,
			Nickname: u.Nickname,
			Online:   s.presence.IsOnline(u.UID),
		})
	}
	return out, nil
}

// StartChat returns the private chat shared by two users.
func (s *Service) StartChat(ctx context.Context, fromUID, toUID string) (string, error) {
	if _, err := s.user(ctx, fromUID); err != nil {
		return "", err
	}
	if _, err := s.user(ctx, toUID); err != nil {
		return "", err
	}

	chat, err := s.store.GetDirectChat(ctx, fromUID, toUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", core.ErrChatNotFound
		}
		return "", fmt.Errorf("get direct chat: %w", err)
	}
	return chat.ChatID, nil
}
