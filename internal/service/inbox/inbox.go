// Package inbox routes requests to their target: live when the target is
// connected, persisted otherwise and replayed at the next login.
package inbox

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Presence resolves live users.
type Presence interface {
	Emit(uid string, ev *core.Event) bool
}

// Service is the live-or-persist router for pending requests.
type Service struct {
	store    store.PendingStore
	presence Presence
	log      *zerolog.Logger
}

// NewService creates an inbox.
func NewService(st store.PendingStore, presence Presence, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, presence: presence, log: logger}
}

// Route delivers p to p.ToUID if online, otherwise queues it. It reports
// whether the request was delivered live.
func (s *Service) Route(ctx context.Context, p *store.PendingRequest) (bool, error) {
	ev, err := EventFor(p)
	if err != nil {
		return false, err
	}
	if s.presence.Emit(p.ToUID, ev) {
		return true, nil
	}
	if err := s.store.CreatePending(ctx, p); err != nil {
		return false, fmt.Errorf("queue %s request: %w", p.Type, err)
	}
	s.log.Debug().Str("type", string(p.Type)).Str("to_uid", p.ToUID).Msg("request queued for offline user")
	return false, nil
}

// Deliver replays everything queued for uid through send. A request is
// removed once send accepts it; rejected ones stay queued.
func (s *Service) Deliver(ctx context.Context, uid string, send func(*core.Event) bool) (int, error) {
	pending, err := s.store.ListPendingFor(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}

	delivered := 0
	for _, p := range pending {
		ev, err := EventFor(p)
		if err != nil {
			s.log.Warn().Err(err).Int64("id", p.ID).Msg("dropping malformed pending request")
			_ = s.store.DeletePending(ctx, p.ID)
			continue
		}
		if !send(ev) {
			s.log.Warn().Str("uid", uid).Int64("id", p.ID).Msg("pending request not accepted, keeping it queued")
			break
		}
		if err := s.store.DeletePending(ctx, p.ID); err != nil {
			return delivered, fmt.Errorf("delete pending: %w", err)
		}
		delivered++
	}
	return delivered, nil
}

// EventFor converts a queued request to the push event its target receives.
func EventFor(p *store.PendingRequest) (*core.Event, error) {
	switch p.Type {
	case store.PendingFriend:
		return core.NewEvent(core.EventFriendRequest, core.FriendRequestPayload{
			FromUID:      p.FromUID,
			FromNickname: p.FromNickname,
		}), nil
	case store.PendingJoinGroup:
		return core.NewEvent(core.EventJoinGroupRequest, core.JoinRequestPayload{
			GroupID:      p.GroupID,
			FromUID:      p.FromUID,
			FromNickname: p.FromNickname,
		}), nil
	case store.PendingGroupInvite:
		return core.NewEvent(core.EventInviteToGroup, core.GroupInvitePayload{
			GroupID:      p.GroupID,
			GroupName:    p.GroupName,
			FromUID:      p.FromUID,
			FromNickname: p.FromNickname,
		}), nil
	default:
		return nil, fmt.Errorf("unknown pending type %q", p.Type)
	}
}
