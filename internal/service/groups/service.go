// Package groups implements group membership: creation, join requests,
// invites, approval and departure with admin hand-over.
package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Common errors for group operations.
var (
	ErrInvalidGroupName = core.Validation("invalid_group_name", "Group name is required")
	ErrNoValidMembers   = core.Validation("no_valid_members", "Invalid member list")
	ErrWrongPassword    = core.Forbidden("wrong_password", "Incorrect password")
	ErrAlreadyMember    = core.Conflict("already_member", "Already a group member")
	ErrNotMember        = core.Forbidden(core.ErrCodeNotMember, "Not a group member")
	ErrAdminRequired    = core.Forbidden("admin_required", "You are not the group admin")
	ErrInviteNotFound   = core.NotFound("invite_not_found", "No outstanding invite to this group")
)

// Presence notifies online users.
type Presence interface {
	Emit(uid string, ev *core.Event) bool
}

// Router delivers a request live or queues it for later.
type Router interface {
	Route(ctx context.Context, p *store.PendingRequest) (bool, error)
}

// Poster appends system notices to a group chat.
type Poster interface {
	PostSystem(ctx context.Context, chatID, text string, recipients []string) (*store.Message, error)
}

// SecretHasher hashes group join secrets.
type SecretHasher interface {
	HashSecret(secret string) (string, error)
}

// SearchResult is the outcome of Search. Joined is set when a supplied
// password admitted the caller into one of the matches.
type SearchResult struct {
	Groups []*store.GroupChat
	Joined *store.GroupChat
}

// Service is the group membership engine.
type Service struct {
	store    store.Store
	presence Presence
	router   Router
	poster   Poster
	hasher   SecretHasher
	locks    *core.KeyLock
	log      *zerolog.Logger
}

// New creates a groups service.
func New(st store.Store, presence Presence, router Router, poster Poster, hasher SecretHasher, locks *core.KeyLock, logger *zerolog.Logger) *Service {
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
		poster:   poster,
		hasher:   hasher,
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

func (s *Service) group(ctx context.Context, groupID string) (*store.GroupChat, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrGroupNotFound
		}
		return nil, err
	}
	return g, nil
}

// Create makes a group. The creator is always included and listed first;
// unknown uids are dropped and the first remaining member becomes admin.
func (s *Service) Create(ctx context.Context, creatorUID, name string, memberUIDs []string, password string) (*store.GroupChat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidGroupName
	}

	candidates := append([]string{creatorUID}, memberUIDs...)
	seen := make(map[string]struct{}, len(candidates))
	members := make([]string, 0, len(candidates))
	for _, uid := range candidates {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}

		if _, err := s.user(ctx, uid); err != nil {
			if errors.Is(err, core.ErrUserNotFound) {
				continue
			}
			return nil, err
		}
		members = append(members, uid)
	}
	if len(members) == 0 {
		return nil, ErrNoValidMembers
	}

	hash, err := s.hasher.HashSecret(password)
	if err != nil {
		return nil, err
	}

	g := &store.GroupChat{
		ChatID:       uuid.NewString(),
		GroupID:      uuid.NewString(),
		Name:         name,
		PasswordHash: hash,
		AdminUID:     members[0],
		Members:      members,
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	ev := core.NewEvent(core.EventGroupChatCreated, core.GroupCreatedPayload{
		ChatID:  g.ChatID,
		Name:    g.Name,
		GroupID: g.GroupID,
	})
	for _, uid := range g.Members {
		s.presence.Emit(uid, ev)
	}

	s.log.Info().Str("group_id", g.GroupID).Str("admin", g.AdminUID).Int("members", len(g.Members)).Msg("group created")
	return g, nil
}

// RequestJoin asks to join a group. The request is routed to the admin; a
// group with no members left is joined directly, and joined reports that.
func (s *Service) RequestJoin(ctx context.Context, uid, groupID, password string) (g *store.GroupChat, joined bool, err error) {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	g, err = s.group(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if !auth.CheckSecret(g.PasswordHash, password) {
		return nil, false, ErrWrongPassword
	}
	from, err := s.user(ctx, uid)
	if err != nil {
		return nil, false, err
	}
	if g.HasMember(uid) {
		return nil, false, ErrAlreadyMember
	}

	if len(g.Members) == 0 {
		g, err = s.addMember(ctx, g, from)
		return g, err == nil, err
	}

	_, err = s.router.Route(ctx, &store.PendingRequest{
		Type:         store.PendingJoinGroup,
		FromUID:      uid,
		FromNickname: from.Nickname,
		ToUID:        g.AdminUID,
		GroupID:      g.GroupID,
		GroupName:    g.Name,
	})
	if err != nil {
		return nil, false, err
	}
	return g, false, nil
}

// Approve admits requesterUID into the group. Only the admin may approve.
func (s *Service) Approve(ctx context.Context, adminUID, requesterUID, groupID string) (*store.GroupChat, error) {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	g, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.AdminUID != adminUID || !g.HasMember(adminUID) {
		return nil, ErrAdminRequired
	}
	requester, err := s.user(ctx, requesterUID)
	if err != nil {
		return nil, err
	}
	return s.addMember(ctx, g, requester)
}

// Reject declines requesterUID's join request. Only the admin may reject.
func (s *Service) Reject(ctx context.Context, adminUID, requesterUID, groupID string) error {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	g, err := s.group(ctx, groupID)
	if err != nil {
		return err
	}
	if g.AdminUID != adminUID || !g.HasMember(adminUID) {
		return ErrAdminRequired
	}
	if _, err := s.user(ctx, requesterUID); err != nil {
		return err
	}

	if err := s.store.DeleteJoinRequests(ctx, groupID, requesterUID); err != nil {
		return fmt.Errorf("delete join requests: %w", err)
	}
	s.presence.Emit(requesterUID, core.NewEvent(core.EventJoinGroupRejected, core.JoinRejectedPayload{
		GroupID: groupID,
	}))
	return nil
}

// Invite invites uids into the group. Only the admin may invite; members,
// unknown users and the admin are skipped. It returns the uids invited.
func (s *Service) Invite(ctx context.Context, adminUID, groupID string, uids []string) ([]string, error) {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	g, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.AdminUID != adminUID || !g.HasMember(adminUID) {
		return nil, ErrAdminRequired
	}
	admin, err := s.user(ctx, adminUID)
	if err != nil {
		return nil, err
	}

	invited := make([]string, 0, len(uids))
	seen := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if _, ok := seen[uid]; ok || g.HasMember(uid) {
			continue
		}
		seen[uid] = struct{}{}
		if _, err := s.user(ctx, uid); err != nil {
			if errors.Is(err, core.ErrUserNotFound) {
				continue
			}
			return invited, err
		}

		if err := s.store.CreateGroupInvite(ctx, &store.GroupInvite{GroupID: groupID, UID: uid, FromUID: adminUID}); err != nil {
			return invited, fmt.Errorf("record invite: %w", err)
		}
		if _, err := s.router.Route(ctx, &store.PendingRequest{
			Type:         store.PendingGroupInvite,
			FromUID:      adminUID,
			FromNickname: admin.Nickname,
			ToUID:        uid,
			GroupID:      g.GroupID,
			GroupName:    g.Name,
		}); err != nil {
			return invited, err
		}
		invited = append(invited, uid)
	}
	return invited, nil
}

// AcceptInvite joins uid into a group it was invited to.
func (s *Service) AcceptInvite(ctx context.Context, uid, groupID string) (*store.GroupChat, error) {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	g, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	u, err := s.user(ctx, uid)
	if err != nil {
		return nil, err
	}
	if g.HasMember(uid) {
		return nil, ErrAlreadyMember
	}
	if _, err := s.store.GetGroupInvite(ctx, groupID, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}
	return s.addMember(ctx, g, u)
}

// RejectInvite declines an invite and tells the inviter.
func (s *Service) RejectInvite(ctx context.Context, uid, groupID string) error {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	inv, err := s.store.GetGroupInvite(ctx, groupID, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInviteNotFound
		}
		return err
	}
	if err := s.store.DeleteGroupInvite(ctx, groupID, uid); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}

	s.presence.Emit(inv.FromUID, core.NewEvent(core.EventGroupInviteRejected, core.InviteRejectedPayload{
		GroupID: groupID,
		ToUID:   uid,
	}))
	return nil
}

// Leave removes uid from the group. A departing admin hands over to the
// earliest remaining member; an emptied group is kept.
func (s *Service) Leave(ctx context.Context, uid, groupID string) (*store.GroupChat, error) {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	if _, err := s.group(ctx, groupID); err != nil {
		return nil, err
	}
	u, err := s.user(ctx, uid)
	if err != nil {
		return nil, err
	}

	g, err := s.store.RemoveGroupMember(ctx, groupID, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotMember
		}
		return nil, fmt.Errorf("remove member: %w", err)
	}

	if len(g.Members) > 0 {
		if _, err := s.poster.PostSystem(ctx, g.ChatID, u.Nickname+" has left the group", g.Members); err != nil {
			s.log.Warn().Err(err).Str("group_id", groupID).Msg("failed to post leave notice")
		}
	} else {
		s.log.Info().Str("group_id", groupID).Msg("group has no members, retained for future joins")
	}
	return g, nil
}

// Search lists groups matching query that uid is not in. With a password,
// the first match protected by that password is joined directly.
func (s *Service) Search(ctx context.Context, uid, query, password string) (*SearchResult, error) {
	groups, err := s.store.SearchGroups(ctx, strings.TrimSpace(query), uid)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}
	res := &SearchResult{Groups: groups}
	if password == "" {
		return res, nil
	}

	u, err := s.user(ctx, uid)
	if err != nil {
		return nil, err
	}
	for _, candidate := range groups {
		if candidate.PasswordHash == "" || !auth.CheckSecret(candidate.PasswordHash, password) {
			continue
		}
		joined, err := s.joinDirect(ctx, candidate.GroupID, u)
		if err != nil {
			return nil, err
		}
		if joined != nil {
			res.Joined = joined
			return res, nil
		}
	}
	return res, nil
}

func (s *Service) joinDirect(ctx context.Context, groupID string, u *store.User) (*store.GroupChat, error) {
	unlock := s.locks.Lock(core.GroupKey(groupID))
	defer unlock()

	g, err := s.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if g.HasMember(u.UID) {
		return nil, nil
	}
	return s.addMember(ctx, g, u)
}

// addMember must run under the group lock. It is idempotent for members.
func (s *Service) addMember(ctx context.Context, g *store.GroupChat, u *store.User) (*store.GroupChat, error) {
	updated, added, err := s.store.AddGroupMember(ctx, g.GroupID, u.UID)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	if err := s.store.DeleteJoinRequests(ctx, g.GroupID, u.UID); err != nil {
		return nil, fmt.Errorf("delete join requests: %w", err)
	}
	if err := s.store.DeleteGroupInvite(ctx, g.GroupID, u.UID); err != nil {
		return nil, fmt.Errorf("delete invite: %w", err)
	}
	if !added {
		return updated, nil
	}

	s.presence.Emit(u.UID, core.NewEvent(core.EventJoinGroupApproved, core.JoinApprovedPayload{
		ChatID:  updated.ChatID,
		GroupID: updated.GroupID,
		Name:    updated.Name,
	}))
	if _, err := s.poster.PostSystem(ctx, updated.ChatID, u.Nickname+" has joined the group", updated.Members); err != nil {
		s.log.Warn().Err(err).Str("group_id", updated.GroupID).Msg("failed to post join notice")
	}
	return updated, nil
}
