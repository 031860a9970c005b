// Package messages routes chat messages: it validates the sender, appends to
// the chat log and fans out to the other members that are online.
package messages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

var (
	// ErrNotAMember is returned when the caller does not belong to the chat.
	ErrNotAMember = core.Forbidden(core.ErrCodeNotMember, "Not a chat member")
	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = core.Validation("empty_message", "Message text is required")
)

// Kind distinguishes private chats from groups.
type Kind string

const (
	KindPrivate Kind = "private"
	KindGroup   Kind = "group"
)

// EventName is the push event used for messages of this kind.
func (k Kind) EventName() string {
	if k == KindGroup {
		return core.EventGroupMessage
	}
	return core.EventChatMessage
}

// Presence delivers events to online users.
type Presence interface {
	Emit(uid string, ev *core.Event) bool
}

// ChatEntry is one line of a user's chat list.
type ChatEntry struct {
	ChatID      string
	Kind        Kind
	Name        string
	LastMessage *store.Message
}

// Service is the message router.
type Service struct {
	store    store.Store
	presence Presence
	locks    *core.KeyLock
	log      *zerolog.Logger
	now      func() time.Time
}

// New creates a message router.
func New(st store.Store, presence Presence, locks *core.KeyLock, logger *zerolog.Logger) *Service {
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
		locks:    locks,
		log:      logger,
		now:      time.Now,
	}
}

type resolvedChat struct {
	kind    Kind
	chatID  string
	name    string
	members []string
}

func (c *resolvedChat) has(uid string) bool {
	for _, m := range c.members {
		if m == uid {
			return true
		}
	}
	return false
}

// resolve finds chatID among chats of the given kind, or of any kind when
// kind is empty.
func (s *Service) resolve(ctx context.Context, kind Kind, chatID string) (*resolvedChat, error) {
	if kind != KindGroup {
		chat, err := s.store.GetChat(ctx, chatID)
		if err == nil {
			return &resolvedChat{kind: KindPrivate, chatID: chat.ChatID, name: chat.Name, members: chat.Members}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if kind != KindPrivate {
		g, err := s.store.GetGroupByChatID(ctx, chatID)
		if err == nil {
			return &resolvedChat{kind: KindGroup, chatID: g.ChatID, name: g.Name, members: g.Members}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, core.ErrChatNotFound
}

// Send appends a message from fromUID to a chat of the given kind and fans it
// out to every other member. The message is persisted before any delivery.
func (s *Service) Send(ctx context.Context, kind Kind, fromUID, chatID, text string) (*store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	chat, err := s.resolve(ctx, kind, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.has(fromUID) {
		return nil, ErrNotAMember
	}

	sender, err := s.store.GetUser(ctx, fromUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}

	msg := &store.Message{
		ChatID:   chat.chatID,
		FromUID:  fromUID,
		Text:     text,
		Nickname: sender.Nickname,
		Type:     store.MessageTypeText,
	}
	if err := s.append(ctx, msg); err != nil {
		return nil, err
	}

	s.fanOut(chat.kind.EventName(), msg, chat.members, fromUID)
	return msg, nil
}

// PostSystem appends a system notice to a group chat and delivers it to
// recipients. Callers pass the member list they observed under their own lock.
func (s *Service) PostSystem(ctx context.Context, chatID, text string, recipients []string) (*store.Message, error) {
	msg := &store.Message{
		ChatID: chatID,
		Text:   text,
		Type:   store.MessageTypeSystem,
	}
	if err := s.append(ctx, msg); err != nil {
		return nil, err
	}
	s.fanOut(core.EventGroupMessage, msg, recipients, "")
	return msg, nil
}

func (s *Service) append(ctx context.Context, msg *store.Message) error {
	unlock := s.locks.Lock(core.ChatKey(msg.ChatID))
	defer unlock()

	msg.Timestamp = s.now()
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// fanOut attempts every recipient independently; a drop is logged by the
// presence layer and never retried.
func (s *Service) fanOut(name string, msg *store.Message, recipients []string, exclude string) {
	ev := core.NewEvent(name, Payload(msg))
	delivered := 0
	for _, uid := range recipients {
		if uid == exclude {
			continue
		}
		if s.presence.Emit(uid, ev) {
			delivered++
		}
	}
	s.log.Debug().
		Str("chat_id", msg.ChatID).
		Int64("seq", msg.Seq).
		Int("recipients", len(recipients)).
		Int("delivered", delivered).
		Msg("message fanned out")
}

// History returns the log of a chat the caller belongs to, oldest first.
// With limit > 0 only the newest limit messages before the cursor are returned.
func (s *Service) History(ctx context.Context, uid, chatID string, limit int, before time.Time) ([]*store.Message, error) {
	chat, err := s.resolve(ctx, "", chatID)
	if err != nil {
		return nil, err
	}
	if !chat.has(uid) {
		return nil, ErrNotAMember
	}
	msgs, err := s.store.ListMessages(ctx, chat.chatID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ChatList returns one entry per chat uid belongs to, most recent activity
// first. Chats without messages come last, ordered by chat id.
func (s *Service) ChatList(ctx context.Context, uid string) ([]ChatEntry, error) {
	if _, err := s.store.GetUser(ctx, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}

	chats, err := s.store.ListChats(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	groups, err := s.store.ListGroups(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	seen := make(map[string]struct{}, len(chats)+len(groups))
	entries := make([]ChatEntry, 0, len(chats)+len(groups))

	for _, c := range chats {
		if _, ok := seen[c.ChatID]; ok {
			continue
		}
		seen[c.ChatID] = struct{}{}

		entry := ChatEntry{ChatID: c.ChatID, Kind: KindPrivate, Name: c.Name}
		for _, m := range c.Members {
			if m == uid {
				continue
			}
			entry.Name = m
			if peer, err := s.store.GetUser(ctx, m); err == nil {
				entry.Name = peer.Nickname
			}
		}
		if entry.LastMessage, err = s.lastMessage(ctx, c.ChatID); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	for _, g := range groups {
		if _, ok := seen[g.ChatID]; ok {
			continue
		}
		seen[g.ChatID] = struct{}{}

		entry := ChatEntry{ChatID: g.ChatID, Kind: KindGroup, Name: g.Name}
		if entry.LastMessage, err = s.lastMessage(ctx, g.ChatID); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastMessage, entries[j].LastMessage
		switch {
		case a != nil && b != nil:
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.After(b.Timestamp)
			}
			if a.Seq != b.Seq {
				return a.Seq > b.Seq
			}
		case a != nil:
			return true
		case b != nil:
			return false
		}
		return entries[i].ChatID < entries[j].ChatID
	})
	return entries, nil
}

func (s *Service) lastMessage(ctx context.Context, chatID string) (*store.Message, error) {
	m, err := s.store.LastMessage(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	return m, nil
}

// Payload converts a stored message to its wire form.
func Payload(m *store.Message) core.MessagePayload {
	return core.MessagePayload{
		Seq:       m.Seq,
		ChatID:    m.ChatID,
		FromUID:   m.FromUID,
		Message:   m.Text,
		Nickname:  m.Nickname,
		Type:      string(m.Type),
		Timestamp: m.Timestamp.UnixMilli(),
	}
}
