package sqlite

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func getChatWhere(ctx context.Context, q querier, where string, args ...any) (*store.Chat, error) {
	var c store.Chat
	var created int64
	err := q.QueryRowContext(ctx, `
		SELECT chat_id, name, created_at FROM chats WHERE `+where, args...,
	).Scan(&c.ChatID, &c.Name, &created)
	if err != nil {
		return nil, notFound("chat", err)
	}
	c.CreatedAt = fromMillis(created)

	members, err := listChatMembers(ctx, q, c.ChatID)
	if err != nil {
		return nil, err
	}
	c.Members = members
	return &c, nil
}

func listChatMembers(ctx context.Context, q querier, chatID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT uid FROM chat_members WHERE chat_id = ? ORDER BY position ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chat members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan chat member: %w", err)
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}

// GetChat retrieves a private chat by id.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	return getChatWhere(ctx, s.db, `chat_id = ?`, chatID)
}

// GetDirectChat retrieves the private chat between two users.
func (s *SQLiteStore) GetDirectChat(ctx context.Context, a, b string) (*store.Chat, error) {
	return getChatWhere(ctx, s.db, `direct_key = ?`, directKey(a, b))
}

// ListChats lists the private chats uid belongs to.
func (s *SQLiteStore) ListChats(ctx context.Context, uid string) ([]*store.Chat, error) {
	ids, err := collectIDs(ctx, s.db, `
		SELECT c.chat_id
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.chat_id
		WHERE m.uid = ?
		ORDER BY c.created_at ASC
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}

	chats := make([]*store.Chat, 0, len(ids))
	for _, id := range ids {
		c, err := getChatWhere(ctx, s.db, `chat_id = ?`, id)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, nil
}

// collectIDs reads a single string column and closes the rows before
// returning, so callers can issue follow-up queries on the same connection.
func collectIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
