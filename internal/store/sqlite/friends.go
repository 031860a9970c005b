package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// CreateFriendRequest records an unresolved friend request.
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, fromUID, toUID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend_requests (from_uid, to_uid, created_at)
		VALUES (?, ?, ?)
	`, fromUID, toUID, toMillis(time.Now()))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert friend request: %w", store.ErrDuplicate)
		}
		return fmt.Errorf("insert friend request: %w", err)
	}
	return nil
}

// GetFriendRequest retrieves an unresolved request in either direction.
func (s *SQLiteStore) GetFriendRequest(ctx context.Context, a, b string) (*store.FriendRequest, error) {
	var fr store.FriendRequest
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT from_uid, to_uid, created_at
		FROM friend_requests
		WHERE (from_uid = ? AND to_uid = ?) OR (from_uid = ? AND to_uid = ?)
		LIMIT 1
	`, a, b, b, a).Scan(&fr.FromUID, &fr.ToUID, &created)
	if err != nil {
		return nil, notFound("friend request", err)
	}
	fr.CreatedAt = fromMillis(created)
	return &fr, nil
}

// DeleteFriendRequest removes requests between two users in either direction.
func (s *SQLiteStore) DeleteFriendRequest(ctx context.Context, a, b string) error {
	return deleteFriendRequest(ctx, s.db, a, b)
}

func deleteFriendRequest(ctx context.Context, q querier, a, b string) error {
	_, err := q.ExecContext(ctx, `
		DELETE FROM friend_requests
		WHERE (from_uid = ? AND to_uid = ?) OR (from_uid = ? AND to_uid = ?)
	`, a, b, b, a)
	if err != nil {
		return fmt.Errorf("delete friend request: %w", err)
	}
	return nil
}

// AreFriends checks whether b is in a's friend set.
func (s *SQLiteStore) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM friends WHERE user_uid = ? AND friend_uid = ?
	`, a, b).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return count > 0, nil
}

// ListFriends returns uid's friend set in the order friendships were made.
func (s *SQLiteStore) ListFriends(ctx context.Context, uid string) ([]*store.Friend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT friend_uid, nickname
		FROM friends
		WHERE user_uid = ?
		ORDER BY created_at ASC, friend_uid ASC
	`, uid)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	friends := []*store.Friend{}
	for rows.Next() {
		var f store.Friend
		if err := rows.Scan(&f.UID, &f.Nickname); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, &f)
	}
	return friends, rows.Err()
}

// AcceptFriendship makes a and b friends and ensures their private chat exists.
// newChat supplies the id and name used if the chat has to be created.
func (s *SQLiteStore) AcceptFriendship(ctx context.Context, a, b string, newChat *store.Chat) (*store.Chat, bool, error) {
	var (
		chat    *store.Chat
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		userA, err := getUser(ctx, tx, a)
		if err != nil {
			return err
		}
		userB, err := getUser(ctx, tx, b)
		if err != nil {
			return err
		}

		now := toMillis(time.Now())
		insertFriend := `
			INSERT OR IGNORE INTO friends (user_uid, friend_uid, nickname, created_at)
			VALUES (?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, insertFriend, a, b, userB.Nickname, now); err != nil {
			return fmt.Errorf("insert friend: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertFriend, b, a, userA.Nickname, now); err != nil {
			return fmt.Errorf("insert friend: %w", err)
		}

		if err := deleteFriendRequest(ctx, tx, a, b); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pending_requests
			WHERE type = ? AND ((from_uid = ? AND to_uid = ?) OR (from_uid = ? AND to_uid = ?))
		`, store.PendingFriend, a, b, b, a); err != nil {
			return fmt.Errorf("delete pending friend requests: %w", err)
		}

		chat, err = getChatWhere(ctx, tx, `direct_key = ?`, directKey(a, b))
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if newChat.Name == "" {
			newChat.Name = userA.Nickname + " & " + userB.Nickname
		}
		if newChat.CreatedAt.IsZero() {
			newChat.CreatedAt = time.Now()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chats (chat_id, name, direct_key, created_at)
			VALUES (?, ?, ?, ?)
		`, newChat.ChatID, newChat.Name, directKey(a, b), toMillis(newChat.CreatedAt)); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		for i, uid := range []string{a, b} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chat_members (chat_id, uid, position) VALUES (?, ?, ?)
			`, newChat.ChatID, uid, i); err != nil {
				return fmt.Errorf("insert chat member: %w", err)
			}
		}

		newChat.Members = []string{a, b}
		chat = newChat
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return chat, created, nil
}
