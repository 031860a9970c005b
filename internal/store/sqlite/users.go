package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const userColumns = `uid, username, password_hash, nickname, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	var created int64
	if err := row.Scan(&u.UID, &u.Username, &u.PasswordHash, &u.Nickname, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO users (uid, username, password_hash, nickname, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, u.UID, u.Username, u.PasswordHash, u.Nickname, toMillis(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user %q: %w", u.Username, store.ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by uid.
func (s *SQLiteStore) GetUser(ctx context.Context, uid string) (*store.User, error) {
	return getUser(ctx, s.db, uid)
}

func getUser(ctx context.Context, q querier, uid string) (*store.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = ?`, uid)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by username (case-sensitive).
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// FindUserByNickname finds a user whose nickname matches case-insensitively.
func (s *SQLiteStore) FindUserByNickname(ctx context.Context, nickname, excludeUID string) (*store.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(nickname) = lower(?) AND uid != ?
		ORDER BY created_at
		LIMIT 1
	`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, nickname, excludeUID))
	if err != nil {
		return nil, notFound("user", err)
	}
	return u, nil
}

// SearchUsers matches nickname, username or uid substrings.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query, excludeUID string) ([]*store.User, error) {
	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE uid != ?
		  AND (lower(nickname) LIKE ? ESCAPE '\'
		    OR lower(username) LIKE ? ESCAPE '\'
		    OR lower(uid) LIKE ? ESCAPE '\')
		ORDER BY username ASC
		LIMIT 50
	`, excludeUID, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []*store.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateNickname changes a nickname and propagates it to friends' snapshots.
func (s *SQLiteStore) UpdateNickname(ctx context.Context, uid, nickname string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE users SET nickname = ? WHERE uid = ?`, nickname, uid)
		if err != nil {
			return fmt.Errorf("update nickname: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %s: %w", uid, store.ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE friends SET nickname = ? WHERE friend_uid = ?`, nickname, uid); err != nil {
			return fmt.Errorf("update friend snapshots: %w", err)
		}
		return nil
	})
}
