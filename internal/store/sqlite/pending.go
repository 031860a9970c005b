package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// CreatePending queues a request for an offline target.
func (s *SQLiteStore) CreatePending(ctx context.Context, p *store.PendingRequest) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_requests (type, from_uid, from_nickname, to_uid, group_id, group_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Type, p.FromUID, p.FromNickname, p.ToUID, p.GroupID, p.GroupName, toMillis(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert pending request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// ListPendingFor lists requests addressed to uid together with join requests
// for the groups uid administers now, even if they were queued for a
// previous admin.
func (s *SQLiteStore) ListPendingFor(ctx context.Context, uid string) ([]*store.PendingRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, from_uid, from_nickname, to_uid, group_id, group_name, created_at
		FROM pending_requests
		WHERE to_uid = ?
		UNION
		SELECT p.id, p.type, p.from_uid, p.from_nickname, p.to_uid, p.group_id, p.group_name, p.created_at
		FROM pending_requests p
		JOIN group_chats g ON g.group_id = p.group_id
		WHERE p.type = ? AND g.admin_uid = ?
		ORDER BY id ASC
	`, uid, store.PendingJoinGroup, uid)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	pending := []*store.PendingRequest{}
	for rows.Next() {
		var p store.PendingRequest
		var created int64
		if err := rows.Scan(&p.ID, &p.Type, &p.FromUID, &p.FromNickname, &p.ToUID, &p.GroupID, &p.GroupName, &created); err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		p.CreatedAt = fromMillis(created)
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

// DeletePending removes a delivered request.
func (s *SQLiteStore) DeletePending(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}
	return nil
}

// DeleteJoinRequests removes queued join requests of uid for a group.
func (s *SQLiteStore) DeleteJoinRequests(ctx context.Context, groupID, uid string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_requests WHERE type = ? AND group_id = ? AND from_uid = ?
	`, store.PendingJoinGroup, groupID, uid); err != nil {
		return fmt.Errorf("delete join requests: %w", err)
	}
	return nil
}
