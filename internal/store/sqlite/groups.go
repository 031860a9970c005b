package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func getGroupWhere(ctx context.Context, q querier, where string, args ...any) (*store.GroupChat, error) {
	var g store.GroupChat
	var created int64
	err := q.QueryRowContext(ctx, `
		SELECT group_id, chat_id, name, password_hash, admin_uid, created_at
		FROM group_chats
		WHERE `+where, args...,
	).Scan(&g.GroupID, &g.ChatID, &g.Name, &g.PasswordHash, &g.AdminUID, &created)
	if err != nil {
		return nil, notFound("group", err)
	}
	g.CreatedAt = fromMillis(created)

	members, err := collectIDs(ctx, q, `
		SELECT uid FROM group_members WHERE group_id = ? ORDER BY position ASC
	`, g.GroupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	g.Members = members
	if g.Members == nil {
		g.Members = []string{}
	}
	return &g, nil
}

func (s *SQLiteStore) listGroupsBy(ctx context.Context, query string, args ...any) ([]*store.GroupChat, error) {
	ids, err := collectIDs(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	groups := make([]*store.GroupChat, 0, len(ids))
	for _, id := range ids {
		g, err := getGroupWhere(ctx, s.db, `group_id = ?`, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// CreateGroup inserts a group and its members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g *store.GroupChat) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_chats (group_id, chat_id, name, password_hash, admin_uid, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, g.GroupID, g.ChatID, g.Name, g.PasswordHash, g.AdminUID, toMillis(g.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert group: %w", store.ErrDuplicate)
			}
			return fmt.Errorf("insert group: %w", err)
		}
		for _, uid := range g.Members {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO group_members (group_id, uid) VALUES (?, ?)
			`, g.GroupID, uid); err != nil {
				return fmt.Errorf("insert group member: %w", err)
			}
		}
		return nil
	})
}

// GetGroup retrieves a group by group id.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*store.GroupChat, error) {
	return getGroupWhere(ctx, s.db, `group_id = ?`, groupID)
}

// GetGroupByChatID retrieves a group by chat id.
func (s *SQLiteStore) GetGroupByChatID(ctx context.Context, chatID string) (*store.GroupChat, error) {
	return getGroupWhere(ctx, s.db, `chat_id = ?`, chatID)
}

// ListGroups lists the groups uid belongs to.
func (s *SQLiteStore) ListGroups(ctx context.Context, uid string) ([]*store.GroupChat, error) {
	return s.listGroupsBy(ctx, `
		SELECT g.group_id
		FROM group_chats g
		JOIN group_members m ON m.group_id = g.group_id
		WHERE m.uid = ?
		ORDER BY g.created_at ASC
	`, uid)
}

// ListAdminGroups lists the groups administered by uid.
func (s *SQLiteStore) ListAdminGroups(ctx context.Context, uid string) ([]*store.GroupChat, error) {
	return s.listGroupsBy(ctx, `
		SELECT group_id FROM group_chats WHERE admin_uid = ? ORDER BY created_at ASC
	`, uid)
}

// SearchGroups matches name or group id among groups uid is not a member of.
func (s *SQLiteStore) SearchGroups(ctx context.Context, query, uid string) ([]*store.GroupChat, error) {
	pattern := likePattern(query)
	return s.listGroupsBy(ctx, `
		SELECT g.group_id
		FROM group_chats g
		WHERE (lower(g.name) LIKE ? ESCAPE '\' OR lower(g.group_id) LIKE ? ESCAPE '\')
		  AND NOT EXISTS (
			SELECT 1 FROM group_members m WHERE m.group_id = g.group_id AND m.uid = ?
		  )
		ORDER BY g.created_at ASC
		LIMIT 50
	`, pattern, pattern, uid)
}

// AddGroupMember appends uid to a group. The first member of an empty group
// becomes its admin.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, groupID, uid string) (*store.GroupChat, bool, error) {
	var (
		group *store.GroupChat
		added bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := getGroupWhere(ctx, tx, `group_id = ?`, groupID)
		if err != nil {
			return err
		}
		if g.HasMember(uid) {
			group = g
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, uid) VALUES (?, ?)
		`, groupID, uid); err != nil {
			return fmt.Errorf("insert group member: %w", err)
		}
		if len(g.Members) == 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE group_chats SET admin_uid = ? WHERE group_id = ?
			`, uid, groupID); err != nil {
				return fmt.Errorf("update admin: %w", err)
			}
		}

		group, err = getGroupWhere(ctx, tx, `group_id = ?`, groupID)
		added = true
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return group, added, nil
}

// RemoveGroupMember removes uid from a group. If uid was admin and members
// remain, the earliest remaining member is promoted. An emptied group keeps
// its last admin and is retained.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, uid string) (*store.GroupChat, error) {
	var group *store.GroupChat
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := getGroupWhere(ctx, tx, `group_id = ?`, groupID)
		if err != nil {
			return err
		}
		if !g.HasMember(uid) {
			return fmt.Errorf("group member %s: %w", uid, store.ErrNotFound)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM group_members WHERE group_id = ? AND uid = ?
		`, groupID, uid); err != nil {
			return fmt.Errorf("delete group member: %w", err)
		}

		group, err = getGroupWhere(ctx, tx, `group_id = ?`, groupID)
		if err != nil {
			return err
		}
		if group.AdminUID == uid && len(group.Members) > 0 {
			if _, err := tx.ExecContext(ctx, `
				UPDATE group_chats SET admin_uid = ? WHERE group_id = ?
			`, group.Members[0], groupID); err != nil {
				return fmt.Errorf("update admin: %w", err)
			}
			group.AdminUID = group.Members[0]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// CreateGroupInvite records or refreshes an invite.
func (s *SQLiteStore) CreateGroupInvite(ctx context.Context, inv *store.GroupInvite) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_invites (group_id, uid, from_uid, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (group_id, uid) DO UPDATE SET from_uid = excluded.from_uid, created_at = excluded.created_at
	`, inv.GroupID, inv.UID, inv.FromUID, toMillis(inv.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert group invite: %w", err)
	}
	return nil
}

// GetGroupInvite retrieves an invite.
func (s *SQLiteStore) GetGroupInvite(ctx context.Context, groupID, uid string) (*store.GroupInvite, error) {
	var inv store.GroupInvite
	var created int64
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, uid, from_uid, created_at
		FROM group_invites
		WHERE group_id = ? AND uid = ?
	`, groupID, uid).Scan(&inv.GroupID, &inv.UID, &inv.FromUID, &created)
	if err != nil {
		return nil, notFound("group invite", err)
	}
	inv.CreatedAt = fromMillis(created)
	return &inv, nil
}

// DeleteGroupInvite removes an invite.
func (s *SQLiteStore) DeleteGroupInvite(ctx context.Context, groupID, uid string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM group_invites WHERE group_id = ? AND uid = ?
	`, groupID, uid); err != nil {
		return fmt.Errorf("delete group invite: %w", err)
	}
	return nil
}
