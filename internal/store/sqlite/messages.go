package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

const messageColumns = `seq, chat_id, from_uid, text, nickname, type, ts`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var m store.Message
	var ts int64
	if err := row.Scan(&m.Seq, &m.ChatID, &m.FromUID, &m.Text, &m.Nickname, &m.Type, &ts); err != nil {
		return nil, err
	}
	m.Timestamp = fromMillis(ts)
	return &m, nil
}

// AppendMessage persists a message to the chat log.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeText
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, from_uid, text, nickname, type, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ChatID, msg.FromUID, msg.Text, msg.Nickname, msg.Type, toMillis(msg.Timestamp))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	msg.Seq = seq
	return nil
}

// ListMessages returns messages of a chat in ascending timestamp order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string, limit int, before time.Time) ([]*store.Message, error) {
	beforeMs := toMillis(before)

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = ? AND (? = 0 OR ts < ?)
		ORDER BY ts ASC, seq ASC
	`
	args := []any{chatID, beforeMs, beforeMs}
	if limit > 0 {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = ? AND (? = 0 OR ts < ?)
			ORDER BY ts DESC, seq DESC
			LIMIT ?
		`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []*store.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 {
		slices.Reverse(messages)
	}
	return messages, nil
}

// LastMessage returns the newest message of a chat.
func (s *SQLiteStore) LastMessage(ctx context.Context, chatID string) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ?
		ORDER BY ts DESC, seq DESC
		LIMIT 1
	`, chatID)
	m, err := scanMessage(row)
	if err != nil {
		return nil, notFound("message", err)
	}
	return m, nil
}
