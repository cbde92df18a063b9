package store

import (
	"context"
	"fmt"
	"time"
)

// Message is one turn of a room's conversation.
type Message struct {
	ID        int64
	RoomID    int64
	Role      string // user, assistant, system
	Content   string
	CreatedAt int64
}

// AddMessage appends a turn to a room and bumps the room's updated_at.
func (db *DB) AddMessage(ctx context.Context, roomID int64, role, content string) (*Message, error) {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		INSERT INTO messages (room_id, role, content, created_at) VALUES (?, ?, ?, ?)
	`, roomID, role, content, now)
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	id, _ := result.LastInsertId()

	if _, err := db.ExecContext(ctx, `UPDATE rooms SET updated_at = ? WHERE id = ?`, now, roomID); err != nil {
		return nil, fmt.Errorf("touch room: %w", err)
	}

	return &Message{ID: id, RoomID: roomID, Role: role, Content: content, CreatedAt: now}, nil
}

// RecentMessages returns up to limit of the newest turns of a room in
// chronological order.
func (db *DB) RecentMessages(ctx context.Context, roomID int64, limit int) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, room_id, role, content, created_at FROM (
			SELECT id, room_id, role, content, created_at FROM messages
			WHERE room_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
