package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LockMode controls whether automatic processes may move a room.
type LockMode string

const (
	LockAuto   LockMode = "auto"
	LockManual LockMode = "manual"
)

// Room is a single conversation.
type Room struct {
	ID               int64
	OwnerID          int64
	Title            string
	ProjectID        *int64
	LockMode         LockMode
	Confidence       *float64
	LastClassifiedAt *int64
	CreatedAt        int64
	UpdatedAt        int64
}

// Manual reports whether the room is frozen against automatic writes.
func (r *Room) Manual() bool {
	return r.LockMode == LockManual
}

const roomColumns = `id, owner_id, title, project_id, lock_mode, classification_confidence, last_classified_at, created_at, updated_at`

func scanRoom(row rowScanner) (*Room, error) {
	var r Room
	var lockMode string
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Title, &r.ProjectID, &lockMode,
		&r.Confidence, &r.LastClassifiedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.LockMode = LockMode(lockMode)
	return &r, nil
}

func (db *DB) queryRooms(ctx context.Context, query string, args ...any) ([]Room, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, *r)
	}
	return rooms, rows.Err()
}

// CreateRoom inserts a new auto-mode room, optionally already in a project.
func (db *DB) CreateRoom(ctx context.Context, ownerID int64, title string, projectID *int64) (*Room, error) {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		INSERT INTO rooms (owner_id, title, project_id, lock_mode, created_at, updated_at)
		VALUES (?, ?, ?, 'auto', ?, ?)
	`, ownerID, title, projectID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Room{
		ID:        id,
		OwnerID:   ownerID,
		Title:     title,
		ProjectID: projectID,
		LockMode:  LockAuto,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetRoom returns a room by id scoped to its owner, or nil if absent.
func (db *DB) GetRoom(ctx context.Context, ownerID, id int64) (*Room, error) {
	r, err := scanRoom(db.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE id = ? AND owner_id = ?
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return r, nil
}

// ListRooms returns an owner's rooms, most recently updated first. An empty
// lock mode matches both modes; a limit <= 0 returns all rooms.
func (db *DB) ListRooms(ctx context.Context, ownerID int64, mode LockMode, limit int) ([]Room, error) {
	if limit <= 0 {
		limit = -1
	}
	rooms, err := db.queryRooms(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE owner_id = ? AND (? = '' OR lock_mode = ?)
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, ownerID, string(mode), string(mode), limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// ListProjectRooms returns the rooms of one project, most recently updated
// first, with the same filtering rules as ListRooms.
func (db *DB) ListProjectRooms(ctx context.Context, ownerID, projectID int64, mode LockMode, limit int) ([]Room, error) {
	if limit <= 0 {
		limit = -1
	}
	rooms, err := db.queryRooms(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE owner_id = ? AND project_id = ? AND (? = '' OR lock_mode = ?)
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, ownerID, projectID, string(mode), string(mode), limit)
	if err != nil {
		return nil, fmt.Errorf("list project rooms: %w", err)
	}
	return rooms, nil
}

// UpdateRoomClassification records an automatic classification. The write
// only lands on auto rooms; it reports false when the room is manual or gone.
func (db *DB) UpdateRoomClassification(ctx context.Context, roomID, projectID int64, confidence float64, at time.Time) (bool, error) {
	ms := at.UnixMilli()
	result, err := db.ExecContext(ctx, `
		UPDATE rooms
		SET project_id = ?, classification_confidence = ?, last_classified_at = ?, updated_at = ?
		WHERE id = ? AND lock_mode = 'auto'
	`, projectID, confidence, ms, ms, roomID)
	if err != nil {
		return false, fmt.Errorf("update room classification: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// LockRoom pins a room to a project in manual mode. A nil project keeps the
// current assignment.
func (db *DB) LockRoom(ctx context.Context, ownerID, roomID int64, projectID *int64) error {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		UPDATE rooms
		SET lock_mode = 'manual', project_id = COALESCE(?, project_id), updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, projectID, now, roomID, ownerID)
	if err != nil {
		return fmt.Errorf("lock room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("room %d not found", roomID)
	}
	return nil
}

// UnlockRoom returns a room to automatic classification.
func (db *DB) UnlockRoom(ctx context.Context, ownerID, roomID int64) error {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		UPDATE rooms SET lock_mode = 'auto', updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, now, roomID, ownerID)
	if err != nil {
		return fmt.Errorf("unlock room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("room %d not found", roomID)
	}
	return nil
}
