package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tier is a memory retention horizon.
type Tier string

const (
	TierShort  Tier = "short"
	TierMedium Tier = "medium"
	TierLong   Tier = "long"
)

// Tiers lists every tier in context order: long, medium, short.
var Tiers = []Tier{TierLong, TierMedium, TierShort}

// Valid reports whether t names a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierShort, TierMedium, TierLong:
		return true
	}
	return false
}

// MemoryEntry is one retained fact about an owner.
type MemoryEntry struct {
	ID         int64
	OwnerID    int64
	Tier       Tier
	Content    string
	Category   string
	Importance string
	ExpiresAt  *int64 // set iff Tier == TierMedium
	CreatedAt  int64
	UpdatedAt  int64
}

// liveClause filters out expired medium entries relative to a reference time.
const liveClause = `(expires_at IS NULL OR expires_at > ?)`

// InsertMemory stores a new entry. expiresAt must be non-nil exactly for
// medium entries; the schema rejects anything else.
func (db *DB) InsertMemory(ctx context.Context, e *MemoryEntry) error {
	_, err := db.InsertMemoryWithinQuota(ctx, e, -1, time.Now())
	return err
}

// InsertMemoryWithinQuota stores a new entry only while the owner holds
// fewer than limit live entries of its tier at now. A negative limit always
// inserts. The count and the insert are one statement, so concurrent callers
// cannot overshoot the limit. It reports whether the entry was stored.
func (db *DB) InsertMemoryWithinQuota(ctx context.Context, e *MemoryEntry, limit int, now time.Time) (bool, error) {
	ts := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		INSERT INTO memories (owner_id, tier, content, category, importance, expires_at, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE ? < 0 OR (
			SELECT COUNT(*) FROM memories WHERE owner_id = ? AND tier = ? AND `+liveClause+`
		) < ?
	`, e.OwnerID, string(e.Tier), e.Content, e.Category, e.Importance, e.ExpiresAt, ts, ts,
		limit, e.OwnerID, string(e.Tier), now.UnixMilli(), limit)
	if err != nil {
		return false, fmt.Errorf("insert memory: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert memory: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, _ := result.LastInsertId()
	e.ID = id
	e.CreatedAt = ts
	e.UpdatedAt = ts
	return true, nil
}

const memoryColumns = `id, owner_id, tier, content, category, importance, expires_at, created_at, updated_at`

func scanMemory(sc rowScanner) (MemoryEntry, error) {
	var e MemoryEntry
	var t string
	err := sc.Scan(&e.ID, &e.OwnerID, &t, &e.Content, &e.Category, &e.Importance,
		&e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt)
	e.Tier = Tier(t)
	return e, err
}

// GetMemory returns one of the owner's entries, expired or not, or nil.
func (db *DB) GetMemory(ctx context.Context, ownerID, id int64) (*MemoryEntry, error) {
	e, err := scanMemory(db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE owner_id = ? AND id = ?`, ownerID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return &e, nil
}

// CountLiveMemories counts the owner's unexpired entries of a tier at now.
func (db *DB) CountLiveMemories(ctx context.Context, ownerID int64, tier Tier, now time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memories WHERE owner_id = ? AND tier = ? AND `+liveClause,
		ownerID, string(tier), now.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

// ListLiveMemories returns the owner's unexpired entries of a tier, newest
// first. A limit <= 0 returns all of them.
func (db *DB) ListLiveMemories(ctx context.Context, ownerID int64, tier Tier, now time.Time, limit int) ([]MemoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+memoryColumns+`
		FROM memories
		WHERE owner_id = ? AND tier = ? AND `+liveClause+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, ownerID, string(tier), now.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var entries []MemoryEntry
	for rows.Next() {
		e, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RefreshMemory rewrites an entry's labels and expiry in place. Content is
// kept: the entry already says the same thing.
func (db *DB) RefreshMemory(ctx context.Context, id int64, importance, category string, expiresAt *int64) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE memories
		SET importance = COALESCE(NULLIF(?, ''), importance),
		    category = COALESCE(NULLIF(?, ''), category),
		    expires_at = ?,
		    updated_at = ?
		WHERE id = ?
	`, importance, category, expiresAt, now, id)
	if err != nil {
		return fmt.Errorf("refresh memory: %w", err)
	}
	return nil
}
