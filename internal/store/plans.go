package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetOwnerPlan records the plan an owner is on, replacing any previous one.
func (db *DB) SetOwnerPlan(ctx context.Context, ownerID int64, plan string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO owner_plans (owner_id, plan, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET plan = excluded.plan, updated_at = excluded.updated_at
	`, ownerID, plan, now)
	if err != nil {
		return fmt.Errorf("set owner plan: %w", err)
	}
	return nil
}

// OwnerPlan returns the owner's plan name, or "" when none is recorded.
func (db *DB) OwnerPlan(ctx context.Context, ownerID int64) (string, error) {
	var plan string
	err := db.QueryRowContext(ctx, `SELECT plan FROM owner_plans WHERE owner_id = ?`, ownerID).Scan(&plan)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get owner plan: %w", err)
	}
	return plan, nil
}
