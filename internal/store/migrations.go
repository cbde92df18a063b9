package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "projects: per-owner conversation groupings",
		SQL: `
CREATE TABLE projects (
    id          INTEGER PRIMARY KEY,
    owner_id    INTEGER NOT NULL,
    name        TEXT NOT NULL,
    is_default  INTEGER NOT NULL DEFAULT 0 CHECK (is_default IN (0, 1)),
    temporary   INTEGER NOT NULL DEFAULT 0 CHECK (temporary IN (0, 1)),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE INDEX idx_projects_owner_updated ON projects(owner_id, updated_at DESC);
CREATE UNIQUE INDEX idx_projects_default ON projects(owner_id) WHERE is_default = 1;
`,
	},
	{
		Version:     2,
		Description: "rooms and messages: conversations and their turns",
		SQL: `
CREATE TABLE rooms (
    id                        INTEGER PRIMARY KEY,
    owner_id                  INTEGER NOT NULL,
    title                     TEXT NOT NULL DEFAULT '',
    project_id                INTEGER,
    lock_mode                 TEXT NOT NULL DEFAULT 'auto' CHECK (lock_mode IN ('auto', 'manual')),
    classification_confidence REAL CHECK (classification_confidence BETWEEN 0 AND 1),
    last_classified_at        INTEGER,
    created_at                INTEGER NOT NULL,
    updated_at                INTEGER NOT NULL,

    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE SET NULL
);

CREATE INDEX idx_rooms_owner_updated ON rooms(owner_id, updated_at DESC);
CREATE INDEX idx_rooms_project       ON rooms(project_id);

CREATE TABLE messages (
    id          INTEGER PRIMARY KEY,
    room_id     INTEGER NOT NULL,
    role        TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
    content     TEXT NOT NULL,
    created_at  INTEGER NOT NULL,

    FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
);

CREATE INDEX idx_messages_room_created ON messages(room_id, created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "memories: tiered retention entries",
		SQL: `
CREATE TABLE memories (
    id          INTEGER PRIMARY KEY,
    owner_id    INTEGER NOT NULL,
    tier        TEXT NOT NULL CHECK (tier IN ('short', 'medium', 'long')),
    content     TEXT NOT NULL,
    category    TEXT NOT NULL DEFAULT '',
    importance  TEXT NOT NULL DEFAULT '',
    expires_at  INTEGER,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,

    CHECK ((tier = 'medium') = (expires_at IS NOT NULL))
);

CREATE INDEX idx_memories_owner_tier ON memories(owner_id, tier, created_at DESC);
`,
	},
	{
		Version:     4,
		Description: "owner_plans: plan per owner for quota lookup",
		SQL: `
CREATE TABLE owner_plans (
    owner_id    INTEGER PRIMARY KEY,
    plan        TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
