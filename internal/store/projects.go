package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Project groups an owner's rooms.
type Project struct {
	ID        int64
	OwnerID   int64
	Name      string
	IsDefault bool
	Temporary bool
	CreatedAt int64
	UpdatedAt int64
}

const projectColumns = `id, owner_id, name, is_default, temporary, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var isDefault, temporary int
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &isDefault, &temporary, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.IsDefault = isDefault == 1
	p.Temporary = temporary == 1
	return &p, nil
}

func (db *DB) queryProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// CreateProject inserts a new non-default project.
func (db *DB) CreateProject(ctx context.Context, ownerID int64, name string, temporary bool) (*Project, error) {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		INSERT INTO projects (owner_id, name, is_default, temporary, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?)
	`, ownerID, name, boolInt(temporary), now, now)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Project{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		Temporary: temporary,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetProject returns a project by id scoped to its owner, or nil if absent.
func (db *DB) GetProject(ctx context.Context, ownerID, id int64) (*Project, error) {
	p, err := scanProject(db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE id = ? AND owner_id = ?
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns an owner's projects, most recently updated first.
// A limit <= 0 returns all of them.
func (db *DB) ListProjects(ctx context.Context, ownerID int64, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = -1
	}
	projects, err := db.queryProjects(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListTemporaryProjects returns an owner's temporary projects, most recently
// updated first. The default project is never included.
func (db *DB) ListTemporaryProjects(ctx context.Context, ownerID int64) ([]Project, error) {
	projects, err := db.queryProjects(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE owner_id = ? AND temporary = 1 AND is_default = 0
		ORDER BY updated_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list temporary projects: %w", err)
	}
	return projects, nil
}

// FindProjectByNameContaining returns the most recently updated project whose
// name contains substr (case-insensitive), or nil.
func (db *DB) FindProjectByNameContaining(ctx context.Context, ownerID int64, substr string) (*Project, error) {
	p, err := scanProject(db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE owner_id = ? AND instr(lower(name), lower(?)) > 0
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`, ownerID, substr))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find project by name: %w", err)
	}
	return p, nil
}

// GetOrCreateDefaultProject returns the owner's default project, creating it
// with the given name on first use.
func (db *DB) GetOrCreateDefaultProject(ctx context.Context, ownerID int64, name string) (*Project, error) {
	now := time.Now().UnixMilli()
	// The partial unique index on (owner_id) WHERE is_default = 1 makes this
	// a no-op when the default already exists.
	if _, err := db.ExecContext(ctx, `
		INSERT INTO projects (owner_id, name, is_default, temporary, created_at, updated_at)
		VALUES (?, ?, 1, 0, ?, ?)
		ON CONFLICT (owner_id) WHERE is_default = 1 DO NOTHING
	`, ownerID, name, now, now); err != nil {
		return nil, fmt.Errorf("ensure default project: %w", err)
	}

	p, err := scanProject(db.QueryRowContext(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE owner_id = ? AND is_default = 1
	`, ownerID))
	if err != nil {
		return nil, fmt.Errorf("get default project: %w", err)
	}
	return p, nil
}

// SetProjectTemporary rewrites the temporary flag and bumps updated_at.
func (db *DB) SetProjectTemporary(ctx context.Context, id int64, temporary bool) error {
	now := time.Now().UnixMilli()
	if _, err := db.ExecContext(ctx, `
		UPDATE projects SET temporary = ?, updated_at = ? WHERE id = ?
	`, boolInt(temporary), now, id); err != nil {
		return fmt.Errorf("set project temporary: %w", err)
	}
	return nil
}

// RenameProject changes a project's name.
func (db *DB) RenameProject(ctx context.Context, ownerID, id int64, name string) error {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx, `
		UPDATE projects SET name = ?, updated_at = ? WHERE id = ? AND owner_id = ?
	`, name, now, id, ownerID)
	if err != nil {
		return fmt.Errorf("rename project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("project %d not found", id)
	}
	return nil
}

// DeleteProject removes a project. Referencing rooms are detached first;
// memory entries are never touched. Reports whether a project was removed.
func (db *DB) DeleteProject(ctx context.Context, ownerID, id int64) (bool, error) {
	now := time.Now().UnixMilli()
	if _, err := db.ExecContext(ctx, `
		UPDATE rooms SET project_id = NULL, updated_at = ?
		WHERE project_id = ? AND owner_id = ?
	`, now, id, ownerID); err != nil {
		return false, fmt.Errorf("detach rooms: %w", err)
	}

	result, err := db.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ListOwners returns every owner id that has a project, a room or a memory.
func (db *DB) ListOwners(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT owner_id FROM projects
		UNION
		SELECT owner_id FROM rooms
		UNION
		SELECT owner_id FROM memories
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}
