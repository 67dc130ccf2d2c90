package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// SQLiteConfig configures the relational backend.
type SQLiteConfig struct {
	// Path is the database file. Parent directories are created.
	Path string
	// ChunkThreshold feeds the enhanced projection stored in rows.
	ChunkThreshold int
}

// SQLite persists the enhanced projection of each record across
// normalized tables. Child rows keep their slice position so records
// round-trip in order.
type SQLite struct {
	db        *sql.DB
	threshold int
	logger    *zap.Logger
}

var _ Adapter = (*SQLite)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    current_deployment_id TEXT NOT NULL DEFAULT '',
    tenant_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    webhooks TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}',
    search_index TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);
CREATE INDEX IF NOT EXISTS idx_projects_created ON projects(created_at);
CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at);

CREATE TABLE IF NOT EXISTS project_files (
    project_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    path TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    size INTEGER NOT NULL DEFAULT 0,
    mime_type TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL DEFAULT '',
    chunks INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (project_id, position),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS project_requirements (
    project_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    user_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'open',
    priority TEXT NOT NULL DEFAULT 'normal',
    metadata TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (project_id, position),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS project_deployments (
    project_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    url TEXT NOT NULL DEFAULT '',
    provider TEXT NOT NULL DEFAULT '',
    timestamp INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT 'normal',
    metadata TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (project_id, position),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
`

// NewSQLite opens or creates the database at cfg.Path and applies the
// schema.
func NewSQLite(cfg SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, opError(BackendSQLite, "open", "", fmt.Errorf("%w: sqlite path not configured", ErrUnavailable))
	}
	threshold := cfg.ChunkThreshold
	if threshold <= 0 {
		threshold = project.DefaultChunkThreshold
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, opError(BackendSQLite, "open", cfg.Path, fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, opError(BackendSQLite, "open", cfg.Path, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	// A single connection sidesteps SQLITE_BUSY between concurrent
	// writers sharing the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, opError(BackendSQLite, "open", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, opError(BackendSQLite, "open", cfg.Path, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, opError(BackendSQLite, "migrate", cfg.Path, err)
	}

	logger.Debug("sqlite storage opened", zap.String("path", cfg.Path))
	return &SQLite{db: db, threshold: threshold, logger: logger}, nil
}

func (s *SQLite) SaveProject(ctx context.Context, p *project.State) error {
	if p == nil || p.ID == "" {
		return opError(BackendSQLite, "save", "", project.ErrInvalidInput)
	}
	enhanced := project.ToEnhancedWithThreshold(p, s.threshold)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}
	defer tx.Rollback()

	// Rewrite the record wholesale; the cascade clears child rows.
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, p.ID); err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}

	webhooks, err := marshalColumn(enhanced.Webhooks)
	if err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}
	metadata, err := marshalColumn(enhanced.Metadata)
	if err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}
	searchIndex, err := marshalColumn(enhanced.SearchIndex)
	if err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at, updated_at, current_deployment_id,
			tenant_id, user_id, webhooks, metadata, search_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		enhanced.ID,
		enhanced.Name,
		enhanced.CreatedAt,
		enhanced.UpdatedAt,
		enhanced.CurrentDeploymentID,
		enhanced.TenantID,
		p.OwnerID(),
		webhooks,
		metadata,
		searchIndex,
	)
	if err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}

	for i, f := range enhanced.Files {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_files (project_id, position, path, content, created_at,
				updated_at, is_deleted, size, mime_type, hash, chunks)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			enhanced.ID, i, f.Path, f.Content, f.CreatedAt,
			f.UpdatedAt, boolToInt(f.IsDeleted), f.Size, f.MimeType, f.Hash, f.Chunks,
		)
		if err != nil {
			return opError(BackendSQLite, "save file", p.ID, err)
		}
	}

	for i, r := range enhanced.Requirements {
		reqMeta, err := marshalColumn(r.Metadata)
		if err != nil {
			return opError(BackendSQLite, "save requirement", p.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_requirements (project_id, position, id, content, timestamp,
				user_id, status, priority, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			enhanced.ID, i, r.ID, r.Content, r.Timestamp,
			r.UserID, r.Status, r.Priority, reqMeta,
		)
		if err != nil {
			return opError(BackendSQLite, "save requirement", p.ID, err)
		}
	}

	for i, d := range enhanced.Deployments {
		depMeta, err := marshalColumn(d.Metadata)
		if err != nil {
			return opError(BackendSQLite, "save deployment", p.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_deployments (project_id, position, id, url, provider,
				timestamp, status, error_message, priority, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			enhanced.ID, i, d.ID, d.URL, d.Provider,
			d.Timestamp, d.Status, d.ErrorMessage, d.Priority, depMeta,
		)
		if err != nil {
			return opError(BackendSQLite, "save deployment", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return opError(BackendSQLite, "save", p.ID, err)
	}
	return nil
}

func (s *SQLite) GetProject(ctx context.Context, id string) (*project.State, error) {
	var (
		enhanced    project.Enhanced
		userID      string
		webhooks    string
		metadata    string
		searchIndex string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at, current_deployment_id,
			tenant_id, user_id, webhooks, metadata, search_index
		FROM projects
		WHERE id = ?
	`, id).Scan(
		&enhanced.ID,
		&enhanced.Name,
		&enhanced.CreatedAt,
		&enhanced.UpdatedAt,
		&enhanced.CurrentDeploymentID,
		&enhanced.TenantID,
		&userID,
		&webhooks,
		&metadata,
		&searchIndex,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, opError(BackendSQLite, "get", id, project.ErrProjectNotFound)
	}
	if err != nil {
		return nil, opError(BackendSQLite, "get", id, err)
	}

	if err := unmarshalColumn(webhooks, &enhanced.Webhooks); err != nil {
		return nil, opError(BackendSQLite, "get", id, err)
	}
	if err := unmarshalColumn(metadata, &enhanced.Metadata); err != nil {
		return nil, opError(BackendSQLite, "get", id, err)
	}
	if err := unmarshalColumn(searchIndex, &enhanced.SearchIndex); err != nil {
		return nil, opError(BackendSQLite, "get", id, err)
	}

	if enhanced.Files, err = s.loadFiles(ctx, id); err != nil {
		return nil, opError(BackendSQLite, "get files", id, err)
	}
	if enhanced.Requirements, err = s.loadRequirements(ctx, id); err != nil {
		return nil, opError(BackendSQLite, "get requirements", id, err)
	}
	if enhanced.Deployments, err = s.loadDeployments(ctx, id); err != nil {
		return nil, opError(BackendSQLite, "get deployments", id, err)
	}

	return project.FromEnhanced(&enhanced), nil
}

func (s *SQLite) loadFiles(ctx context.Context, id string) ([]project.EnhancedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, content, created_at, updated_at, is_deleted, size, mime_type, hash, chunks
		FROM project_files
		WHERE project_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []project.EnhancedFile{}
	for rows.Next() {
		var f project.EnhancedFile
		var deleted int
		if err := rows.Scan(&f.Path, &f.Content, &f.CreatedAt, &f.UpdatedAt,
			&deleted, &f.Size, &f.MimeType, &f.Hash, &f.Chunks); err != nil {
			return nil, err
		}
		f.IsDeleted = deleted != 0
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLite) loadRequirements(ctx context.Context, id string) ([]project.EnhancedRequirementsEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, timestamp, user_id, status, priority, metadata
		FROM project_requirements
		WHERE project_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []project.EnhancedRequirementsEntry{}
	for rows.Next() {
		var r project.EnhancedRequirementsEntry
		var meta string
		if err := rows.Scan(&r.ID, &r.Content, &r.Timestamp, &r.UserID,
			&r.Status, &r.Priority, &meta); err != nil {
			return nil, err
		}
		if err := unmarshalColumn(meta, &r.Metadata); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *SQLite) loadDeployments(ctx context.Context, id string) ([]project.EnhancedDeployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, provider, timestamp, status, error_message, priority, metadata
		FROM project_deployments
		WHERE project_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deps := []project.EnhancedDeployment{}
	for rows.Next() {
		var d project.EnhancedDeployment
		var meta string
		if err := rows.Scan(&d.ID, &d.URL, &d.Provider, &d.Timestamp,
			&d.Status, &d.ErrorMessage, &d.Priority, &meta); err != nil {
			return nil, err
		}
		if err := unmarshalColumn(meta, &d.Metadata); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

func (s *SQLite) DeleteProject(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return false, opError(BackendSQLite, "delete", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, opError(BackendSQLite, "delete", id, err)
	}
	return affected > 0, nil
}

func (s *SQLite) ProjectExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, opError(BackendSQLite, "exists", id, err)
	}
	return true, nil
}

func (s *SQLite) ListProjects(ctx context.Context, f ListFilter) (*ListResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, user_id FROM projects
	`)
	if err != nil {
		return nil, opError(BackendSQLite, "list", "", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt, &e.UserID); err != nil {
			return nil, opError(BackendSQLite, "list", "", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, opError(BackendSQLite, "list", "", err)
	}

	entries = FilterIndexByUser(entries, f.UserID)
	SortIndex(entries, f.SortBy, f.SortDirection)

	result := &ListResult{Total: len(entries)}
	for _, e := range PageIndex(entries, f.Limit, f.Offset) {
		p, err := s.GetProject(ctx, e.ID)
		if errors.Is(err, project.ErrProjectNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Projects = append(result.Projects, p)
	}
	return result, nil
}

func (s *SQLite) CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error) {
	p, err := project.NewState(opts)
	if err != nil {
		return nil, opError(BackendSQLite, "create", "", err)
	}
	if err := s.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLite) Name() string {
	return BackendSQLite
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func marshalColumn(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	return string(data), nil
}

func unmarshalColumn(data string, v any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
