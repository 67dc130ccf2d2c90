package storage

import (
	"context"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// Backend names returned by Adapter.Name, in selector priority order.
const (
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Sort field and direction values accepted by ListFilter.
const (
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListFilter narrows and pages a project listing. Zero values mean
// "no constraint": an empty UserID matches every owner, Limit 0 means
// no page cap, and empty sort fields default to createdAt descending.
type ListFilter struct {
	// UserID restricts results to projects owned by this user.
	UserID string
	// Limit caps the number of hydrated projects returned.
	Limit int
	// Offset skips entries before hydration begins.
	Offset int
	// SortBy is SortByCreatedAt or SortByUpdatedAt.
	SortBy string
	// SortDirection is SortAsc or SortDesc.
	SortDirection string
}

// ListResult carries one page of projects plus the total number of
// index entries that matched the filter before pagination.
type ListResult struct {
	Projects []*project.State
	Total    int
}

// Adapter is the persistence contract every backend implements.
//
// Implementations must be safe for concurrent use. Writes follow
// last-write-wins semantics: SaveProject replaces the stored record
// unconditionally and keeps the listing index in sync with it.
type Adapter interface {
	// SaveProject persists p, replacing any existing record with the
	// same id, and upserts the listing index entry.
	SaveProject(ctx context.Context, p *project.State) error

	// GetProject loads the record for id. Missing records yield an
	// error satisfying errors.Is(err, project.ErrProjectNotFound).
	GetProject(ctx context.Context, id string) (*project.State, error)

	// DeleteProject removes the record, its overflow chunks, and its
	// index entry. It reports whether a record existed; deleting a
	// missing record is not an error.
	DeleteProject(ctx context.Context, id string) (bool, error)

	// ProjectExists reports whether a record exists without loading it.
	ProjectExists(ctx context.Context, id string) (bool, error)

	// ListProjects filters, sorts, and pages the index, then hydrates
	// the selected records. Index entries whose record has vanished
	// are skipped, not errors.
	ListProjects(ctx context.Context, f ListFilter) (*ListResult, error)

	// CreateProject builds a fresh record from opts and persists it.
	CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error)

	// Name identifies the backend ("sqlite", "nats", "badger",
	// "memory").
	Name() string

	// Close releases backend resources. Safe to call more than once.
	Close() error
}
