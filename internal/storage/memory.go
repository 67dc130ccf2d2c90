package storage

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// Memory is the in-process adapter. Records live in a map guarded by a
// read-write mutex, and every record that crosses the boundary is
// cloned so callers cannot mutate stored state through a shared
// pointer.
type Memory struct {
	mu       sync.RWMutex
	projects map[string]*project.State
	index    []IndexEntry
}

var _ Adapter = (*Memory)(nil)

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]*project.State),
	}
}

func (m *Memory) SaveProject(_ context.Context, p *project.State) error {
	if p == nil || p.ID == "" {
		return opError(BackendMemory, "save", "", project.ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.projects[p.ID] = p.Clone()
	m.index = UpsertIndexEntry(m.index, IndexEntryFor(p))
	return nil
}

func (m *Memory) GetProject(_ context.Context, id string) (*project.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, opError(BackendMemory, "get", ProjectKey(id), project.ErrProjectNotFound)
	}
	return p.Clone(), nil
}

func (m *Memory) DeleteProject(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return false, nil
	}
	delete(m.projects, id)
	m.index = RemoveIndexEntry(m.index, id)
	return true, nil
}

func (m *Memory) ProjectExists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.projects[id]
	return ok, nil
}

func (m *Memory) ListProjects(_ context.Context, f ListFilter) (*ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := append([]IndexEntry(nil), m.index...)
	entries = FilterIndexByUser(entries, f.UserID)
	SortIndex(entries, f.SortBy, f.SortDirection)

	result := &ListResult{Total: len(entries)}
	for _, e := range PageIndex(entries, f.Limit, f.Offset) {
		p, ok := m.projects[e.ID]
		if !ok {
			// Stale index entry; skip rather than fail the listing.
			continue
		}
		result.Projects = append(result.Projects, p.Clone())
	}
	return result, nil
}

func (m *Memory) CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error) {
	p, err := project.NewState(opts)
	if err != nil {
		return nil, opError(BackendMemory, "create", "", err)
	}
	if err := m.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Memory) Name() string {
	return BackendMemory
}

func (m *Memory) Close() error {
	return nil
}
