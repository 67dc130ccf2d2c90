package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/config"
	"github.com/fyrsmithlabs/projectd/internal/project"
	"github.com/fyrsmithlabs/projectd/internal/storage"
	"github.com/fyrsmithlabs/projectd/internal/tenant"
)

const instrumentationName = "github.com/fyrsmithlabs/projectd/internal/state"

// Manager coordinates project record operations across the storage
// adapter, the read-through cache, and the tenant policy.
type Manager struct {
	provider string
	policy   tenant.Policy
	logger   *zap.Logger
	cache    *recordCache

	// Telemetry
	tracer    trace.Tracer
	meter     metric.Meter
	opCounter metric.Int64Counter

	mu      sync.RWMutex
	adapter storage.Adapter
	closed  bool
}

// NewManager selects a storage backend per the configuration and wraps
// it in a manager.
func NewManager(cfg *config.Config, rt storage.Runtime, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	adapter, err := storage.Select(cfg.Storage.Provider, rt, logger)
	if err != nil {
		return nil, err
	}

	return NewManagerWithAdapter(adapter, cfg, logger)
}

// NewManagerWithAdapter wraps an existing adapter. A nil config gets the
// open tenant policy and no cache.
func NewManagerWithAdapter(adapter storage.Adapter, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	if adapter == nil {
		return nil, errors.New("storage adapter is required")
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy, err := tenant.PolicyFromString(cfg.Tenancy.Mode)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		provider: cfg.Storage.Provider,
		policy:   policy,
		logger:   logger,
		adapter:  adapter,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}
	if cfg.Cache.Enabled {
		m.cache = newRecordCache(cfg.Cache.TTL.Duration(), cfg.Cache.MaxEntries)
	}

	m.initMetrics()

	return m, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (m *Manager) initMetrics() {
	var err error

	m.opCounter, err = m.meter.Int64Counter(
		"projectd.state.operations_total",
		metric.WithDescription("Total number of completed project state operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create operation counter", zap.Error(err))
	}
}

// current returns the active adapter, failing after Close.
func (m *Manager) current() (storage.Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errors.New("manager is closed")
	}
	return m.adapter, nil
}

// callerScope resolves the caller's tenant scope: an explicit argument
// wins, otherwise any scope carried on the context applies.
func callerScope(ctx context.Context, tenantID string) string {
	if tenantID != "" {
		return tenantID
	}
	scope, _ := tenant.TenantFromContext(ctx)
	return scope
}

// fetch loads a record through the cache and applies the tenant policy.
// Denied reads report ErrProjectNotFound so record existence never
// leaks across tenants, and denied records are never cached.
func (m *Manager) fetch(ctx context.Context, adapter storage.Adapter, id, caller string) (*project.State, error) {
	if m.cache != nil {
		if p, ok := m.cache.Get(id); ok {
			if !m.policy.Allow(p.TenantID, caller) {
				return nil, project.ErrProjectNotFound
			}
			return p, nil
		}
	}

	p, err := adapter.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.policy.Allow(p.TenantID, caller) {
		return nil, project.ErrProjectNotFound
	}

	if m.cache != nil {
		m.cache.Set(id, p)
	}
	return p, nil
}

// recache refreshes the cached copy after a successful save.
func (m *Manager) recache(p *project.State) {
	if m.cache != nil {
		m.cache.Set(p.ID, p)
	}
}

func (m *Manager) countOp(ctx context.Context, op string) {
	if m.opCounter == nil {
		return
	}
	m.opCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
	))
}

// CreateProject creates a new project record and caches it.
func (m *Manager) CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error) {
	ctx, span := m.tracer.Start(ctx, "project.create")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", opts.TenantID))

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}

	p, err := adapter.CreateProject(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.recache(p)
	m.countOp(ctx, "create")

	m.logger.Info("created project",
		zap.String("id", p.ID),
		zap.String("name", p.Name),
	)

	span.SetAttributes(attribute.String("project_id", p.ID))
	return p, nil
}

// GetProject returns the record for id, subject to the tenant policy.
func (m *Manager) GetProject(ctx context.Context, id, tenantID string) (*project.State, error) {
	ctx, span := m.tracer.Start(ctx, "project.get")
	defer span.End()

	span.SetAttributes(attribute.String("project_id", id))

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}

	p, err := m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	m.countOp(ctx, "get")
	return p, nil
}

// UpdateProject applies a read-modify-write pass: file upserts, soft
// deletes, optional rename, one appended requirements entry, metadata
// merge, and webhook replacement, then persists the whole record.
func (m *Manager) UpdateProject(ctx context.Context, id string, opts UpdateOptions, tenantID string) (*UpdateResult, error) {
	ctx, span := m.tracer.Start(ctx, "project.update")
	defer span.End()

	span.SetAttributes(attribute.String("project_id", id))

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}
	if opts.Name != "" && strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("%w: blank project name", project.ErrInvalidInput)
	}

	p, err := m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := applyUpdate(p, opts)
	res.Project = p

	if err := adapter.SaveProject(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Success = true

	m.recache(p)
	m.countOp(ctx, "update")

	m.logger.Info("updated project",
		zap.String("id", p.ID),
		zap.Int("new_files", len(res.NewFiles)),
		zap.Int("updated_files", len(res.UpdatedFiles)),
		zap.Int("deleted_files", len(res.DeletedFiles)),
	)

	return res, nil
}

// applyUpdate mutates p in place and reports the touched paths. All
// timestamps within one update share a single now.
func applyUpdate(p *project.State, opts UpdateOptions) *UpdateResult {
	res := &UpdateResult{}
	now := project.Now()

	// Upserts apply in sorted path order for determinism.
	paths := make([]string, 0, len(opts.UpdatedFiles))
	for path := range opts.UpdatedFiles {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		content := opts.UpdatedFiles[path]
		if i := p.FileAt(path); i >= 0 {
			p.Files[i].Content = content
			p.Files[i].UpdatedAt = now
			res.UpdatedFiles = append(res.UpdatedFiles, path)
			continue
		}
		// A path whose only earlier file is soft-deleted gets a fresh
		// entry; the deleted record stays as history.
		p.Files = append(p.Files, project.File{
			Path:      path,
			Content:   content,
			CreatedAt: now,
			UpdatedAt: now,
		})
		res.NewFiles = append(res.NewFiles, path)
	}

	for _, path := range opts.DeletedFiles {
		i := p.FileAt(path)
		if i < 0 {
			continue
		}
		p.Files[i].IsDeleted = true
		p.Files[i].UpdatedAt = now
		res.DeletedFiles = append(res.DeletedFiles, path)
	}

	if opts.Name != "" {
		p.Name = opts.Name
	}

	if strings.TrimSpace(opts.NewRequirements) != "" {
		p.Requirements = append(p.Requirements, project.RequirementsEntry{
			ID:        uuid.NewString(),
			Content:   opts.NewRequirements,
			Timestamp: now,
			UserID:    opts.RequirementsUserID,
		})
	}

	if len(opts.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = make(map[string]any, len(opts.Metadata))
		}
		for k, v := range opts.Metadata {
			p.Metadata[k] = v
		}
	}

	if opts.Webhooks != nil {
		p.Webhooks = append([]project.Webhook(nil), opts.Webhooks...)
	}

	p.UpdatedAt = now
	return res
}

// AddFiles upserts the given path-to-content map with UpdateProject
// semantics. An empty map is invalid input.
func (m *Manager) AddFiles(ctx context.Context, id string, files map[string]string, tenantID string) (*UpdateResult, error) {
	ctx, span := m.tracer.Start(ctx, "project.files.add")
	defer span.End()

	span.SetAttributes(
		attribute.String("project_id", id),
		attribute.Int("file_count", len(files)),
	)

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files given", project.ErrInvalidInput)
	}

	p, err := m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	res := applyUpdate(p, UpdateOptions{UpdatedFiles: files})
	res.Project = p

	if err := adapter.SaveProject(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Success = true

	m.recache(p)
	m.countOp(ctx, "files.add")

	m.logger.Info("added project files",
		zap.String("id", p.ID),
		zap.Int("new_files", len(res.NewFiles)),
		zap.Int("updated_files", len(res.UpdatedFiles)),
	)

	return res, nil
}

// DeleteProject removes a record, its index entry, and any externalized
// chunks. Deleting an absent or tenant-foreign record reports false
// with no error, so the call is idempotent and leaks nothing.
func (m *Manager) DeleteProject(ctx context.Context, id, tenantID string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "project.delete")
	defer span.End()

	span.SetAttributes(attribute.String("project_id", id))

	adapter, err := m.current()
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}

	_, err = m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if errors.Is(err, project.ErrProjectNotFound) {
		span.SetAttributes(attribute.Bool("found", false))
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	found, err := adapter.DeleteProject(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	if m.cache != nil {
		m.cache.Delete(id)
	}
	m.countOp(ctx, "delete")

	m.logger.Info("deleted project", zap.String("id", id))

	span.SetAttributes(attribute.Bool("found", found))
	return found, nil
}

// ListProjects returns one page of the project listing. Records the
// caller's tenant cannot access drop from the page like stale index
// entries; Total still counts them.
func (m *Manager) ListProjects(ctx context.Context, opts ListOptions) (*storage.ListResult, error) {
	ctx, span := m.tracer.Start(ctx, "project.list")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", opts.UserID),
		attribute.Int("limit", opts.Limit),
		attribute.Int("offset", opts.Offset),
	)

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}

	res, err := adapter.ListProjects(ctx, storage.ListFilter{
		UserID:        opts.UserID,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
		SortBy:        opts.SortBy,
		SortDirection: opts.SortDirection,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	caller := callerScope(ctx, opts.TenantID)
	kept := res.Projects[:0]
	for _, p := range res.Projects {
		if m.policy.Allow(p.TenantID, caller) {
			kept = append(kept, p)
		}
	}
	res.Projects = kept

	m.countOp(ctx, "list")

	span.SetAttributes(attribute.Int("result_count", len(res.Projects)))
	return res, nil
}

// GetProjectFiles returns the project's files after filtering. Deleted
// files are excluded unless IncludeDeleted is set.
func (m *Manager) GetProjectFiles(ctx context.Context, id string, filter FileFilter, tenantID string) ([]project.File, error) {
	ctx, span := m.tracer.Start(ctx, "project.files")
	defer span.End()

	span.SetAttributes(attribute.String("project_id", id))

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}

	var pattern *regexp.Regexp
	if filter.Pattern != "" {
		pattern, err = regexp.Compile(filter.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid path pattern: %v", project.ErrInvalidInput, err)
		}
	}

	p, err := m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	include := pathSet(filter.IncludePaths)
	exclude := pathSet(filter.ExcludePaths)

	files := make([]project.File, 0, len(p.Files))
	for _, f := range p.Files {
		if f.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if include != nil {
			if _, ok := include[f.Path]; !ok {
				continue
			}
		}
		if _, ok := exclude[f.Path]; ok {
			continue
		}
		if pattern != nil && !pattern.MatchString(f.Path) {
			continue
		}
		files = append(files, f)
	}

	m.countOp(ctx, "files")

	span.SetAttributes(attribute.Int("result_count", len(files)))
	return files, nil
}

func pathSet(paths []string) map[string]struct{} {
	if len(paths) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// AddRequirements appends one requirements entry. History is
// append-only; prior entries are never rewritten.
func (m *Manager) AddRequirements(ctx context.Context, id, content, userID string, additional bool, tenantID string) (*project.RequirementsEntry, error) {
	ctx, span := m.tracer.Start(ctx, "project.requirements.add")
	defer span.End()

	span.SetAttributes(
		attribute.String("project_id", id),
		attribute.Bool("additional", additional),
	)

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: blank requirements content", project.ErrInvalidInput)
	}

	p, err := m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := project.Now()
	entry := project.RequirementsEntry{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: now,
		UserID:    userID,
	}
	if additional {
		entry.Metadata = map[string]any{"additional": true}
	}

	p.Requirements = append(p.Requirements, entry)
	p.UpdatedAt = now

	if err := adapter.SaveProject(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.recache(p)
	m.countOp(ctx, "requirements.add")

	m.logger.Info("added requirements entry",
		zap.String("project_id", p.ID),
		zap.String("entry_id", entry.ID),
	)

	return &entry, nil
}

// AddDeployment appends one deployment entry, assigning its id and
// timestamp, and points currentDeploymentId at it.
func (m *Manager) AddDeployment(ctx context.Context, id string, input DeploymentInput, tenantID string) (*project.Deployment, error) {
	ctx, span := m.tracer.Start(ctx, "project.deployment.add")
	defer span.End()

	span.SetAttributes(
		attribute.String("project_id", id),
		attribute.String("provider", input.Provider),
	)

	adapter, err := m.current()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}

	p, err := m.fetch(ctx, adapter, id, callerScope(ctx, tenantID))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := project.Now()
	dep := project.Deployment{
		ID:           uuid.NewString(),
		URL:          input.URL,
		Provider:     input.Provider,
		Timestamp:    now,
		Status:       input.Status,
		ErrorMessage: input.ErrorMessage,
		Metadata:     input.Metadata,
	}

	p.Deployments = append(p.Deployments, dep)
	p.CurrentDeploymentID = dep.ID
	p.UpdatedAt = now

	if err := adapter.SaveProject(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	m.recache(p)
	m.countOp(ctx, "deployment.add")

	m.logger.Info("added deployment",
		zap.String("project_id", p.ID),
		zap.String("deployment_id", dep.ID),
		zap.String("provider", dep.Provider),
	)

	return &dep, nil
}

// CheckAccess is the administrative authorization probe: unlike read
// paths it distinguishes denial (ErrAccessDenied) from absence
// (ErrProjectNotFound). It reads the adapter directly so the answer is
// never shaped by cache state.
func (m *Manager) CheckAccess(ctx context.Context, id, tenantID string) error {
	ctx, span := m.tracer.Start(ctx, "project.access.check")
	defer span.End()

	span.SetAttributes(attribute.String("project_id", id))

	adapter, err := m.current()
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}

	p, err := adapter.GetProject(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if !m.policy.Allow(p.TenantID, callerScope(ctx, tenantID)) {
		span.SetAttributes(attribute.Bool("allowed", false))
		return fmt.Errorf("%w: project %s", project.ErrAccessDenied, id)
	}

	span.SetAttributes(attribute.Bool("allowed", true))
	return nil
}

// ProjectExists reports whether a record exists and is visible to the
// caller. A tenant-foreign record reads as absent.
func (m *Manager) ProjectExists(ctx context.Context, id, tenantID string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "project.exists")
	defer span.End()

	span.SetAttributes(attribute.String("project_id", id))

	adapter, err := m.current()
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%w: blank project id", project.ErrInvalidInput)
	}

	// Unscoped callers under the open policy see every record, so the
	// cheap existence probe suffices; scoped reads must hydrate the
	// record to check its scope.
	caller := callerScope(ctx, tenantID)
	if caller == "" && m.policy.Mode() == tenant.ModeOpen {
		ok, err := adapter.ProjectExists(ctx, id)
		if err != nil {
			span.RecordError(err)
			return false, err
		}
		span.SetAttributes(attribute.Bool("exists", ok))
		return ok, nil
	}

	_, err = m.fetch(ctx, adapter, id, caller)
	if errors.Is(err, project.ErrProjectNotFound) {
		span.SetAttributes(attribute.Bool("exists", false))
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("exists", true))
	return true, nil
}

// RefreshRuntime re-runs backend selection against a new runtime and
// swaps the adapter in. The cache is cleared and the previous adapter
// closed; in-flight operations finish against the adapter they started
// with.
func (m *Manager) RefreshRuntime(ctx context.Context, rt storage.Runtime) error {
	ctx, span := m.tracer.Start(ctx, "project.refresh")
	defer span.End()

	adapter, err := storage.Select(m.provider, rt, m.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if cerr := adapter.Close(); cerr != nil {
			m.logger.Warn("closing replacement backend failed", zap.Error(cerr))
		}
		return errors.New("manager is closed")
	}
	old := m.adapter
	m.adapter = adapter
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.Clear()
	}
	if old != nil {
		if err := old.Close(); err != nil {
			m.logger.Warn("closing previous backend failed", zap.Error(err))
		}
	}

	m.countOp(ctx, "refresh")

	m.logger.Info("storage backend refreshed", zap.String("backend", adapter.Name()))

	span.SetAttributes(attribute.String("backend", adapter.Name()))
	return nil
}

// Backend names the active storage backend.
func (m *Manager) Backend() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.adapter == nil {
		return ""
	}
	return m.adapter.Name()
}

// Close releases the adapter and the cache. Further operations fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.cache != nil {
		m.cache.Clear()
	}
	if m.adapter != nil {
		return m.adapter.Close()
	}
	return nil
}
