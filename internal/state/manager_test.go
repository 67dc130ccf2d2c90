package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/config"
	"github.com/fyrsmithlabs/projectd/internal/project"
	"github.com/fyrsmithlabs/projectd/internal/storage"
	"github.com/fyrsmithlabs/projectd/internal/tenant"
)

func testConfig(mode string) *config.Config {
	cfg := &config.Config{}
	cfg.Storage.Provider = config.ProviderMemory
	cfg.Storage.ChunkThresholdBytes = project.DefaultChunkThreshold
	cfg.Tenancy.Mode = mode
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = config.Duration(30 * time.Second)
	cfg.Cache.MaxEntries = 64
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	return cfg
}

func newTestManager(t *testing.T) (*Manager, *storage.Memory) {
	t.Helper()
	return newTestManagerMode(t, tenant.ModeOpen)
}

func newTestManagerMode(t *testing.T, mode string) (*Manager, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	m, err := NewManagerWithAdapter(mem, testConfig(mode), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, mem
}

func mustCreate(t *testing.T, m *Manager, opts project.CreateOptions) *project.State {
	t.Helper()
	p, err := m.CreateProject(context.Background(), opts)
	require.NoError(t, err)
	return p
}

func TestNewManager_MemoryProvider(t *testing.T) {
	m, err := NewManager(testConfig(tenant.ModeOpen), storage.Runtime{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.Equal(t, storage.BackendMemory, m.Backend())
}

func TestNewManager_UnsupportedProvider(t *testing.T) {
	cfg := testConfig(tenant.ModeOpen)
	cfg.Storage.Provider = "redis"

	_, err := NewManager(cfg, storage.Runtime{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage provider")
}

func TestNewManagerWithAdapter_Validation(t *testing.T) {
	_, err := NewManagerWithAdapter(nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage adapter is required")

	_, err = NewManagerWithAdapter(storage.NewMemory(), testConfig("mixed"), zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tenancy mode")
}

func TestManager_CreateProject(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	p, err := m.CreateProject(ctx, project.CreateOptions{
		Name:                "api service",
		InitialRequirements: "needs a health endpoint",
		UserID:              "user-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Empty(t, p.Files)
	require.Len(t, p.Requirements, 1)
	assert.Equal(t, "needs a health endpoint", p.Requirements[0].Content)
	assert.Equal(t, "user-1", p.Requirements[0].UserID)
	assert.Equal(t, "user-1", p.OwnerID())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)

	bare, err := m.CreateProject(ctx, project.CreateOptions{Name: "bare"})
	require.NoError(t, err)
	assert.Empty(t, bare.Requirements)

	_, err = m.CreateProject(ctx, project.CreateOptions{Name: "   "})
	assert.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestManager_GetProject_Validation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.GetProject(ctx, "missing", "")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	_, err = m.GetProject(ctx, "   ", "")
	assert.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestManager_UpdateProject_FileUpsertKeepsCreatedAt(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "upsert"})

	res, err := m.AddFiles(ctx, p.ID, map[string]string{"a.txt": "x"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.NewFiles)
	assert.Empty(t, res.UpdatedFiles)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	first := got.Files[0]

	res, err = m.UpdateProject(ctx, p.ID, UpdateOptions{
		UpdatedFiles: map[string]string{"a.txt": "y"},
	}, "")
	require.NoError(t, err)
	assert.Empty(t, res.NewFiles)
	assert.Equal(t, []string{"a.txt"}, res.UpdatedFiles)

	got, err = m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "y", got.Files[0].Content)
	assert.Equal(t, first.CreatedAt, got.Files[0].CreatedAt)
	assert.GreaterOrEqual(t, got.Files[0].UpdatedAt, first.UpdatedAt)
}

func TestManager_UpdateProject_SoftDeleteRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "soft delete"})

	_, err := m.AddFiles(ctx, p.ID, map[string]string{"notes.md": "draft"}, "")
	require.NoError(t, err)

	res, err := m.UpdateProject(ctx, p.ID, UpdateOptions{
		DeletedFiles: []string{"notes.md", "absent.md"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md"}, res.DeletedFiles)

	files, err := m.GetProjectFiles(ctx, p.ID, FileFilter{}, "")
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = m.GetProjectFiles(ctx, p.ID, FileFilter{IncludeDeleted: true}, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].IsDeleted)

	// Deleting an already-deleted path is a no-op.
	res, err = m.UpdateProject(ctx, p.ID, UpdateOptions{DeletedFiles: []string{"notes.md"}}, "")
	require.NoError(t, err)
	assert.Empty(t, res.DeletedFiles)
}

func TestManager_UpdateProject_RecreateDeletedPath(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "recreate"})

	_, err := m.AddFiles(ctx, p.ID, map[string]string{"a.txt": "first life"}, "")
	require.NoError(t, err)
	_, err = m.UpdateProject(ctx, p.ID, UpdateOptions{DeletedFiles: []string{"a.txt"}}, "")
	require.NoError(t, err)

	// Re-adding the path is a fresh file, not a resurrection.
	res, err := m.AddFiles(ctx, p.ID, map[string]string{"a.txt": "second life"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.NewFiles)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Files, 2)
	assert.True(t, got.Files[0].IsDeleted)
	assert.Equal(t, "first life", got.Files[0].Content)

	live := got.FileAt("a.txt")
	require.NotEqual(t, -1, live)
	assert.Equal(t, "second life", got.Files[live].Content)
}

func TestManager_UpdateProject_Rename(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "before"})

	res, err := m.UpdateProject(ctx, p.ID, UpdateOptions{Name: "after"}, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "after", res.Project.Name)

	_, err = m.UpdateProject(ctx, p.ID, UpdateOptions{Name: "   "}, "")
	assert.ErrorIs(t, err, project.ErrInvalidInput)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
}

func TestManager_UpdateProject_MetadataShallowMerge(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{
		Name:     "meta",
		UserID:   "owner-1",
		Metadata: map[string]any{"env": "dev"},
	})

	_, err := m.UpdateProject(ctx, p.ID, UpdateOptions{
		Metadata: map[string]any{"env": "prod", "region": "eu"},
	}, "")
	require.NoError(t, err)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "prod", got.Metadata["env"])
	assert.Equal(t, "eu", got.Metadata["region"])
	assert.Equal(t, "owner-1", got.OwnerID(), "unrelated keys survive the merge")
}

func TestManager_UpdateProject_WebhookReplacement(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "hooks"})

	_, err := m.UpdateProject(ctx, p.ID, UpdateOptions{Webhooks: []project.Webhook{
		{URL: "https://a.example/hook", Events: []string{"deploy"}},
		{URL: "https://b.example/hook"},
	}}, "")
	require.NoError(t, err)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, got.Webhooks, 2)

	// A non-nil slice replaces wholesale.
	_, err = m.UpdateProject(ctx, p.ID, UpdateOptions{Webhooks: []project.Webhook{
		{URL: "https://c.example/hook"},
	}}, "")
	require.NoError(t, err)

	got, err = m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Webhooks, 1)
	assert.Equal(t, "https://c.example/hook", got.Webhooks[0].URL)

	// Nil leaves webhooks untouched.
	_, err = m.UpdateProject(ctx, p.ID, UpdateOptions{Name: "kept"}, "")
	require.NoError(t, err)

	got, err = m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, got.Webhooks, 1)

	// An empty non-nil slice clears.
	_, err = m.UpdateProject(ctx, p.ID, UpdateOptions{Webhooks: []project.Webhook{}}, "")
	require.NoError(t, err)

	got, err = m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Empty(t, got.Webhooks)
}

func TestManager_AddFiles(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "files"})

	_, err := m.AddFiles(ctx, p.ID, nil, "")
	assert.ErrorIs(t, err, project.ErrInvalidInput)

	res, err := m.AddFiles(ctx, p.ID, map[string]string{
		"b/main.go": "package b",
		"a/main.go": "package a",
	}, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"a/main.go", "b/main.go"}, res.NewFiles, "new paths insert in sorted order")

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Files, 2)
	assert.Equal(t, "a/main.go", got.Files[0].Path)
	assert.Equal(t, "b/main.go", got.Files[1].Path)
}

func TestManager_ListProjects_SortLimitTotal(t *testing.T) {
	m, mem := newTestManager(t)
	ctx := context.Background()

	base := project.Now()
	var ids []string
	for i := 0; i < 3; i++ {
		p := mustCreate(t, m, project.CreateOptions{
			Name:   fmt.Sprintf("proj-%d", i),
			UserID: "lister",
		})
		// Pin distinct timestamps; CreateProject stamps wall-clock time.
		p.CreatedAt = base + int64(i+1)*1000
		p.UpdatedAt = p.CreatedAt
		require.NoError(t, mem.SaveProject(ctx, p))
		ids = append(ids, p.ID)
	}
	mustCreate(t, m, project.CreateOptions{Name: "foreign", UserID: "someone-else"})

	res, err := m.ListProjects(ctx, ListOptions{UserID: "lister", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Projects, 2)
	assert.Equal(t, ids[2], res.Projects[0].ID, "default sort is createdAt descending")
	assert.Equal(t, ids[1], res.Projects[1].ID)

	res, err = m.ListProjects(ctx, ListOptions{
		UserID:        "lister",
		SortBy:        storage.SortByCreatedAt,
		SortDirection: storage.SortAsc,
		Limit:         2,
		Offset:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Projects, 2)
	assert.Equal(t, ids[1], res.Projects[0].ID)
	assert.Equal(t, ids[2], res.Projects[1].ID)
}

func TestManager_DeleteProject_Idempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "doomed"})

	found, err := m.DeleteProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = m.DeleteProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = m.GetProject(ctx, p.ID, "")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestManager_AddRequirements_AppendOnly(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{
		Name:                "req",
		InitialRequirements: "v1",
		UserID:              "u-1",
	})

	entry, err := m.AddRequirements(ctx, p.ID, "v2", "u-1", false, "")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Nil(t, entry.Metadata)

	additional, err := m.AddRequirements(ctx, p.ID, "also export reports", "u-2", true, "")
	require.NoError(t, err)
	assert.Equal(t, true, additional.Metadata["additional"])

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Requirements, 3)
	assert.Equal(t, "v1", got.Requirements[0].Content, "prior entries stay untouched")
	assert.Equal(t, "v2", got.Requirements[1].Content)
	assert.Equal(t, "also export reports", got.Requirements[2].Content)
	assert.Equal(t, "u-2", got.Requirements[2].UserID)

	_, err = m.AddRequirements(ctx, p.ID, "   ", "u-1", false, "")
	assert.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestManager_AddDeployment(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "deploys"})

	first, err := m.AddDeployment(ctx, p.ID, DeploymentInput{
		URL:      "https://app.example.dev",
		Provider: "vercel",
		Status:   "deployed",
	}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.NotZero(t, first.Timestamp)

	second, err := m.AddDeployment(ctx, p.ID, DeploymentInput{
		URL:          "https://app-v2.example.dev",
		Provider:     "vercel",
		Status:       "failed",
		ErrorMessage: "build exceeded memory limit",
	}, "")
	require.NoError(t, err)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	require.Len(t, got.Deployments, 2)
	assert.Equal(t, first.ID, got.Deployments[0].ID)
	assert.Equal(t, second.ID, got.CurrentDeploymentID)
	assert.Equal(t, "build exceeded memory limit", got.Deployments[1].ErrorMessage)
}

func TestManager_GetProjectFiles_Filters(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "filtered"})

	_, err := m.AddFiles(ctx, p.ID, map[string]string{
		"src/main.go":    "package main",
		"src/util.go":    "package main",
		"docs/readme.md": "# readme",
	}, "")
	require.NoError(t, err)

	files, err := m.GetProjectFiles(ctx, p.ID, FileFilter{Pattern: `\.go$`}, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = m.GetProjectFiles(ctx, p.ID, FileFilter{IncludePaths: []string{"docs/readme.md"}}, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "docs/readme.md", files[0].Path)

	files, err = m.GetProjectFiles(ctx, p.ID, FileFilter{ExcludePaths: []string{"src/util.go"}}, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	_, err = m.GetProjectFiles(ctx, p.ID, FileFilter{Pattern: "(("}, "")
	assert.ErrorIs(t, err, project.ErrInvalidInput)
}

func TestManager_TenantIsolation_OpenPolicy(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	scoped := mustCreate(t, m, project.CreateOptions{Name: "scoped", TenantID: "t1"})
	unscoped := mustCreate(t, m, project.CreateOptions{Name: "unscoped"})

	_, err := m.GetProject(ctx, scoped.ID, "t1")
	assert.NoError(t, err)

	// Unscoped callers are administrative under the open policy.
	_, err = m.GetProject(ctx, scoped.ID, "")
	assert.NoError(t, err)

	// A different scope reads as absent, not denied.
	_, err = m.GetProject(ctx, scoped.ID, "t2")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	// Unscoped records are readable by every caller.
	_, err = m.GetProject(ctx, unscoped.ID, "t1")
	assert.NoError(t, err)

	// The context carries the scope when the argument is empty.
	_, err = m.GetProject(tenant.ContextWithTenant(ctx, "t2"), scoped.ID, "")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	_, err = m.GetProject(tenant.ContextWithTenant(ctx, "t1"), scoped.ID, "")
	assert.NoError(t, err)
}

func TestManager_TenantIsolation_StrictPolicy(t *testing.T) {
	m, _ := newTestManagerMode(t, tenant.ModeStrict)
	ctx := context.Background()

	scoped := mustCreate(t, m, project.CreateOptions{Name: "scoped", TenantID: "t1"})
	unscoped := mustCreate(t, m, project.CreateOptions{Name: "unscoped"})

	_, err := m.GetProject(ctx, scoped.ID, "t1")
	assert.NoError(t, err)

	// Strict mode has no administrative unscoped caller.
	_, err = m.GetProject(ctx, scoped.ID, "")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	// Scoped callers cannot see unscoped records either.
	_, err = m.GetProject(ctx, unscoped.ID, "t1")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	_, err = m.GetProject(ctx, unscoped.ID, "")
	assert.NoError(t, err)
}

func TestManager_DeleteProject_TenantForeign(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "guarded", TenantID: "t1"})

	// Foreign scope deletes behave as absent and leave the record alone.
	found, err := m.DeleteProject(ctx, p.ID, "t2")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = m.GetProject(ctx, p.ID, "t1")
	assert.NoError(t, err)
}

func TestManager_ListProjects_TenantFilter(t *testing.T) {
	m, _ := newTestManagerMode(t, tenant.ModeStrict)
	ctx := context.Background()

	mustCreate(t, m, project.CreateOptions{Name: "mine", UserID: "shared", TenantID: "t1"})
	mustCreate(t, m, project.CreateOptions{Name: "theirs", UserID: "shared", TenantID: "t2"})

	res, err := m.ListProjects(ctx, ListOptions{UserID: "shared", TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total, "total counts matches before the policy pass")
	require.Len(t, res.Projects, 1)
	assert.Equal(t, "t1", res.Projects[0].TenantID)
}

func TestManager_CheckAccess(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "checked", TenantID: "t1"})

	assert.NoError(t, m.CheckAccess(ctx, p.ID, "t1"))
	assert.NoError(t, m.CheckAccess(ctx, p.ID, ""))

	err := m.CheckAccess(ctx, p.ID, "t2")
	assert.ErrorIs(t, err, project.ErrAccessDenied)

	err = m.CheckAccess(ctx, "missing", "t1")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
	assert.NotErrorIs(t, err, project.ErrAccessDenied)
}

func TestManager_ProjectExists(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "exists", TenantID: "t1"})

	ok, err := m.ProjectExists(ctx, p.ID, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ProjectExists(ctx, p.ID, "t2")
	require.NoError(t, err)
	assert.False(t, ok, "foreign records read as absent")

	ok, err = m.ProjectExists(ctx, "missing", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_CacheServesReads(t *testing.T) {
	m, mem := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "cached"})

	// Write around the manager; the cached copy still serves reads.
	direct := p.Clone()
	direct.Name = "changed behind the cache"
	require.NoError(t, mem.SaveProject(ctx, direct))

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Name)

	// Dropping the entry sends the next read to the backend.
	m.cache.Delete(p.ID)
	got, err = m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "changed behind the cache", got.Name)
}

func TestManager_CacheExpiry(t *testing.T) {
	cfg := testConfig(tenant.ModeOpen)
	cfg.Cache.TTL = config.Duration(10 * time.Millisecond)
	mem := storage.NewMemory()
	m, err := NewManagerWithAdapter(mem, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "stale"})

	direct := p.Clone()
	direct.Name = "fresh"
	require.NoError(t, mem.SaveProject(ctx, direct))

	time.Sleep(25 * time.Millisecond)

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name)
}

func TestManager_CacheDisabled(t *testing.T) {
	cfg := testConfig(tenant.ModeOpen)
	cfg.Cache.Enabled = false
	mem := storage.NewMemory()
	m, err := NewManagerWithAdapter(mem, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.Nil(t, m.cache)

	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "uncached"})

	direct := p.Clone()
	direct.Name = "direct"
	require.NoError(t, mem.SaveProject(ctx, direct))

	got, err := m.GetProject(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "direct", got.Name)
}

func TestManager_DeniedRecordsNotCached(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	p := mustCreate(t, m, project.CreateOptions{Name: "private", TenantID: "t1"})
	m.cache.Clear()

	_, err := m.GetProject(ctx, p.ID, "t2")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
	assert.Equal(t, 0, m.cache.Len(), "a denied read must not populate the cache")

	_, err = m.GetProject(ctx, p.ID, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.cache.Len())
}

func TestManager_RefreshRuntime(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	p := mustCreate(t, m, project.CreateOptions{Name: "pre-refresh"})

	require.NoError(t, m.RefreshRuntime(ctx, storage.Runtime{}))
	assert.Equal(t, storage.BackendMemory, m.Backend())

	// The replacement backend starts empty, and the swap cleared the
	// cache, so the old record is gone rather than served stale.
	_, err := m.GetProject(ctx, p.ID, "")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestManager_Close(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.CreateProject(context.Background(), project.CreateOptions{Name: "late"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	_, err = m.GetProject(context.Background(), "id", "")
	require.Error(t, err)

	err = m.RefreshRuntime(context.Background(), storage.Runtime{})
	require.Error(t, err)
}
