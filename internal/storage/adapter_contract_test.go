package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// runAdapterContract exercises the behaviors every backend must share.
// Each subtest opens a fresh adapter so backends cannot leak state
// between assertions.
func runAdapterContract(t *testing.T, open func(t *testing.T) Adapter) {
	ctx := context.Background()

	t.Run("create and get round trip", func(t *testing.T) {
		a := open(t)

		created, err := a.CreateProject(ctx, project.CreateOptions{
			Name:                "web app",
			InitialRequirements: "ship the landing page",
			UserID:              "alice",
			TenantID:            "tenant-a",
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)

		loaded, err := a.GetProject(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, loaded)
		assert.Equal(t, "alice", loaded.OwnerID())
		require.Len(t, loaded.Requirements, 1)
		assert.Equal(t, "ship the landing page", loaded.Requirements[0].Content)
	})

	t.Run("create with blank name fails", func(t *testing.T) {
		a := open(t)

		_, err := a.CreateProject(ctx, project.CreateOptions{Name: "   "})
		require.Error(t, err)
		assert.True(t, errors.Is(err, project.ErrInvalidInput))
	})

	t.Run("save replaces the stored record", func(t *testing.T) {
		a := open(t)

		p := mustCreate(t, a, "original", "alice")
		p.Name = "renamed"
		p.Files = append(p.Files, project.File{
			Path:      "README.md",
			Content:   "# renamed\n",
			CreatedAt: p.UpdatedAt,
			UpdatedAt: p.UpdatedAt,
		})
		require.NoError(t, a.SaveProject(ctx, p))

		loaded, err := a.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", loaded.Name)
		require.Len(t, loaded.Files, 1)
		assert.Equal(t, "README.md", loaded.Files[0].Path)
	})

	t.Run("get missing returns not found", func(t *testing.T) {
		a := open(t)

		_, err := a.GetProject(ctx, "no-such-project")
		require.Error(t, err)
		assert.True(t, errors.Is(err, project.ErrProjectNotFound))

		var serr *Error
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, a.Name(), serr.Backend)
	})

	t.Run("exists", func(t *testing.T) {
		a := open(t)

		ok, err := a.ProjectExists(ctx, "nothing-here")
		require.NoError(t, err)
		assert.False(t, ok)

		p := mustCreate(t, a, "exists", "")
		ok, err = a.ProjectExists(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		a := open(t)

		p := mustCreate(t, a, "short lived", "")

		found, err := a.DeleteProject(ctx, p.ID)
		require.NoError(t, err)
		assert.True(t, found)

		found, err = a.DeleteProject(ctx, p.ID)
		require.NoError(t, err)
		assert.False(t, found, "second delete of the same id must report no record")

		_, err = a.GetProject(ctx, p.ID)
		assert.True(t, errors.Is(err, project.ErrProjectNotFound))

		res, err := a.ListProjects(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Zero(t, res.Total, "deleted record must leave the index")
	})

	t.Run("list filters sorts and pages", func(t *testing.T) {
		a := open(t)

		p1 := mustCreate(t, a, "one", "alice")
		p2 := mustCreate(t, a, "two", "bob")
		p3 := mustCreate(t, a, "three", "alice")

		// Pin timestamps so ordering assertions do not depend on
		// wall-clock resolution.
		setTimes(t, a, p1, 1000, 4000)
		setTimes(t, a, p2, 2000, 5000)
		setTimes(t, a, p3, 3000, 1500)

		all, err := a.ListProjects(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Equal(t, 3, all.Total)
		assert.Equal(t, []string{p3.ID, p2.ID, p1.ID}, projectIDs(all.Projects),
			"default order is createdAt descending")

		alice, err := a.ListProjects(ctx, ListFilter{UserID: "alice"})
		require.NoError(t, err)
		assert.Equal(t, 2, alice.Total)
		assert.Equal(t, []string{p3.ID, p1.ID}, projectIDs(alice.Projects))

		page, err := a.ListProjects(ctx, ListFilter{
			Limit:         1,
			Offset:        1,
			SortBy:        SortByCreatedAt,
			SortDirection: SortAsc,
		})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total, "total counts matches before pagination")
		assert.Equal(t, []string{p2.ID}, projectIDs(page.Projects))

		byUpdate, err := a.ListProjects(ctx, ListFilter{
			SortBy:        SortByUpdatedAt,
			SortDirection: SortDesc,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{p2.ID, p1.ID, p3.ID}, projectIDs(byUpdate.Projects))
	})

	t.Run("full record round trips", func(t *testing.T) {
		a := open(t)

		p := mustCreate(t, a, "kitchen sink", "alice")
		now := p.CreatedAt
		p.Files = []project.File{
			{Path: "src/app.ts", Content: "export {}\n", CreatedAt: now, UpdatedAt: now + 5},
			{Path: "old.txt", Content: "gone", CreatedAt: now, UpdatedAt: now, IsDeleted: true},
		}
		p.Requirements = append(p.Requirements, project.RequirementsEntry{
			ID:        "req-2",
			Content:   "add dark mode",
			Timestamp: now + 1,
			UserID:    "bob",
			Metadata:  map[string]any{"source": "review"},
		})
		p.Deployments = []project.Deployment{
			{
				ID:           "dep-1",
				URL:          "https://app.example.com",
				Provider:     "vercel",
				Timestamp:    now + 2,
				Status:       "succeeded",
				ErrorMessage: "",
				Metadata:     map[string]any{"region": "iad1"},
			},
		}
		p.CurrentDeploymentID = "dep-1"
		p.Webhooks = []project.Webhook{{URL: "https://hooks.example.com/x", Events: []string{"deploy"}}}
		p.Metadata["stage"] = "beta"
		require.NoError(t, a.SaveProject(ctx, p))

		loaded, err := a.GetProject(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p, loaded)
	})
}

func mustCreate(t *testing.T, a Adapter, name, userID string) *project.State {
	t.Helper()
	p, err := a.CreateProject(context.Background(), project.CreateOptions{Name: name, UserID: userID})
	require.NoError(t, err)
	return p
}

// setTimes rewrites a record with fixed timestamps so list ordering is
// deterministic in tests.
func setTimes(t *testing.T, a Adapter, p *project.State, created, updated int64) {
	t.Helper()
	p.CreatedAt = created
	p.UpdatedAt = updated
	require.NoError(t, a.SaveProject(context.Background(), p))
}

func projectIDs(projects []*project.State) []string {
	out := make([]string, len(projects))
	for i, p := range projects {
		out[i] = p.ID
	}
	return out
}
