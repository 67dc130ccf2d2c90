package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/config"
)

func TestSelect_PinnedMemory(t *testing.T) {
	a, err := Select(config.ProviderMemory, Runtime{}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendMemory, a.Name())
}

func TestSelect_PinnedSQLite(t *testing.T) {
	rt := Runtime{SQLitePath: filepath.Join(t.TempDir(), "p.db")}
	a, err := Select(config.ProviderSQLite, rt, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendSQLite, a.Name())

	// The instrumented wrapper still behaves like the backend.
	p := mustCreate(t, a, "via selector", "")
	loaded, err := a.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestSelect_PinnedSQLiteWithoutPathFails(t *testing.T) {
	_, err := Select(config.ProviderSQLite, Runtime{}, nil)
	require.Error(t, err, "a pinned provider must surface its failure instead of falling back")
}

func TestSelect_PinnedBadger(t *testing.T) {
	rt := Runtime{BadgerPath: filepath.Join(t.TempDir(), "badger")}
	a, err := Select(config.ProviderBadger, rt, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendBadger, a.Name())
}

func TestSelect_PinnedNATSWithConn(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	rt := Runtime{NATSConn: nc, NATSBucket: "selector_projects"}
	a, err := Select(config.ProviderNATS, rt, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendNATS, a.Name())
}

func TestSelect_UnknownProvider(t *testing.T) {
	_, err := Select("redis", Runtime{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage provider")
}

func TestSelect_AutoFallsBackToMemory(t *testing.T) {
	a, err := Select(config.ProviderAuto, Runtime{}, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendMemory, a.Name())
}

func TestSelect_AutoPrefersSQLite(t *testing.T) {
	rt := Runtime{
		SQLitePath: filepath.Join(t.TempDir(), "p.db"),
		BadgerPath: filepath.Join(t.TempDir(), "badger"),
	}
	a, err := Select(config.ProviderAuto, rt, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendSQLite, a.Name())
}

func TestSelect_AutoSkipsBrokenSQLite(t *testing.T) {
	// Point sqlite at a directory path so opening fails, leaving
	// badger as the best available backend.
	dir := t.TempDir()
	rt := Runtime{
		SQLitePath: dir,
		BadgerPath: filepath.Join(t.TempDir(), "badger"),
	}
	a, err := Select(config.ProviderAuto, rt, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, BackendBadger, a.Name())
}

func TestRuntimeFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLite.Path = "~/data/p.db"
	cfg.Storage.NATS.URL = "nats://localhost:4222"
	cfg.Storage.Badger.Path = "/var/lib/projectd"

	rt := RuntimeFromConfig(cfg)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "p.db"), rt.SQLitePath)
	assert.Equal(t, "nats://localhost:4222", rt.NATSURL)
	assert.Equal(t, "/var/lib/projectd", rt.BadgerPath)
	assert.Equal(t, cfg.Storage.ChunkThresholdBytes, rt.ChunkThreshold)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x"), ExpandHome("~/x"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "", ExpandHome(""))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"), "other users' homes are not expanded")
}
