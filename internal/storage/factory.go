package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/config"
)

// Runtime carries the capabilities the selector probes: paths,
// endpoints, and optionally a pre-established NATS connection. It is
// normally derived from config, with the connection injected by the
// process that owns it.
type Runtime struct {
	SQLitePath     string
	NATSURL        string
	NATSConn       *nats.Conn
	NATSBucket     string
	BadgerPath     string
	ChunkThreshold int
}

// RuntimeFromConfig derives a Runtime from the storage section,
// expanding ~ in filesystem paths.
func RuntimeFromConfig(cfg *config.Config) Runtime {
	return Runtime{
		SQLitePath:     ExpandHome(cfg.Storage.SQLite.Path),
		NATSURL:        cfg.Storage.NATS.URL,
		NATSBucket:     cfg.Storage.NATS.Bucket,
		BadgerPath:     ExpandHome(cfg.Storage.Badger.Path),
		ChunkThreshold: cfg.Storage.ChunkThresholdBytes,
	}
}

// Select creates the storage backend for provider.
//
// A pinned provider ("sqlite", "nats", "badger", "memory") surfaces
// construction errors to the caller. "auto" (or empty) walks the
// priority order sqlite, nats, badger, memory, logging and skipping
// backends whose capability is missing or fails to open. Memory always
// succeeds, so auto selection cannot fail.
//
// The returned adapter is instrumented; operation counts and latency
// land under the projectd_storage metrics namespace.
func Select(provider string, rt Runtime, logger *zap.Logger) (Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var adapter Adapter
	var err error

	switch provider {
	case config.ProviderAuto, "":
		adapter = selectAuto(rt, logger)

	case config.ProviderSQLite:
		adapter, err = newSQLiteFromRuntime(rt, logger)

	case config.ProviderNATS:
		adapter, err = newNATSFromRuntime(rt, logger)

	case config.ProviderBadger:
		adapter, err = NewBadger(BadgerConfig{Path: rt.BadgerPath, ChunkThreshold: rt.ChunkThreshold}, logger)

	case config.ProviderMemory:
		adapter = NewMemory()

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s (supported: auto, sqlite, nats, badger, memory)", provider)
	}

	if err != nil {
		return nil, err
	}

	logger.Info("storage backend selected", zap.String("backend", adapter.Name()))
	markSelected(adapter.Name())
	return WithMetrics(adapter), nil
}

func selectAuto(rt Runtime, logger *zap.Logger) Adapter {
	if rt.SQLitePath != "" {
		adapter, err := newSQLiteFromRuntime(rt, logger)
		if err == nil {
			return adapter
		}
		logger.Warn("sqlite backend unavailable, trying next", zap.Error(err))
	}

	if rt.NATSConn != nil || rt.NATSURL != "" {
		adapter, err := newNATSFromRuntime(rt, logger)
		if err == nil {
			return adapter
		}
		logger.Warn("nats backend unavailable, trying next", zap.Error(err))
	}

	if rt.BadgerPath != "" {
		if err := probeBadgerDir(rt.BadgerPath); err != nil {
			logger.Warn("badger directory unusable, trying next", zap.Error(err))
		} else if adapter, err := NewBadger(BadgerConfig{Path: rt.BadgerPath, ChunkThreshold: rt.ChunkThreshold}, logger); err == nil {
			return adapter
		} else {
			logger.Warn("badger backend unavailable, trying next", zap.Error(err))
		}
	}

	logger.Warn("no persistent backend available, falling back to memory")
	return NewMemory()
}

func newSQLiteFromRuntime(rt Runtime, logger *zap.Logger) (Adapter, error) {
	return NewSQLite(SQLiteConfig{Path: rt.SQLitePath, ChunkThreshold: rt.ChunkThreshold}, logger)
}

func newNATSFromRuntime(rt Runtime, logger *zap.Logger) (Adapter, error) {
	cfg := NATSConfig{URL: rt.NATSURL, Bucket: rt.NATSBucket, ChunkThreshold: rt.ChunkThreshold}
	if rt.NATSConn != nil {
		return NewNATSKVWithConn(rt.NATSConn, cfg, logger)
	}
	return NewNATSKV(cfg, logger)
}

// ExpandHome resolves a leading ~ or ~/ against the user home
// directory, leaving other paths untouched.
func ExpandHome(path string) string {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
