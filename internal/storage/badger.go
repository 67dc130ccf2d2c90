package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// BadgerConfig configures the embedded key-value backend.
type BadgerConfig struct {
	// Path is the database directory. Created if missing.
	Path string
	// InMemory runs Badger without touching disk. Tests only.
	InMemory bool
	// ChunkThreshold is the file size above which chunk counts are
	// recorded. Defaults to project.DefaultChunkThreshold.
	ChunkThreshold int
}

// Badger persists project records in an embedded Badger database.
// Records and the listing index are stored as enhanced JSON under the
// logical key layout; content stays inline because Badger has no
// practical value size limit for our records.
type Badger struct {
	db        *badger.DB
	threshold int
	logger    *zap.Logger
}

var _ Adapter = (*Badger)(nil)

// NewBadger opens or creates the database at cfg.Path.
func NewBadger(cfg BadgerConfig, logger *zap.Logger) (*Badger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.ChunkThreshold
	if threshold <= 0 {
		threshold = project.DefaultChunkThreshold
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, opError(BackendBadger, "open", "", fmt.Errorf("%w: badger path not configured", ErrUnavailable))
		}
		if err := os.MkdirAll(cfg.Path, 0700); err != nil {
			return nil, opError(BackendBadger, "open", cfg.Path, fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger's default logger prints straight to stderr; route it to
	// nothing and log through zap instead.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, opError(BackendBadger, "open", cfg.Path, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	logger.Debug("badger storage opened",
		zap.String("path", cfg.Path),
		zap.Bool("in_memory", cfg.InMemory),
	)
	return &Badger{db: db, threshold: threshold, logger: logger}, nil
}

func (b *Badger) SaveProject(_ context.Context, p *project.State) error {
	if p == nil || p.ID == "" {
		return opError(BackendBadger, "save", "", project.ErrInvalidInput)
	}

	record, err := encodeRecord(p, b.threshold)
	if err != nil {
		return opError(BackendBadger, "save", ProjectKey(p.ID), err)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(ProjectKey(p.ID)), record); err != nil {
			return err
		}

		entries, err := readIndexTxn(txn)
		if err != nil {
			return err
		}
		entries = UpsertIndexEntry(entries, IndexEntryFor(p))
		return writeIndexTxn(txn, entries)
	})
	return opError(BackendBadger, "save", ProjectKey(p.ID), err)
}

func (b *Badger) GetProject(_ context.Context, id string) (*project.State, error) {
	var record []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ProjectKey(id)))
		if err != nil {
			return err
		}
		record, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, opError(BackendBadger, "get", ProjectKey(id), project.ErrProjectNotFound)
	}
	if err != nil {
		return nil, opError(BackendBadger, "get", ProjectKey(id), err)
	}

	p, err := decodeRecord(record)
	if err != nil {
		return nil, opError(BackendBadger, "get", ProjectKey(id), err)
	}
	return p, nil
}

func (b *Badger) DeleteProject(_ context.Context, id string) (bool, error) {
	found := false
	err := b.db.Update(func(txn *badger.Txn) error {
		key := []byte(ProjectKey(id))
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true

		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := deletePrefixTxn(txn, []byte(FileChunkPrefix(id))); err != nil {
			return err
		}

		entries, err := readIndexTxn(txn)
		if err != nil {
			return err
		}
		return writeIndexTxn(txn, RemoveIndexEntry(entries, id))
	})
	if err != nil {
		return false, opError(BackendBadger, "delete", ProjectKey(id), err)
	}
	return found, nil
}

func (b *Badger) ProjectExists(_ context.Context, id string) (bool, error) {
	exists := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(ProjectKey(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, opError(BackendBadger, "exists", ProjectKey(id), err)
	}
	return exists, nil
}

func (b *Badger) ListProjects(ctx context.Context, f ListFilter) (*ListResult, error) {
	var entries []IndexEntry
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		entries, err = readIndexTxn(txn)
		return err
	})
	if err != nil {
		return nil, opError(BackendBadger, "list", indexKey, err)
	}

	entries = FilterIndexByUser(entries, f.UserID)
	SortIndex(entries, f.SortBy, f.SortDirection)

	result := &ListResult{Total: len(entries)}
	for _, e := range PageIndex(entries, f.Limit, f.Offset) {
		p, err := b.GetProject(ctx, e.ID)
		if errors.Is(err, project.ErrProjectNotFound) {
			b.logger.Warn("skipping stale index entry", zap.String("project_id", e.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Projects = append(result.Projects, p)
	}
	return result, nil
}

func (b *Badger) CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error) {
	p, err := project.NewState(opts)
	if err != nil {
		return nil, opError(BackendBadger, "create", "", err)
	}
	if err := b.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *Badger) Name() string {
	return BackendBadger
}

func (b *Badger) Close() error {
	if b.db == nil || b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// readIndexTxn loads the index inside txn, treating a missing key as
// an empty index.
func readIndexTxn(txn *badger.Txn) ([]IndexEntry, error) {
	item, err := txn.Get([]byte(indexKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeIndex(data)
}

func writeIndexTxn(txn *badger.Txn, entries []IndexEntry) error {
	data, err := encodeIndex(entries)
	if err != nil {
		return err
	}
	return txn.Set([]byte(indexKey), data)
}

// deletePrefixTxn removes every key under prefix. Keys are collected
// before deleting so the iterator never walks its own writes.
func deletePrefixTxn(txn *badger.Txn, prefix []byte) error {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.PrefetchValues = false

	it := txn.NewIterator(iterOpts)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// ensure the database directory is usable before the selector commits
// to the badger backend.
func probeBadgerDir(path string) error {
	if path == "" {
		return fmt.Errorf("badger path not configured")
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return err
	}
	probe := filepath.Join(path, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return err
	}
	return os.Remove(probe)
}
