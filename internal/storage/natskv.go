package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/project"
)

// NATSConfig configures the shared key-value backend.
type NATSConfig struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222.
	URL string
	// Bucket is the JetStream key-value bucket. Created on first use.
	Bucket string
	// ChunkThreshold is the file size above which content is stored in
	// separate chunk records. NATS caps message payloads around 1 MiB,
	// so large file contents cannot ride inside the project document.
	ChunkThreshold int
}

// NATSKV persists project records in a NATS JetStream key-value
// bucket. Record and index keys follow the logical layout with ':'
// replaced by '.', since the KV key alphabet excludes ':'. File paths
// inside chunk keys are replaced by an xxh3 digest for the same
// reason.
type NATSKV struct {
	nc        *nats.Conn
	kv        nats.KeyValue
	bucket    string
	threshold int
	ownsConn  bool
	logger    *zap.Logger
}

var _ Adapter = (*NATSKV)(nil)

// NewNATSKV dials cfg.URL and binds the bucket. The connection is
// closed by Close.
func NewNATSKV(cfg NATSConfig, logger *zap.Logger) (*NATSKV, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("projectd"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, opError(BackendNATS, "connect", cfg.URL, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	adapter, err := NewNATSKVWithConn(nc, cfg, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}
	adapter.ownsConn = true
	return adapter, nil
}

// NewNATSKVWithConn binds the bucket on an existing connection, which
// the caller keeps ownership of.
func NewNATSKVWithConn(nc *nats.Conn, cfg NATSConfig, logger *zap.Logger) (*NATSKV, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "projectd_projects"
	}
	threshold := cfg.ChunkThreshold
	if threshold <= 0 {
		threshold = project.DefaultChunkThreshold
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, opError(BackendNATS, "jetstream", bucket, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "projectd project state",
			History:     1,
		})
	}
	if err != nil {
		return nil, opError(BackendNATS, "bind bucket", bucket, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	logger.Debug("nats kv storage bound",
		zap.String("bucket", bucket),
		zap.Int("chunk_threshold", threshold),
	)
	return &NATSKV{nc: nc, kv: kv, bucket: bucket, threshold: threshold, logger: logger}, nil
}

func (n *NATSKV) SaveProject(_ context.Context, p *project.State) error {
	if p == nil || p.ID == "" {
		return opError(BackendNATS, "save", "", project.ErrInvalidInput)
	}
	key := natsProjectKey(p.ID)

	// Chunk keys from the previous revision; anything not rewritten
	// below gets purged so shrunken files leave no orphans.
	stale, err := n.chunkKeysFor(p.ID)
	if err != nil {
		return opError(BackendNATS, "save", key, err)
	}

	enhanced := project.ToEnhancedWithThreshold(p, n.threshold)
	written := make(map[string]bool)
	for i := range enhanced.Files {
		f := &enhanced.Files[i]
		if f.Chunks == 0 {
			continue
		}
		chunks := SplitChunks([]byte(f.Content), n.threshold)
		for j, chunk := range chunks {
			chunkKey := natsChunkKey(p.ID, f.Path, j)
			if _, err := n.kv.Put(chunkKey, chunk); err != nil {
				return opError(BackendNATS, "save chunk", chunkKey, err)
			}
			written[chunkKey] = true
		}
		// The document keeps the metadata; content lives in chunks.
		f.Content = ""
	}

	doc, err := json.Marshal(enhanced)
	if err != nil {
		return opError(BackendNATS, "save", key, err)
	}
	if _, err := n.kv.Put(key, doc); err != nil {
		return opError(BackendNATS, "save", key, err)
	}

	for _, chunkKey := range stale {
		if written[chunkKey] {
			continue
		}
		if err := n.kv.Purge(chunkKey); err != nil {
			n.logger.Warn("failed to purge stale chunk",
				zap.String("key", chunkKey),
				zap.Error(err),
			)
		}
	}

	if err := n.updateIndex(func(entries []IndexEntry) []IndexEntry {
		return UpsertIndexEntry(entries, IndexEntryFor(p))
	}); err != nil {
		return opError(BackendNATS, "save index", key, err)
	}
	return nil
}

func (n *NATSKV) GetProject(_ context.Context, id string) (*project.State, error) {
	key := natsProjectKey(id)

	entry, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, opError(BackendNATS, "get", key, project.ErrProjectNotFound)
	}
	if err != nil {
		return nil, opError(BackendNATS, "get", key, err)
	}

	var enhanced project.Enhanced
	if err := json.Unmarshal(entry.Value(), &enhanced); err != nil {
		return nil, opError(BackendNATS, "get", key, err)
	}

	for i := range enhanced.Files {
		f := &enhanced.Files[i]
		if f.Chunks == 0 || f.Content != "" {
			continue
		}
		chunks := make([][]byte, 0, f.Chunks)
		for j := 0; j < f.Chunks; j++ {
			chunkKey := natsChunkKey(id, f.Path, j)
			chunkEntry, err := n.kv.Get(chunkKey)
			if err != nil {
				return nil, opError(BackendNATS, "get chunk", chunkKey,
					fmt.Errorf("chunk %d of %d missing for %s: %w", j, f.Chunks, f.Path, err))
			}
			chunks = append(chunks, chunkEntry.Value())
		}
		f.Content = string(JoinChunks(chunks))
	}

	return project.FromEnhanced(&enhanced), nil
}

func (n *NATSKV) DeleteProject(_ context.Context, id string) (bool, error) {
	key := natsProjectKey(id)

	_, err := n.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, opError(BackendNATS, "delete", key, err)
	}

	chunkKeys, err := n.chunkKeysFor(id)
	if err != nil {
		return false, opError(BackendNATS, "delete", key, err)
	}
	for _, chunkKey := range chunkKeys {
		if err := n.kv.Purge(chunkKey); err != nil {
			return false, opError(BackendNATS, "delete chunk", chunkKey, err)
		}
	}

	if err := n.kv.Purge(key); err != nil {
		return false, opError(BackendNATS, "delete", key, err)
	}

	if err := n.updateIndex(func(entries []IndexEntry) []IndexEntry {
		return RemoveIndexEntry(entries, id)
	}); err != nil {
		return false, opError(BackendNATS, "delete index", key, err)
	}
	return true, nil
}

func (n *NATSKV) ProjectExists(_ context.Context, id string) (bool, error) {
	_, err := n.kv.Get(natsProjectKey(id))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, opError(BackendNATS, "exists", natsProjectKey(id), err)
	}
	return true, nil
}

func (n *NATSKV) ListProjects(ctx context.Context, f ListFilter) (*ListResult, error) {
	entries, err := n.readIndex()
	if err != nil {
		return nil, opError(BackendNATS, "list", natsIndexKey, err)
	}

	entries = FilterIndexByUser(entries, f.UserID)
	SortIndex(entries, f.SortBy, f.SortDirection)

	result := &ListResult{Total: len(entries)}
	for _, e := range PageIndex(entries, f.Limit, f.Offset) {
		p, err := n.GetProject(ctx, e.ID)
		if errors.Is(err, project.ErrProjectNotFound) {
			n.logger.Warn("skipping stale index entry", zap.String("project_id", e.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		result.Projects = append(result.Projects, p)
	}
	return result, nil
}

func (n *NATSKV) CreateProject(ctx context.Context, opts project.CreateOptions) (*project.State, error) {
	p, err := project.NewState(opts)
	if err != nil {
		return nil, opError(BackendNATS, "create", "", err)
	}
	if err := n.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (n *NATSKV) Name() string {
	return BackendNATS
}

func (n *NATSKV) Close() error {
	if n.ownsConn && n.nc != nil && !n.nc.IsClosed() {
		n.nc.Close()
	}
	return nil
}

func (n *NATSKV) readIndex() ([]IndexEntry, error) {
	entry, err := n.kv.Get(natsIndexKey)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIndex(entry.Value())
}

func (n *NATSKV) updateIndex(mutate func([]IndexEntry) []IndexEntry) error {
	entries, err := n.readIndex()
	if err != nil {
		return err
	}
	data, err := encodeIndex(mutate(entries))
	if err != nil {
		return err
	}
	_, err = n.kv.Put(natsIndexKey, data)
	return err
}

// chunkKeysFor lists the chunk keys recorded in the stored revision of
// a project, reading just the document rather than scanning the
// bucket.
func (n *NATSKV) chunkKeysFor(id string) ([]string, error) {
	entry, err := n.kv.Get(natsProjectKey(id))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var enhanced project.Enhanced
	if err := json.Unmarshal(entry.Value(), &enhanced); err != nil {
		return nil, err
	}

	var keys []string
	for _, f := range enhanced.Files {
		for j := 0; j < f.Chunks; j++ {
			keys = append(keys, natsChunkKey(id, f.Path, j))
		}
	}
	return keys, nil
}

// NATS KV keys may only contain [-/_=.a-zA-Z0-9], so the logical ':'
// separator becomes '.' and file paths are digested.
const natsIndexKey = "projects.index"

func natsProjectKey(id string) string {
	return "project." + sanitizeNATSToken(id)
}

func natsChunkKey(projectID, path string, chunk int) string {
	return "file." + sanitizeNATSToken(projectID) + "." + pathDigest(path) + "." + strconv.Itoa(chunk)
}

func pathDigest(path string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(path))
}

// sanitizeNATSToken replaces characters outside the KV key alphabet.
// Project ids are UUIDs in practice, so this is normally a no-op.
func sanitizeNATSToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '=':
			return r
		default:
			return '_'
		}
	}, s)
}
