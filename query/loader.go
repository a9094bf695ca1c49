// Package query answers the two lookups of the engine: datasets-of-domain
// and urls-of-(domain, dataset).
//
// The Loader is process-wide state with explicit init (server startup) and
// teardown (shutdown). Handlers receive an immutable version snapshot by
// reference; a request never mixes artifacts of different versions.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/blobstore"
	"github.com/hupe1980/urldex/cache"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/index"
	"github.com/hupe1980/urldex/internal/mmap"
	"github.com/hupe1980/urldex/store"
)

const (
	// defaultShardCacheBytes bounds the decoded postings-shard cache.
	defaultShardCacheBytes = 256 << 20
	// defaultPageCacheBytes bounds the row-group page cache.
	defaultPageCacheBytes = 512 << 20
)

// VersionState is one loaded, immutable index version.
type VersionState struct {
	Version    index.Version
	Dict       *index.DomainDict
	Resolver   *index.Resolver
	Membership *index.Membership
	Files      *index.FileRegistry
	Postings   *index.PostingsReader
}

type shardKey struct {
	version string
	shard   int
}

type pageKey struct {
	version  string
	fileID   core.FileID
	rowGroup int
}

// Loader owns the loaded version and the caches shared by all handlers.
type Loader struct {
	cfg    urldex.Config
	bs     blobstore.BlobStore
	reader *store.Reader
	logger *urldex.Logger

	mu    sync.RWMutex
	state *VersionState

	shardCache *cache.LRU[shardKey, *index.PostingsShard]
	pageCache  *cache.LRU[pageKey, []store.URLRecord]

	// quarantine records postings shards that failed corruption checks;
	// further requests fail fast instead of re-reading them. Every Load
	// resets it.
	qmu        sync.Mutex
	quarantine map[shardKey]error
}

// NewLoader creates a Loader over the columnar blob store.
func NewLoader(cfg urldex.Config, bs blobstore.BlobStore, logger *urldex.Logger) *Loader {
	if logger == nil {
		logger = urldex.NoopLogger()
	}
	return &Loader{
		cfg:    cfg,
		bs:     bs,
		reader: store.NewReader(bs),
		logger: logger,
		shardCache: cache.New[shardKey, *index.PostingsShard](defaultShardCacheBytes, func(s *index.PostingsShard) int64 {
			return s.SizeBytes()
		}),
		pageCache: cache.New[pageKey, []store.URLRecord](defaultPageCacheBytes, func(rows []store.URLRecord) int64 {
			var n int64
			for _, r := range rows {
				n += 32 + int64(len(r.Scheme)+len(r.Host)+len(r.PathQuery)+len(r.Domain))
			}
			return n
		}),
		quarantine: make(map[shardKey]error),
	}
}

// Load reads the manifest and loads the current version's artifacts. Call
// once at startup and again after an external rebuild.
func (l *Loader) Load(ctx context.Context) error {
	manifest, err := index.OpenManifest(l.cfg.BasePath)
	if err != nil {
		return err
	}
	v, ok := manifest.Current()
	if !ok {
		return fmt.Errorf("%w: no published version at %s", urldex.ErrVersionMissing, l.cfg.BasePath)
	}

	dict, err := index.LoadDomainDict(l.cfg.BasePath, v.Version)
	if err != nil {
		return err
	}

	resolver, err := index.LoadResolver(l.cfg.BasePath, v.Version, dict)
	if err != nil {
		return err
	}

	// The membership artifact is uncompressed and offset-indexed; map it
	// rather than reading it through the heap.
	membershipPath := index.ArtifactPath(l.cfg.BasePath, v.Version, index.MembershipFile)
	mapping, err := mmap.Open(membershipPath)
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	membership, err := index.DecodeMembership(membershipPath, mapping.Bytes())
	mapping.Close()
	if err != nil {
		return err
	}

	files, err := index.LoadFileRegistry(l.cfg.BasePath, v.Version)
	if err != nil {
		return err
	}

	shards := v.PostingsShard
	if shards == 0 {
		shards = l.cfg.PostingsShards
	}

	state := &VersionState{
		Version:    v,
		Dict:       dict,
		Resolver:   resolver,
		Membership: membership,
		Files:      files,
		Postings:   index.NewPostingsReader(l.cfg.BasePath, v.Version, shards),
	}

	l.mu.Lock()
	l.state = state
	l.mu.Unlock()

	l.qmu.Lock()
	l.quarantine = make(map[shardKey]error)
	l.qmu.Unlock()

	l.logger.InfoContext(ctx, "index version loaded",
		"version", v.Version,
		"domains", dict.Len(),
		"files", files.Len(),
	)
	return nil
}

// State returns the loaded version snapshot. Handlers hold it for the whole
// request; a concurrent Load does not affect them.
func (l *Loader) State() (*VersionState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == nil {
		return nil, urldex.ErrVersionMissing
	}
	return l.state, nil
}

// Close releases the loader: it drops the loaded version and purges both
// caches. Version snapshots hold no memory mappings.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = nil
	l.shardCache.Purge()
	l.pageCache.Purge()
	return nil
}

// shard returns a parsed postings shard through the cache. nil means the
// shard was never written.
func (l *Loader) shard(state *VersionState, shard int) (*index.PostingsShard, error) {
	key := shardKey{version: state.Version.Version, shard: shard}

	l.qmu.Lock()
	if err, bad := l.quarantine[key]; bad {
		l.qmu.Unlock()
		return nil, err
	}
	l.qmu.Unlock()

	if ps, ok := l.shardCache.Get(key); ok {
		return ps, nil
	}
	ps, err := state.Postings.Shard(shard)
	if err != nil {
		var corrupt *urldex.ErrArtifactCorrupt
		if errors.As(err, &corrupt) {
			l.qmu.Lock()
			l.quarantine[key] = err
			l.qmu.Unlock()
			l.logger.Error("postings shard quarantined", "version", key.version, "shard", key.shard, "error", err)
		}
		return nil, err
	}
	if ps != nil {
		l.shardCache.Set(key, ps)
	}
	return ps, nil
}

// page returns the decoded rows of one row group through the cache.
func (l *Loader) page(ctx context.Context, state *VersionState, fileID core.FileID, rowGroup int) ([]store.URLRecord, error) {
	key := pageKey{version: state.Version.Version, fileID: fileID, rowGroup: rowGroup}
	if rows, ok := l.pageCache.Get(key); ok {
		return rows, nil
	}

	entry, ok := state.Files.ByID(fileID)
	if !ok {
		return nil, fmt.Errorf("%w: file %d not in registry", urldex.ErrNotFound, fileID)
	}

	rows, err := l.reader.ReadRowGroup(ctx, store.BaseRelPath(entry.Path), rowGroup)
	if err != nil {
		return nil, err
	}
	l.pageCache.Set(key, rows)
	return rows, nil
}
