package index

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/blobstore"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Builder orchestrates building all index components of a version:
// dictionary, resolver, file registry, membership, postings, manifest.
//
// Builds never mutate a published version; on error the manifest keeps
// pointing at the prior version and the partial directory is left on disk.
// GC removes only directories of versions recorded in the manifest, so it
// does not clean up such unpublished directories.
type Builder struct {
	cfg      urldex.Config
	bs       blobstore.BlobStore
	reader   *store.Reader
	logger   *urldex.Logger
	metrics  urldex.MetricsCollector
	progress rate.Sometimes
}

// NewBuilder creates a Builder over the columnar store.
func NewBuilder(cfg urldex.Config, bs blobstore.BlobStore, logger *urldex.Logger, metrics urldex.MetricsCollector) *Builder {
	if logger == nil {
		logger = urldex.NoopLogger()
	}
	if metrics == nil {
		metrics = urldex.NoopMetricsCollector{}
	}
	return &Builder{
		cfg:      cfg,
		bs:       bs,
		reader:   store.NewReader(bs),
		logger:   logger,
		metrics:  metrics,
		progress: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// fileScan is the per-file result of the scan phase.
type fileScan struct {
	fileID    core.FileID
	datasetID core.DatasetID
	rowGroups []store.RowGroupDomains
}

// Build runs a full build: disregard any previous version, scan everything.
func (b *Builder) Build(ctx context.Context) (string, error) {
	started := time.Now()
	version, err := b.buildFull(ctx)
	b.metrics.RecordBuild(false, time.Since(started), err)
	return version, err
}

func (b *Builder) buildFull(ctx context.Context) (string, error) {
	version := newVersionName()

	paths, err := b.listPartPaths(ctx)
	if err != nil {
		return "", err
	}

	fr, err := BuildFileRegistry(paths)
	if err != nil {
		return "", err
	}

	scans, err := b.scanFiles(ctx, fr, paths)
	if err != nil {
		return "", err
	}

	observed := make(map[string]struct{})
	for _, scan := range scans {
		for _, rg := range scan.rowGroups {
			for _, domain := range rg.Domains {
				observed[domain] = struct{}{}
			}
		}
	}
	dict := BuildDomainDict(observed)

	membership := NewMembership(dict.Len())
	postings := NewPostingsBuilder(b.cfg.PostingsShards)
	b.applyScans(dict, membership, postings, scans)

	if err := b.writeVersion(version, dict, fr, membership, postings); err != nil {
		return "", err
	}
	return version, b.publish(ctx, version)
}

// BuildIncremental builds a new version from the previous one plus any new
// part files. With no previous version it delegates to a full build; with
// no new files it returns the previous version unchanged.
func (b *Builder) BuildIncremental(ctx context.Context) (string, error) {
	started := time.Now()
	version, err := b.buildIncremental(ctx)
	b.metrics.RecordBuild(true, time.Since(started), err)
	return version, err
}

func (b *Builder) buildIncremental(ctx context.Context) (string, error) {
	manifest, err := OpenManifest(b.cfg.BasePath)
	if err != nil {
		return "", err
	}
	prev, ok := manifest.Current()
	if !ok {
		b.logger.InfoContext(ctx, "no previous version, running full build")
		return b.buildFull(ctx)
	}

	version := newVersionName()

	fr, err := LoadFileRegistry(b.cfg.BasePath, prev.Version)
	if err != nil {
		return "", err
	}

	paths, err := b.listPartPaths(ctx)
	if err != nil {
		return "", err
	}
	novel, err := fr.Extend(paths)
	if err != nil {
		return "", err
	}
	if len(novel) == 0 {
		b.logger.InfoContext(ctx, "no new files, keeping previous version", "version", prev.Version)
		return prev.Version, nil
	}
	b.logger.InfoContext(ctx, "incremental build", "new_files", len(novel), "version", version)

	scans, err := b.scanFiles(ctx, fr, novel)
	if err != nil {
		return "", err
	}

	dict, err := LoadDomainDict(b.cfg.BasePath, prev.Version)
	if err != nil {
		return "", err
	}
	observed := make(map[string]struct{})
	for _, scan := range scans {
		for _, rg := range scan.rowGroups {
			for _, domain := range rg.Domains {
				observed[domain] = struct{}{}
			}
		}
	}
	dict.Append(observed)

	membership, err := LoadMembership(b.cfg.BasePath, prev.Version)
	if err != nil {
		return "", err
	}
	membership.Grow(dict.Len())

	postings := NewPostingsBuilder(b.cfg.PostingsShards)
	prevShards := prev.PostingsShard
	if prevShards == 0 {
		prevShards = b.cfg.PostingsShards
	}
	if err := postings.Seed(NewPostingsReader(b.cfg.BasePath, prev.Version, prevShards)); err != nil {
		return "", err
	}

	b.applyScans(dict, membership, postings, scans)

	if err := b.writeVersion(version, dict, fr, membership, postings); err != nil {
		return "", err
	}
	return version, b.publish(ctx, version)
}

// listPartPaths enumerates part files under urls/, returning registry
// (urls/-relative) paths.
func (b *Builder) listPartPaths(ctx context.Context) ([]string, error) {
	names, err := b.bs.List(ctx, store.URLsRoot+"/")
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, name := range names {
		if _, _, ok := store.ParsePartPath(name); ok {
			paths = append(paths, store.RegistryRelPath(name))
		}
	}
	return paths, nil
}

// scanFiles reads the domain column of every row group of the given files,
// in parallel.
func (b *Builder) scanFiles(ctx context.Context, fr *FileRegistry, paths []string) ([]fileScan, error) {
	var (
		mu    sync.Mutex
		scans = make([]fileScan, 0, len(paths))
		done  int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, relPath := range paths {
		g.Go(func() error {
			fileID, ok := fr.ByPath(relPath)
			if !ok {
				return fmt.Errorf("file not in registry: %s", relPath)
			}
			entry, _ := fr.ByID(fileID)

			rowGroups, err := b.reader.ScanDomains(ctx, store.BaseRelPath(relPath))
			if err != nil {
				return fmt.Errorf("scan %s: %w", relPath, err)
			}

			mu.Lock()
			scans = append(scans, fileScan{
				fileID:    fileID,
				datasetID: entry.DatasetID,
				rowGroups: rowGroups,
			})
			done++
			b.progress.Do(func() {
				b.logger.InfoContext(ctx, "scanning part files", "done", done, "total", len(paths))
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scans, nil
}

// applyScans feeds scan results into membership and postings.
func (b *Builder) applyScans(dict *DomainDict, membership *Membership, postings *PostingsBuilder, scans []fileScan) {
	for _, scan := range scans {
		for _, rg := range scan.rowGroups {
			for _, domain := range rg.Domains {
				domainID, ok := dict.Lookup(domain)
				if !ok {
					// Every scanned domain was fed into the dictionary.
					continue
				}
				membership.Add(domainID, scan.datasetID)
				postings.Add(
					PostingsKey{DomainID: domainID, DatasetID: scan.datasetID},
					Locator{FileID: scan.fileID, RowGroup: rg.RowGroup},
				)
			}
		}
	}
}

func (b *Builder) writeVersion(version string, dict *DomainDict, fr *FileRegistry, membership *Membership, postings *PostingsBuilder) error {
	level := b.cfg.CompressionLevel
	if err := dict.Save(b.cfg.BasePath, version, level); err != nil {
		return fmt.Errorf("write domain dictionary: %w", err)
	}
	if err := BuildResolver(dict).Save(b.cfg.BasePath, version, level); err != nil {
		return fmt.Errorf("write resolver: %w", err)
	}
	if err := fr.Save(b.cfg.BasePath, version, level); err != nil {
		return fmt.Errorf("write file registry: %w", err)
	}
	if err := membership.Save(b.cfg.BasePath, version); err != nil {
		return fmt.Errorf("write membership: %w", err)
	}
	if err := postings.Save(b.cfg.BasePath, version, level); err != nil {
		return fmt.Errorf("write postings: %w", err)
	}
	return nil
}

func (b *Builder) publish(ctx context.Context, version string) error {
	manifest, err := OpenManifest(b.cfg.BasePath)
	if err != nil {
		return err
	}
	err = manifest.Publish(NewVersion(version, b.cfg.PostingsShards))
	b.logger.LogPublish(ctx, version, err)
	return err
}

// versionSeq disambiguates versions created within the same second.
var versionSeq atomic.Int64

func newVersionName() string {
	return fmt.Sprintf("%s-%04d", time.Now().UTC().Format("20060102T150405Z"), versionSeq.Add(1)%10000)
}

// Stats summarizes one built version.
type Stats struct {
	Version        string
	NumDomains     int
	NumFiles       int
	MembershipRefs int
	PostingsKeys   int
}

// CollectStats loads a version's artifacts and summarizes them.
func CollectStats(basePath string, v Version) (Stats, error) {
	st := Stats{Version: v.Version}

	dict, err := LoadDomainDict(basePath, v.Version)
	if err != nil {
		return st, err
	}
	st.NumDomains = dict.Len()

	fr, err := LoadFileRegistry(basePath, v.Version)
	if err != nil {
		return st, err
	}
	st.NumFiles = fr.Len()

	membership, err := LoadMembership(basePath, v.Version)
	if err != nil {
		return st, err
	}
	st.MembershipRefs = membership.Pairs()

	shards := v.PostingsShard
	reader := NewPostingsReader(basePath, v.Version, shards)
	for shard := 0; shard < shards; shard++ {
		ps, err := reader.Shard(shard)
		if err != nil {
			return st, err
		}
		if ps != nil {
			st.PostingsKeys += ps.n
		}
	}
	return st, nil
}

// GC removes version records and artifact directories beyond keep. It never
// touches the current version or the columnar store.
func GC(basePath string, keep int) ([]string, error) {
	manifest, err := OpenManifest(basePath)
	if err != nil {
		return nil, err
	}
	removed, err := manifest.Retire(keep)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, v := range removed {
		if err := os.RemoveAll(VersionDir(basePath, v.Version)); err != nil {
			return names, err
		}
		names = append(names, v.Version)
	}
	return names, nil
}
