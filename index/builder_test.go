package index

import (
	"context"
	"os"
	"testing"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/blobstore"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(base string) urldex.Config {
	cfg := urldex.DefaultConfig()
	cfg.BasePath = base
	cfg.PostingsShards = 16
	cfg.CompressionLevel = 3
	return cfg
}

func writeRows(t *testing.T, base string, dataset core.DatasetID, domains map[string][]string) {
	t.Helper()
	bs := blobstore.NewLocalStore(base)
	w := store.NewWriter(bs, store.WriterOptions{PartitionBufferSize: 1 << 20})

	var rows []store.Row
	for domain, paths := range domains {
		for _, p := range paths {
			rows = append(rows, store.Row{
				DomainID:  int64(core.DomainHash(domain)),
				URLID:     core.URLID("https://" + domain + p),
				Scheme:    "https",
				Host:      domain,
				PathQuery: p,
				Domain:    domain,
			})
		}
	}
	ctx := context.Background()
	require.NoError(t, w.Write(ctx, dataset, rows))
	require.NoError(t, w.Flush(ctx))
}

func TestFullBuild(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()

	writeRows(t, base, 0, map[string][]string{
		"example.com": {"/a", "/b"},
		"other.org":   {"/c"},
	})

	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, nil)
	version, err := b.Build(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, version)

	dict, err := LoadDomainDict(base, version)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "other.org"}, dict.Domains())

	resolver, err := LoadResolver(base, version, dict)
	require.NoError(t, err)
	id, ok := resolver.Lookup("example.com")
	require.True(t, ok)

	membership, err := LoadMembership(base, version)
	require.NoError(t, err)
	assert.Equal(t, []core.DatasetID{0}, membership.Datasets(id))

	current, ok := mustManifest(t, base).Current()
	require.True(t, ok)
	assert.Equal(t, version, current.Version)

	fr, err := LoadFileRegistry(base, version)
	require.NoError(t, err)
	locs, err := NewPostingsReader(base, version, 16).Lookup(PostingsKey{DomainID: id, DatasetID: 0})
	require.NoError(t, err)
	require.NotEmpty(t, locs)
	_, ok = fr.ByID(locs[0].FileID)
	assert.True(t, ok)
}

func mustManifest(t *testing.T, base string) *Manifest {
	t.Helper()
	m, err := OpenManifest(base)
	require.NoError(t, err)
	return m
}

func TestIncrementalDelegatesToFull(t *testing.T) {
	base := t.TempDir()
	writeRows(t, base, 0, map[string][]string{"example.com": {"/a"}})

	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, nil)
	version, err := b.BuildIncremental(context.Background())
	require.NoError(t, err)

	_, ok := mustManifest(t, base).Get(version)
	assert.True(t, ok)
}

func TestIncrementalNoNewFilesKeepsVersion(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	writeRows(t, base, 0, map[string][]string{"example.com": {"/a"}})

	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, nil)
	v1, err := b.Build(ctx)
	require.NoError(t, err)

	v2, err := b.BuildIncremental(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestIncrementalKeepsDomainIDs(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, nil)

	writeRows(t, base, 0, map[string][]string{"example.com": {"/a"}})
	v1, err := b.Build(ctx)
	require.NoError(t, err)

	dict1, err := LoadDomainDict(base, v1)
	require.NoError(t, err)
	id1, ok := dict1.Lookup("example.com")
	require.True(t, ok)

	// Ingest a second dataset with domains sorting before example.com.
	writeRows(t, base, 1, map[string][]string{
		"aardvark.net": {"/x"},
		"example.com":  {"/y"},
	})
	v2, err := b.BuildIncremental(ctx)
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	dict2, err := LoadDomainDict(base, v2)
	require.NoError(t, err)
	id2, ok := dict2.Lookup("example.com")
	require.True(t, ok)
	assert.Equal(t, id1, id2, "domain_id must be stable across incremental builds")

	// Membership reflects both datasets now.
	membership, err := LoadMembership(base, v2)
	require.NoError(t, err)
	assert.Equal(t, []core.DatasetID{0, 1}, membership.Datasets(id2))
}

func TestFullAndIncrementalBuildsAnswerIdentically(t *testing.T) {
	ctx := context.Background()

	corpus := []struct {
		dataset core.DatasetID
		domains map[string][]string
	}{
		{0, map[string][]string{"example.com": {"/a", "/b"}, "zeta.org": {"/z"}}},
		{1, map[string][]string{"example.com": {"/c"}, "alpha.io": {"/q", "/r"}}},
	}

	// Full: ingest everything, one build.
	fullBase := t.TempDir()
	for _, chunk := range corpus {
		writeRows(t, fullBase, chunk.dataset, chunk.domains)
	}
	fullBuilder := NewBuilder(testConfig(fullBase), blobstore.NewLocalStore(fullBase), nil, nil)
	fullVersion, err := fullBuilder.Build(ctx)
	require.NoError(t, err)

	// Incremental: ingest chunk by chunk, building after each.
	incrBase := t.TempDir()
	incrBuilder := NewBuilder(testConfig(incrBase), blobstore.NewLocalStore(incrBase), nil, nil)
	var incrVersion string
	for _, chunk := range corpus {
		writeRows(t, incrBase, chunk.dataset, chunk.domains)
		incrVersion, err = incrBuilder.BuildIncremental(ctx)
		require.NoError(t, err)
	}

	fullDict, err := LoadDomainDict(fullBase, fullVersion)
	require.NoError(t, err)
	incrDict, err := LoadDomainDict(incrBase, incrVersion)
	require.NoError(t, err)

	fullMembership, err := LoadMembership(fullBase, fullVersion)
	require.NoError(t, err)
	incrMembership, err := LoadMembership(incrBase, incrVersion)
	require.NoError(t, err)

	// Same domain set (order may differ), and identical dataset answers per
	// domain string.
	assert.ElementsMatch(t, fullDict.Domains(), incrDict.Domains())
	for _, domain := range fullDict.Domains() {
		fullID, _ := fullDict.Lookup(domain)
		incrID, _ := incrDict.Lookup(domain)
		assert.Equal(t,
			fullMembership.Datasets(fullID),
			incrMembership.Datasets(incrID),
			"domain %s", domain)
	}
}

func TestBuildRecordsMetrics(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	writeRows(t, base, 0, map[string][]string{"example.com": {"/a"}})

	metrics := &urldex.BasicMetricsCollector{}
	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, metrics)

	_, err := b.Build(ctx)
	require.NoError(t, err)

	// No new files: still one recorded (successful) incremental attempt.
	_, err = b.BuildIncremental(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), metrics.BuildCount.Load())
	assert.Equal(t, int64(0), metrics.BuildErrors.Load())
}

func TestCollectStats(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	writeRows(t, base, 0, map[string][]string{"example.com": {"/a"}, "other.org": {"/b"}})

	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, nil)
	version, err := b.Build(ctx)
	require.NoError(t, err)

	v, ok := mustManifest(t, base).Get(version)
	require.True(t, ok)

	stats, err := CollectStats(base, v)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumDomains)
	assert.Equal(t, 2, stats.NumFiles)
	assert.Equal(t, 2, stats.MembershipRefs)
	assert.Equal(t, 2, stats.PostingsKeys)
}

func TestGC(t *testing.T) {
	base := t.TempDir()
	ctx := context.Background()
	b := NewBuilder(testConfig(base), blobstore.NewLocalStore(base), nil, nil)

	writeRows(t, base, 0, map[string][]string{"example.com": {"/a"}})
	v1, err := b.Build(ctx)
	require.NoError(t, err)

	writeRows(t, base, 1, map[string][]string{"other.org": {"/b"}})
	v2, err := b.BuildIncremental(ctx)
	require.NoError(t, err)

	removed, err := GC(base, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{v1}, removed)

	_, err = os.Stat(VersionDir(base, v1))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(VersionDir(base, v2))
	assert.NoError(t, err)
}
