package store

import (
	"context"
	"testing"

	"github.com/hupe1980/urldex/blobstore"
	"github.com/hupe1980/urldex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(domain, pathQuery string) Row {
	return Row{
		DomainID:  int64(core.DomainHash(domain)),
		URLID:     core.URLID("https://" + domain + pathQuery),
		Scheme:    "https",
		Host:      domain,
		PathQuery: pathQuery,
		Domain:    domain,
	}
}

func TestWriteFlushRead(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{PartitionBufferSize: 1 << 20})

	rows := []Row{
		testRow("example.com", "/a"),
		testRow("example.com", "/b"),
		testRow("other.org", "/c"),
	}
	require.NoError(t, w.Write(ctx, 0, rows))
	require.NoError(t, w.Flush(ctx))

	names, err := bs.List(ctx, URLsRoot+"/")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	r := NewReader(bs)
	var got []Row
	for _, name := range names {
		part, err := r.ReadAllRows(ctx, name)
		require.NoError(t, err)
		got = append(got, part...)
	}
	assert.ElementsMatch(t, rows, got)

	stats := w.Stats()
	assert.Equal(t, int64(3), stats.RowsWritten)
}

func TestRowOrderPreservedWithinPartition(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{PartitionBufferSize: 1 << 20})

	rows := []Row{
		testRow("example.com", "/1"),
		testRow("example.com", "/2"),
		testRow("example.com", "/3"),
	}
	require.NoError(t, w.Write(ctx, 3, rows))
	require.NoError(t, w.Flush(ctx))

	key := PartitionKey{DatasetID: 3, DomainPrefix: core.DomainPrefix("example.com")}
	got, err := NewReader(bs).ReadAllRows(ctx, PartPath(key, 0))
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestPartNumbersAreMonotonic(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{PartitionBufferSize: 1 << 20})

	require.NoError(t, w.Write(ctx, 0, []Row{testRow("example.com", "/a")}))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.Write(ctx, 0, []Row{testRow("example.com", "/b")}))
	require.NoError(t, w.Flush(ctx))

	key := PartitionKey{DatasetID: 0, DomainPrefix: core.DomainPrefix("example.com")}
	names, err := bs.List(ctx, PartitionDir(key)+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{PartPath(key, 0), PartPath(key, 1)}, names)

	// A fresh writer over the same store continues the numbering.
	w2 := NewWriter(bs, WriterOptions{PartitionBufferSize: 1 << 20})
	require.NoError(t, w2.Write(ctx, 0, []Row{testRow("example.com", "/c")}))
	require.NoError(t, w2.Flush(ctx))

	names, err = bs.List(ctx, PartitionDir(key)+"/")
	require.NoError(t, err)
	assert.Len(t, names, 3)
	assert.Equal(t, PartPath(key, 2), names[2])
}

func TestImmediateWritesWithZeroBuffer(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{PartitionBufferSize: 0})

	require.NoError(t, w.Write(ctx, 0, []Row{testRow("example.com", "/a")}))

	// No explicit Flush: the zero threshold finalizes parts per batch.
	names, err := bs.List(ctx, URLsRoot+"/")
	require.NoError(t, err)
	assert.Len(t, names, 1)
}

func TestGlobalBufferLimitForcesFlush(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{
		PartitionBufferSize: 1 << 30,
		GlobalBufferLimit:   1, // force a flush on any write
	})

	require.NoError(t, w.Write(ctx, 0, []Row{
		testRow("example.com", "/a"),
		testRow("other.org", "/b"),
	}))

	names, err := bs.List(ctx, URLsRoot+"/")
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}

func TestScanDomains(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{})

	require.NoError(t, w.Write(ctx, 0, []Row{
		testRow("example.com", "/a"),
		testRow("example.com", "/b"),
	}))
	require.NoError(t, w.Flush(ctx))

	key := PartitionKey{DatasetID: 0, DomainPrefix: core.DomainPrefix("example.com")}
	scanned, err := NewReader(bs).ScanDomains(ctx, PartPath(key, 0))
	require.NoError(t, err)
	require.Len(t, scanned, 1)
	assert.Equal(t, []string{"example.com"}, scanned[0].Domains)
}

func TestReadRowGroupProjection(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	w := NewWriter(bs, WriterOptions{})

	in := testRow("example.com", "/a?x=1")
	require.NoError(t, w.Write(ctx, 0, []Row{in}))
	require.NoError(t, w.Flush(ctx))

	key := PartitionKey{DatasetID: 0, DomainPrefix: core.DomainPrefix("example.com")}
	records, err := NewReader(bs).ReadRowGroup(ctx, PartPath(key, 0), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, in.URLID, records[0].URLID)
	assert.Equal(t, "https", records[0].Scheme)
	assert.Equal(t, "example.com", records[0].Host)
	assert.Equal(t, "/a?x=1", records[0].PathQuery)
	assert.Equal(t, "example.com", records[0].Domain)
}
