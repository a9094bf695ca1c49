package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/urldex/blobstore"
	"github.com/hupe1980/urldex/core"
	"github.com/parquet-go/parquet-go"
)

// rowGroupTargetSize is the uncompressed target size of one row group.
const rowGroupTargetSize = 128 << 20

// WriterOptions configures a Writer.
type WriterOptions struct {
	// PartitionBufferSize is the per-partition threshold in bytes before a
	// buffer is flushed as the next part file. 0 means immediate writes.
	PartitionBufferSize int64
	// GlobalBufferLimit caps buffered bytes across all partitions. When
	// exceeded, the largest buffer is force-flushed. 0 disables the cap.
	GlobalBufferLimit int64
}

// WriterStats reports totals since the writer was created.
type WriterStats struct {
	RowsWritten  int64
	FilesCreated int64
	BatchesSeen  int64
}

// Writer buffers normalized rows per (dataset_id, domain_prefix) partition
// and emits row-grouped parquet part files.
//
// The writer is not transactional across partitions: a failed flush of one
// partition does not roll back parts already finalized for others.
type Writer struct {
	bs   blobstore.BlobStore
	opts WriterOptions

	mu        sync.Mutex
	buffers   map[PartitionKey][]Row
	sizes     map[PartitionKey]int64
	total     int64
	nextParts map[PartitionKey]int

	stats WriterStats
}

// NewWriter creates a Writer over the given blob store.
func NewWriter(bs blobstore.BlobStore, opts WriterOptions) *Writer {
	return &Writer{
		bs:        bs,
		opts:      opts,
		buffers:   make(map[PartitionKey][]Row),
		sizes:     make(map[PartitionKey]int64),
		nextParts: make(map[PartitionKey]int),
	}
}

// Write buffers rows for one dataset, partitioning by domain prefix. Full
// partitions flush immediately; the global ceiling force-flushes the
// largest buffer.
func (w *Writer) Write(ctx context.Context, datasetID core.DatasetID, rows []Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.BatchesSeen++

	var full []PartitionKey
	for _, row := range rows {
		key := PartitionKey{DatasetID: datasetID, DomainPrefix: core.DomainPrefix(row.Domain)}
		w.buffers[key] = append(w.buffers[key], row)
		sz := row.approxSize()
		w.sizes[key] += sz
		w.total += sz

		if w.sizes[key] >= w.opts.PartitionBufferSize && !containsKey(full, key) {
			full = append(full, key)
		}
	}

	var errs []error
	for _, key := range full {
		if err := w.flushPartitionLocked(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("partition %s: %w", PartitionDir(key), err))
		}
	}

	// Bound process memory: force out the largest buffers until we are under
	// the ceiling again.
	for w.opts.GlobalBufferLimit > 0 && w.total > w.opts.GlobalBufferLimit {
		largest, ok := w.largestPartitionLocked()
		if !ok {
			break
		}
		if err := w.flushPartitionLocked(ctx, largest); err != nil {
			errs = append(errs, fmt.Errorf("partition %s: %w", PartitionDir(largest), err))
			break
		}
	}

	return errors.Join(errs...)
}

// Flush finalizes every pending partition buffer as its next part file.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := make([]PartitionKey, 0, len(w.buffers))
	for key := range w.buffers {
		keys = append(keys, key)
	}

	var errs []error
	for _, key := range keys {
		if err := w.flushPartitionLocked(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("partition %s: %w", PartitionDir(key), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of writer totals.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Writer) flushPartitionLocked(ctx context.Context, key PartitionKey) error {
	rows := w.buffers[key]
	if len(rows) == 0 {
		return nil
	}

	part, err := w.nextPartLocked(ctx, key)
	if err != nil {
		return err
	}

	if err := w.writePart(ctx, key, part, rows); err != nil {
		return err
	}

	w.total -= w.sizes[key]
	delete(w.buffers, key)
	delete(w.sizes, key)
	w.nextParts[key] = part + 1

	w.stats.RowsWritten += int64(len(rows))
	w.stats.FilesCreated++
	return nil
}

// nextPartLocked returns the next free part number, consulting the store
// once per partition so numbering continues across process restarts.
func (w *Writer) nextPartLocked(ctx context.Context, key PartitionKey) (int, error) {
	if next, ok := w.nextParts[key]; ok {
		return next, nil
	}

	names, err := w.bs.List(ctx, PartitionDir(key)+"/")
	if err != nil {
		return 0, err
	}
	next := 0
	for _, name := range names {
		if _, part, ok := ParsePartPath(name); ok && part+1 > next {
			next = part + 1
		}
	}
	w.nextParts[key] = next
	return next, nil
}

func (w *Writer) writePart(ctx context.Context, key PartitionKey, part int, rows []Row) error {
	blob, err := w.bs.Create(ctx, PartPath(key, part))
	if err != nil {
		return err
	}

	var bytes int64
	for _, row := range rows {
		bytes += row.approxSize()
	}
	rowsPerGroup := rowsPerRowGroup(bytes, int64(len(rows)))

	pw := parquet.NewGenericWriter[Row](blob, parquet.MaxRowsPerRowGroup(rowsPerGroup))
	if _, err := pw.Write(rows); err != nil {
		return err
	}
	if err := pw.Close(); err != nil {
		return err
	}
	return blob.Close()
}

func (w *Writer) largestPartitionLocked() (PartitionKey, bool) {
	var best PartitionKey
	var bestSize int64
	for key, size := range w.sizes {
		if size > bestSize {
			best, bestSize = key, size
		}
	}
	return best, bestSize > 0
}

// rowsPerRowGroup estimates how many rows fit in the target row-group size.
func rowsPerRowGroup(totalBytes, totalRows int64) int64 {
	if totalRows == 0 {
		return 1000
	}
	perRow := totalBytes / totalRows
	if perRow == 0 {
		perRow = 1
	}
	n := int64(rowGroupTargetSize) / perRow
	if n < 1000 {
		return 1000
	}
	if n > 1_000_000 {
		return 1_000_000
	}
	return n
}

func containsKey(keys []PartitionKey, key PartitionKey) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
