package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/urldex/blobstore"
	"github.com/parquet-go/parquet-go"
)

// URLRecord is a decoded row of the query projection.
type URLRecord struct {
	URLID     int64
	Scheme    string
	Host      string
	PathQuery string
	Domain    string
}

// Reader reads row groups of part files through a blob store.
type Reader struct {
	bs blobstore.BlobStore
}

// NewReader creates a Reader over the given blob store.
func NewReader(bs blobstore.BlobStore) *Reader {
	return &Reader{bs: bs}
}

// NumRowGroups returns the row-group count of a part file.
func (r *Reader) NumRowGroups(ctx context.Context, rel string) (int, error) {
	blob, f, err := r.openFile(ctx, rel)
	if err != nil {
		return 0, err
	}
	defer blob.Close()
	return len(f.RowGroups()), nil
}

// ReadRowGroup reads one row group of a part file, projecting the query
// columns. The unit of I/O is a single row group, matching the postings
// granularity.
func (r *Reader) ReadRowGroup(ctx context.Context, rel string, rowGroup int) ([]URLRecord, error) {
	blob, f, err := r.openFile(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	groups := f.RowGroups()
	if rowGroup < 0 || rowGroup >= len(groups) {
		return nil, fmt.Errorf("part %s has no row group %d", rel, rowGroup)
	}

	rows, err := readAll[queryRow](groups[rowGroup])
	if err != nil {
		return nil, err
	}

	out := make([]URLRecord, len(rows))
	for i, row := range rows {
		out[i] = URLRecord{
			URLID:     row.URLID,
			Scheme:    row.Scheme,
			Host:      row.Host,
			PathQuery: row.PathQuery,
			Domain:    row.Domain,
		}
	}
	return out, nil
}

// RowGroupDomains holds the distinct domains of each row group of a part
// file, in row-group order. The index builder consumes this.
type RowGroupDomains struct {
	RowGroup int
	Domains  []string
}

// ScanDomains reads only the domain column of every row group.
func (r *Reader) ScanDomains(ctx context.Context, rel string) ([]RowGroupDomains, error) {
	blob, f, err := r.openFile(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	var out []RowGroupDomains
	for i, rg := range f.RowGroups() {
		rows, err := readAll[domainRow](rg)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]struct{}, 16)
		var domains []string
		for _, row := range rows {
			if _, ok := seen[row.Domain]; ok {
				continue
			}
			seen[row.Domain] = struct{}{}
			domains = append(domains, row.Domain)
		}
		out = append(out, RowGroupDomains{RowGroup: i, Domains: domains})
	}
	return out, nil
}

// ReadAllRows reads every row of a part file with the full schema. Intended
// for tests and inspection.
func (r *Reader) ReadAllRows(ctx context.Context, rel string) ([]Row, error) {
	blob, f, err := r.openFile(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	var out []Row
	for _, rg := range f.RowGroups() {
		rows, err := readAll[Row](rg)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (r *Reader) openFile(ctx context.Context, rel string) (blobstore.Blob, *parquet.File, error) {
	blob, err := r.bs.Open(ctx, rel)
	if err != nil {
		return nil, nil, err
	}

	f, err := parquet.OpenFile(blob, blob.Size())
	if err != nil {
		blob.Close()
		return nil, nil, fmt.Errorf("open parquet %s: %w", rel, err)
	}
	return blob, f, nil
}

func readAll[T any](rg parquet.RowGroup) ([]T, error) {
	reader := parquet.NewGenericRowGroupReader[T](rg)
	defer reader.Close()

	out := make([]T, 0, rg.NumRows())
	buf := make([]T, 1024)
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
