package ingest

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"
)

// DuplicateTracker persistently tracks which url_ids were already ingested
// per dataset, so re-running an ingest does not duplicate rows.
//
// One journal file per dataset, named by the hash of the dataset name,
// holding the little-endian url_ids lz4-framed. The hot path is a set
// lookup; the file is rewritten on Record (snapshot, temp + rename).
type DuplicateTracker struct {
	mu   sync.Mutex
	root string
	seen map[string]map[int64]struct{}
}

// NewDuplicateTracker creates a tracker rooted under basePath.
func NewDuplicateTracker(basePath string) (*DuplicateTracker, error) {
	root := filepath.Join(basePath, "ingestion", "duplicates")
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &DuplicateTracker{
		root: root,
		seen: make(map[string]map[int64]struct{}),
	}, nil
}

func (t *DuplicateTracker) path(dataset string) string {
	return filepath.Join(t.root, fmt.Sprintf("%016x.ids.lz4", xxh3.HashString(dataset)))
}

func (t *DuplicateTracker) load(dataset string) (map[int64]struct{}, error) {
	if ids, ok := t.seen[dataset]; ok {
		return ids, nil
	}

	ids := make(map[int64]struct{})
	f, err := os.Open(t.path(dataset))
	if os.IsNotExist(err) {
		t.seen[dataset] = ids
		return ids, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := lz4.NewReader(f)
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		ids[int64(binary.LittleEndian.Uint64(buf[:]))] = struct{}{}
	}

	t.seen[dataset] = ids
	return ids, nil
}

// IsDuplicate reports whether url_id was already recorded for dataset.
func (t *DuplicateTracker) IsDuplicate(dataset string, urlID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids, err := t.load(dataset)
	if err != nil {
		return false, err
	}
	_, ok := ids[urlID]
	return ok, nil
}

// Record persists url_ids for dataset, skipping ones already present. It
// returns how many were new.
func (t *DuplicateTracker) Record(dataset string, urlIDs []int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids, err := t.load(dataset)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, id := range urlIDs {
		if _, ok := ids[id]; ok {
			continue
		}
		ids[id] = struct{}{}
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := t.save(dataset, ids); err != nil {
		return added, err
	}
	return added, nil
}

func (t *DuplicateTracker) save(dataset string, ids map[int64]struct{}) error {
	path := t.path(dataset)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := lz4.NewWriter(f)
	var buf [8]byte
	for id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		if _, err := w.Write(buf[:]); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Reset drops tracking state for a dataset.
func (t *DuplicateTracker) Reset(dataset string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.seen, dataset)
	err := os.Remove(t.path(dataset))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
