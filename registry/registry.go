// Package registry persists the dataset-name → dataset-id assignment.
//
// IDs are assigned sequentially starting at 0 and are never reused or
// reassigned. The registry is a small JSON file flushed after every
// assignment; the ingester holds it for writing while the query path opens
// it read-only.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/urldex/core"
)

const fileName = "dataset_registry.json"

// Path returns the registry file location under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, "registry", fileName)
}

type fileFormat struct {
	NextDatasetID uint32            `json:"next_dataset_id"`
	Datasets      map[string]uint32 `json:"datasets"`
}

// Registry maps dataset names to stable IDs.
type Registry struct {
	mu       sync.Mutex
	path     string
	datasets map[string]core.DatasetID
	nextID   uint32
	readOnly bool
}

// Open loads the registry at basePath for read-write use, creating the
// directory on first use.
func Open(basePath string) (*Registry, error) {
	r := &Registry{
		path:     Path(basePath),
		datasets: make(map[string]core.DatasetID),
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenReadOnly loads the registry for the query path. Resolve on a read-only
// registry fails for unknown names instead of assigning.
func OpenReadOnly(basePath string) (*Registry, error) {
	r := &Registry{
		path:     Path(basePath),
		datasets: make(map[string]core.DatasetID),
		readOnly: true,
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read dataset registry: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse dataset registry %s: %w", r.path, err)
	}

	maxSeen := uint32(0)
	for name, id := range ff.Datasets {
		r.datasets[name] = core.DatasetID(id)
		if id+1 > maxSeen {
			maxSeen = id + 1
		}
	}
	r.nextID = ff.NextDatasetID
	if maxSeen > r.nextID {
		r.nextID = maxSeen
	}
	return nil
}

// save persists the registry atomically: write temp, rename into place.
func (r *Registry) save() error {
	ff := fileFormat{
		NextDatasetID: r.nextID,
		Datasets:      make(map[string]uint32, len(r.datasets)),
	}
	for name, id := range r.datasets {
		ff.Datasets[name] = uint32(id)
	}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write dataset registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}

// Resolve returns the ID for name, assigning the next free ID when the name
// is new. The assignment is flushed before Resolve returns.
func (r *Registry) Resolve(name string) (core.DatasetID, error) {
	if name == "" {
		return 0, fmt.Errorf("dataset name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.datasets[name]; ok {
		return id, nil
	}
	if r.readOnly {
		return 0, fmt.Errorf("dataset %q not registered", name)
	}

	id := core.DatasetID(r.nextID)
	r.datasets[name] = id
	r.nextID++
	if err := r.save(); err != nil {
		delete(r.datasets, name)
		r.nextID--
		return 0, err
	}
	return id, nil
}

// Lookup returns the ID for a name without assigning.
func (r *Registry) Lookup(name string) (core.DatasetID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.datasets[name]
	return id, ok
}

// Name returns the dataset name for an ID.
func (r *Registry) Name(id core.DatasetID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, got := range r.datasets {
		if got == id {
			return name, true
		}
	}
	return "", false
}

// All returns a copy of the name → ID mapping.
func (r *Registry) All() map[string]core.DatasetID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]core.DatasetID, len(r.datasets))
	for name, id := range r.datasets {
		out[name] = id
	}
	return out
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.datasets)
}
