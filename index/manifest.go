package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/urldex"
)

// ManifestFileName is the manifest document, under index/.
const ManifestFileName = "manifest.json"

// Version describes one published index version. All paths are relative to
// the base path.
type Version struct {
	Version       string `json:"version"`
	DomainsTxt    string `json:"domains_txt"`
	DomainsMPHF   string `json:"domains_mphf"`
	D2DRoar       string `json:"d2d_roar"`
	PostingsBase  string `json:"postings_base"`
	FilesTSV      string `json:"files_tsv"`
	ColumnarRoot  string `json:"columnar_root"`
	PostingsShard int    `json:"postings_shards"`
	CreatedAt     string `json:"created_at"`
}

// NewVersion names the artifacts of a freshly built version.
func NewVersion(version string, postingsShards int) Version {
	prefix := IndexRoot + "/" + version + "/"
	return Version{
		Version:       version,
		DomainsTxt:    prefix + DomainDictFile,
		DomainsMPHF:   prefix + MPHFFile,
		D2DRoar:       prefix + MembershipFile,
		PostingsBase:  prefix + PostingsDir + "/{shard}/",
		FilesTSV:      prefix + FileRegistryFile,
		ColumnarRoot:  "urls/",
		PostingsShard: postingsShards,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
}

type manifestDoc struct {
	CurrentVersion string    `json:"current_version"`
	Versions       []Version `json:"versions"`
}

// Manifest tracks published versions and the current-version pointer.
//
// Publishing writes the document to a temporary name and renames it into
// place; readers that opened the manifest before the rename keep seeing the
// old version for the duration of their request.
type Manifest struct {
	mu       sync.Mutex
	basePath string
	current  string
	versions []Version
}

// OpenManifest loads the manifest at basePath, which may not exist yet.
func OpenManifest(basePath string) (*Manifest, error) {
	m := &Manifest{basePath: basePath}

	data, err := os.ReadFile(m.path())
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, urldex.NewArtifactCorrupt(m.path(), "manifest parse failed", err)
	}
	m.current = doc.CurrentVersion
	m.versions = doc.Versions
	return m, nil
}

func (m *Manifest) path() string {
	return filepath.Join(m.basePath, IndexRoot, ManifestFileName)
}

// Current returns the current version record.
func (m *Manifest) Current() (Version, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(m.current)
}

// Get returns a version record by name.
func (m *Manifest) Get(version string) (Version, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(version)
}

func (m *Manifest) lookupLocked(version string) (Version, bool) {
	for _, v := range m.versions {
		if v.Version == version {
			return v, true
		}
	}
	return Version{}, false
}

// Versions lists all recorded versions, oldest first.
func (m *Manifest) Versions() []Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := append([]Version(nil), m.versions...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Publish records v and flips current_version to it, atomically.
func (m *Manifest) Publish(v Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.versions[:0]
	for _, existing := range m.versions {
		if existing.Version != v.Version {
			kept = append(kept, existing)
		}
	}
	m.versions = append(kept, v)
	m.current = v.Version

	return m.saveLocked()
}

// Retire drops version records beyond keep, newest kept, and returns the
// removed records. The current version is never removed. Artifact
// directories are the caller's to delete.
func (m *Manifest) Retire(keep int) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keep < 1 {
		keep = 1
	}
	if len(m.versions) <= keep {
		return nil, nil
	}

	sorted := append([]Version(nil), m.versions...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt > sorted[j].CreatedAt
		}
		return sorted[i].Version > sorted[j].Version
	})

	var retained, removed []Version
	for i, v := range sorted {
		if i < keep || v.Version == m.current {
			retained = append(retained, v)
		} else {
			removed = append(removed, v)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}

	m.versions = retained
	if err := m.saveLocked(); err != nil {
		return nil, err
	}
	return removed, nil
}

func (m *Manifest) saveLocked() error {
	doc := manifestDoc{CurrentVersion: m.current, Versions: m.versions}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	path := m.path()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
