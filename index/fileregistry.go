package index

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/store"
)

// FileEntry describes one registered part file. Path is relative to the
// urls/ root.
type FileEntry struct {
	FileID       core.FileID
	DatasetID    core.DatasetID
	DomainPrefix string
	Path         string
}

// FileRegistry maps file ids to part files. IDs are assigned sequentially
// across the life of the store and never reused, even after deletion.
type FileRegistry struct {
	entries []FileEntry
	byPath  map[string]core.FileID
	byID    map[core.FileID]int
	nextID  core.FileID
}

// NewFileRegistry creates an empty registry.
func NewFileRegistry() *FileRegistry {
	return &FileRegistry{
		byPath: make(map[string]core.FileID),
		byID:   make(map[core.FileID]int),
	}
}

// BuildFileRegistry assigns ids to every part path (urls/-relative, sorted)
// in enumeration order.
func BuildFileRegistry(paths []string) (*FileRegistry, error) {
	r := NewFileRegistry()
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		if _, err := r.register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Extend registers every path not yet known, assigning max+1, max+2, …
// Previous entries keep their ids. It returns the urls/-relative paths that
// were new. Deletion is not supported here; gc is separate.
func (r *FileRegistry) Extend(paths []string) ([]string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var novel []string
	for _, p := range sorted {
		if _, ok := r.byPath[p]; ok {
			continue
		}
		if _, err := r.register(p); err != nil {
			return nil, err
		}
		novel = append(novel, p)
	}
	return novel, nil
}

func (r *FileRegistry) register(relPath string) (core.FileID, error) {
	key, _, ok := store.ParsePartPath(store.BaseRelPath(relPath))
	if !ok {
		return 0, fmt.Errorf("unrecognized part path %q", relPath)
	}

	id := r.nextID
	r.nextID++
	r.byPath[relPath] = id
	r.byID[id] = len(r.entries)
	r.entries = append(r.entries, FileEntry{
		FileID:       id,
		DatasetID:    key.DatasetID,
		DomainPrefix: key.DomainPrefix,
		Path:         relPath,
	})
	return id, nil
}

// ByID returns the entry for a file id.
func (r *FileRegistry) ByID(id core.FileID) (FileEntry, bool) {
	i, ok := r.byID[id]
	if !ok {
		return FileEntry{}, false
	}
	return r.entries[i], true
}

// ByPath returns the file id of a urls/-relative path.
func (r *FileRegistry) ByPath(relPath string) (core.FileID, bool) {
	id, ok := r.byPath[relPath]
	return id, ok
}

// Entries returns all entries in id order; callers must not mutate.
func (r *FileRegistry) Entries() []FileEntry { return r.entries }

// Len returns the number of registered files.
func (r *FileRegistry) Len() int { return len(r.entries) }

// Save writes the registry artifact: a header line plus one tab-separated
// row per file, zstd-compressed.
func (r *FileRegistry) Save(basePath, version string, level int) error {
	var buf bytes.Buffer
	buf.WriteString("file_id\tdataset_id\tdomain_prefix\trelative_path\n")
	for _, e := range r.entries {
		fmt.Fprintf(&buf, "%d\t%d\t%s\t%s\n", e.FileID, e.DatasetID, e.DomainPrefix, e.Path)
	}

	compressed, err := compressArtifact(buf.Bytes(), level)
	if err != nil {
		return err
	}
	return writeArtifact(ArtifactPath(basePath, version, FileRegistryFile), compressed)
}

// LoadFileRegistry reads the registry artifact of a version.
func LoadFileRegistry(basePath, version string) (*FileRegistry, error) {
	path := ArtifactPath(basePath, version, FileRegistryFile)
	data, err := readArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load file registry: %w", err)
	}

	r := NewFileRegistry()
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		if i == 0 || line == "" {
			continue // header or trailing newline
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, urldex.NewArtifactCorrupt(path, fmt.Sprintf("bad row %d", i), nil)
		}
		fileID, err1 := strconv.ParseUint(fields[0], 10, 32)
		dsID, err2 := strconv.ParseUint(fields[1], 10, 32)
		if err1 != nil || err2 != nil {
			return nil, urldex.NewArtifactCorrupt(path, fmt.Sprintf("bad row %d", i), nil)
		}

		id := core.FileID(fileID)
		r.byPath[fields[3]] = id
		r.byID[id] = len(r.entries)
		r.entries = append(r.entries, FileEntry{
			FileID:       id,
			DatasetID:    core.DatasetID(dsID),
			DomainPrefix: fields[2],
			Path:         fields[3],
		})
		if id+1 > r.nextID {
			r.nextID = id + 1
		}
	}
	return r, nil
}
