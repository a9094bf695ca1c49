// Package store implements the partitioned columnar layout of the URL lake
// and the buffered writer / row-group reader over it.
//
// Layout, under the configured base path:
//
//	urls/
//	  dataset_id={id}/
//	    domain_prefix={hh}/
//	      part-00000.parquet
//	      part-00001.parquet
//
// Parts within a partition are append-only and numbered monotonically. A
// part is named only once fully written, so a crash never leaves a corrupt
// file behind — at worst, buffered rows are lost and ingestion is re-run.
package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/urldex/core"
)

// URLsRoot is the directory of the columnar lake relative to the base path.
const URLsRoot = "urls"

// PartExt is the file extension of part files.
const PartExt = ".parquet"

// PartitionKey identifies a write partition.
type PartitionKey struct {
	DatasetID    core.DatasetID
	DomainPrefix string
}

// PartitionDir returns the partition directory as a slash path relative to
// the base path.
func PartitionDir(key PartitionKey) string {
	return fmt.Sprintf("%s/dataset_id=%d/domain_prefix=%s", URLsRoot, key.DatasetID, key.DomainPrefix)
}

// PartPath returns the part file path relative to the base path.
func PartPath(key PartitionKey, part int) string {
	return fmt.Sprintf("%s/part-%05d%s", PartitionDir(key), part, PartExt)
}

// ParsePartPath parses a part file path relative to the base path (i.e.
// starting with "urls/").
func ParsePartPath(rel string) (key PartitionKey, part int, ok bool) {
	segs := strings.Split(rel, "/")
	if len(segs) != 4 || segs[0] != URLsRoot {
		return PartitionKey{}, 0, false
	}

	dsStr, ok1 := strings.CutPrefix(segs[1], "dataset_id=")
	prefix, ok2 := strings.CutPrefix(segs[2], "domain_prefix=")
	name := segs[3]
	if !ok1 || !ok2 || prefix == "" || !strings.HasPrefix(name, "part-") || !strings.HasSuffix(name, PartExt) {
		return PartitionKey{}, 0, false
	}

	ds, err := strconv.ParseUint(dsStr, 10, 32)
	if err != nil {
		return PartitionKey{}, 0, false
	}
	part, err = strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "part-"), PartExt))
	if err != nil {
		return PartitionKey{}, 0, false
	}

	key = PartitionKey{DatasetID: core.DatasetID(ds), DomainPrefix: prefix}
	return key, part, true
}

// RegistryRelPath converts a base-relative part path to the path stored in
// the file registry (relative to the urls/ root).
func RegistryRelPath(rel string) string {
	return strings.TrimPrefix(rel, URLsRoot+"/")
}

// BaseRelPath converts a registry path back to a base-relative path.
func BaseRelPath(registryPath string) string {
	return URLsRoot + "/" + registryPath
}
