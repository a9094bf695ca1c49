// Package index builds and reads the compound multi-file index: domain
// dictionary, domain resolver, membership bitmaps, postings, file registry
// and the manifest that versions them.
//
// Artifacts are written once per version and never mutated. Every binary
// artifact starts with a 4-byte ASCII magic and a little-endian u32 version.
package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/urldex"
	"github.com/klauspost/compress/zstd"
)

// Artifact file names inside a version directory.
const (
	DomainDictFile   = "domains.txt.zst"
	MPHFFile         = "domains.mphf"
	MembershipFile   = "domain_to_datasets.roar"
	FileRegistryFile = "files.tsv.zst"
	PostingsDir      = "postings"
	PostingsIdxFile  = "postings.idx.zst"
	PostingsDatFile  = "postings.dat.zst"
)

// IndexRoot is the index directory relative to the base path.
const IndexRoot = "index"

// VersionDir returns the directory of a version's artifacts.
func VersionDir(basePath, version string) string {
	return filepath.Join(basePath, IndexRoot, version)
}

// ArtifactPath returns the path of a named artifact inside a version.
func ArtifactPath(basePath, version, name string) string {
	return filepath.Join(VersionDir(basePath, version), name)
}

// ShardDir returns the postings shard directory of a version.
func ShardDir(basePath, version string, shard int) string {
	return filepath.Join(VersionDir(basePath, version), PostingsDir, fmt.Sprintf("%04d", shard))
}

// compressArtifact zstd-compresses an artifact body.
func compressArtifact(data []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	out := enc.EncodeAll(data, make([]byte, 0, len(data)/3))
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// decompressArtifact reverses compressArtifact. Failures surface as
// artifact corruption.
func decompressArtifact(path string, data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, urldex.NewArtifactCorrupt(path, "decompression failed", err)
	}
	return out, nil
}

// writeArtifact writes data to path atomically: temp sibling, then rename.
func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readArtifact reads and decompresses a zstd-compressed artifact.
func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decompressArtifact(path, data)
}
