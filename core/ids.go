// Package core defines the identifier scheme shared by ingestion, the index
// builder and the query path.
package core

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// DatasetID identifies a dataset. Assigned sequentially by the persistent
// registry; never reused or reassigned.
type DatasetID uint32

// DomainID is the position of a domain in the version's dictionary. Stable
// across incremental rebuilds: new domains append, existing IDs never change.
type DomainID uint64

// FileID identifies a parquet file in the file registry. Assigned
// sequentially across the life of the store; never reused.
type FileID uint32

// URLID hashes the raw URL bytes. It is a probe key only: collisions may
// produce a false row candidate which the domain filter rejects.
func URLID(raw string) int64 {
	return int64(xxh3.HashString(raw))
}

// DomainHash returns the 64-bit hash of a registrable domain.
func DomainHash(domain string) uint64 {
	return xxh3.HashString(domain)
}

// DomainPrefix returns the partition key fragment for a domain: the first
// two hex characters of its 64-bit hash.
func DomainPrefix(domain string) string {
	h := xxh3.HashString(domain)
	return hex.EncodeToString([]byte{byte(h >> 56)})
}

// DomainTag returns the 16-bit early-rejection tag of a domain hash: its
// high bits.
func DomainTag(hash uint64) uint16 {
	return uint16(hash >> 48)
}
