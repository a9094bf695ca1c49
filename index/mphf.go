package index

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
)

// Resolver file format, zstd-compressed as a whole:
//
//	[magic "MPHF"][version u32][num_domains u64][num_direct u64]
//	[num_collisions u32][dict_hash u64]
//	[num_direct × (hash u64, domain_id u32)]
//	[num_collisions × (hash u64, n u16, n × (tag u16, len u16, domain, id u32))]
//
// Lookups hash the probe domain; a matching table entry is a candidate only.
// Callers must verify by comparing the dictionary string at the returned
// position. Colliding hashes carry their full domain strings so identity can
// be confirmed without the dictionary.
const (
	mphfMagic      = "MPHF"
	mphfVersion    = 1
	mphfHeaderSize = 4 + 4 + 8 + 8 + 4 + 8
)

// Resolver maps a domain string to its candidate dictionary position in
// constant expected time. It is rebuilt from scratch each version; cost is
// linear in the number of domains.
type Resolver struct {
	hashToID   map[uint64]core.DomainID
	collisions map[uint64][]collisionEntry
	dictHash   uint64
	numDomains uint64
}

type collisionEntry struct {
	tag    uint16
	domain string
	id     core.DomainID
}

// BuildResolver builds the resolver for a dictionary.
func BuildResolver(dict *DomainDict) *Resolver {
	r := &Resolver{
		hashToID:   make(map[uint64]core.DomainID, dict.Len()),
		collisions: make(map[uint64][]collisionEntry),
		dictHash:   dict.Checksum(),
		numDomains: uint64(dict.Len()),
	}

	for i, domain := range dict.Domains() {
		id := core.DomainID(i)
		hash := core.DomainHash(domain)
		tag := core.DomainTag(hash)

		if entries, collided := r.collisions[hash]; collided {
			r.collisions[hash] = append(entries, collisionEntry{tag: tag, domain: domain, id: id})
			continue
		}
		if existing, ok := r.hashToID[hash]; ok {
			// First collision on this hash: move the resident entry over.
			prev, _ := dict.Domain(existing)
			r.collisions[hash] = []collisionEntry{
				{tag: core.DomainTag(core.DomainHash(prev)), domain: prev, id: existing},
				{tag: tag, domain: domain, id: id},
			}
			delete(r.hashToID, hash)
			continue
		}
		r.hashToID[hash] = id
	}
	return r
}

// Lookup returns a candidate domain ID. A false positive is possible when a
// foreign domain collides on the full 64-bit hash; callers reject it by
// comparing the dictionary string at the returned position.
func (r *Resolver) Lookup(domain string) (core.DomainID, bool) {
	hash := core.DomainHash(domain)

	if id, ok := r.hashToID[hash]; ok {
		return id, true
	}

	tag := core.DomainTag(hash)
	for _, e := range r.collisions[hash] {
		if e.tag == tag && e.domain == domain {
			return e.id, true
		}
	}
	return 0, false
}

// DictHash returns the embedded checksum of the paired dictionary.
func (r *Resolver) DictHash() uint64 { return r.dictHash }

// NumDomains returns the domain count the resolver was built over.
func (r *Resolver) NumDomains() uint64 { return r.numDomains }

// NumCollisions returns the number of colliding 64-bit hashes.
func (r *Resolver) NumCollisions() int { return len(r.collisions) }

// Save writes the resolver artifact.
func (r *Resolver) Save(basePath, version string, level int) error {
	body := make([]byte, 0, mphfHeaderSize+len(r.hashToID)*12)
	body = append(body, mphfMagic...)
	body = binary.LittleEndian.AppendUint32(body, mphfVersion)
	body = binary.LittleEndian.AppendUint64(body, r.numDomains)
	body = binary.LittleEndian.AppendUint64(body, uint64(len(r.hashToID)))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(r.collisions)))
	body = binary.LittleEndian.AppendUint64(body, r.dictHash)

	hashes := make([]uint64, 0, len(r.hashToID))
	for hash := range r.hashToID {
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	for _, hash := range hashes {
		body = binary.LittleEndian.AppendUint64(body, hash)
		body = binary.LittleEndian.AppendUint32(body, uint32(r.hashToID[hash]))
	}

	collHashes := make([]uint64, 0, len(r.collisions))
	for hash := range r.collisions {
		collHashes = append(collHashes, hash)
	}
	sort.Slice(collHashes, func(i, j int) bool { return collHashes[i] < collHashes[j] })
	for _, hash := range collHashes {
		entries := r.collisions[hash]
		body = binary.LittleEndian.AppendUint64(body, hash)
		body = binary.LittleEndian.AppendUint16(body, uint16(len(entries)))
		for _, e := range entries {
			body = binary.LittleEndian.AppendUint16(body, e.tag)
			body = binary.LittleEndian.AppendUint16(body, uint16(len(e.domain)))
			body = append(body, e.domain...)
			body = binary.LittleEndian.AppendUint32(body, uint32(e.id))
		}
	}

	compressed, err := compressArtifact(body, level)
	if err != nil {
		return err
	}
	return writeArtifact(ArtifactPath(basePath, version, MPHFFile), compressed)
}

// LoadResolver reads the resolver artifact of a version. When dict is
// non-nil, the embedded dictionary checksum is verified against it.
func LoadResolver(basePath, version string, dict *DomainDict) (*Resolver, error) {
	path := ArtifactPath(basePath, version, MPHFFile)
	data, err := readArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load resolver: %w", err)
	}

	if len(data) < mphfHeaderSize {
		return nil, urldex.NewArtifactCorrupt(path, "truncated header", nil)
	}
	if string(data[:4]) != mphfMagic {
		return nil, urldex.NewArtifactCorrupt(path, fmt.Sprintf("bad magic %q", data[:4]), nil)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != mphfVersion {
		return nil, urldex.NewArtifactCorrupt(path, fmt.Sprintf("unsupported version %d", v), nil)
	}

	numDomains := binary.LittleEndian.Uint64(data[8:16])
	numDirect := binary.LittleEndian.Uint64(data[16:24])
	numCollisions := binary.LittleEndian.Uint32(data[24:28])
	dictHash := binary.LittleEndian.Uint64(data[28:36])

	if dict != nil && dict.Checksum() != dictHash {
		return nil, urldex.NewArtifactCorrupt(path, "dictionary checksum mismatch", nil)
	}

	r := &Resolver{
		hashToID:   make(map[uint64]core.DomainID, numDirect),
		collisions: make(map[uint64][]collisionEntry, numCollisions),
		dictHash:   dictHash,
		numDomains: numDomains,
	}

	off := mphfHeaderSize
	for i := uint64(0); i < numDirect; i++ {
		if off+12 > len(data) {
			return nil, urldex.NewArtifactCorrupt(path, "truncated hash table", nil)
		}
		hash := binary.LittleEndian.Uint64(data[off : off+8])
		id := binary.LittleEndian.Uint32(data[off+8 : off+12])
		r.hashToID[hash] = core.DomainID(id)
		off += 12
	}

	for i := uint32(0); i < numCollisions; i++ {
		if off+10 > len(data) {
			return nil, urldex.NewArtifactCorrupt(path, "truncated collision map", nil)
		}
		hash := binary.LittleEndian.Uint64(data[off : off+8])
		n := binary.LittleEndian.Uint16(data[off+8 : off+10])
		off += 10

		entries := make([]collisionEntry, 0, n)
		for j := uint16(0); j < n; j++ {
			if off+4 > len(data) {
				return nil, urldex.NewArtifactCorrupt(path, "truncated collision entry", nil)
			}
			tag := binary.LittleEndian.Uint16(data[off : off+2])
			dlen := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
			off += 4
			if off+dlen+4 > len(data) {
				return nil, urldex.NewArtifactCorrupt(path, "truncated collision entry", nil)
			}
			domain := string(data[off : off+dlen])
			off += dlen
			id := binary.LittleEndian.Uint32(data[off : off+4])
			off += 4
			entries = append(entries, collisionEntry{tag: tag, domain: domain, id: core.DomainID(id)})
		}
		r.collisions[hash] = entries
	}

	return r, nil
}
