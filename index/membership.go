package index

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
)

// Membership file format, uncompressed (roaring blobs are already compact):
//
//	[magic "DTDR"][version u32][n_domains u64][index_offset u64]
//	[blobs… one serialized roaring bitmap per domain_id, concatenated]
//	[index: n_domains × (start u64, len u32)]
//
// Domains without any dataset (possible only for ids beyond the built range)
// read as empty bitmaps.
const (
	membershipMagic   = "DTDR"
	membershipVersion = 1
)

// Membership maps domain_id → set of dataset_ids as roaring bitmaps.
type Membership struct {
	bitmaps []*roaring.Bitmap // indexed by domain_id
}

// NewMembership creates an empty membership index sized for n domains.
func NewMembership(n int) *Membership {
	return &Membership{bitmaps: make([]*roaring.Bitmap, n)}
}

// Grow extends the index to cover n domains. Existing bitmaps keep their
// positions; incremental builds grow before unioning new observations.
func (m *Membership) Grow(n int) {
	for len(m.bitmaps) < n {
		m.bitmaps = append(m.bitmaps, nil)
	}
}

// Add records that dataset contains domain.
func (m *Membership) Add(domainID core.DomainID, dataset core.DatasetID) {
	if m.bitmaps[domainID] == nil {
		m.bitmaps[domainID] = roaring.New()
	}
	m.bitmaps[domainID].Add(uint32(dataset))
}

// Datasets returns the dataset ids containing domainID, ascending.
func (m *Membership) Datasets(domainID core.DomainID) []core.DatasetID {
	if domainID >= core.DomainID(len(m.bitmaps)) || m.bitmaps[domainID] == nil {
		return nil
	}
	raw := m.bitmaps[domainID].ToArray()
	out := make([]core.DatasetID, len(raw))
	for i, v := range raw {
		out[i] = core.DatasetID(v)
	}
	return out
}

// Cardinality returns how many datasets contain domainID.
func (m *Membership) Cardinality(domainID core.DomainID) int {
	if domainID >= core.DomainID(len(m.bitmaps)) || m.bitmaps[domainID] == nil {
		return 0
	}
	return int(m.bitmaps[domainID].GetCardinality())
}

// Len returns the covered domain count.
func (m *Membership) Len() int { return len(m.bitmaps) }

// Pairs returns the total number of (domain, dataset) memberships.
func (m *Membership) Pairs() int {
	total := 0
	for _, bm := range m.bitmaps {
		if bm != nil {
			total += int(bm.GetCardinality())
		}
	}
	return total
}

// Save writes the membership artifact.
func (m *Membership) Save(basePath, version string) error {
	header := make([]byte, 0, 24)
	header = append(header, membershipMagic...)
	header = binary.LittleEndian.AppendUint32(header, membershipVersion)
	header = binary.LittleEndian.AppendUint64(header, uint64(len(m.bitmaps)))
	headerLen := len(header) + 8 // + index_offset field

	empty := roaring.New()
	blobs := make([][]byte, len(m.bitmaps))
	total := headerLen
	for i, bm := range m.bitmaps {
		if bm == nil {
			bm = empty
		}
		blob, err := bm.ToBytes()
		if err != nil {
			return err
		}
		blobs[i] = blob
		total += len(blob)
	}

	body := make([]byte, 0, total+len(m.bitmaps)*12)
	body = append(body, header...)
	body = binary.LittleEndian.AppendUint64(body, uint64(total)) // index_offset

	type span struct {
		start uint64
		len   uint32
	}
	spans := make([]span, len(blobs))
	for i, blob := range blobs {
		spans[i] = span{start: uint64(len(body)), len: uint32(len(blob))}
		body = append(body, blob...)
	}
	for _, sp := range spans {
		body = binary.LittleEndian.AppendUint64(body, sp.start)
		body = binary.LittleEndian.AppendUint32(body, sp.len)
	}

	return writeArtifact(ArtifactPath(basePath, version, MembershipFile), body)
}

// LoadMembership reads the membership artifact of a version.
func LoadMembership(basePath, version string) (*Membership, error) {
	path := ArtifactPath(basePath, version, MembershipFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return decodeMembership(path, data)
}

// DecodeMembership parses a membership artifact already in memory, e.g. a
// memory-mapped file. Bitmaps are cloned, so data may be released after.
func DecodeMembership(path string, data []byte) (*Membership, error) {
	return decodeMembership(path, data)
}

func decodeMembership(path string, data []byte) (*Membership, error) {
	if len(data) < 24 {
		return nil, urldex.NewArtifactCorrupt(path, "truncated header", nil)
	}
	if string(data[:4]) != membershipMagic {
		return nil, urldex.NewArtifactCorrupt(path, fmt.Sprintf("bad magic %q", data[:4]), nil)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != membershipVersion {
		return nil, urldex.NewArtifactCorrupt(path, fmt.Sprintf("unsupported version %d", v), nil)
	}

	nDomains := binary.LittleEndian.Uint64(data[8:16])
	indexOffset := binary.LittleEndian.Uint64(data[16:24])
	if indexOffset+nDomains*12 > uint64(len(data)) {
		return nil, urldex.NewArtifactCorrupt(path, "index out of bounds", nil)
	}

	m := NewMembership(int(nDomains))
	for i := uint64(0); i < nDomains; i++ {
		entry := indexOffset + i*12
		start := binary.LittleEndian.Uint64(data[entry : entry+8])
		length := binary.LittleEndian.Uint32(data[entry+8 : entry+12])
		if start+uint64(length) > uint64(len(data)) {
			return nil, urldex.NewArtifactCorrupt(path, "bitmap out of bounds", nil)
		}

		bm := roaring.New()
		if _, err := bm.FromBuffer(data[start : start+uint64(length)]); err != nil {
			return nil, urldex.NewArtifactCorrupt(path, "bitmap decode failed", err)
		}
		if !bm.IsEmpty() {
			// FromBuffer aliases the input; clone so the artifact buffer can
			// be released.
			m.bitmaps[i] = bm.Clone()
		}
	}
	return m, nil
}
