package index

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
)

// Postings shard formats, each zstd-compressed as a whole.
//
// Index file:
//
//	[magic "PDX1"][version u32][n_entries u64][dat_offset u64]
//	[n_entries × (domain_id u64, dataset_id u32, payload_offset u64, payload_len u32)]
//	sorted by (domain_id, dataset_id)
//
// Data file:
//
//	[magic "PDD1"][version u32]
//	[payloads… each: uvarint count, count × (uvarint file_id, uvarint row_group)]
//
// Entries for the same key may be split across appends; readers concatenate
// them in entry order.
const (
	postingsIdxMagic = "PDX1"
	postingsDatMagic = "PDD1"
	postingsVersion  = 1

	postingsIdxHeader = 4 + 4 + 8 + 8
	postingsDatHeader = 4 + 4
	postingsRecSize   = 8 + 4 + 8 + 4
)

// Locator points at one row group of a part file.
type Locator struct {
	FileID   core.FileID
	RowGroup int
}

// PostingsKey addresses one posting list.
type PostingsKey struct {
	DomainID  core.DomainID
	DatasetID core.DatasetID
}

// Shard returns the shard of a domain id given a power-of-two shard count.
func (k PostingsKey) Shard(numShards int) int {
	return int(uint64(k.DomainID) & uint64(numShards-1))
}

// PostingsBuilder accumulates locators and writes the sharded artifact.
type PostingsBuilder struct {
	numShards int
	postings  map[PostingsKey][]Locator
}

// NewPostingsBuilder creates a builder with the configured shard count.
func NewPostingsBuilder(numShards int) *PostingsBuilder {
	return &PostingsBuilder{
		numShards: numShards,
		postings:  make(map[PostingsKey][]Locator),
	}
}

// Add appends a locator under key.
func (b *PostingsBuilder) Add(key PostingsKey, loc Locator) {
	b.postings[key] = append(b.postings[key], loc)
}

// Seed imports every entry of a previous version, preserving payload order.
// Incremental builds call this before adding locators of new files.
func (b *PostingsBuilder) Seed(prev *PostingsReader) error {
	for shard := 0; shard < prev.numShards; shard++ {
		ps, err := prev.Shard(shard)
		if err != nil {
			return err
		}
		if ps == nil {
			continue
		}
		if err := ps.ForEach(func(key PostingsKey, locs []Locator) {
			b.postings[key] = append(b.postings[key], locs...)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of distinct keys.
func (b *PostingsBuilder) Len() int { return len(b.postings) }

// Save writes every non-empty shard of the version. Keys are sorted by
// (domain_id, dataset_id) per shard.
func (b *PostingsBuilder) Save(basePath, version string, level int) error {
	byShard := make(map[int][]PostingsKey)
	for key := range b.postings {
		shard := key.Shard(b.numShards)
		byShard[shard] = append(byShard[shard], key)
	}

	for shard, keys := range byShard {
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].DomainID != keys[j].DomainID {
				return keys[i].DomainID < keys[j].DomainID
			}
			return keys[i].DatasetID < keys[j].DatasetID
		})

		dat := make([]byte, 0, 4096)
		dat = append(dat, postingsDatMagic...)
		dat = binary.LittleEndian.AppendUint32(dat, postingsVersion)

		idx := make([]byte, 0, postingsIdxHeader+len(keys)*postingsRecSize)
		idx = append(idx, postingsIdxMagic...)
		idx = binary.LittleEndian.AppendUint32(idx, postingsVersion)
		idx = binary.LittleEndian.AppendUint64(idx, uint64(len(keys)))
		idx = binary.LittleEndian.AppendUint64(idx, postingsDatHeader)

		for _, key := range keys {
			locs := b.postings[key]
			payload := make([]byte, 0, len(locs)*4+4)
			payload = binary.AppendUvarint(payload, uint64(len(locs)))
			for _, loc := range locs {
				payload = binary.AppendUvarint(payload, uint64(loc.FileID))
				payload = binary.AppendUvarint(payload, uint64(loc.RowGroup))
			}

			idx = binary.LittleEndian.AppendUint64(idx, uint64(key.DomainID))
			idx = binary.LittleEndian.AppendUint32(idx, uint32(key.DatasetID))
			idx = binary.LittleEndian.AppendUint64(idx, uint64(len(dat)))
			idx = binary.LittleEndian.AppendUint32(idx, uint32(len(payload)))

			dat = append(dat, payload...)
		}

		idxCompressed, err := compressArtifact(idx, level)
		if err != nil {
			return err
		}
		datCompressed, err := compressArtifact(dat, level)
		if err != nil {
			return err
		}

		dir := ShardDir(basePath, version, shard)
		if err := writeArtifact(dir+"/"+PostingsIdxFile, idxCompressed); err != nil {
			return err
		}
		if err := writeArtifact(dir+"/"+PostingsDatFile, datCompressed); err != nil {
			return err
		}
	}
	return nil
}

// PostingsReader reads shards of one version lazily.
type PostingsReader struct {
	basePath  string
	version   string
	numShards int
}

// NewPostingsReader creates a reader for a version's postings.
func NewPostingsReader(basePath, version string, numShards int) *PostingsReader {
	return &PostingsReader{basePath: basePath, version: version, numShards: numShards}
}

// NumShards returns the configured shard count.
func (r *PostingsReader) NumShards() int { return r.numShards }

// Shard loads and parses one shard. A shard that was never written decodes
// as nil (every key in it is absent).
func (r *PostingsReader) Shard(shard int) (*PostingsShard, error) {
	dir := ShardDir(r.basePath, r.version, shard)
	idxPath := dir + "/" + PostingsIdxFile
	datPath := dir + "/" + PostingsDatFile

	idx, err := readArtifact(idxPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load postings shard %d: %w", shard, err)
	}
	dat, err := readArtifact(datPath)
	if err != nil {
		return nil, fmt.Errorf("load postings shard %d: %w", shard, err)
	}

	return parsePostingsShard(idxPath, idx, datPath, dat)
}

// Lookup returns the locators of key in payload order, or nil when absent.
func (r *PostingsReader) Lookup(key PostingsKey) ([]Locator, error) {
	ps, err := r.Shard(key.Shard(r.numShards))
	if err != nil || ps == nil {
		return nil, err
	}
	locs, _, err := ps.Lookup(key)
	return locs, err
}

// PostingsShard is one parsed shard: the sorted entry table plus the raw
// payload section.
type PostingsShard struct {
	path    string
	entries []byte // n × postingsRecSize, sorted
	n       int
	dat     []byte
}

func parsePostingsShard(idxPath string, idx []byte, datPath string, dat []byte) (*PostingsShard, error) {
	if len(idx) < postingsIdxHeader {
		return nil, urldex.NewArtifactCorrupt(idxPath, "truncated header", nil)
	}
	if string(idx[:4]) != postingsIdxMagic {
		return nil, urldex.NewArtifactCorrupt(idxPath, fmt.Sprintf("bad magic %q", idx[:4]), nil)
	}
	if v := binary.LittleEndian.Uint32(idx[4:8]); v != postingsVersion {
		return nil, urldex.NewArtifactCorrupt(idxPath, fmt.Sprintf("unsupported version %d", v), nil)
	}
	n := binary.LittleEndian.Uint64(idx[8:16])
	if uint64(len(idx)) < postingsIdxHeader+n*postingsRecSize {
		return nil, urldex.NewArtifactCorrupt(idxPath, "entry table out of bounds", nil)
	}

	if len(dat) < postingsDatHeader || string(dat[:4]) != postingsDatMagic {
		return nil, urldex.NewArtifactCorrupt(datPath, "bad data header", nil)
	}

	return &PostingsShard{
		path:    idxPath,
		entries: idx[postingsIdxHeader : postingsIdxHeader+int(n)*postingsRecSize],
		n:       int(n),
		dat:     dat,
	}, nil
}

// SizeBytes returns the in-memory footprint of the parsed shard, used for
// cache accounting.
func (s *PostingsShard) SizeBytes() int64 {
	return int64(len(s.entries) + len(s.dat))
}

func (s *PostingsShard) record(i int) (key PostingsKey, payloadOff uint64, payloadLen uint32) {
	rec := s.entries[i*postingsRecSize:]
	key.DomainID = core.DomainID(binary.LittleEndian.Uint64(rec[0:8]))
	key.DatasetID = core.DatasetID(binary.LittleEndian.Uint32(rec[8:12]))
	payloadOff = binary.LittleEndian.Uint64(rec[12:20])
	payloadLen = binary.LittleEndian.Uint32(rec[20:24])
	return key, payloadOff, payloadLen
}

// Lookup binary-searches the entry table for key and decodes its payloads.
func (s *PostingsShard) Lookup(key PostingsKey) ([]Locator, bool, error) {
	i := sort.Search(s.n, func(i int) bool {
		got, _, _ := s.record(i)
		if got.DomainID != key.DomainID {
			return got.DomainID >= key.DomainID
		}
		return got.DatasetID >= key.DatasetID
	})

	// Entries of one key are adjacent in the sorted table; concatenate their
	// payloads in entry order.
	var locs []Locator
	found := false
	for ; i < s.n; i++ {
		got, off, length := s.record(i)
		if got != key {
			break
		}
		part, err := s.decodePayload(off, length)
		if err != nil {
			return nil, false, err
		}
		locs = append(locs, part...)
		found = true
	}
	return locs, found, nil
}

// ForEach decodes every entry of the shard in table order.
func (s *PostingsShard) ForEach(fn func(key PostingsKey, locs []Locator)) error {
	for i := 0; i < s.n; i++ {
		key, off, length := s.record(i)
		locs, err := s.decodePayload(off, length)
		if err != nil {
			return err
		}
		fn(key, locs)
	}
	return nil
}

func (s *PostingsShard) decodePayload(off uint64, length uint32) ([]Locator, error) {
	if off+uint64(length) > uint64(len(s.dat)) {
		return nil, urldex.NewArtifactCorrupt(s.path, "payload out of bounds", nil)
	}
	payload := s.dat[off : off+uint64(length)]

	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, urldex.NewArtifactCorrupt(s.path, "bad payload count", nil)
	}
	payload = payload[n:]

	locs := make([]Locator, 0, count)
	for i := uint64(0); i < count; i++ {
		fileID, n := binary.Uvarint(payload)
		if n <= 0 {
			return nil, urldex.NewArtifactCorrupt(s.path, "bad payload varint", nil)
		}
		payload = payload[n:]
		rowGroup, n := binary.Uvarint(payload)
		if n <= 0 {
			return nil, urldex.NewArtifactCorrupt(s.path, "bad payload varint", nil)
		}
		payload = payload[n:]
		locs = append(locs, Locator{FileID: core.FileID(fileID), RowGroup: int(rowGroup)})
	}
	return locs, nil
}

// Compact merges fragmented payloads and deduplicates locators per key. The
// builder it returns answers every lookup identically modulo duplicates.
func Compact(r *PostingsReader) (*PostingsBuilder, error) {
	b := NewPostingsBuilder(r.numShards)
	if err := b.Seed(r); err != nil {
		return nil, err
	}
	for key, locs := range b.postings {
		seen := make(map[Locator]struct{}, len(locs))
		dedup := locs[:0]
		for _, loc := range locs {
			if _, ok := seen[loc]; ok {
				continue
			}
			seen[loc] = struct{}{}
			dedup = append(dedup, loc)
		}
		b.postings[key] = dedup
	}
	return b, nil
}
