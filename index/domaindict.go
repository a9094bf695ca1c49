package index

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/hupe1980/urldex/core"
	"github.com/zeebo/xxh3"
)

// DomainDict is the ordered list of distinct registrable domains of a
// version. Position i defines domain_id i.
//
// The dictionary is append-only across versions: an incremental build loads
// the previous order unchanged and appends novel domains to the end, so a
// domain's ID never changes once assigned. Re-sorting would silently remap
// every membership and postings entry.
type DomainDict struct {
	domains []string
	byName  map[string]core.DomainID
}

// NewDomainDict creates a dictionary from domains in their given order.
func NewDomainDict(domains []string) *DomainDict {
	d := &DomainDict{
		domains: domains,
		byName:  make(map[string]core.DomainID, len(domains)),
	}
	for i, domain := range domains {
		d.byName[domain] = core.DomainID(i)
	}
	return d
}

// BuildDomainDict builds a fresh dictionary from the full set of observed
// domains, in ascending byte order.
func BuildDomainDict(observed map[string]struct{}) *DomainDict {
	domains := make([]string, 0, len(observed))
	for domain := range observed {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return NewDomainDict(domains)
}

// Append grows the dictionary with the novel domains of an incremental
// build, in ascending byte order. Existing IDs are untouched.
func (d *DomainDict) Append(observed map[string]struct{}) {
	var novel []string
	for domain := range observed {
		if _, ok := d.byName[domain]; !ok {
			novel = append(novel, domain)
		}
	}
	sort.Strings(novel)
	for _, domain := range novel {
		d.byName[domain] = core.DomainID(len(d.domains))
		d.domains = append(d.domains, domain)
	}
}

// Len returns the number of domains.
func (d *DomainDict) Len() int { return len(d.domains) }

// Lookup returns the ID of a domain.
func (d *DomainDict) Lookup(domain string) (core.DomainID, bool) {
	id, ok := d.byName[domain]
	return id, ok
}

// Domain returns the domain string at an ID.
func (d *DomainDict) Domain(id core.DomainID) (string, bool) {
	if id >= core.DomainID(len(d.domains)) {
		return "", false
	}
	return d.domains[id], true
}

// Domains returns the backing slice; callers must not mutate it.
func (d *DomainDict) Domains() []string { return d.domains }

// Checksum returns the xxh3-64 of the serialized (uncompressed) dictionary.
// The MPHF artifact embeds it so loaders can detect a mismatched pair.
func (d *DomainDict) Checksum() uint64 {
	return xxh3.Hash(d.encode())
}

func (d *DomainDict) encode() []byte {
	var buf bytes.Buffer
	for _, domain := range d.domains {
		buf.WriteString(domain)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Save writes the dictionary artifact: newline-delimited domains, zstd.
func (d *DomainDict) Save(basePath, version string, level int) error {
	compressed, err := compressArtifact(d.encode(), level)
	if err != nil {
		return err
	}
	return writeArtifact(ArtifactPath(basePath, version, DomainDictFile), compressed)
}

// LoadDomainDict reads the dictionary artifact of a version.
func LoadDomainDict(basePath, version string) (*DomainDict, error) {
	path := ArtifactPath(basePath, version, DomainDictFile)
	data, err := readArtifact(path)
	if err != nil {
		return nil, fmt.Errorf("load domain dictionary: %w", err)
	}

	var domains []string
	for len(data) > 0 {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			domains = append(domains, string(data))
			break
		}
		if nl > 0 {
			domains = append(domains, string(data[:nl]))
		}
		data = data[nl+1:]
	}
	return NewDomainDict(domains), nil
}
