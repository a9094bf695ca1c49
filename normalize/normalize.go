// Package normalize canonicalizes raw URL strings and extracts the
// registrable domain. Normalization is pure: no shared state, no I/O.
package normalize

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// defaultPorts maps schemes to the port that is implied when absent.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ftp":   21,
	"ftps":  990,
}

// URL holds the canonical components of a normalized URL.
type URL struct {
	Scheme string // lowercase
	Host   string // lowercase, punycode
	Port   int    // 0 when default for the scheme
	Path   string // collapsed slashes, resolved dot segments
	Query  string // pairs sorted by key, duplicate order preserved
	Domain string // registrable domain (eTLD+1), punycode
	Raw    string // input as given
}

// PathQuery returns the combined path and query for storage.
func (u URL) PathQuery() string {
	if u.Query != "" {
		return u.Path + "?" + u.Query
	}
	return u.Path
}

// String reconstructs the normalized URL without fragment.
func (u URL) String() string {
	host := u.Host
	if u.Port != 0 {
		host = host + ":" + strconv.Itoa(u.Port)
	}
	return u.Scheme + "://" + host + u.PathQuery()
}

// Reconstruct builds a URL string from stored row components.
func Reconstruct(scheme, host, pathQuery string) string {
	return scheme + "://" + host + pathQuery
}

// Normalize canonicalizes a raw URL string.
//
// It rejects empty input, unparseable structure, URLs without a host, and
// hosts without a registrable domain.
func Normalize(raw string) (URL, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return URL{}, fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(s)
	if err != nil {
		return URL{}, fmt.Errorf("parse %q: %w", raw, err)
	}

	// Scheme-less input like "example.com/a" parses as a bare path. Re-parse
	// with the default scheme so the host is recognized.
	if parsed.Scheme == "" && parsed.Host == "" {
		parsed, err = url.Parse("http://" + s)
		if err != nil {
			return URL{}, fmt.Errorf("parse %q: %w", raw, err)
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = "http"
	}

	host, err := normalizeHost(parsed.Hostname())
	if err != nil {
		return URL{}, err
	}

	port := 0
	if p := parsed.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return URL{}, fmt.Errorf("bad port in %q: %w", raw, err)
		}
		if n != defaultPorts[scheme] {
			port = n
		}
	}

	domain, err := registrableDomain(host)
	if err != nil {
		return URL{}, err
	}

	return URL{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   normalizePath(parsed.EscapedPath()),
		Query:  normalizeQuery(parsed.RawQuery),
		Domain: domain,
		Raw:    raw,
	}, nil
}

func normalizeHost(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("URL has no host")
	}
	host = strings.ToLower(host)

	// IDN hosts become punycode (ACE form). Hosts that are already ASCII or
	// that idna refuses are kept lowercase as-is.
	if ace, err := idna.Lookup.ToASCII(host); err == nil {
		host = ace
	}
	return host, nil
}

func registrableDomain(host string) (string, error) {
	// IP addresses have no registrable domain; the PSL lookup would derive
	// a bogus suffix from the trailing octets.
	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("no registrable domain for IP host %q", host)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("no registrable domain for %q: %w", host, err)
	}
	return domain, nil
}

// normalizePath collapses repeated slashes, removes "." segments and
// resolves ".." against the parent without ever climbing above root. A
// trailing slash survives when the resolved path still has segments.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	resolved := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			// Collapsed slash or current directory.
		case "..":
			if len(resolved) > 0 {
				resolved = resolved[:len(resolved)-1]
			}
		default:
			resolved = append(resolved, seg)
		}
	}

	result := "/" + strings.Join(resolved, "/")
	if strings.HasSuffix(path, "/") && len(resolved) > 0 && !strings.HasSuffix(result, "/") {
		result += "/"
	}
	return result
}

// normalizeQuery re-encodes the query with keys in sorted order. Values of a
// repeated key keep their relative order. Blank values are preserved.
func normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable queries are carried through untouched rather than lost.
		return rawQuery
	}
	// url.Values.Encode sorts keys and preserves per-key value order.
	return values.Encode()
}
