package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "lowercases scheme and host",
			raw:  "HTTPS://Example.COM/a",
			want: "https://example.com/a",
		},
		{
			name: "drops default port",
			raw:  "http://example.com:80/a",
			want: "http://example.com/a",
		},
		{
			name: "drops default https port",
			raw:  "https://example.com:443/a",
			want: "https://example.com/a",
		},
		{
			name: "keeps non-default port",
			raw:  "http://example.com:8080/a",
			want: "http://example.com:8080/a",
		},
		{
			name: "sorts query keys",
			raw:  "http://example.com/a?b=2&a=1",
			want: "http://example.com/a?a=1&b=2",
		},
		{
			name: "preserves duplicate key order",
			raw:  "http://example.com/a?b=2&a=1&b=1",
			want: "http://example.com/a?a=1&b=2&b=1",
		},
		{
			name: "drops fragment",
			raw:  "https://sub.example.com/a#frag",
			want: "https://sub.example.com/a",
		},
		{
			name: "collapses slashes",
			raw:  "http://example.com//a///b",
			want: "http://example.com/a/b",
		},
		{
			name: "resolves dot segments",
			raw:  "https://example.com/path/../foo/./bar",
			want: "https://example.com/foo/bar",
		},
		{
			name: "never climbs above root",
			raw:  "https://example.com/../../a",
			want: "https://example.com/a",
		},
		{
			name: "preserves trailing slash",
			raw:  "https://example.com/a/b/",
			want: "https://example.com/a/b/",
		},
		{
			name: "defaults missing scheme to http",
			raw:  "example.com/a",
			want: "http://example.com/a",
		},
		{
			name: "empty path becomes root",
			raw:  "https://example.com",
			want: "https://example.com/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raws := []string{
		"https://Example.COM:443/path/../foo?b=2&a=1#frag",
		"http://example.com//a///b/",
		"example.com/a?x=&y=1",
		"https://www.example.co.uk/a/b?q=1",
	}
	for _, raw := range raws {
		first, err := Normalize(raw)
		require.NoError(t, err)
		second, err := Normalize(first.String())
		require.NoError(t, err)
		assert.Equal(t, first.String(), second.String(), "raw=%s", raw)
		assert.Equal(t, first.Domain, second.Domain)
	}
}

func TestNormalizeRegistrableDomain(t *testing.T) {
	tests := []struct {
		raw    string
		domain string
	}{
		{"https://example.com/a", "example.com"},
		{"https://sub.example.com/a", "example.com"},
		{"https://deep.sub.example.com/a", "example.com"},
		{"https://www.example.co.uk/a", "example.co.uk"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.domain, got.Domain, "raw=%s", tt.raw)
	}
}

func TestNormalizeIDNHost(t *testing.T) {
	got, err := Normalize("https://bücher.example/a")
	require.NoError(t, err)
	assert.Equal(t, "xn--bcher-kva.example", got.Host)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no host", "http:///a/b"},
		{"no registrable domain", "https://localhost/a"},
		{"bare ip", "https://192.168.0.1/a"},
		{"control characters", "http://exa mple.com/\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestPathQuery(t *testing.T) {
	got, err := Normalize("https://example.com/a?b=2&a=1")
	require.NoError(t, err)
	assert.Equal(t, "/a?a=1&b=2", got.PathQuery())

	got, err = Normalize("https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "/a", got.PathQuery())
}

func TestReconstruct(t *testing.T) {
	assert.Equal(t, "https://example.com/a?a=1", Reconstruct("https", "example.com", "/a?a=1"))

	// Round trip: reconstruct parses back to the same canonical form.
	u, err := Normalize("https://Example.com/a?b=2&a=1")
	require.NoError(t, err)
	again, err := Normalize(Reconstruct(u.Scheme, u.Host, u.PathQuery()))
	require.NoError(t, err)
	assert.Equal(t, u.String(), again.String())
}
