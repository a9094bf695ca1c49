package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/blobstore"
	"github.com/hupe1980/urldex/index"
	"github.com/hupe1980/urldex/ingest"
	"github.com/hupe1980/urldex/query"
	"github.com/hupe1980/urldex/registry"
	"github.com/hupe1980/urldex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer ingests the given datasets, builds an index and returns a
// running test server.
func newTestServer(t *testing.T, datasets map[string][]string) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()

	cfg := urldex.DefaultConfig()
	cfg.BasePath = base
	cfg.PostingsShards = 16
	cfg.CompressionLevel = 3

	reg, err := registry.Open(base)
	require.NoError(t, err)
	bs := blobstore.NewLocalStore(base)
	writer := store.NewWriter(bs, store.WriterOptions{PartitionBufferSize: 1 << 20})
	proc := ingest.NewProcessor(reg, writer, nil, nil, nil)

	// Resolve ids in sorted-name order for deterministic dataset ids.
	for _, name := range sortedKeys(datasets) {
		_, err := proc.Ingest(ctx, name, ingest.NewSliceSource(datasets[name]))
		require.NoError(t, err)
	}

	_, err = index.NewBuilder(cfg, bs, nil, nil).Build(ctx)
	require.NoError(t, err)

	loader := query.NewLoader(cfg, bs, nil)
	require.NoError(t, loader.Load(ctx))
	t.Cleanup(func() { loader.Close() })

	service := query.NewService(loader, cfg, nil, nil)
	srv := httptest.NewServer(NewServer(service, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func TestDomainEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {
			"https://Example.com/a",
			"http://example.com:80/a?b=2&a=1",
			"https://sub.example.com/a#frag",
		},
	})

	var resp DomainResponse
	httpResp := getJSON(t, srv.URL+"/v1/domain/example.com", &resp)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Equal(t, "example.com", resp.Domain)
	require.NotNil(t, resp.DomainID)
	require.Len(t, resp.Datasets, 1)
	assert.Equal(t, uint32(0), resp.Datasets[0].DatasetID)
	assert.Nil(t, resp.Datasets[0].URLCountEst)
}

func TestDomainEndpointUnknownDomainIs200(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
	})

	var resp DomainResponse
	httpResp := getJSON(t, srv.URL+"/v1/domain/does-not-exist.example", &resp)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Empty(t, resp.Datasets)
	assert.Nil(t, resp.DomainID)
}

func TestURLsEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {
			"https://Example.com/a",
			"http://example.com:80/a?b=2&a=1",
			"https://sub.example.com/a#frag",
		},
	})

	var resp URLsResponse
	httpResp := getJSON(t, srv.URL+"/v1/domain/example.com/datasets/0/urls?offset=0&limit=10", &resp)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Len(t, resp.Items, 3)

	var urls []string
	for _, item := range resp.Items {
		urls = append(urls, item.URL)
	}
	assert.ElementsMatch(t, []string{
		"https://example.com/a",
		"http://example.com/a?a=1&b=2",
		"https://sub.example.com/a",
	}, urls)
	assert.Nil(t, resp.NextOffset)
	assert.Nil(t, resp.TotalEst)
}

func TestURLsEndpointUnknownDataset(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
	})

	var resp URLsResponse
	httpResp := getJSON(t, srv.URL+"/v1/domain/example.com/datasets/999/urls", &resp)
	assert.Equal(t, http.StatusOK, httpResp.StatusCode)
	assert.Empty(t, resp.Items)
	assert.Nil(t, resp.NextOffset)
}

func TestURLsEndpointBadArguments(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
	})

	for _, path := range []string{
		"/v1/domain/example.com/datasets/not-a-number/urls",
		"/v1/domain/example.com/datasets/0/urls?offset=-1",
		"/v1/domain/example.com/datasets/0/urls?limit=abc",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "path=%s", path)
	}
}

func TestURLsEndpointClampsLimit(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
	})

	resp, err := http.Get(srv.URL + "/v1/domain/example.com/datasets/0/urls?limit=999999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Warning"))
}

func TestURLsEndpointPagination(t *testing.T) {
	var raws []string
	for i := 0; i < 25; i++ {
		raws = append(raws, "https://example.com/p/"+string(rune('a'+i)))
	}
	srv := newTestServer(t, map[string][]string{"alpha": raws})

	seen := map[string]bool{}
	offset := uint64(0)
	for {
		var page URLsResponse
		url := srv.URL + "/v1/domain/example.com/datasets/0/urls?limit=10&offset=" + uitoa(offset)
		getJSON(t, url, &page)
		for _, item := range page.Items {
			assert.False(t, seen[item.URL], "duplicate %s", item.URL)
			seen[item.URL] = true
		}
		if page.NextOffset == nil {
			break
		}
		offset = *page.NextOffset
	}
	assert.Len(t, seen, 25)
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func TestMalformedPathIs404(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
	})

	resp, err := http.Get(srv.URL + "/v1/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
	})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTwoDatasetsShareDomain(t *testing.T) {
	srv := newTestServer(t, map[string][]string{
		"alpha": {"https://example.com/a"},
		"beta":  {"https://example.com/b"},
	})

	var resp DomainResponse
	getJSON(t, srv.URL+"/v1/domain/example.com", &resp)
	require.Len(t, resp.Datasets, 2)

	ids := []uint32{resp.Datasets[0].DatasetID, resp.Datasets[1].DatasetID}
	assert.ElementsMatch(t, []uint32{0, 1}, ids)
}
