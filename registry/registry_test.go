package registry

import (
	"sync"
	"testing"

	"github.com/hupe1980/urldex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAssignsSequentially(t *testing.T) {
	base := t.TempDir()
	r, err := Open(base)
	require.NoError(t, err)

	a, err := r.Resolve("alpha")
	require.NoError(t, err)
	b, err := r.Resolve("beta")
	require.NoError(t, err)

	assert.Equal(t, core.DatasetID(0), a)
	assert.Equal(t, core.DatasetID(1), b)

	// Resolving again returns the same ID.
	again, err := r.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestResolvePersistsAcrossOpens(t *testing.T) {
	base := t.TempDir()

	r, err := Open(base)
	require.NoError(t, err)
	_, err = r.Resolve("alpha")
	require.NoError(t, err)
	_, err = r.Resolve("beta")
	require.NoError(t, err)

	reopened, err := Open(base)
	require.NoError(t, err)

	id, err := reopened.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, core.DatasetID(0), id)

	// New names continue after the persisted maximum.
	c, err := reopened.Resolve("gamma")
	require.NoError(t, err)
	assert.Equal(t, core.DatasetID(2), c)
}

func TestResolveConcurrent(t *testing.T) {
	base := t.TempDir()
	r, err := Open(base)
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]core.DatasetID, 32)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve("same")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestOpenReadOnly(t *testing.T) {
	base := t.TempDir()
	rw, err := Open(base)
	require.NoError(t, err)
	_, err = rw.Resolve("alpha")
	require.NoError(t, err)

	ro, err := OpenReadOnly(base)
	require.NoError(t, err)

	id, err := ro.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, core.DatasetID(0), id)

	_, err = ro.Resolve("unknown")
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	base := t.TempDir()
	r, err := Open(base)
	require.NoError(t, err)
	id, err := r.Resolve("alpha")
	require.NoError(t, err)

	name, ok := r.Name(id)
	require.True(t, ok)
	assert.Equal(t, "alpha", name)

	_, ok = r.Name(core.DatasetID(99))
	assert.False(t, ok)
}
