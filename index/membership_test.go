package index

import (
	"testing"

	"github.com/hupe1980/urldex/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMembershipAddAndQuery(t *testing.T) {
	m := NewMembership(3)
	m.Add(0, 1)
	m.Add(0, 0)
	m.Add(2, 7)

	assert.Equal(t, []core.DatasetID{0, 1}, m.Datasets(0))
	assert.Nil(t, m.Datasets(1))
	assert.Equal(t, []core.DatasetID{7}, m.Datasets(2))

	assert.Equal(t, 2, m.Cardinality(0))
	assert.Equal(t, 0, m.Cardinality(1))
	assert.Equal(t, 3, m.Pairs())

	// Out of range reads as empty.
	assert.Nil(t, m.Datasets(99))
	assert.Equal(t, 0, m.Cardinality(99))
}

func TestMembershipRoundTrip(t *testing.T) {
	base := t.TempDir()

	m := NewMembership(4)
	m.Add(0, 0)
	m.Add(0, 3)
	m.Add(2, 1)
	// Domain 1 and 3 intentionally empty.
	require.NoError(t, m.Save(base, "v1"))

	loaded, err := LoadMembership(base, "v1")
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Len())
	assert.Equal(t, []core.DatasetID{0, 3}, loaded.Datasets(0))
	assert.Nil(t, loaded.Datasets(1))
	assert.Equal(t, []core.DatasetID{1}, loaded.Datasets(2))
	assert.Nil(t, loaded.Datasets(3))
	assert.Equal(t, 3, loaded.Pairs())
}

func TestMembershipGrowPreservesEntries(t *testing.T) {
	m := NewMembership(1)
	m.Add(0, 5)
	m.Grow(3)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []core.DatasetID{5}, m.Datasets(0))

	m.Add(2, 1)
	assert.Equal(t, []core.DatasetID{1}, m.Datasets(2))
}

func TestDecodeMembershipRejectsGarbage(t *testing.T) {
	_, err := decodeMembership("x", []byte("NOPE"))
	assert.Error(t, err)

	_, err = decodeMembership("x", append([]byte("DTDR"), make([]byte, 4)...))
	assert.Error(t, err)
}
