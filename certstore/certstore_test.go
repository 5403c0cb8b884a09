package certstore

import (
	"testing"

	"github.com/aox/pkicore/identifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInsertThenLookupRoundTrips(t *testing.T) {
	m := NewMemory()
	id := identifier.NewNameID([]byte("subject-dn"))

	require.NoError(t, m.Insert(id, []byte("leaf-der")))
	blob, err := m.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, "leaf-der", string(blob))
}

func TestMemoryInsertRejectsDuplicate(t *testing.T) {
	m := NewMemory()
	id := identifier.NewNameID([]byte("subject-dn"))
	require.NoError(t, m.Insert(id, []byte("v1")))

	err := m.Insert(id, []byte("v2"))
	require.Error(t, err)
}

func TestMemoryUpdateRequiresExistingRecord(t *testing.T) {
	m := NewMemory()
	id := identifier.NewNameID([]byte("subject-dn"))

	err := m.Update(id, []byte("v1"))
	require.Error(t, err)

	require.NoError(t, m.Insert(id, []byte("v1")))
	require.NoError(t, m.Update(id, []byte("v2")))
	blob, err := m.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(blob))
}

func TestMemoryLookupMissingReturnsNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Lookup(identifier.NewNameID([]byte("absent")))
	require.Error(t, err)
}

func TestMemoryRecordsAreCopiedNotAliased(t *testing.T) {
	m := NewMemory()
	id := identifier.NewNameID([]byte("subject-dn"))
	blob := []byte("original")
	require.NoError(t, m.Insert(id, blob))

	blob[0] = 'X'
	stored, err := m.Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, "original", string(stored))
}
