package counter

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAllocatorAdvancesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctr")
	a, err := Open(path)
	require.NoError(t, err)

	v1, err := a.Next(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v1)

	v2, err := a.Next(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v2)

	b, err := Open(path)
	require.NoError(t, err)
	v3, err := b.Next(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), v3, "counter state must persist across reattach")
}

func TestFileAllocatorWraps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctr")
	a, err := Open(path)
	require.NoError(t, err)

	_, err = a.Next(math.MaxUint32)
	require.NoError(t, err)
	v, err := a.Next(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), v)
	v2, err := a.Next(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), v2, "counter must wrap silently at 2^32")
}

func TestMemAllocator(t *testing.T) {
	var a MemAllocator
	v1, _ := a.Next(5)
	v2, _ := a.Next(2)
	assert.Equal(t, uint32(0), v1)
	assert.Equal(t, uint32(5), v2)
}
