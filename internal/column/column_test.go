package column

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreatePushOpen(t *testing.T) {
	dir := t.TempDir()

	c, err := Create(dir, "widgets", 4, 2)
	require.NoError(t, err)

	for i := uint32(0); i < 10; i++ {
		rec := make([]byte, 4)
		binary.LittleEndian.PutUint32(rec, i*10)
		require.NoError(t, c.Push(rec))
	}
	require.Equal(t, 10, c.Len())
	require.NoError(t, c.Trim())
	require.NoError(t, c.Close())

	reopened, err := Open(dir, "widgets", 4, false)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, 10, reopened.Len())
	for i := 0; i < 10; i++ {
		got := binary.LittleEndian.Uint32(reopened.Slice(i))
		require.Equal(t, uint32(i*10), got)
	}
}

func TestGrowthDoubling(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, "grow", 8, 1)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 100; i++ {
		rec := make([]byte, 8)
		binary.LittleEndian.PutUint64(rec, uint64(i))
		require.NoError(t, c.Push(rec))
	}
	require.Equal(t, 100, c.Len())
	for i := 0; i < 100; i++ {
		require.Equal(t, uint64(i), binary.LittleEndian.Uint64(c.Slice(i)))
	}
}

func TestTrimDropsSlack(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, "trimmed", 4, 1024)
	require.NoError(t, err)

	require.NoError(t, c.Push(make([]byte, 4)))
	require.NoError(t, c.Trim())
	require.Equal(t, 1, c.Len())
	require.NoError(t, c.Close())

	reopened, err := Open(dir, "trimmed", 4, false)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 1, reopened.Len())
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, "scratch", 4, 4)
	require.NoError(t, err)
	require.NoError(t, c.Push([]byte{1, 2, 3, 4}))
	require.NoError(t, c.Rename("final"))
	require.NoError(t, c.Close())

	_, err = Open(dir, "scratch", 4, false)
	require.Error(t, err)

	reopened, err := Open(dir, "final", 4, false)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 1, reopened.Len())
}

func TestPushWrongStride(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, "strided", 4, 4)
	require.NoError(t, err)
	defer c.Close()

	err = c.Push([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSetLenForOutOfOrderWrites(t *testing.T) {
	dir := t.TempDir()
	c, err := Create(dir, "permuted", 4, 4)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetLen(4))
	for i := 3; i >= 0; i-- {
		rec := make([]byte, 4)
		binary.LittleEndian.PutUint32(rec, uint32(i))
		copy(c.SliceMut(i), rec)
	}
	for i := 0; i < 4; i++ {
		require.Equal(t, uint32(i), binary.LittleEndian.Uint32(c.Slice(i)))
	}
}
