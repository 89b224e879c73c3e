package volume

import (
	"errors"
	"testing"

	"github.com/rstms/cfs/block"
	"github.com/stretchr/testify/require"
)

func TestCheckCounts(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	d, err := v.CreateDir(v.Root(), "d")
	require.NoError(t, err)
	_, err = v.CreateFile(d, "f")
	require.NoError(t, err)
	require.NoError(t, v.Check())

	dir, err := v.Dir(d)
	require.NoError(t, err)
	dir.Files = 3
	require.NoError(t, v.store.PutDir(d, dir))
	require.True(t, errors.Is(v.Check(), ErrCorrupt))
}

func TestCheckLeakedBlock(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	_, err := v.table.Allocate()
	require.NoError(t, err)
	err = v.Check()
	require.True(t, errors.Is(err, ErrCorrupt))
	require.Contains(t, err.Error(), "unreachable")
}

func TestCheckParentLink(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	a, err := v.CreateDir(v.Root(), "a")
	require.NoError(t, err)
	f, err := v.CreateFile(a, "f")
	require.NoError(t, err)

	file, err := v.File(f)
	require.NoError(t, err)
	file.Parent = v.Root()
	require.NoError(t, v.store.PutFile(f, file))
	require.True(t, errors.Is(v.Check(), ErrCorrupt))
}

func TestCheckDuplicateNames(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	_, err := v.CreateDir(v.Root(), "a")
	require.NoError(t, err)
	b, err := v.CreateDir(v.Root(), "b")
	require.NoError(t, err)

	dir, err := v.Dir(b)
	require.NoError(t, err)
	dir.Name = "a"
	require.NoError(t, v.store.PutDir(b, dir))
	err = v.Check()
	require.True(t, errors.Is(err, ErrCorrupt))
	require.Contains(t, err.Error(), "duplicate")
}

func TestCheckChunkCount(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	f, err := v.CreateFile(v.Root(), "f")
	require.NoError(t, err)
	require.NoError(t, v.Write(f, make([]byte, block.ChunkSize+1)))

	file, err := v.File(f)
	require.NoError(t, err)
	file.Chunks = 1
	require.NoError(t, v.store.PutFile(f, file))
	require.True(t, errors.Is(v.Check(), ErrCorrupt))
}
