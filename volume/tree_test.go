package volume

import (
	"errors"
	"strings"
	"testing"

	"github.com/rstms/cfs/block"
	"github.com/stretchr/testify/require"
)

func requireCounts(t *testing.T, v *Volume, index block.Index) {
	dir, err := v.Dir(index)
	require.NoError(t, err)
	listing, err := v.ListDir(index)
	require.NoError(t, err)
	require.Len(t, listing.Files, int(dir.Files))
	require.Len(t, listing.Dirs, int(dir.Directories))
}

func TestCreateFileLinksAtHead(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	a, err := v.CreateFile(v.Root(), "a")
	require.NoError(t, err)
	require.Equal(t, block.Index(1), a)
	require.Equal(t, 4, v.UsedBlocks())

	_, err = v.CreateFile(v.Root(), "b")
	require.NoError(t, err)
	_, err = v.CreateFile(v.Root(), "c")
	require.NoError(t, err)

	listing, err := v.ListDir(v.Root())
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b", "a"}, fileNames(listing))
	require.Equal(t, a, listing.Files[2].Index)
	requireCounts(t, v, v.Root())

	file, err := v.File(a)
	require.NoError(t, err)
	require.Equal(t, v.Root(), file.Parent)
	require.Equal(t, uint32(1), file.Chunks)
	require.Equal(t, block.Nil, file.Next)

	header, err := v.ChunkHeader(file.Start)
	require.NoError(t, err)
	require.Equal(t, uint32(0), header.Size)
	require.Equal(t, block.Nil, header.Next)
	require.Equal(t, block.KindChunkData, v.Kind(header.Data))
	require.NoError(t, v.Check())
}

func TestCreateDirLinksAtHead(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	for _, name := range []string{"x", "y", "z"} {
		_, err := v.CreateDir(v.Root(), name)
		require.NoError(t, err)
	}
	listing, err := v.ListDir(v.Root())
	require.NoError(t, err)
	require.Equal(t, []string{"z", "y", "x"}, dirNames(listing))
	require.Empty(t, listing.Files)
	require.Equal(t, 4, v.UsedBlocks())
	requireCounts(t, v, v.Root())
}

func TestNameBound(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	exact := strings.Repeat("n", block.MaxNameLen)
	over := exact + "n"

	_, err := v.CreateFile(v.Root(), exact)
	require.NoError(t, err)
	_, err = v.CreateDir(v.Root(), exact)
	require.NoError(t, err)

	used := v.UsedBlocks()
	_, err = v.CreateFile(v.Root(), over)
	require.True(t, errors.Is(err, ErrNameTooLong))
	_, err = v.CreateDir(v.Root(), over)
	require.True(t, errors.Is(err, ErrNameTooLong))
	require.Equal(t, used, v.UsedBlocks())

	index, err := v.Resolve(exact, v.Root())
	require.NoError(t, err)
	d, err := v.Dir(index)
	require.NoError(t, err)
	require.Equal(t, exact, d.Name)
}

func TestInvalidNames(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	for _, name := range []string{"", ".", "..", "a/b", "nul\x00"} {
		_, err := v.CreateFile(v.Root(), name)
		require.True(t, errors.Is(err, ErrInvalidName), name)
		_, err = v.CreateDir(v.Root(), name)
		require.True(t, errors.Is(err, ErrInvalidName), name)
	}
	require.Equal(t, 1, v.UsedBlocks())
}

func TestSiblingNamesUnique(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	_, err := v.CreateFile(v.Root(), "same")
	require.NoError(t, err)
	_, err = v.CreateFile(v.Root(), "same")
	require.True(t, errors.Is(err, ErrExists))

	// files and directories are separate namespaces
	_, err = v.CreateDir(v.Root(), "same")
	require.NoError(t, err)
	_, err = v.CreateDir(v.Root(), "same")
	require.True(t, errors.Is(err, ErrExists))

	requireCounts(t, v, v.Root())
	require.NoError(t, v.Check())
}

func TestCreateInWrongKind(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	f, err := v.CreateFile(v.Root(), "f")
	require.NoError(t, err)
	_, err = v.CreateFile(f, "g")
	require.True(t, errors.Is(err, ErrWrongKind))
	_, err = v.CreateDir(f, "g")
	require.True(t, errors.Is(err, ErrWrongKind))
	_, err = v.ListDir(f)
	require.True(t, errors.Is(err, ErrWrongKind))
}

func TestRemoveFilePositions(t *testing.T) {
	for _, victim := range []string{"a", "b", "c", "d"} {
		t.Run(victim, func(t *testing.T) {
			v := newVolume(t, DefaultMaxBlocks)
			indices := map[string]block.Index{}
			for _, name := range []string{"a", "b", "c", "d"} {
				index, err := v.CreateFile(v.Root(), name)
				require.NoError(t, err)
				indices[name] = index
			}
			used := v.UsedBlocks()

			require.NoError(t, v.RemoveFile(indices[victim]))
			require.Equal(t, used-3, v.UsedBlocks())
			require.False(t, v.IsAllocated(indices[victim]))

			listing, err := v.ListDir(v.Root())
			require.NoError(t, err)
			want := []string{}
			for _, name := range []string{"d", "c", "b", "a"} {
				if name != victim {
					want = append(want, name)
				}
			}
			require.Equal(t, want, fileNames(listing))
			requireCounts(t, v, v.Root())
			require.NoError(t, v.Check())
		})
	}
}

func TestRemoveFileFreesEveryChunk(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	before := v.UsedBlocks()
	f, err := v.CreateFile(v.Root(), "big")
	require.NoError(t, err)
	require.NoError(t, v.Write(f, make([]byte, 3*block.ChunkSize+1)))
	require.Equal(t, before+1+2*4, v.UsedBlocks())

	require.NoError(t, v.RemoveFile(f))
	require.Equal(t, before, v.UsedBlocks())
	require.NoError(t, v.Check())
}

func TestRemoveDirRecursive(t *testing.T) {
	v := newVolume(t, 64)
	keep, err := v.CreateFile(v.Root(), "keep")
	require.NoError(t, err)
	before := v.UsedBlocks()

	top, err := v.CreateDir(v.Root(), "top")
	require.NoError(t, err)
	sub1, err := v.CreateDir(top, "sub1")
	require.NoError(t, err)
	sub2, err := v.CreateDir(top, "sub2")
	require.NoError(t, err)
	deep, err := v.CreateDir(sub1, "deep")
	require.NoError(t, err)
	for _, parent := range []block.Index{top, sub1, sub2, deep} {
		for _, name := range []string{"one", "two"} {
			f, err := v.CreateFile(parent, name)
			require.NoError(t, err)
			require.NoError(t, v.Write(f, []byte(strings.Repeat(name, 100))))
		}
	}
	require.Greater(t, v.UsedBlocks(), before)
	require.NoError(t, v.Check())

	require.NoError(t, v.RemoveDir(top))
	require.Equal(t, before, v.UsedBlocks())

	listing, err := v.ListDir(v.Root())
	require.NoError(t, err)
	require.Empty(t, listing.Dirs)
	require.Equal(t, []string{"keep"}, fileNames(listing))
	require.Equal(t, keep, listing.Files[0].Index)
	requireCounts(t, v, v.Root())
	require.NoError(t, v.Check())
}

func TestRemoveDirPositions(t *testing.T) {
	for _, victim := range []string{"a", "b", "c"} {
		t.Run(victim, func(t *testing.T) {
			v := newVolume(t, DefaultMaxBlocks)
			indices := map[string]block.Index{}
			for _, name := range []string{"a", "b", "c"} {
				index, err := v.CreateDir(v.Root(), name)
				require.NoError(t, err)
				indices[name] = index
				_, err = v.CreateDir(index, "child")
				require.NoError(t, err)
			}
			require.NoError(t, v.RemoveDir(indices[victim]))

			listing, err := v.ListDir(v.Root())
			require.NoError(t, err)
			want := []string{}
			for _, name := range []string{"c", "b", "a"} {
				if name != victim {
					want = append(want, name)
				}
			}
			require.Equal(t, want, dirNames(listing))
			require.Equal(t, 5, v.UsedBlocks())
			require.NoError(t, v.Check())
		})
	}
}

func TestRemoveRoot(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	require.True(t, errors.Is(v.RemoveDir(v.Root()), ErrRoot))
}

func TestRemoveWrongKind(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	d, err := v.CreateDir(v.Root(), "d")
	require.NoError(t, err)
	f, err := v.CreateFile(v.Root(), "f")
	require.NoError(t, err)
	require.True(t, errors.Is(v.RemoveFile(d), ErrWrongKind))
	require.True(t, errors.Is(v.RemoveDir(f), ErrWrongKind))
	require.NoError(t, v.Check())
}

func TestCountsThroughMixedSequence(t *testing.T) {
	v := newVolume(t, 64)
	a, err := v.CreateDir(v.Root(), "a")
	require.NoError(t, err)
	b, err := v.CreateDir(a, "b")
	require.NoError(t, err)
	files := []block.Index{}
	for _, name := range []string{"1", "2", "3", "4"} {
		f, err := v.CreateFile(b, name)
		require.NoError(t, err)
		files = append(files, f)
		requireCounts(t, v, b)
	}
	require.NoError(t, v.RemoveFile(files[1]))
	requireCounts(t, v, b)
	_, err = v.CreateDir(b, "c")
	require.NoError(t, err)
	requireCounts(t, v, b)
	require.NoError(t, v.RemoveFile(files[3]))
	require.NoError(t, v.RemoveFile(files[0]))
	requireCounts(t, v, b)
	_, err = v.CreateFile(a, "x")
	require.NoError(t, err)
	requireCounts(t, v, a)
	require.NoError(t, v.RemoveDir(b))
	requireCounts(t, v, a)
	requireCounts(t, v, v.Root())
	require.NoError(t, v.Check())
}

func TestCreateExhausted(t *testing.T) {
	// root plus one file fills four blocks, leaving one
	v := newVolume(t, 5)
	_, err := v.CreateFile(v.Root(), "first")
	require.NoError(t, err)
	require.Equal(t, 4, v.UsedBlocks())

	_, err = v.CreateFile(v.Root(), "second")
	require.True(t, errors.Is(err, ErrExhausted))
	require.Equal(t, 4, v.UsedBlocks())
	listing, err := v.ListDir(v.Root())
	require.NoError(t, err)
	require.Equal(t, []string{"first"}, fileNames(listing))
	require.NoError(t, v.Check())

	// the block the failed create briefly held is free again
	d, err := v.CreateDir(v.Root(), "last")
	require.NoError(t, err)
	require.Equal(t, block.Index(4), d)

	_, err = v.CreateDir(v.Root(), "more")
	require.True(t, errors.Is(err, ErrExhausted))
	_, err = v.table.Allocate()
	require.True(t, errors.Is(err, ErrExhausted))
	requireCounts(t, v, v.Root())
	require.NoError(t, v.Check())
}

func TestFreedIndicesAreReused(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	f, err := v.CreateFile(v.Root(), "f")
	require.NoError(t, err)
	_, err = v.CreateDir(v.Root(), "d")
	require.NoError(t, err)
	require.NoError(t, v.RemoveFile(f))

	g, err := v.CreateFile(v.Root(), "g")
	require.NoError(t, err)
	require.Equal(t, f, g)
	file, err := v.File(g)
	require.NoError(t, err)
	require.Equal(t, block.Index(2), file.Start)
}

func TestLookup(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	f, err := v.CreateFile(v.Root(), "x")
	require.NoError(t, err)
	index, kind, err := v.Lookup(v.Root(), "x")
	require.NoError(t, err)
	require.Equal(t, f, index)
	require.Equal(t, block.KindFile, kind)

	d, err := v.CreateDir(v.Root(), "x")
	require.NoError(t, err)
	index, kind, err = v.Lookup(v.Root(), "x")
	require.NoError(t, err)
	require.Equal(t, d, index)
	require.Equal(t, block.KindDir, kind)

	_, _, err = v.Lookup(v.Root(), "nope")
	require.True(t, errors.Is(err, ErrNotFound))
}
