package volume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/rstms/cfs/bat"
	"github.com/rstms/cfs/block"
	"github.com/stretchr/testify/require"
)

// buildSample makes a small tree with multi-chunk content and a hole
// left by a removed file.
func buildSample(t *testing.T, v *Volume) map[string][]byte {
	docs, err := v.CreateDir(v.Root(), "docs")
	require.NoError(t, err)
	old, err := v.CreateFile(docs, "old")
	require.NoError(t, err)
	require.NoError(t, v.Write(old, pattern(300, 9)))
	notes, err := v.CreateDir(docs, "notes")
	require.NoError(t, err)

	contents := map[string][]byte{
		"readme":         []byte("hello"),
		"docs/big":       pattern(3*block.ChunkSize+5, 1),
		"docs/notes/a":   pattern(block.ChunkSize, 2),
		"docs/notes/nil": {},
	}
	parents := map[string]block.Index{
		"readme":         v.Root(),
		"docs/big":       docs,
		"docs/notes/a":   notes,
		"docs/notes/nil": notes,
	}
	for _, path := range []string{"readme", "docs/big", "docs/notes/a", "docs/notes/nil"} {
		name := path[strings.LastIndex(path, "/")+1:]
		f, err := v.CreateFile(parents[path], name)
		require.NoError(t, err)
		require.NoError(t, v.Write(f, contents[path]))
	}
	require.NoError(t, v.RemoveFile(old))
	return contents
}

func TestImageSize(t *testing.T) {
	require.Equal(t, 4+4+5+32*256, ImageSize(32))
	v := newVolume(t, DefaultMaxBlocks)
	buf, err := v.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, ImageSize(DefaultMaxBlocks))
	require.Equal(t, []byte("cfs\x00"), buf[:4])
	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(buf[4:8]))
	require.Equal(t, byte(0x01), buf[8])
}

func TestSaveLoadRoundTrip(t *testing.T) {
	v := newVolume(t, 64)
	contents := buildSample(t, v)

	var image bytes.Buffer
	require.NoError(t, v.Save(&image))
	saved := append([]byte{}, image.Bytes()...)

	loaded, err := Load(&image, WithMaxBlocks(64))
	require.NoError(t, err)
	require.Equal(t, v.Bitmap(), loaded.Bitmap())
	require.Equal(t, v.UsedBlocks(), loaded.UsedBlocks())

	for path, want := range contents {
		index, err := loaded.Resolve(path, loaded.Root())
		require.NoError(t, err, path)
		require.Equal(t, block.KindFile, loaded.Kind(index))
		got, err := loaded.Read(index)
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)

		original, err := v.Resolve(path, v.Root())
		require.NoError(t, err)
		require.Equal(t, original, index)
	}

	for i := 0; i < v.MaxBlocks(); i++ {
		require.Equal(t, v.Kind(block.Index(i)), loaded.Kind(block.Index(i)), "block %d", i)
	}

	again, err := loaded.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, saved, again)

	// the loaded image is fully usable
	_, err = loaded.CreateDir(loaded.Root(), "after")
	require.NoError(t, err)
	require.NoError(t, loaded.Check())
}

func TestSaveKeepsStaleBytes(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	f, err := v.CreateFile(v.Root(), "gone")
	require.NoError(t, err)
	require.NoError(t, v.Write(f, []byte("leftover")))
	file, err := v.File(f)
	require.NoError(t, err)
	header, err := v.ChunkHeader(file.Start)
	require.NoError(t, err)
	require.NoError(t, v.RemoveFile(f))

	buf, err := v.MarshalBinary()
	require.NoError(t, err)
	offset := headerSize + bat.Size(DefaultMaxBlocks) + int(header.Data)*block.SlotSize
	require.Equal(t, "leftover", string(buf[offset:offset+8]))

	loaded, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, block.KindFree, loaded.Kind(header.Data))
	again, err := loaded.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, buf, again)
}

func TestLoadTruncated(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	buf, err := v.MarshalBinary()
	require.NoError(t, err)

	_, err = Load(bytes.NewReader(buf[:len(buf)-1]))
	require.True(t, errors.Is(err, ErrTruncatedImage))
	_, err = Load(bytes.NewReader(nil))
	require.True(t, errors.Is(err, ErrTruncatedImage))

	// a larger geometry wants more bytes than a smaller image has
	_, err = Load(bytes.NewReader(buf), WithMaxBlocks(DefaultMaxBlocks+1))
	require.True(t, errors.Is(err, ErrTruncatedImage))
}

func TestLoadBadMagic(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	buf, err := v.MarshalBinary()
	require.NoError(t, err)
	buf[0] = 'x'
	_, err = Unmarshal(buf)
	require.True(t, errors.Is(err, ErrBadMagic))
}

func TestLoadCorrupt(t *testing.T) {
	v := newVolume(t, DefaultMaxBlocks)
	_, err := v.CreateFile(v.Root(), "f")
	require.NoError(t, err)
	buf, err := v.MarshalBinary()
	require.NoError(t, err)
	slots := headerSize + bat.Size(DefaultMaxBlocks)

	t.Run("count", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		// root directory file count
		binary.LittleEndian.PutUint32(bad[slots+block.NameSize+8:], 2)
		_, err := Unmarshal(bad)
		require.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("link to free block", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		bad[headerSize] &^= 1 << 3
		_, err := Unmarshal(bad)
		require.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("unreachable block in use", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		bad[headerSize] |= 1 << 6
		_, err := Unmarshal(bad)
		require.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("cycle", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		// file record next points back at itself
		binary.LittleEndian.PutUint32(bad[slots+block.SlotSize+block.NameSize+4:], 1)
		_, err := Unmarshal(bad)
		require.True(t, errors.Is(err, ErrCorrupt))
	})

	t.Run("root index", func(t *testing.T) {
		bad := append([]byte{}, buf...)
		binary.LittleEndian.PutUint32(bad[4:], 3)
		_, err := Unmarshal(bad)
		require.True(t, errors.Is(err, ErrCorrupt))
	})
}
