package volume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rstms/cfs/bat"
	"github.com/rstms/cfs/block"
	"go.uber.org/zap"
)

var magic = [4]byte{'c', 'f', 's', 0}

const headerSize = len(magic) + 4

// ImageSize returns the length of a persisted image of maxBlocks blocks.
func ImageSize(maxBlocks int) int {
	return headerSize + bat.Size(maxBlocks) + maxBlocks*block.SlotSize
}

// MarshalBinary encodes the whole image: magic, root index, allocation
// bitmap, then every slot verbatim, free ones included.
func (v *Volume) MarshalBinary() ([]byte, error) {
	n := v.store.Len()
	buf := make([]byte, 0, ImageSize(n))
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.root))
	buf = append(buf, v.table.Bytes()...)
	for i := 0; i < n; i++ {
		buf = append(buf, v.store.Raw(block.Index(i))[:]...)
	}
	return buf, nil
}

// Save writes the encoded image to w.
func (v *Volume) Save(w io.Writer) error {
	buf, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	if err != nil {
		return err
	}
	v.log.Debug("image saved", zap.Int("bytes", len(buf)), zap.Int("used_blocks", v.table.Used()))
	return nil
}

// Load reads one image from r. The block count option must match the one
// the image was created with.
func Load(r io.Reader, opts ...Option) (*Volume, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, ImageSize(o.maxBlocks))
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: read %d of %d bytes", ErrTruncatedImage, n, len(buf))
		}
		return nil, err
	}
	return decode(buf, o)
}

// Unmarshal decodes an image held in memory.
func Unmarshal(data []byte, opts ...Option) (*Volume, error) {
	return Load(bytes.NewReader(data), opts...)
}

func decode(buf []byte, o options) (*Volume, error) {
	if !bytes.Equal(buf[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, buf[:len(magic)])
	}
	root := block.Index(binary.LittleEndian.Uint32(buf[len(magic):headerSize]))
	if root != block.Root {
		return nil, fmt.Errorf("%w: root at block %d", ErrCorrupt, root)
	}
	bitmapEnd := headerSize + bat.Size(o.maxBlocks)
	table, err := bat.FromBytes(buf[headerSize:bitmapEnd], o.maxBlocks)
	if err != nil {
		return nil, err
	}
	v := &Volume{
		root:  root,
		table: table,
		store: block.NewStore(o.maxBlocks),
		log:   o.logger,
	}
	slots := buf[bitmapEnd:]
	for i := 0; i < o.maxBlocks; i++ {
		copy(v.store.Raw(block.Index(i))[:], slots[i*block.SlotSize:])
	}
	if err := v.retag(); err != nil {
		return nil, err
	}
	if err := v.Check(); err != nil {
		return nil, err
	}
	v.log.Debug("image loaded", zap.Int("max_blocks", o.maxBlocks), zap.Int("used_blocks", table.Used()))
	return v, nil
}

// retag rebuilds the slot kinds of a freshly decoded image by walking the
// tree from the root; each slot takes the kind its referrer expects.
func (v *Volume) retag() error {
	adopt := func(i block.Index, kind block.Kind) error {
		if !v.store.Contains(i) {
			return fmt.Errorf("%w: %s link to block %d", ErrCorrupt, kind, i)
		}
		if !v.table.IsSet(i) {
			return fmt.Errorf("%w: %s at free block %d", ErrCorrupt, kind, i)
		}
		if v.store.Kind(i) != block.KindFree {
			return fmt.Errorf("%w: block %d reached twice", ErrCorrupt, i)
		}
		return v.store.SetKind(i, kind)
	}

	var walk func(i block.Index) error
	walk = func(i block.Index) error {
		dir, err := v.store.Dir(i)
		if err != nil {
			return err
		}
		for c := dir.FirstDir; c != block.Nil; {
			if err := adopt(c, block.KindDir); err != nil {
				return err
			}
			if err := walk(c); err != nil {
				return err
			}
			child, err := v.store.Dir(c)
			if err != nil {
				return err
			}
			c = child.Next
		}
		for f := dir.FirstFile; f != block.Nil; {
			if err := adopt(f, block.KindFile); err != nil {
				return err
			}
			file, err := v.store.File(f)
			if err != nil {
				return err
			}
			for h := file.Start; h != block.Nil; {
				if err := adopt(h, block.KindChunkHeader); err != nil {
					return err
				}
				header, err := v.store.ChunkHeader(h)
				if err != nil {
					return err
				}
				if err := adopt(header.Data, block.KindChunkData); err != nil {
					return err
				}
				h = header.Next
			}
			f = file.Next
		}
		return nil
	}

	if err := adopt(v.root, block.KindDir); err != nil {
		return err
	}
	return walk(v.root)
}
