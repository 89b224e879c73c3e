package volume

import (
	"github.com/rstms/cfs"
	"github.com/rstms/cfs/block"
)

// FileSystem is the implementation of cfs.FileSystem over a Volume.
type FileSystem struct {
	vol *Volume
}

// ensure FileSystem implements cfs.FileSystem
var _ cfs.FileSystem = (*FileSystem)(nil)

// NewFileSystem returns a cfs.FileSystem view of v.
func NewFileSystem(v *Volume) *FileSystem {
	return &FileSystem{vol: v}
}

func (f *FileSystem) RootDir() (cfs.Directory, error) {
	return f.Dir(f.vol.Root())
}

// Dir returns the directory stored at index.
func (f *FileSystem) Dir(index block.Index) (cfs.Directory, error) {
	if _, err := f.vol.Dir(index); err != nil {
		return nil, err
	}
	dir := &Directory{
		vol:   f.vol,
		index: index,
	}
	return dir, nil
}

func (f *FileSystem) Info() (map[string]any, error) {
	used := f.vol.UsedBlocks()
	info := map[string]any{
		"max_blocks":  f.vol.MaxBlocks(),
		"used_blocks": used,
		"free_blocks": f.vol.MaxBlocks() - used,
		"block_size":  block.SlotSize,
		"chunk_size":  block.ChunkSize,
		"max_name":    block.MaxNameLen,
		"image_size":  ImageSize(f.vol.MaxBlocks()),
	}
	return info, nil
}
