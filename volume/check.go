package volume

import (
	"fmt"

	"github.com/rstms/cfs/block"
)

// Check verifies the structural invariants of the image: list counts,
// parent links, sibling name uniqueness, chunk framing, and that the set
// of blocks reachable from the root is exactly the set marked in use.
func (v *Volume) Check() error {
	reached := make([]bool, v.store.Len())
	mark := func(i block.Index) error {
		if !v.store.Contains(i) {
			return fmt.Errorf("%w: link to block %d", ErrCorrupt, i)
		}
		if reached[i] {
			return fmt.Errorf("%w: block %d linked twice", ErrCorrupt, i)
		}
		reached[i] = true
		return nil
	}

	root, err := v.store.Dir(v.root)
	if err != nil {
		return fmt.Errorf("%w: root: %v", ErrCorrupt, err)
	}
	if root.Parent != v.root {
		return fmt.Errorf("%w: root parent is %d", ErrCorrupt, root.Parent)
	}
	if err := mark(v.root); err != nil {
		return err
	}

	var checkDir func(index block.Index, dir block.Dir) error
	checkDir = func(index block.Index, dir block.Dir) error {
		listing, err := v.ListDir(index)
		if err != nil {
			return fmt.Errorf("%w: directory %d: %v", ErrCorrupt, index, err)
		}
		if len(listing.Dirs) != int(dir.Directories) {
			return fmt.Errorf("%w: directory %q counts %d subdirectories, list holds %d",
				ErrCorrupt, dir.Name, dir.Directories, len(listing.Dirs))
		}
		if len(listing.Files) != int(dir.Files) {
			return fmt.Errorf("%w: directory %q counts %d files, list holds %d",
				ErrCorrupt, dir.Name, dir.Files, len(listing.Files))
		}

		names := make(map[string]bool, len(listing.Dirs))
		for _, child := range listing.Dirs {
			if names[child.Name] {
				return fmt.Errorf("%w: duplicate directory %q in %q", ErrCorrupt, child.Name, dir.Name)
			}
			names[child.Name] = true
			if child.Parent != index {
				return fmt.Errorf("%w: directory %q has parent %d, listed in %d", ErrCorrupt, child.Name, child.Parent, index)
			}
			if err := mark(child.Index); err != nil {
				return err
			}
			if err := checkDir(child.Index, child.Dir); err != nil {
				return err
			}
		}

		names = make(map[string]bool, len(listing.Files))
		for _, child := range listing.Files {
			if names[child.Name] {
				return fmt.Errorf("%w: duplicate file %q in %q", ErrCorrupt, child.Name, dir.Name)
			}
			names[child.Name] = true
			if child.Parent != index {
				return fmt.Errorf("%w: file %q has parent %d, listed in %d", ErrCorrupt, child.Name, child.Parent, index)
			}
			if err := mark(child.Index); err != nil {
				return err
			}
			if err := v.checkChunks(child, mark); err != nil {
				return err
			}
		}
		return nil
	}
	if err := checkDir(v.root, root); err != nil {
		return err
	}

	for i := range reached {
		if reached[i] != v.table.IsSet(block.Index(i)) {
			if reached[i] {
				return fmt.Errorf("%w: block %d in use but marked free", ErrCorrupt, i)
			}
			return fmt.Errorf("%w: block %d marked in use but unreachable", ErrCorrupt, i)
		}
	}
	return nil
}

func (v *Volume) checkChunks(file FileEntry, mark func(block.Index) error) error {
	chain, err := v.chunkChain(file.File)
	if err != nil {
		return fmt.Errorf("%w: file %q: %v", ErrCorrupt, file.Name, err)
	}
	if len(chain) != int(file.Chunks) {
		return fmt.Errorf("%w: file %q counts %d chunks, chain holds %d", ErrCorrupt, file.Name, file.Chunks, len(chain))
	}
	for k, chunk := range chain {
		if k < len(chain)-1 && chunk.Size != block.ChunkSize {
			return fmt.Errorf("%w: file %q chunk %d holds %d bytes before the last chunk", ErrCorrupt, file.Name, k, chunk.Size)
		}
		if err := mark(chunk.Index); err != nil {
			return err
		}
		if err := mark(chunk.Data); err != nil {
			return err
		}
		if v.store.Kind(chunk.Data) != block.KindChunkData {
			return fmt.Errorf("%w: file %q chunk %d data block %d is %s", ErrCorrupt, file.Name, k, chunk.Data, v.store.Kind(chunk.Data))
		}
	}
	return nil
}
