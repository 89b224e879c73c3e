package volume

import (
	"fmt"
	"strings"

	"github.com/rstms/cfs/block"
	"go.uber.org/zap"
)

// FileEntry is a file record together with its block index.
type FileEntry struct {
	Index block.Index
	block.File
}

// DirEntry is a directory record together with its block index.
type DirEntry struct {
	Index block.Index
	block.Dir
}

// Listing holds the children of a directory in list order, newest first.
type Listing struct {
	Files []FileEntry
	Dirs  []DirEntry
}

func checkName(name string) error {
	if len(name) > block.MaxNameLen {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrNameTooLong, len(name), block.MaxNameLen)
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// CreateFile adds an empty file named name to directory parent. The file
// starts with one empty chunk.
func (v *Volume) CreateFile(parent block.Index, name string) (block.Index, error) {
	if err := checkName(name); err != nil {
		return block.Nil, err
	}
	dir, err := v.store.Dir(parent)
	if err != nil {
		return block.Nil, err
	}
	files, err := v.fileChain(dir)
	if err != nil {
		return block.Nil, err
	}
	for _, entry := range files {
		if entry.Name == name {
			return block.Nil, fmt.Errorf("%w: file %q", ErrExists, name)
		}
	}

	blocks, err := v.allocate(3)
	if err != nil {
		return block.Nil, err
	}
	index, header, data := blocks[0], blocks[1], blocks[2]

	if err := v.store.PutData(data); err != nil {
		return block.Nil, err
	}
	err = v.store.PutChunkHeader(header, block.ChunkHeader{
		Size: 0,
		Next: block.Nil,
		Data: data,
	})
	if err != nil {
		return block.Nil, err
	}
	err = v.store.PutFile(index, block.File{
		Name:   name,
		Parent: parent,
		Next:   dir.FirstFile,
		Chunks: 1,
		Start:  header,
	})
	if err != nil {
		return block.Nil, err
	}

	dir.Files++
	dir.FirstFile = index
	if err := v.store.PutDir(parent, dir); err != nil {
		return block.Nil, err
	}
	v.log.Debug("file created", zap.String("name", name), zap.Uint32("index", uint32(index)), zap.Uint32("parent", uint32(parent)))
	return index, nil
}

// CreateDir adds an empty directory named name to directory parent.
func (v *Volume) CreateDir(parent block.Index, name string) (block.Index, error) {
	if err := checkName(name); err != nil {
		return block.Nil, err
	}
	dir, err := v.store.Dir(parent)
	if err != nil {
		return block.Nil, err
	}
	dirs, err := v.dirChain(dir)
	if err != nil {
		return block.Nil, err
	}
	for _, entry := range dirs {
		if entry.Name == name {
			return block.Nil, fmt.Errorf("%w: directory %q", ErrExists, name)
		}
	}

	blocks, err := v.allocate(1)
	if err != nil {
		return block.Nil, err
	}
	index := blocks[0]
	err = v.store.PutDir(index, block.Dir{
		Name:      name,
		Parent:    parent,
		Next:      dir.FirstDir,
		FirstFile: block.Nil,
		FirstDir:  block.Nil,
	})
	if err != nil {
		return block.Nil, err
	}

	dir.Directories++
	dir.FirstDir = index
	if err := v.store.PutDir(parent, dir); err != nil {
		return block.Nil, err
	}
	v.log.Debug("directory created", zap.String("name", name), zap.Uint32("index", uint32(index)), zap.Uint32("parent", uint32(parent)))
	return index, nil
}

// RemoveFile unlinks a file from its directory and frees its record and
// every chunk.
func (v *Volume) RemoveFile(index block.Index) error {
	file, err := v.store.File(index)
	if err != nil {
		return err
	}
	parent, err := v.store.Dir(file.Parent)
	if err != nil {
		return err
	}
	chunks, err := v.chunkChain(file)
	if err != nil {
		return err
	}

	siblings, err := v.fileChain(parent)
	if err != nil {
		return err
	}
	// names are unique per kind within a parent, so matching the index
	// finds the same sibling a name match would
	pos := -1
	for k, sibling := range siblings {
		if sibling.Index == index {
			pos = k
			break
		}
	}
	switch {
	case pos < 0:
		return fmt.Errorf("%w: file %d missing from directory %d", ErrCorrupt, index, file.Parent)
	case pos == 0:
		parent.FirstFile = file.Next
	default:
		prev := siblings[pos-1]
		prev.Next = file.Next
		if err := v.store.PutFile(prev.Index, prev.File); err != nil {
			return err
		}
	}
	parent.Files--
	if err := v.store.PutDir(file.Parent, parent); err != nil {
		return err
	}

	for _, chunk := range chunks {
		v.release(chunk.Data)
		v.release(chunk.Index)
	}
	v.release(index)
	v.log.Debug("file removed", zap.String("name", file.Name), zap.Uint32("index", uint32(index)), zap.Int("chunks", len(chunks)))
	return nil
}

// RemoveDir removes a directory and everything below it.
func (v *Volume) RemoveDir(index block.Index) error {
	if index == v.root {
		return ErrRoot
	}
	dir, err := v.store.Dir(index)
	if err != nil {
		return err
	}

	// collect both child lists before removing anything; removal rewrites
	// the next links being walked
	dirs, err := v.dirChain(dir)
	if err != nil {
		return err
	}
	files, err := v.fileChain(dir)
	if err != nil {
		return err
	}
	for _, child := range dirs {
		if err := v.RemoveDir(child.Index); err != nil {
			return err
		}
	}
	for _, child := range files {
		if err := v.RemoveFile(child.Index); err != nil {
			return err
		}
	}

	dir, err = v.store.Dir(index)
	if err != nil {
		return err
	}
	parent, err := v.store.Dir(dir.Parent)
	if err != nil {
		return err
	}
	siblings, err := v.dirChain(parent)
	if err != nil {
		return err
	}
	// names are unique per kind within a parent, so matching the index
	// finds the same sibling a name match would
	pos := -1
	for k, sibling := range siblings {
		if sibling.Index == index {
			pos = k
			break
		}
	}
	switch {
	case pos < 0:
		return fmt.Errorf("%w: directory %d missing from directory %d", ErrCorrupt, index, dir.Parent)
	case pos == 0:
		parent.FirstDir = dir.Next
	default:
		prev := siblings[pos-1]
		prev.Next = dir.Next
		if err := v.store.PutDir(prev.Index, prev.Dir); err != nil {
			return err
		}
	}
	parent.Directories--
	if err := v.store.PutDir(dir.Parent, parent); err != nil {
		return err
	}

	v.release(index)
	v.log.Debug("directory removed", zap.String("name", dir.Name), zap.Uint32("index", uint32(index)))
	return nil
}

// ListDir returns the files and subdirectories of a directory.
func (v *Volume) ListDir(index block.Index) (Listing, error) {
	dir, err := v.store.Dir(index)
	if err != nil {
		return Listing{}, err
	}
	files, err := v.fileChain(dir)
	if err != nil {
		return Listing{}, err
	}
	dirs, err := v.dirChain(dir)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Files: files, Dirs: dirs}, nil
}

// Lookup finds a child of a directory by name. Subdirectories are
// searched before files.
func (v *Volume) Lookup(parent block.Index, name string) (block.Index, block.Kind, error) {
	listing, err := v.ListDir(parent)
	if err != nil {
		return block.Nil, block.KindFree, err
	}
	for _, entry := range listing.Dirs {
		if entry.Name == name {
			return entry.Index, block.KindDir, nil
		}
	}
	for _, entry := range listing.Files {
		if entry.Name == name {
			return entry.Index, block.KindFile, nil
		}
	}
	return block.Nil, block.KindFree, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// fileChain walks a directory's file list. A list longer than the store
// can only be a cycle.
func (v *Volume) fileChain(dir block.Dir) ([]FileEntry, error) {
	entries := make([]FileEntry, 0, min(int(dir.Files), v.store.Len()))
	for i := dir.FirstFile; i != block.Nil; {
		if len(entries) >= v.store.Len() {
			return nil, fmt.Errorf("%w: file list of %q does not terminate", ErrCorrupt, dir.Name)
		}
		file, err := v.store.File(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, FileEntry{Index: i, File: file})
		i = file.Next
	}
	return entries, nil
}

func (v *Volume) dirChain(dir block.Dir) ([]DirEntry, error) {
	entries := make([]DirEntry, 0, min(int(dir.Directories), v.store.Len()))
	for i := dir.FirstDir; i != block.Nil; {
		if len(entries) >= v.store.Len() {
			return nil, fmt.Errorf("%w: directory list of %q does not terminate", ErrCorrupt, dir.Name)
		}
		child, err := v.store.Dir(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{Index: i, Dir: child})
		i = child.Next
	}
	return entries, nil
}
