package volume

import (
	"fmt"

	"github.com/rstms/cfs"
	"github.com/rstms/cfs/block"
)

// Directory implements cfs.Directory for one directory record.
type Directory struct {
	vol   *Volume
	index block.Index
}

// ensure Directory implements cfs.Directory
var _ cfs.Directory = (*Directory)(nil)

// DirectoryEntry implements cfs.DirectoryEntry and represents a single
// file or subdirectory of a Directory.
type DirectoryEntry struct {
	dir   *Directory
	index block.Index
	name  string
	kind  block.Kind
}

// ensure DirectoryEntry implements cfs.DirectoryEntry
var _ cfs.DirectoryEntry = (*DirectoryEntry)(nil)

// File implements cfs.File on a file's chunk chain.
type File struct {
	vol   *Volume
	index block.Index
}

// ensure File implements cfs.File
var _ cfs.File = (*File)(nil)

func (d *Directory) Index() block.Index {
	return d.index
}

// Entries returns subdirectories followed by files, each in list order.
func (d *Directory) Entries() []cfs.DirectoryEntry {
	listing, err := d.vol.ListDir(d.index)
	if err != nil {
		return nil
	}
	result := make([]cfs.DirectoryEntry, 0, len(listing.Dirs)+len(listing.Files))
	for _, entry := range listing.Dirs {
		result = append(result, &DirectoryEntry{dir: d, index: entry.Index, name: entry.Name, kind: block.KindDir})
	}
	for _, entry := range listing.Files {
		result = append(result, &DirectoryEntry{dir: d, index: entry.Index, name: entry.Name, kind: block.KindFile})
	}
	return result
}

func (d *Directory) Entry(name string) cfs.DirectoryEntry {
	index, kind, err := d.vol.Lookup(d.index, name)
	if err != nil {
		return nil
	}
	return &DirectoryEntry{dir: d, index: index, name: name, kind: kind}
}

func (d *Directory) AddDirectory(name string) (cfs.DirectoryEntry, error) {
	index, err := d.vol.CreateDir(d.index, name)
	if err != nil {
		return nil, err
	}
	return &DirectoryEntry{dir: d, index: index, name: name, kind: block.KindDir}, nil
}

func (d *Directory) AddFile(name string) (cfs.DirectoryEntry, error) {
	index, err := d.vol.CreateFile(d.index, name)
	if err != nil {
		return nil, err
	}
	return &DirectoryEntry{dir: d, index: index, name: name, kind: block.KindFile}, nil
}

// Remove deletes the named child. A directory goes with everything
// below it.
func (d *Directory) Remove(name string) error {
	index, kind, err := d.vol.Lookup(d.index, name)
	if err != nil {
		return err
	}
	if kind == block.KindDir {
		return d.vol.RemoveDir(index)
	}
	return d.vol.RemoveFile(index)
}

func (e *DirectoryEntry) Name() string {
	return e.name
}

func (e *DirectoryEntry) Index() block.Index {
	return e.index
}

func (e *DirectoryEntry) IsDir() bool {
	return e.kind == block.KindDir
}

func (e *DirectoryEntry) Dir() (cfs.Directory, error) {
	if !e.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrWrongKind, e.name)
	}
	result := &Directory{
		vol:   e.dir.vol,
		index: e.index,
	}
	return result, nil
}

func (e *DirectoryEntry) File() (cfs.File, error) {
	if e.IsDir() {
		return nil, fmt.Errorf("%w: %q is a directory", ErrWrongKind, e.name)
	}
	result := &File{
		vol:   e.dir.vol,
		index: e.index,
	}
	return result, nil
}

// Write appends p to the file. It writes all of p or nothing.
func (f *File) Write(p []byte) (int, error) {
	if err := f.vol.Write(f.index, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *File) ReadAll() ([]byte, error) {
	return f.vol.Read(f.index)
}

func (f *File) Size() (int64, error) {
	return f.vol.Size(f.index)
}
