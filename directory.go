package cfs

import (
	"io"

	"github.com/rstms/cfs/block"
)

// Directory is an entry in a filesystem that stores files.
type Directory interface {
	Index() block.Index
	Entry(name string) DirectoryEntry
	Entries() []DirectoryEntry
	AddDirectory(name string) (DirectoryEntry, error)
	AddFile(name string) (DirectoryEntry, error)
	Remove(name string) error
}

// DirectoryEntry represents a single entry within a directory,
// which can be either another Directory or a File.
type DirectoryEntry interface {
	Name() string
	Index() block.Index
	IsDir() bool
	Dir() (Directory, error)
	File() (File, error)
}

// File is the content of a file entry. Writes always append.
type File interface {
	io.Writer
	ReadAll() ([]byte, error)
	Size() (int64, error)
}
