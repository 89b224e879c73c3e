package block

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Index identifies a block slot. It is the only way records refer to
// each other.
type Index uint32

// Nil marks the absence of a link. It never collides with a real
// index, including the root's index 0.
const Nil Index = 0xFFFFFFFF

// Root is the fixed index of the root directory.
const Root Index = 0

const (
	NameSize   = 128
	MaxNameLen = NameSize - 1 // room for the NUL terminator
	ChunkSize  = 256
	SlotSize   = ChunkSize
)

// on-disk record sizes
const (
	dirRecordSize         = NameSize + 6*4
	fileRecordSize        = NameSize + 4*4
	chunkHeaderRecordSize = 3 * 4
)

var (
	ErrWrongKind  = errors.New("block kind mismatch")
	ErrOutOfRange = errors.New("block index out of range")
)

// Kind is the record type held by a slot. Kinds are tracked in memory
// only; a persisted slot is interpreted by whoever links to it.
type Kind uint8

const (
	KindFree Kind = iota
	KindDir
	KindFile
	KindChunkHeader
	KindChunkData
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	case KindChunkHeader:
		return "chunk-header"
	case KindChunkData:
		return "chunk-data"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Slot is the raw storage of one block.
type Slot [SlotSize]byte

// Dir is a directory record.
type Dir struct {
	Name        string
	Parent      Index
	Next        Index
	Files       uint32
	FirstFile   Index
	Directories uint32
	FirstDir    Index
}

// File is a file record.
type File struct {
	Name   string
	Parent Index
	Next   Index
	Chunks uint32
	Start  Index
}

// ChunkHeader carries the used length of its paired data block and the
// link to the next chunk of the file.
type ChunkHeader struct {
	Size uint32
	Next Index
	Data Index
}

func putName(b []byte, name string) {
	field := b[:NameSize]
	for i := range field {
		field[i] = 0
	}
	copy(field[:MaxNameLen], name)
}

func getName(b []byte) string {
	n := 0
	for n < NameSize && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func putUint32s(b []byte, values ...uint32) {
	for i, value := range values {
		binary.LittleEndian.PutUint32(b[i*4:], value)
	}
}

func getUint32(b []byte, field int) uint32 {
	return binary.LittleEndian.Uint32(b[field*4:])
}

func (d *Dir) encode(s *Slot) {
	putName(s[:], d.Name)
	putUint32s(s[NameSize:dirRecordSize],
		uint32(d.Parent), uint32(d.Next),
		d.Files, uint32(d.FirstFile),
		d.Directories, uint32(d.FirstDir))
}

func decodeDir(s *Slot) Dir {
	b := s[NameSize:dirRecordSize]
	return Dir{
		Name:        getName(s[:]),
		Parent:      Index(getUint32(b, 0)),
		Next:        Index(getUint32(b, 1)),
		Files:       getUint32(b, 2),
		FirstFile:   Index(getUint32(b, 3)),
		Directories: getUint32(b, 4),
		FirstDir:    Index(getUint32(b, 5)),
	}
}

func (f *File) encode(s *Slot) {
	putName(s[:], f.Name)
	putUint32s(s[NameSize:fileRecordSize],
		uint32(f.Parent), uint32(f.Next), f.Chunks, uint32(f.Start))
}

func decodeFile(s *Slot) File {
	b := s[NameSize:fileRecordSize]
	return File{
		Name:   getName(s[:]),
		Parent: Index(getUint32(b, 0)),
		Next:   Index(getUint32(b, 1)),
		Chunks: getUint32(b, 2),
		Start:  Index(getUint32(b, 3)),
	}
}

func (h *ChunkHeader) encode(s *Slot) {
	putUint32s(s[:chunkHeaderRecordSize], h.Size, uint32(h.Next), uint32(h.Data))
}

func decodeChunkHeader(s *Slot) ChunkHeader {
	return ChunkHeader{
		Size: getUint32(s[:], 0),
		Next: Index(getUint32(s[:], 1)),
		Data: Index(getUint32(s[:], 2)),
	}
}
