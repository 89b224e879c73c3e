package block

import (
	"fmt"
)

// Store is a fixed array of slots. Each slot is tagged with the kind of
// record last written to it and every typed access checks that tag.
// The store owns no allocation policy.
type Store struct {
	slots []Slot
	kinds []Kind
}

func NewStore(n int) *Store {
	return &Store{
		slots: make([]Slot, n),
		kinds: make([]Kind, n),
	}
}

func (s *Store) Len() int {
	return len(s.slots)
}

func (s *Store) Contains(i Index) bool {
	return i != Nil && int64(i) < int64(len(s.slots))
}

func (s *Store) check(i Index, kind Kind) error {
	if !s.Contains(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	if s.kinds[i] != kind {
		return fmt.Errorf("%w: block %d is %s, want %s", ErrWrongKind, i, s.kinds[i], kind)
	}
	return nil
}

// Kind returns the tag of slot i, or KindFree when i is out of range.
func (s *Store) Kind(i Index) Kind {
	if !s.Contains(i) {
		return KindFree
	}
	return s.kinds[i]
}

// SetKind retags slot i without touching its bytes. It is used when
// rebuilding tags for a loaded image.
func (s *Store) SetKind(i Index, kind Kind) error {
	if !s.Contains(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	s.kinds[i] = kind
	return nil
}

// Release tags slot i as free. Its bytes are left as they were.
func (s *Store) Release(i Index) {
	if s.Contains(i) {
		s.kinds[i] = KindFree
	}
}

// Raw exposes the bytes of slot i regardless of its kind.
func (s *Store) Raw(i Index) *Slot {
	return &s.slots[i]
}

func (s *Store) Dir(i Index) (Dir, error) {
	if err := s.check(i, KindDir); err != nil {
		return Dir{}, err
	}
	return decodeDir(&s.slots[i]), nil
}

func (s *Store) PutDir(i Index, d Dir) error {
	if !s.Contains(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	d.encode(&s.slots[i])
	s.kinds[i] = KindDir
	return nil
}

func (s *Store) File(i Index) (File, error) {
	if err := s.check(i, KindFile); err != nil {
		return File{}, err
	}
	return decodeFile(&s.slots[i]), nil
}

func (s *Store) PutFile(i Index, f File) error {
	if !s.Contains(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	f.encode(&s.slots[i])
	s.kinds[i] = KindFile
	return nil
}

func (s *Store) ChunkHeader(i Index) (ChunkHeader, error) {
	if err := s.check(i, KindChunkHeader); err != nil {
		return ChunkHeader{}, err
	}
	return decodeChunkHeader(&s.slots[i]), nil
}

func (s *Store) PutChunkHeader(i Index, h ChunkHeader) error {
	if !s.Contains(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	h.encode(&s.slots[i])
	s.kinds[i] = KindChunkHeader
	return nil
}

// Data returns the chunk buffer of slot i. Writes to the returned slice
// go straight into the store.
func (s *Store) Data(i Index) ([]byte, error) {
	if err := s.check(i, KindChunkData); err != nil {
		return nil, err
	}
	return s.slots[i][:], nil
}

// PutData zeroes slot i and tags it as chunk data.
func (s *Store) PutData(i Index) error {
	if !s.Contains(i) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	s.slots[i] = Slot{}
	s.kinds[i] = KindChunkData
	return nil
}
