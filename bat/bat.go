// Package bat implements the block allocation table: one bit per block,
// set while the block is in use.
package bat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rstms/cfs/block"
)

var ErrExhausted = errors.New("no free blocks")

// Table is the allocation bitmap. Bit i%8 of byte i/8 tracks block i.
type Table struct {
	bits []byte
	n    int
}

// Size returns the bitmap length in bytes for n blocks.
func Size(n int) int {
	return (n + 1 + 7) / 8
}

// New returns an empty table tracking n blocks.
func New(n int) *Table {
	return &Table{
		bits: make([]byte, Size(n)),
		n:    n,
	}
}

// FromBytes builds a table over a copy of a persisted bitmap.
func FromBytes(b []byte, n int) (*Table, error) {
	if len(b) != Size(n) {
		return nil, fmt.Errorf("bitmap is %d bytes, want %d", len(b), Size(n))
	}
	t := New(n)
	copy(t.bits, b)
	return t, nil
}

// Len returns the number of blocks tracked.
func (t *Table) Len() int {
	return t.n
}

// Bytes returns the bitmap as stored in an image.
func (t *Table) Bytes() []byte {
	return t.bits
}

func (t *Table) IsSet(i block.Index) bool {
	if int64(i) >= int64(t.n) {
		return false
	}
	return t.bits[i/8]&(1<<(i%8)) != 0
}

// Allocate marks the lowest free block as used and returns its index.
func (t *Table) Allocate() (block.Index, error) {
	for byt := range t.bits {
		if t.bits[byt] == 0xFF {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			i := byt*8 + bit
			if i >= t.n {
				return block.Nil, ErrExhausted
			}
			if t.bits[byt]&(1<<bit) == 0 {
				t.bits[byt] |= 1 << bit
				return block.Index(i), nil
			}
		}
	}
	return block.Nil, ErrExhausted
}

// Free clears the bit for block i. The caller must already have
// dropped every reference to it.
func (t *Table) Free(i block.Index) {
	if int64(i) >= int64(t.n) {
		return
	}
	t.bits[i/8] &^= 1 << (i % 8)
}

// Used returns the number of allocated blocks.
func (t *Table) Used() int {
	used := 0
	for i := 0; i < t.n; i++ {
		if t.IsSet(block.Index(i)) {
			used++
		}
	}
	return used
}

// String renders the table in index order, eight blocks per group,
// followed by the number of used blocks.
func (t *Table) String() string {
	var b strings.Builder
	for i := 0; i < t.n; i++ {
		if i > 0 && i%8 == 0 {
			b.WriteByte(' ')
		}
		if t.IsSet(block.Index(i)) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	fmt.Fprintf(&b, " (total:%d)", t.Used())
	return b.String()
}
