// Package volume implements the cfs filesystem image: a block store and
// its allocation table holding a tree of directories and files whose
// content lives in chains of fixed-size chunks.
//
// A Volume is a plain value owned by its caller. It does no locking;
// callers sharing one between goroutines must serialize access.
package volume

import (
	"errors"
	"fmt"

	"github.com/rstms/cfs/bat"
	"github.com/rstms/cfs/block"
	"go.uber.org/zap"
)

const DefaultMaxBlocks = 32

var (
	ErrExhausted      = bat.ErrExhausted
	ErrWrongKind      = block.ErrWrongKind
	ErrOutOfRange     = block.ErrOutOfRange
	ErrNameTooLong    = errors.New("name too long")
	ErrInvalidName    = errors.New("invalid name")
	ErrExists         = errors.New("name already exists")
	ErrNotFound       = errors.New("not found")
	ErrRoot           = errors.New("root directory cannot be removed")
	ErrTruncatedImage = errors.New("truncated image")
	ErrBadMagic       = errors.New("bad image magic")
	ErrCorrupt        = errors.New("corrupt image")
)

// NotFoundError reports a path that resolved only partway. Index is the
// last node that did resolve.
type NotFoundError struct {
	Path    string
	Segment string
	Index   block.Index
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%q not found resolving %q (stopped at block %d)", e.Segment, e.Path, e.Index)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type options struct {
	maxBlocks int
	logger    *zap.Logger
}

type Option func(*options)

// WithMaxBlocks sets the number of blocks in the image. An image must be
// loaded with the same value it was created with.
func WithMaxBlocks(n int) Option {
	return func(o *options) {
		o.maxBlocks = n
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) (options, error) {
	o := options{
		maxBlocks: DefaultMaxBlocks,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxBlocks < 1 || int64(o.maxBlocks) >= int64(block.Nil) {
		return o, fmt.Errorf("invalid block count %d", o.maxBlocks)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o, nil
}

// Volume is one filesystem image.
type Volume struct {
	root  block.Index
	table *bat.Table
	store *block.Store
	log   *zap.Logger
}

// New returns an empty image holding only the root directory.
func New(opts ...Option) (*Volume, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	v := &Volume{
		table: bat.New(o.maxBlocks),
		store: block.NewStore(o.maxBlocks),
		log:   o.logger,
	}
	v.root, err = v.table.Allocate()
	if err != nil {
		return nil, err
	}
	err = v.store.PutDir(v.root, block.Dir{
		Name:      "root",
		Parent:    v.root,
		Next:      block.Nil,
		FirstFile: block.Nil,
		FirstDir:  block.Nil,
	})
	if err != nil {
		return nil, err
	}
	v.log.Debug("volume initialized", zap.Int("max_blocks", o.maxBlocks))
	return v, nil
}

func (v *Volume) Root() block.Index {
	return v.root
}

func (v *Volume) MaxBlocks() int {
	return v.store.Len()
}

// Kind returns the record kind stored at i.
func (v *Volume) Kind(i block.Index) block.Kind {
	return v.store.Kind(i)
}

func (v *Volume) Dir(i block.Index) (block.Dir, error) {
	return v.store.Dir(i)
}

func (v *Volume) File(i block.Index) (block.File, error) {
	return v.store.File(i)
}

func (v *Volume) ChunkHeader(i block.Index) (block.ChunkHeader, error) {
	return v.store.ChunkHeader(i)
}

// UsedBlocks returns the number of allocated blocks.
func (v *Volume) UsedBlocks() int {
	return v.table.Used()
}

// Bitmap renders the allocation table.
func (v *Volume) Bitmap() string {
	return v.table.String()
}

// IsAllocated reports the allocation bit of block i.
func (v *Volume) IsAllocated(i block.Index) bool {
	return v.table.IsSet(i)
}

// allocate takes n blocks or none: on failure every block already taken
// is returned to the table.
func (v *Volume) allocate(n int) ([]block.Index, error) {
	blocks := make([]block.Index, 0, n)
	for len(blocks) < n {
		i, err := v.table.Allocate()
		if err != nil {
			for _, taken := range blocks {
				v.table.Free(taken)
			}
			v.log.Debug("allocation failed", zap.Int("wanted", n), zap.Int("got", len(blocks)))
			return nil, err
		}
		blocks = append(blocks, i)
	}
	return blocks, nil
}

func (v *Volume) release(i block.Index) {
	v.store.Release(i)
	v.table.Free(i)
}
