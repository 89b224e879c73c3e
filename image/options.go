package image

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type options struct {
	fs        afero.Fs
	maxBlocks int
	codec     Codec
	codecSet  bool
	logger    *zap.Logger
}

type Option func(*options)

// WithFs sets the filesystem holding the image file and any host files
// it imports. The default is the operating system filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithMaxBlocks sets the block count of a new image. Opening an image
// infers the count from the image size unless this is given.
func WithMaxBlocks(n int) Option {
	return func(o *options) {
		o.maxBlocks = n
	}
}

// WithCompression sets the codec used when the image is saved. An
// opened image keeps the codec it was read with unless this is given.
func WithCompression(c Codec) Option {
	return func(o *options) {
		o.codec = c
		o.codecSet = true
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(opts []Option) options {
	o := options{
		fs:     afero.NewOsFs(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
