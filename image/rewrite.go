package image

import (
	"fmt"

	"github.com/rstms/cfs"
	"go.uber.org/zap"
)

// RewriteImage builds dstFile as a fresh copy of the tree in srcFile.
// Blocks are taken lowest first with nothing freed along the way, so the
// copy is compacted. dstFile is written only once the copy succeeds and
// may be srcFile itself. Block count and compression default to the
// source's unless set in opts.
func RewriteImage(dstFile, srcFile string, opts ...Option) error {
	o := buildOptions(opts)
	src, err := OpenImage(srcFile, WithFs(o.fs), WithLogger(o.logger))
	if err != nil {
		return err
	}
	defer src.Close()

	dstOpts := append([]Option{
		WithMaxBlocks(src.vol.MaxBlocks()),
		WithCompression(src.codec),
	}, opts...)
	// nothing reaches dstFile until the whole tree has been copied
	dst, err := newImage(dstFile, buildOptions(dstOpts))
	if err != nil {
		return err
	}

	srcRoot, err := src.RootDir()
	if err != nil {
		return err
	}
	dstRoot, err := dst.RootDir()
	if err != nil {
		return err
	}
	err = copyTree(dstRoot, srcRoot)
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", srcFile, err)
	}
	err = dst.Save()
	if err != nil {
		return err
	}
	o.logger.Info("image rewritten",
		zap.String("src", srcFile),
		zap.String("dst", dstFile),
		zap.Int("src_used", src.vol.UsedBlocks()),
		zap.Int("dst_used", dst.vol.UsedBlocks()))
	return nil
}

// copyTree copies the children of src into dst. Lists grow at the head,
// so children are added in reverse to keep their order.
func copyTree(dst, src cfs.Directory) error {
	entries := src.Entries()
	for k := len(entries) - 1; k >= 0; k-- {
		entry := entries[k]
		if entry.IsDir() {
			srcDir, err := entry.Dir()
			if err != nil {
				return err
			}
			added, err := dst.AddDirectory(entry.Name())
			if err != nil {
				return err
			}
			dstDir, err := added.Dir()
			if err != nil {
				return err
			}
			if err := copyTree(dstDir, srcDir); err != nil {
				return err
			}
			continue
		}
		srcFile, err := entry.File()
		if err != nil {
			return err
		}
		data, err := srcFile.ReadAll()
		if err != nil {
			return err
		}
		added, err := dst.AddFile(entry.Name())
		if err != nil {
			return err
		}
		dstFile, err := added.File()
		if err != nil {
			return err
		}
		if _, err := dstFile.Write(data); err != nil {
			return err
		}
	}
	return nil
}
