package main

import (
	"github.com/rstms/cfs/image"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type app struct {
	fs  afero.Fs
	v   *viper.Viper
	log *zap.Logger
}

func newRootCommand(fs afero.Fs) *cobra.Command {
	a := &app{
		fs:  fs,
		v:   newViper(fs),
		log: zap.NewNop(),
	}
	root := &cobra.Command{
		Use:   "cfs",
		Short: "block-addressed filesystem image tool",
		Long: `cfs creates and edits filesystem images made of fixed-size blocks.
Directories, files and file content chunks each occupy one block.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	addGlobalFlags(root.PersistentFlags())
	cobra.CheckErr(bindFlags(a.v, root.PersistentFlags()))

	root.AddCommand(
		a.initCommand(),
		a.mkdirCommand(),
		a.touchCommand(),
		a.writeCommand(),
		a.catCommand(),
		a.sumCommand(),
		a.rmCommand(),
		a.lsCommand(),
		a.treeCommand(),
		a.checkCommand(),
		a.batCommand(),
		a.infoCommand(),
		a.rewriteCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	err := readConfig(a.v)
	if err != nil {
		return err
	}
	a.log, err = newLogger(a.v.GetString(keyLogLevel))
	if err != nil {
		return err
	}
	return nil
}

// imageOptions maps the configuration to image options. The block count
// only applies to images being built; an opened image keeps its own.
func (a *app) imageOptions(build bool) ([]image.Option, error) {
	opts := []image.Option{
		image.WithFs(a.fs),
		image.WithLogger(a.log),
	}
	if n := a.v.GetInt(keyMaxBlocks); build && n > 0 {
		opts = append(opts, image.WithMaxBlocks(n))
	}
	if name := a.v.GetString(keyCompress); name != "" {
		codec, err := image.ParseCodec(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, image.WithCompression(codec))
	}
	return opts, nil
}

func (a *app) openImage() (*image.Image, error) {
	opts, err := a.imageOptions(false)
	if err != nil {
		return nil, err
	}
	return image.OpenImage(a.v.GetString(keyImage), opts...)
}

// update opens the image, applies fn and saves the result. Nothing is
// saved when fn fails.
func (a *app) update(fn func(*image.Image) error) error {
	img, err := a.openImage()
	if err != nil {
		return err
	}
	err = fn(img)
	if err != nil {
		return err
	}
	return img.Close()
}
