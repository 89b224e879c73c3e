package main

import (
	"fmt"

	"github.com/rstms/cfs/image"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create an empty image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filename := a.v.GetString(keyImage)
			exists, err := afero.Exists(a.fs, filename)
			if err != nil {
				return Fatal(err)
			}
			if exists && !force {
				return Fatalf("image %s exists; use --force to replace it", filename)
			}
			opts, err := a.imageOptions(true)
			if err != nil {
				return err
			}
			img, err := image.CreateImage(filename, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s: %d blocks, %s\n", filename, img.Volume().MaxBlocks(), img.Codec())
			return img.Close()
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing image")
	return cmd
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "verify image structure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			err = img.Check()
			if err != nil {
				return err
			}
			vol := img.Volume()
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d of %d blocks in use\n", vol.UsedBlocks(), vol.MaxBlocks())
			return nil
		},
	}
}

func (a *app) batCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bat",
		Short: "print the block allocation table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), img.Bitmap())
			return nil
		},
	}
}

func (a *app) infoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "print image geometry and usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			info, err := img.Info()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(info)
		},
	}
}

func (a *app) rewriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite DST",
		Short: "copy the image tree into a fresh, compacted image",
		Long: `rewrite copies every directory and file of the image into DST.
--max-blocks and --compress change the geometry and codec of the copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.imageOptions(true)
			if err != nil {
				return err
			}
			return image.RewriteImage(args[0], a.v.GetString(keyImage), opts...)
		},
	}
}
