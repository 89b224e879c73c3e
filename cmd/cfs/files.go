package main

import (
	"fmt"
	"io"

	"github.com/rstms/cfs/image"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"
)

func (a *app) mkdirCommand() *cobra.Command {
	var parents bool
	cmd := &cobra.Command{
		Use:   "mkdir PATH...",
		Short: "create directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(func(img *image.Image) error {
				for _, arg := range args {
					mkdir := img.Mkdir
					if parents {
						mkdir = img.MkdirAll
					}
					if err := mkdir(arg); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&parents, "parents", "p", false, "create missing parents, no error if existing")
	return cmd
}

func (a *app) touchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "touch PATH...",
		Short: "create empty files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(func(img *image.Image) error {
				for _, arg := range args {
					if err := img.Touch(arg); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func (a *app) writeCommand() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "write PATH [SOURCE|-]",
		Short: "append to a file, creating it if needed",
		Long: `write appends to PATH in the image. The data comes from --data,
the host file SOURCE, or standard input when SOURCE is - or missing.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			switch {
			case cmd.Flags().Changed("data"):
				data = []byte(text)
			case len(args) == 1 || args[1] == "-":
				data, err = io.ReadAll(cmd.InOrStdin())
			default:
				data, err = afero.ReadFile(a.fs, args[1])
			}
			if err != nil {
				return Fatal(err)
			}
			return a.update(func(img *image.Image) error {
				return img.WriteFile(args[0], data)
			})
		},
	}
	cmd.Flags().StringVarP(&text, "data", "d", "", "literal data to append")
	return cmd
}

func (a *app) catCommand() *cobra.Command {
	var digest bool
	cmd := &cobra.Command{
		Use:   "cat PATH...",
		Short: "print file contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			for _, arg := range args {
				data, err := img.ReadFile(arg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				if err != nil {
					return Fatal(err)
				}
				if digest {
					fmt.Fprintf(cmd.ErrOrStderr(), "blake3 %x  %s\n", blake3.Sum256(data), arg)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&digest, "digest", false, "also print the BLAKE3 digest of each file to stderr")
	return cmd
}

func (a *app) sumCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sum PATH...",
		Short: "print BLAKE3 digests of file contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			for _, arg := range args {
				data, err := img.ReadFile(arg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%x  %s\n", blake3.Sum256(data), arg)
			}
			return nil
		},
	}
}

func (a *app) rmCommand() *cobra.Command {
	var recursive, fileOnly bool
	cmd := &cobra.Command{
		Use:   "rm PATH...",
		Short: "remove files and directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.update(func(img *image.Image) error {
				for _, arg := range args {
					remove := func(name string) error {
						return img.Remove(name, recursive)
					}
					if fileOnly {
						remove = img.RemoveFile
					}
					if err := remove(arg); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories and their contents")
	cmd.Flags().BoolVar(&fileOnly, "file", false, "remove the file of each name even when a directory shares it")
	return cmd
}
