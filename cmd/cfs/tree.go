package main

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/rstms/cfs"
	"github.com/rstms/cfs/image"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// treeNode is one entry of the tree listing in its structured formats.
type treeNode struct {
	Name     string      `yaml:"name" cbor:"name"`
	Dir      bool        `yaml:"dir" cbor:"dir"`
	Block    uint32      `yaml:"block" cbor:"block"`
	Size     int64       `yaml:"size,omitempty" cbor:"size,omitempty"`
	Children []*treeNode `yaml:"children,omitempty" cbor:"children,omitempty"`
}

func buildTree(name string, index uint32, dir cfs.Directory) (*treeNode, error) {
	node := &treeNode{Name: name, Dir: true, Block: index}
	for _, entry := range dir.Entries() {
		if entry.IsDir() {
			subdir, err := entry.Dir()
			if err != nil {
				return nil, err
			}
			child, err := buildTree(entry.Name(), uint32(entry.Index()), subdir)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
			continue
		}
		file, err := entry.File()
		if err != nil {
			return nil, err
		}
		size, err := file.Size()
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, &treeNode{Name: entry.Name(), Block: uint32(entry.Index()), Size: size})
	}
	return node, nil
}

func writeTreeText(w io.Writer, node *treeNode, depth int) {
	name := node.Name
	if node.Dir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	fmt.Fprintf(w, "%s%s", strings.Repeat("  ", depth), name)
	if !node.Dir {
		fmt.Fprintf(w, " (%d)", node.Size)
	}
	fmt.Fprintln(w)
	for _, child := range node.Children {
		writeTreeText(w, child, depth+1)
	}
}

func (a *app) treeCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "tree [PATH]",
		Short: "print the directory tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			name := "/"
			if len(args) > 0 {
				name = args[0]
			}
			dir, err := img.OpenDir(name)
			if err != nil {
				return err
			}
			tree, err := buildTree(name, uint32(dir.Index()), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				writeTreeText(out, tree, 0)
				return nil
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(tree)
			case "cbor":
				mode, err := cbor.CoreDetEncOptions().EncMode()
				if err != nil {
					return err
				}
				data, err := mode.Marshal(tree)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, yaml or cbor")
	return cmd
}

func (a *app) lsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [PATH]",
		Short: "list a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := a.openImage()
			if err != nil {
				return err
			}
			name := "/"
			if len(args) > 0 {
				name = args[0]
			}
			record, err := img.Stat(name)
			if err != nil {
				return err
			}
			records := []image.FileRecord{record}
			if record.Dir {
				records, err = img.List(name)
				if err != nil {
					return err
				}
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Name", "Type", "Block", "Size"})
			table.SetBorder(false)
			for _, r := range records {
				kind, size := "file", strconv.FormatInt(r.Size, 10)
				if r.Dir {
					kind, size = "dir", ""
				}
				table.Append([]string{path.Base(r.Name), kind, strconv.FormatUint(uint64(r.Index), 10), size})
			}
			table.Render()
			return nil
		},
	}
}
