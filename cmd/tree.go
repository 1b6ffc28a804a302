package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/voidstore/storesync/store"
	storesync "github.com/voidstore/storesync/sync"
	"github.com/voidstore/storesync/tree"
)

// run opens a session for a one-shot command and closes it afterwards.
func (a *app) run(cmd *cobra.Command, fn func(s *storesync.Synchronizer) error) error {
	s, closeAll, err := session(cmd.Context(), a.cfg)
	if err != nil {
		return err
	}
	defer closeAll()
	return fn(s)
}

// nodeAt resolves a user-supplied store path in the current tree.
func nodeAt(s *storesync.Synchronizer, raw string) (*tree.FileNode, error) {
	p, err := store.CleanPath(raw)
	if err != nil {
		return nil, err
	}
	n, ok := tree.NewIndex(s.Tree()).Get(p)
	if !ok {
		return nil, store.Wrap("lookup", p, store.ErrNoSuchFile)
	}
	return n, nil
}

func pathArg(args []string) string {
	if len(args) == 0 {
		return tree.RootPath
	}
	return args[0]
}

func (a *app) treeCmd() *cobra.Command {
	var format string
	var dirsOnly bool
	c := &cobra.Command{
		Use:   "tree [path]",
		Short: "Print the tree below a path",
		Long: `Print the synchronized tree below path (default /).

Examples:
  storesync tree
  storesync tree /Photos --dirs
  storesync tree --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				n, err := nodeAt(s, pathArg(args))
				if err != nil {
					return err
				}
				if dirsOnly {
					n = tree.DirsOnly(n)
				}
				return writeTree(cmd.OutOrStdout(), n, format)
			})
		},
	}
	c.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	c.Flags().BoolVar(&dirsOnly, "dirs", false, "only print directories")
	return c
}

func writeTree(w io.Writer, n *tree.FileNode, format string) error {
	switch format {
	case "text":
		if n != nil {
			printTree(w, n, 0)
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(n)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(n)
	}
	return fmt.Errorf("unknown format %q", format)
}

func printTree(w io.Writer, n *tree.FileNode, depth int) {
	name := n.Name
	if n.IsDir() && n.Path != tree.RootPath {
		name += "/"
	}
	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)
	for _, c := range tree.Sorted(n) {
		printTree(w, c, depth+1)
	}
}

func (a *app) lsCmd() *cobra.Command {
	var long bool
	c := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Long: `List the entries of a directory in display order.

With -l, each line carries the entry's kind before its path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				n, err := nodeAt(s, pathArg(args))
				if err != nil {
					return err
				}
				entries := []*tree.FileNode{n}
				if n.IsDir() {
					entries = tree.Sorted(n)
				}
				out := cmd.OutOrStdout()
				for _, e := range entries {
					if long {
						fmt.Fprintf(out, "%-24s %s\n", e.Kind, e.Path)
					} else {
						fmt.Fprintln(out, e.Path)
					}
				}
				return nil
			})
		},
	}
	c.Flags().BoolVarP(&long, "long", "l", false, "show kinds")
	return c
}
