package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	storesync "github.com/voidstore/storesync/sync"
	"github.com/voidstore/storesync/tree"
)

func (a *app) mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "Move or rename an entry",
		Long: `Move an entry to a new path. When <to> is an existing directory the
entry keeps its name and moves into it.

Examples:
  storesync mv /a.txt /b.txt
  storesync mv /a.txt /Docs`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				from, err := nodeAt(s, args[0])
				if err != nil {
					return err
				}
				to := args[1]
				if dst, err := nodeAt(s, to); err == nil && dst.IsDir() {
					if to, err = tree.AppendPath(dst.Path, from.Name); err != nil {
						return err
					}
				}
				if err := s.Move(cmd.Context(), from.Path, to); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", from.Path, to)
				return nil
			})
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Remove entries",
		Long: `Remove files or directories. Removing a directory removes everything
below it. Each removal is confirmed on stdin unless --yes is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				in := bufio.NewReader(cmd.InOrStdin())
				var errs []error
				for _, arg := range args {
					n, err := nodeAt(s, arg)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					removed := false
					confirm := func() bool {
						removed = yes || ask(cmd.OutOrStdout(), in, fmt.Sprintf("remove %s?", n.Path))
						return removed
					}
					if err := s.Remove(cmd.Context(), n.Path, confirm); err != nil {
						errs = append(errs, err)
						continue
					}
					if removed {
						fmt.Fprintln(cmd.OutOrStdout(), "removed", n.Path)
					}
				}
				return errors.Join(errs...)
			})
		},
	}
	c.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return c
}

func ask(w io.Writer, in *bufio.Reader, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, _ := in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				return s.CreateDir(cmd.Context(), args[0])
			})
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> [store-dir]",
		Short: "Add a local file to the store",
		Long: `Encrypt a local file into the store. It lands in store-dir (default /)
under its local name.

Example:
  storesync put ./report.pdf /Docs`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				dir := tree.RootPath
				if len(args) == 2 {
					dir = args[1]
				}
				dst, err := tree.AppendPath(dir, filepath.Base(args[0]))
				if err != nil {
					return err
				}
				if err := s.AddFile(cmd.Context(), args[0], dst); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dst)
				return nil
			})
		},
	}
}
