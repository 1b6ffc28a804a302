package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	storesync "github.com/voidstore/storesync/sync"
)

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's decrypted content to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				n, err := nodeAt(s, args[0])
				if err != nil {
					return err
				}
				if n.IsDir() {
					return fmt.Errorf("%s is a directory", n.Path)
				}
				data, err := s.ReadFile(cmd.Context(), n.Path)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
}

func (a *app) getCmd() *cobra.Command {
	var dest string
	c := &cobra.Command{
		Use:   "get <path>...",
		Short: "Export files and directories to a local folder",
		Long: `Decrypt entries into a local folder. Directories are exported with
their structure. Existing local files are never overwritten; clashing
names get a _conflict-N suffix.

Example:
  storesync get /Photos /notes.md --dest ~/Desktop`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				if dest == "" {
					wd, err := os.Getwd()
					if err != nil {
						return err
					}
					dest = wd
				}
				written, err := s.Decrypt(cmd.Context(), args, dest)
				for _, p := range written {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return err
			})
		},
	}
	c.Flags().StringVarP(&dest, "dest", "d", "", "local destination folder (default current directory)")
	return c
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Decrypt a file to a temporary location and print it",
		Long: `Decrypt a file into a fresh temporary directory and print the local
path, for handing to an external viewer or editor.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				n, err := nodeAt(s, args[0])
				if err != nil {
					return err
				}
				if n.IsDir() {
					return fmt.Errorf("%s is a directory", n.Path)
				}
				p, err := s.DecryptToTemp(cmd.Context(), n.Path)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}
