package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voidstore/storesync/fileinfo"
	storesync "github.com/voidstore/storesync/sync"
)

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Show an entry's size, tags and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				n, err := nodeAt(s, args[0])
				if err != nil {
					return err
				}
				info := fileinfo.New(s, 0)
				defer info.Close()
				in, err := info.Load(cmd.Context(), n)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "path:     %s\n", in.Path)
				fmt.Fprintf(out, "type:     %s\n", in.Kind)
				if in.HumanSize != "" {
					fmt.Fprintf(out, "size:     %s\n", in.HumanSize)
				}
				if in.Mode != "" {
					fmt.Fprintf(out, "mode:     %s\n", in.Mode)
				}
				fmt.Fprintf(out, "tags:     %s\n", strings.Join(in.Tags, ", "))
				if in.Comments != "" {
					fmt.Fprintf(out, "comments: %s\n", in.Comments)
				}
				return nil
			})
		},
	}
}

func (a *app) tagCmd() *cobra.Command {
	var remove bool
	var comment string
	c := &cobra.Command{
		Use:   "tag <path> [tag]",
		Short: "Add or remove a tag, or set comments",
		Long: `Add a tag to an entry, remove one with --remove, or replace the
entry's comments with --comment.

Examples:
  storesync tag /a.jpg holiday
  storesync tag /a.jpg holiday --remove
  storesync tag /a.jpg --comment "first day"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				n, err := nodeAt(s, args[0])
				if err != nil {
					return err
				}
				info := fileinfo.New(s, 0)
				defer info.Close()
				ctx := cmd.Context()
				if cmd.Flags().Changed("comment") {
					if err := info.SaveComments(ctx, n.Path, comment); err != nil {
						return err
					}
				}
				if len(args) < 2 {
					return nil
				}
				var tags []string
				if remove {
					tags, err = info.RemoveTag(ctx, n.Path, args[1])
				} else {
					tags, err = info.AddTag(ctx, n.Path, args[1])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, ", "))
				return nil
			})
		},
	}
	c.Flags().BoolVar(&remove, "remove", false, "remove the tag instead of adding it")
	c.Flags().StringVar(&comment, "comment", "", "replace the entry's comments")
	return c
}
