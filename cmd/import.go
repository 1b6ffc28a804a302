package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	storesync "github.com/voidstore/storesync/sync"
	"github.com/voidstore/storesync/tree"
)

const importPoll = 50 * time.Millisecond

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <local-folder> [store-dir]",
		Short: "Import a local folder recursively",
		Long: `Import every file below a local folder into store-dir/<folder name>
(store-dir defaults to /). Entries matched by the folder's .storeignore
file are skipped. The command returns once the import queue is drained.

Example:
  storesync import ~/Pictures/Trip /Photos`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(s *storesync.Synchronizer) error {
				ctx := cmd.Context()
				storeDir := tree.RootPath
				if len(args) == 2 {
					storeDir = args[1]
				}
				im := storesync.NewImporter(s, afero.NewOsFs())
				n, err := im.AddFolder(ctx, args[0], storeDir)
				if err != nil {
					return err
				}
				imported, failed := drain(ctx, im, int64(n))
				if err := s.Refresh(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d files", imported)
				if failed > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ", %d failed", failed)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed to import", failed, n)
				}
				return nil
			})
		},
	}
}

// drain runs the importer until want jobs have finished or ctx is done.
func drain(ctx context.Context, im *storesync.Importer, want int64) (imported, failed int64) {
	workCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		im.Run(workCtx)
		close(done)
	}()

	ticker := time.NewTicker(importPoll)
	defer ticker.Stop()
wait:
	for {
		if i, f := im.Stats(); i+f >= want {
			break
		}
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
		}
	}
	cancel()
	<-done
	return im.Stats()
}
