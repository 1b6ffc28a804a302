package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/voidstore/storesync/bridge"
	"github.com/voidstore/storesync/fileinfo"
	"github.com/voidstore/storesync/logging"
	storesync "github.com/voidstore/storesync/sync"
)

var daemonAnnotation = map[string]string{"daemon": "true"}

func (a *app) serveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live tree and selection over HTTP",
		Long: `Serve keeps the tree in sync with the store and exposes it over HTTP:

  GET  /api/tree, /api/dirs, /api/info, /api/stats
  GET  /api/events    server-sent tree and status events
  GET  /api/ws        websocket for one view's cursor and selection
  POST /api/move, /api/remove, /api/mkdir, /api/file, /api/save,
       /api/decrypt, /api/folder, /api/refresh, /api/keys

With --inbox, files written to that local folder are imported too.`,
		Annotations: daemonAnnotation,
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, true)
		},
	}
	c.Flags().String("addr", defaultAddr, "listen address")
	c.Flags().String("layout", "grid", "view layout: grid or list")
	c.Flags().Int("row-width", 0, "entries per grid row for up/down")
	c.Flags().String("inbox", "", "local folder to import from")
	c.Flags().String("inbox-dir", "/Inbox", "store folder receiving inbox files")
	return c
}

func (a *app) watchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:         "watch <local-folder>",
		Short:       "Import everything written to a local folder",
		Annotations: daemonAnnotation,
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Inbox = args[0]
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, false)
		},
	}
	c.Flags().String("inbox-dir", "/Inbox", "store folder receiving inbox files")
	return c
}

// serve runs the daemon, and the HTTP bridge when withHTTP is set, until
// ctx is cancelled.
func (a *app) serve(ctx context.Context, withHTTP bool) error {
	l := logging.Sub("cmd")
	st, err := openStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	s := newSynchronizer(st, a.cfg)
	importer := storesync.NewImporter(s, afero.NewOsFs())
	daemon := storesync.NewDaemon(s, importer, a.cfg.Inbox, a.cfg.InboxDir)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		daemon.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if !withHTTP {
		<-ctx.Done()
		return nil
	}

	info := fileinfo.New(s, 0)
	defer info.Close()
	h := bridge.NewHandlers(s, bridge.Options{
		Info:     info,
		Importer: importer,
		Layout:   a.cfg.Layout,
		RowWidth: a.cfg.RowWidth,
	})
	if err := h.Serve(ctx, a.cfg.Addr); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("server failed", "err", err)
		return fmt.Errorf("serve %s: %w", a.cfg.Addr, err)
	}
	return nil
}
