// Package cmd is the storesync command line: it wires configuration,
// logging, a store backend and the synchronizer together.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voidstore/storesync/logging"
)

// app is the state shared by one command tree.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     Config
}

// NewRootCmd builds the storesync command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "storesync",
		Short: "Browse and organize an encrypted file store",
		Long: `storesync mirrors a flat, path-addressed file store into a live tree.

It can serve the tree, its change stream and per-view selection over HTTP
(serve), import local folders in the background (import, watch) and run
one-shot operations against the store (ls, tree, mv, rm, mkdir, put, cat,
get, info, tag).

Configuration is read from flags, STORESYNC_* environment variables and
~/.storesync.yaml, in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ~/.storesync.yaml)")
	pf.String("store", defaultStore, "store URL: memory:, sqlite://<path> or redis://<addr>/<db>")
	pf.String("password", "", "store password (sqlite)")
	pf.Duration("debounce", 0, "quiet window before a signalled rebuild")
	pf.Int("fetch-concurrency", 0, "concurrent metadata fetches per rebuild")
	pf.String("log-dir", "", "directory for rotating log files")
	pf.String("log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.serveCmd(),
		a.watchCmd(),
		a.importCmd(),
		a.treeCmd(),
		a.lsCmd(),
		a.mvCmd(),
		a.rmCmd(),
		a.mkdirCmd(),
		a.putCmd(),
		a.catCmd(),
		a.openCmd(),
		a.getCmd(),
		a.infoCmd(),
		a.tagCmd(),
	)
	return root
}

// init resolves the configuration and sets up logging. Long-running
// commands log at INFO by default, one-shot commands at WARN.
func (a *app) init(cmd *cobra.Command) error {
	v, err := newViper(a.cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	a.v, a.cfg = v, cfg

	level := slog.LevelWarn
	if cmd.Annotations["daemon"] == "true" {
		level = slog.LevelInfo
	}
	if cfg.LogLevel != "" {
		level = logging.ParseLevel(cfg.LogLevel)
	}
	logging.Init(cfg.LogDir, level)
	logging.Sub("cmd").Debug("config loaded", "store", cfg.Store, "file", v.ConfigFileUsed())
	return nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "storesync:", err)
		os.Exit(1)
	}
}
