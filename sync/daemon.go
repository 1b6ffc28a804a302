package sync

import (
	"context"

	"github.com/spf13/afero"
)

// osFs is the filesystem the inbox watcher reads; fsnotify only sees the
// real one.
var osFs = afero.NewOsFs()

// Daemon runs a synchronizer together with its import worker and an
// optional inbox watcher.
type Daemon struct {
	sync     *Synchronizer
	importer *Importer
	inbox    string
	inboxDir string
}

// NewDaemon composes a daemon. With an empty inbox no watcher runs;
// otherwise files appearing in inbox are imported below inboxDir.
func NewDaemon(s *Synchronizer, importer *Importer, inbox, inboxDir string) *Daemon {
	return &Daemon{sync: s, importer: importer, inbox: inbox, inboxDir: inboxDir}
}

// Synchronizer returns the composed synchronizer.
func (d *Daemon) Synchronizer() *Synchronizer { return d.sync }

// Importer returns the composed importer.
func (d *Daemon) Importer() *Importer { return d.importer }

// Run starts everything and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) {
	l := sub("daemon")
	l.Info("daemon starting", "inbox", d.inbox, "inboxDir", d.inboxDir)

	d.sync.Start(ctx)

	if d.inbox != "" {
		watcher, err := NewWatcher(d.inbox, d.inboxDir, d.importer.Queue())
		if err != nil {
			l.Error("watcher creation failed, running without inbox", "err", err)
		} else {
			go func() {
				if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
					l.Warn("watcher stopped unexpectedly", "err", err)
				}
			}()
			defer watcher.Close()
		}
	}

	d.importer.Run(ctx)
	d.sync.Close()
	l.Info("daemon stopped")
}
