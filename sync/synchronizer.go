// Package sync mirrors a flat, path-addressed store into an immutable
// in-memory tree and keeps it current as the store changes.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/voidstore/storesync/eventbus"
	"github.com/voidstore/storesync/store"
	"github.com/voidstore/storesync/tree"
)

// DefaultFetchConcurrency bounds concurrent metadata fetches per rebuild.
const DefaultFetchConcurrency = 16

// ErrClosed is returned by Refresh after Close.
var ErrClosed = errors.New("synchronizer closed")

// Options configures a Synchronizer. Zero values select defaults.
type Options struct {
	// Debounce is the quiet window of Notify.
	Debounce time.Duration
	// FetchConcurrency bounds in-flight metadata fetches.
	FetchConcurrency int
	// Trees receives every published tree. It is created with replay when nil.
	Trees *eventbus.Topic[*tree.FileNode]
	// Status receives every change signal. Created when nil.
	Status *eventbus.Topic[store.Event]
	// FS is the local filesystem for exports. Defaults to the OS filesystem.
	FS afero.Fs
	// TempDir is where DecryptToTemp writes. Defaults to os.TempDir().
	TempDir string
}

// round is one requested rebuild and the waiters attached to it.
type round struct {
	done chan struct{}
	err  error
}

func newRound() *round { return &round{done: make(chan struct{})} }

// Synchronizer owns the canonical tree. At most one rebuild runs at a
// time; requests arriving meanwhile share a single follow-up rebuild.
type Synchronizer struct {
	st       store.Store
	opts     Options
	trees    *eventbus.Topic[*tree.FileNode]
	status   *eventbus.Topic[store.Event]
	statuses *StatusList
	debounce *Debouncer
	fs       afero.Fs
	notifies bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu      gosync.Mutex
	running *round
	next    *round
	gen     uint64
	closed  bool

	rebuilds atomic.Int64
}

// New creates a synchronizer over st. The published tree starts as an
// empty root; call Start to load the store.
func New(st store.Store, opts Options) *Synchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = DefaultFetchConcurrency
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Trees == nil {
		opts.Trees = eventbus.NewTopic(eventbus.WithReplay(tree.NewRoot()))
	}
	if opts.Status == nil {
		opts.Status = eventbus.NewTopic(eventbus.WithQueue[store.Event]())
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		st:       st,
		opts:     opts,
		trees:    opts.Trees,
		status:   opts.Status,
		statuses: NewStatusList(),
		fs:       opts.FS,
		ctx:      ctx,
		cancel:   cancel,
	}
	_, s.notifies = st.(store.Notifier)
	s.debounce = NewDebouncer(opts.Debounce, func() { s.request() })
	if _, ok := s.trees.Last(); !ok {
		s.trees.Publish(tree.NewRoot())
	}
	return s
}

// Start fires the initial rebuild and relays the store's change signals
// until ctx is done or Close is called.
func (s *Synchronizer) Start(ctx context.Context) {
	l := sub("synchronizer")
	l.Info("starting", "debounce", s.opts.Debounce, "fetchConcurrency", s.opts.FetchConcurrency)

	if n, ok := s.st.(store.Notifier); ok {
		signals := n.Subscribe()
		relayCtx, cancel := context.WithCancel(s.ctx)
		stop := context.AfterFunc(ctx, cancel)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer stop()
			defer cancel()
			eventbus.Listen(relayCtx, signals, s.emit)
		}()
	}
	s.request()
}

// Close stops the debouncer, abandons any in-flight rebuild and waits for
// background work to finish.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.mu.Unlock()

	s.debounce.Stop()
	s.cancel()
	s.wg.Wait()
	sub("synchronizer").Info("stopped", "rebuilds", s.rebuilds.Load())
}

// Tree returns the latest published tree.
func (s *Synchronizer) Tree() *tree.FileNode {
	root, _ := s.trees.Last()
	return root
}

// Trees returns the tree topic.
func (s *Synchronizer) Trees() *eventbus.Topic[*tree.FileNode] { return s.trees }

// Status returns the change-signal topic.
func (s *Synchronizer) Status() *eventbus.Topic[store.Event] { return s.status }

// InProgress returns the operations that have started but not ended,
// most recent first.
func (s *Synchronizer) InProgress() []StatusItem { return s.statuses.Items() }

// Rebuilds returns the number of rebuilds run so far.
func (s *Synchronizer) Rebuilds() int64 { return s.rebuilds.Load() }

// Notify schedules a debounced rebuild.
func (s *Synchronizer) Notify() { s.debounce.Trigger() }

// Emit feeds a change signal in. Completion signals schedule a debounced
// rebuild.
func (s *Synchronizer) Emit(ev store.Event) { s.emit(ev) }

func (s *Synchronizer) emit(ev store.Event) {
	if logEnabled(slog.LevelDebug) {
		sub("synchronizer").Debug("signal", "type", ev.Type, "path", ev.Path, "storePath", ev.StorePath)
	}
	s.statuses.Apply(ev)
	s.status.Publish(ev)
	if ev.Type.IsEnd() {
		s.Notify()
	}
}

// Refresh requests a rebuild and waits until a rebuild that started after
// the request has finished. It returns that rebuild's error.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	r := s.request()
	if r == nil {
		return ErrClosed
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request starts a rebuild, or joins the single follow-up when one is
// already running.
func (s *Synchronizer) request() *round {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if s.running == nil {
		r := newRound()
		s.running = r
		s.wg.Add(1)
		go s.run(r)
		return r
	}
	if s.next == nil {
		s.next = newRound()
	}
	return s.next
}

func (s *Synchronizer) run(r *round) {
	defer s.wg.Done()
	for r != nil {
		r.err = s.rebuild(s.ctx)
		close(r.done)

		s.mu.Lock()
		r = s.next
		s.next = nil
		s.running = r
		if s.closed && r != nil {
			r.err = ErrClosed
			close(r.done)
			s.running = nil
			r = nil
		}
		s.mu.Unlock()
	}
}

// begin claims a generation number for a new rebuild.
func (s *Synchronizer) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// publish replaces the tree if gen is still current. Superseded results
// are dropped silently.
func (s *Synchronizer) publish(gen uint64, root *tree.FileNode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.closed {
		return false
	}
	s.trees.Publish(root)
	return true
}
