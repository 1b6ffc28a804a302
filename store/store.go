// Package store defines the flat, path-addressed store the tree is mirrored
// from, along with its result codes and change signals.
package store

import (
	"context"
	"sort"

	"github.com/maruel/natural"

	"github.com/voidstore/storesync/eventbus"
	"github.com/voidstore/storesync/tree"
)

// Metadata keys understood by every backend.
const (
	KeyMimetype = "mimetype"
	KeyTags     = "tags"
	KeyComments = "comments"
)

// Store is the collaborator the synchronizer mirrors. Paths are absolute
// and "/"-separated. Implementations must be safe for concurrent use.
type Store interface {
	// ListAllEntries returns every file and every directory without
	// descendants, natural-sorted. An empty store lists as ["/"].
	ListAllEntries(ctx context.Context) ([]string, error)
	// ListSubdirectories returns the direct child directories of path.
	ListSubdirectories(ctx context.Context, path string) ([]string, error)
	// FileMetadata returns the value stored under key for path.
	// ok is false when the path or the key is absent.
	FileMetadata(ctx context.Context, path, key string) (value string, ok bool, err error)
	SetFileMetadata(ctx context.Context, path, key, value string) error
	AddFileFromData(ctx context.Context, path string, data []byte) error
	// AddFile imports a local file; fsPath is resolved on the local filesystem.
	AddFile(ctx context.Context, fsPath, storePath string) error
	MakePath(ctx context.Context, path string) error
	Move(ctx context.Context, oldPath, newPath string) error
	Remove(ctx context.Context, path string) error
	FileSize(ctx context.Context, path string) (int64, error)
	DecryptFile(ctx context.Context, path string) ([]byte, error)
	// DecryptFileTo exports a file to fsPath on the local filesystem.
	DecryptFileTo(ctx context.Context, storePath, fsPath string) error
	Close() error
}

// EventType identifies a change signal.
type EventType string

const (
	AddStart     EventType = "addStart"
	AddEnd       EventType = "addEnd"
	DecryptStart EventType = "decryptStart"
	DecryptEnd   EventType = "decryptEnd"
)

// IsEnd reports whether the signal marks a completed operation.
func (t EventType) IsEnd() bool { return t == AddEnd || t == DecryptEnd }

// Event is a change signal emitted by a store while it works.
type Event struct {
	Type      EventType `json:"type"`
	Path      string    `json:"path"`
	StorePath string    `json:"storePath,omitempty"`
}

// Notifier is implemented by stores that emit change signals.
type Notifier interface {
	Subscribe() *eventbus.Subscription[Event]
}

// Signals is the in-process Notifier embedded by the backends.
type Signals struct {
	topic *eventbus.Topic[Event]
}

// NewSignals creates an empty signal topic.
func NewSignals() Signals { return Signals{topic: eventbus.NewTopic(eventbus.WithQueue[Event]())} }

// Subscribe returns a subscription to the store's change signals.
func (s Signals) Subscribe() *eventbus.Subscription[Event] { return s.topic.Subscribe() }

// Emit publishes a signal to every subscriber.
func (s Signals) Emit(t EventType, fsPath, storePath string) {
	s.topic.Publish(Event{Type: t, Path: fsPath, StorePath: storePath})
}

// Listing assembles a ListAllEntries result: every file plus every
// directory with no descendants, natural-sorted, or ["/"] when both are
// empty. dirs may contain "/" and may include non-empty directories.
func Listing(files, dirs []string) []string {
	hasChild := make(map[string]struct{}, len(files)+len(dirs))
	for _, p := range files {
		hasChild[tree.Dir(p)] = struct{}{}
	}
	for _, d := range dirs {
		if d != tree.RootPath {
			hasChild[tree.Dir(d)] = struct{}{}
		}
	}

	out := make([]string, 0, len(files)+len(dirs))
	out = append(out, files...)
	for _, d := range dirs {
		if d == tree.RootPath {
			continue
		}
		if _, ok := hasChild[d]; !ok {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return []string{tree.RootPath}
	}
	sort.Sort(natural.StringSlice(out))
	return out
}

// ChildDirs filters dirs down to the direct children of parent,
// natural-sorted.
func ChildDirs(parent string, dirs []string) []string {
	var out []string
	for _, d := range dirs {
		if d != tree.RootPath && tree.Dir(d) == parent {
			out = append(out, d)
		}
	}
	sort.Sort(natural.StringSlice(out))
	return out
}

// Ancestors returns the directory paths above path, shallowest first,
// root excluded.
func Ancestors(path string) []string {
	segs := tree.Segments(path)
	out := make([]string, 0, len(segs))
	p := ""
	for _, s := range segs[:max(len(segs)-1, 0)] {
		p += "/" + s
		out = append(out, p)
	}
	return out
}
