package sync

import (
	gosync "sync"
	"time"

	"github.com/samber/lo"

	"github.com/voidstore/storesync/store"
)

// StatusItem is an operation that has started and not yet ended.
type StatusItem struct {
	Type      store.EventType `json:"type"`
	Path      string          `json:"path"`
	StorePath string          `json:"storePath,omitempty"`
	Since     time.Time       `json:"since"`
}

// StatusList tracks in-progress add and decrypt operations.
type StatusList struct {
	mu    gosync.Mutex
	items []StatusItem
}

// NewStatusList creates an empty list.
func NewStatusList() *StatusList { return &StatusList{} }

func startOf(t store.EventType) store.EventType {
	switch t {
	case store.AddEnd:
		return store.AddStart
	case store.DecryptEnd:
		return store.DecryptStart
	}
	return t
}

// Apply records a signal: a start moves the item to the front, an end
// removes the matching start.
func (l *StatusList) Apply(ev store.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kind := startOf(ev.Type)
	l.items = lo.Reject(l.items, func(it StatusItem, _ int) bool {
		return it.Type == kind && it.Path == ev.Path && it.StorePath == ev.StorePath
	})
	if !ev.Type.IsEnd() {
		l.items = append([]StatusItem{{
			Type: ev.Type, Path: ev.Path, StorePath: ev.StorePath, Since: time.Now(),
		}}, l.items...)
	}
}

// Items returns a snapshot, most recent first.
func (l *StatusList) Items() []StatusItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StatusItem(nil), l.items...)
}

// Len returns the number of in-progress items.
func (l *StatusList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
