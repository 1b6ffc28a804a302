// Package selection drives cursor movement, selection and drag/drop over
// one directory of a published tree.
package selection

import (
	"context"
	"errors"
	gosync "sync"

	"github.com/samber/lo"

	"github.com/voidstore/storesync/eventbus"
	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/tree"
)

// DefaultRowWidth is how many entries up and down skip in grid layout.
const DefaultRowWidth = 3

// Layout is how a view arranges the current directory.
type Layout string

const (
	Grid Layout = "grid"
	List Layout = "list"
)

// ParseLayout maps a config value to a Layout. Anything but "list" is grid.
func ParseLayout(s string) Layout {
	if s == string(List) {
		return List
	}
	return Grid
}

// Operations is the part of the synchronizer the controller drives.
type Operations interface {
	Move(ctx context.Context, oldPath, newPath string) error
	Remove(ctx context.Context, path string, confirm func() bool) error
	CreateFile(ctx context.Context, path string, data []byte) error
	CreateDir(ctx context.Context, path string) error
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Layout   Layout
	RowWidth int
	// States receives a snapshot after every change. Created when nil.
	States *eventbus.Topic[State]
}

// State is a snapshot of a controller.
type State struct {
	Path      string   `json:"path"`
	Cursor    int      `json:"cursor"`
	Selection []string `json:"selection"`
	Shift     bool     `json:"shift"`
	Ctrl      bool     `json:"ctrl"`
	Armed     bool     `json:"armed"`
}

// ErrAttached is returned by a second Attach.
var ErrAttached = errors.New("controller already attached")

// Controller is the cursor and selection engine of one view. It is safe
// for concurrent use; tree updates and key presses may arrive from
// subscriptions while a caller drives it directly.
type Controller struct {
	ops    Operations
	opts   Options
	states *eventbus.Topic[State]

	mu        gosync.Mutex
	index     *tree.Index
	path      string
	current   *tree.FileNode
	children  []*tree.FileNode
	cursor    int
	selection []string
	shift     bool
	ctrl      bool
	drag      int

	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a controller showing the root of an empty tree.
func New(ops Operations, opts Options) *Controller {
	if opts.Layout == "" {
		opts.Layout = Grid
	}
	if opts.RowWidth <= 0 {
		opts.RowWidth = DefaultRowWidth
	}
	if opts.States == nil {
		opts.States = eventbus.NewTopic[State]()
	}
	c := &Controller{ops: ops, opts: opts, states: opts.States, path: tree.RootPath}
	c.index = tree.NewIndex(tree.NewRoot())
	c.resolve()
	c.reset()
	return c
}

// States returns the snapshot topic.
func (c *Controller) States() *eventbus.Topic[State] { return c.states }

// Attach follows trees and keys until ctx is done or Close is called.
// The trees topic replays, so the latest tree is applied right away.
func (c *Controller) Attach(ctx context.Context, trees *eventbus.Topic[*tree.FileNode], keys *eventbus.Topic[Key]) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrAttached
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	treeSub := trees.Subscribe()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		eventbus.Listen(ctx, treeSub, c.SetTree)
	}()
	if keys != nil {
		keySub := keys.Subscribe()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			eventbus.Listen(ctx, keySub, func(k Key) { c.HandleKey(k) })
		}()
	}
	return nil
}

// Close cancels the subscriptions made by Attach and waits for them.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// SetTree applies a newly published tree. The current directory survives
// when it still exists, otherwise its nearest surviving ancestor is shown.
func (c *Controller) SetTree(root *tree.FileNode) {
	if root == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = tree.NewIndex(root)
	c.resolve()
	c.reset()
	c.publish()
}

// SetPath navigates to path.
func (c *Controller) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigate(path)
	c.publish()
}

func (c *Controller) navigate(path string) {
	c.path = path
	c.resolve()
	c.reset()
	logging.Sub("selection").Debug("navigate", "path", c.path, "entries", len(c.children))
}

// resolve points the controller at the deepest existing directory on the
// way from the current path to the root.
func (c *Controller) resolve() {
	node := c.index.Nearest(c.path)
	for !node.IsDir() {
		node = c.index.Nearest(tree.Dir(node.Path))
	}
	c.current = node
	c.path = node.Path
	c.children = tree.Sorted(node)
}

// reset puts the cursor on the first entry and selects it alone.
func (c *Controller) reset() {
	c.cursor = 0
	if len(c.children) > 0 {
		c.selection = []string{c.children[0].Path}
	} else {
		c.selection = nil
	}
}

// step moves the cursor by delta with wraparound. With shift held the
// reached entry is added, or, when it is already selected, the entry
// being left is dropped, so sweeping back undoes a sweep.
func (c *Controller) step(delta int) {
	n := len(c.children)
	if n == 0 {
		c.selection = nil
		return
	}
	old := c.children[c.cursor].Path
	c.cursor = ((c.cursor+delta)%n + n) % n
	reached := c.children[c.cursor].Path

	if !c.shift {
		c.selection = []string{reached}
		return
	}
	if lo.Contains(c.selection, reached) {
		c.selection = lo.Without(c.selection, old)
	} else {
		c.selection = append(c.selection, reached)
	}
}

func (c *Controller) rowStep() int {
	if c.opts.Layout == Grid {
		return c.opts.RowWidth
	}
	return 1
}

// CursorLeft moves one entry back.
func (c *Controller) CursorLeft() { c.move(-1, 1) }

// CursorRight moves one entry forward.
func (c *Controller) CursorRight() { c.move(1, 1) }

// CursorUp moves one row back: RowWidth entries in grid layout, one in list layout.
func (c *Controller) CursorUp() {
	c.mu.Lock()
	n := c.rowStep()
	c.mu.Unlock()
	c.move(-1, n)
}

// CursorDown moves one row forward.
func (c *Controller) CursorDown() {
	c.mu.Lock()
	n := c.rowStep()
	c.mu.Unlock()
	c.move(1, n)
}

func (c *Controller) move(delta, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range times {
		c.step(delta)
	}
	c.publish()
}

// Esc releases shift and selects the first entry alone.
func (c *Controller) Esc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shift = false
	c.reset()
	c.publish()
}

// SelectAll selects every entry of the current directory.
func (c *Controller) SelectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shift = false
	c.selection = c.entries()
	c.publish()
}

// SetShift mirrors the shift key.
func (c *Controller) SetShift(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shift = down
	c.publish()
}

// SetCtrl mirrors the ctrl/meta key.
func (c *Controller) SetCtrl(down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrl = down
	c.publish()
}

// ClickOn applies a pointer click on path. Ctrl toggles path alone; shift
// replays single steps from the cursor to path; a plain click selects
// path alone. It reports false when path is not in the current directory.
func (c *Controller) ClickOn(path string, mods Modifiers) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := lo.IndexOf(c.entries(), path)
	if idx < 0 {
		return false
	}
	switch {
	case mods.Ctrl || c.ctrl:
		c.cursor = idx
		if lo.Contains(c.selection, path) {
			c.selection = lo.Without(c.selection, path)
		} else {
			c.selection = append(c.selection, path)
		}
	case mods.Shift || c.shift:
		held := c.shift
		c.shift = true
		diff := idx - c.cursor
		delta := 1
		if diff < 0 {
			delta, diff = -1, -diff
		}
		for range diff {
			c.step(delta)
		}
		c.shift = held
	default:
		c.cursor = idx
		c.selection = []string{path}
	}
	c.publish()
	return true
}

// Entries returns the sorted paths of the current directory.
func (c *Controller) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries()
}

func (c *Controller) entries() []string {
	return lo.Map(c.children, func(n *tree.FileNode, _ int) string { return n.Path })
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Current returns the current directory node.
func (c *Controller) Current() *tree.FileNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Selection returns the selected paths in selection order.
func (c *Controller) Selection() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.selection...)
}

func (c *Controller) snapshot() State {
	return State{
		Path:      c.path,
		Cursor:    c.cursor,
		Selection: append([]string{}, c.selection...),
		Shift:     c.shift,
		Ctrl:      c.ctrl,
		Armed:     c.drag > 0,
	}
}

func (c *Controller) publish() { c.states.Publish(c.snapshot()) }
