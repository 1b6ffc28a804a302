package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/voidstore/storesync/logging"
	"github.com/voidstore/storesync/tree"
)

var (
	// ErrNotDirectory is returned when dropping onto anything but a directory.
	ErrNotDirectory = errors.New("drop target is not a directory")
	// ErrDropIntoSelection is returned when the target is dragged itself or
	// lies inside a dragged directory.
	ErrDropIntoSelection = errors.New("drop target is part of the selection")
)

// Move is one issued reparenting.
type Move struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DragEnter records the pointer entering a drop zone.
func (c *Controller) DragEnter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drag++
	c.publish()
}

// DragLeave records the pointer leaving a drop zone. The counter never
// drops below zero.
func (c *Controller) DragLeave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drag > 0 {
		c.drag--
	}
	c.publish()
}

// Armed reports whether a drop is currently hovering a drop zone.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag > 0
}

// Drop moves the selection into target. Entries already directly below
// target are skipped. It returns the moves that were issued; on error the
// remaining moves are not attempted.
func (c *Controller) Drop(ctx context.Context, target string) ([]Move, error) {
	c.mu.Lock()
	c.drag = 0
	dragged := append([]string(nil), c.selection...)
	node, ok := c.index.Get(target)
	c.publish()
	c.mu.Unlock()

	if !ok || !node.IsDir() {
		return nil, fmt.Errorf("%s: %w", target, ErrNotDirectory)
	}
	if lo.ContainsBy(dragged, func(p string) bool { return tree.IsWithin(target, p) }) {
		return nil, fmt.Errorf("%s: %w", target, ErrDropIntoSelection)
	}

	l := logging.Sub("selection")
	var moves []Move
	for _, p := range dragged {
		dst := tree.Join(target, tree.Base(p))
		if dst == p {
			continue
		}
		if err := c.ops.Move(ctx, p, dst); err != nil {
			l.Warn("drop move failed", "from", p, "to", dst, "err", err)
			return moves, err
		}
		moves = append(moves, Move{From: p, To: dst})
	}
	l.Info("dropped", "target", target, "moves", len(moves))
	return moves, nil
}
