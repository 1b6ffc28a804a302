package selection

import (
	"context"
	"errors"

	"github.com/voidstore/storesync/tree"
)

// Rename moves path to newName inside the current directory. An unusable
// name returns tree.ErrInvalidFilename without touching the store.
func (c *Controller) Rename(ctx context.Context, path, newName string) error {
	dst, err := c.inCurrent(newName)
	if err != nil {
		return err
	}
	if dst == path {
		return nil
	}
	return c.ops.Move(ctx, path, dst)
}

// NewFile creates an empty file in the current directory.
func (c *Controller) NewFile(ctx context.Context, name string) (string, error) {
	p, err := c.inCurrent(name)
	if err != nil {
		return "", err
	}
	return p, c.ops.CreateFile(ctx, p, nil)
}

// NewDir creates a directory in the current directory.
func (c *Controller) NewDir(ctx context.Context, name string) (string, error) {
	p, err := c.inCurrent(name)
	if err != nil {
		return "", err
	}
	return p, c.ops.CreateDir(ctx, p)
}

// RemoveSelected removes every selected entry after a single confirmation.
// Each removal is independent; their errors are joined.
func (c *Controller) RemoveSelected(ctx context.Context, confirm func() bool) error {
	paths := c.Selection()
	if len(paths) == 0 {
		return nil
	}
	if confirm != nil && !confirm() {
		return nil
	}
	var errs []error
	for _, p := range paths {
		if err := c.ops.Remove(ctx, p, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) inCurrent(name string) (string, error) {
	c.mu.Lock()
	dir := c.path
	c.mu.Unlock()
	return tree.AppendPath(dir, name)
}
