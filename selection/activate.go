package selection

import "github.com/voidstore/storesync/tree"

// Action is what activating an entry does.
type Action string

const (
	ActionNone     Action = "none"
	ActionNavigate Action = "navigate"
	ActionView     Action = "view"
	ActionPlay     Action = "play"
	ActionEdit     Action = "edit"
)

// Activation describes the outcome of Enter.
type Activation struct {
	Action Action `json:"action"`
	Path   string `json:"path,omitempty"`
	// Images lists the image entries of the directory for the viewer.
	Images []string `json:"images,omitempty"`
	// Mode is the editor language for ActionEdit.
	Mode string `json:"mode,omitempty"`
}

// Enter opens the first selected entry. Directories are navigated into
// directly; the other actions are left to the caller.
func (c *Controller) Enter() Activation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.selection) == 0 {
		return Activation{Action: ActionNone}
	}
	first := c.selection[0]
	var node *tree.FileNode
	for _, n := range c.children {
		if n.Path == first {
			node = n
			break
		}
	}
	if node == nil {
		return Activation{Action: ActionNone}
	}

	switch {
	case node.IsDir():
		c.navigate(node.Path)
		c.publish()
		return Activation{Action: ActionNavigate, Path: node.Path}
	case node.IsImage():
		return Activation{Action: ActionView, Path: node.Path, Images: tree.Images(c.current)}
	case node.IsVideo():
		return Activation{Action: ActionPlay, Path: node.Path}
	case node.IsText():
		return Activation{Action: ActionEdit, Path: node.Path, Mode: tree.ModeForMime(node.Kind)}
	}
	return Activation{Action: ActionNone, Path: node.Path}
}
