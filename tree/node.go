// Package tree models the hierarchical view of a flat, path-addressed store.
package tree

import (
	"cmp"
	"slices"
	"strings"
)

const (
	// DirKind is the kind sentinel for containers.
	DirKind = "inode/directory"
	// RootName is the display label of the root node.
	RootName = "Store"
	// RootPath is the path of the root node.
	RootPath = "/"
)

// FileNode is one file or directory in a synchronized tree.
// A published tree is immutable: clone before modifying.
type FileNode struct {
	Path     string      `json:"path" yaml:"path"`
	Name     string      `json:"name" yaml:"name"`
	Kind     string      `json:"type" yaml:"type"`
	Children []*FileNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// NewRoot returns an empty root node.
func NewRoot() *FileNode {
	return &FileNode{Path: RootPath, Name: RootName, Kind: DirKind}
}

// IsDir reports whether the node is a container.
func (n *FileNode) IsDir() bool { return n != nil && n.Kind == DirKind }

// IsImage reports whether the node's kind is an image MIME type.
func (n *FileNode) IsImage() bool { return n != nil && strings.HasPrefix(n.Kind, "image/") }

// IsVideo reports whether the node's kind is a video MIME type.
func (n *FileNode) IsVideo() bool { return n != nil && strings.HasPrefix(n.Kind, "video/") }

// IsAudio reports whether the node's kind is an audio MIME type.
func (n *FileNode) IsAudio() bool { return n != nil && strings.HasPrefix(n.Kind, "audio/") }

// IsText reports whether the node holds editable text.
func (n *FileNode) IsText() bool { return n != nil && !n.IsDir() && IsTextKind(n.Kind) }

// Child returns the direct child with the given name, or nil.
func (n *FileNode) Child(name string) *FileNode {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Compare orders nodes by kind, then name, byte-wise.
func Compare(a, b *FileNode) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// Sorted returns n's children ordered by (kind, name). The node is not
// modified.
func Sorted(n *FileNode) []*FileNode {
	if n == nil {
		return nil
	}
	out := slices.Clone(n.Children)
	slices.SortStableFunc(out, Compare)
	return out
}

// SortedPaths returns the paths of Sorted(n).
func SortedPaths(n *FileNode) []string {
	sorted := Sorted(n)
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = c.Path
	}
	return out
}
