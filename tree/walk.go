package tree

import (
	"github.com/samber/lo"
)

// FindByPath resolves a path in the tree by descending segment by segment.
func FindByPath(root *FileNode, path string) *FileNode {
	if root == nil {
		return nil
	}
	if path == root.Path {
		return root
	}
	node := root
	for _, seg := range Segments(path) {
		node = node.Child(seg)
		if node == nil {
			return nil
		}
	}
	return node
}

// Flatten returns every node keyed by path, root included.
func Flatten(root *FileNode) map[string]*FileNode {
	out := make(map[string]*FileNode)
	if root == nil {
		return out
	}
	var walk func(n *FileNode)
	walk = func(n *FileNode) {
		out[n.Path] = n
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// Leaves returns the paths of all childless non-root nodes, depth first in
// construction order. For a tree built from a prefix-free path list this is
// the list itself.
func Leaves(root *FileNode) []string {
	var out []string
	var walk func(n *FileNode)
	walk = func(n *FileNode) {
		if len(n.Children) == 0 && n.Path != RootPath {
			out = append(out, n.Path)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// CountNodes counts all nodes in a tree.
func CountNodes(root *FileNode) int {
	if root == nil {
		return 0
	}
	count := 1
	for _, c := range root.Children {
		count += CountNodes(c)
	}
	return count
}

// Clone returns a deep copy of n.
func Clone(n *FileNode) *FileNode {
	if n == nil {
		return nil
	}
	out := &FileNode{Path: n.Path, Name: n.Name, Kind: n.Kind}
	if len(n.Children) > 0 {
		out.Children = lo.Map(n.Children, func(c *FileNode, _ int) *FileNode { return Clone(c) })
	}
	return out
}

// DirsOnly returns a deep copy of n without any non-directory nodes.
// Navigation panels render this instead of the full tree.
func DirsOnly(n *FileNode) *FileNode {
	if n == nil || !n.IsDir() {
		return nil
	}
	out := &FileNode{Path: n.Path, Name: n.Name, Kind: n.Kind}
	for _, c := range lo.Filter(n.Children, func(c *FileNode, _ int) bool { return c.IsDir() }) {
		out.Children = append(out.Children, DirsOnly(c))
	}
	return out
}

// Images returns the paths of the image children of dir in sorted order.
func Images(dir *FileNode) []string {
	return lo.FilterMap(Sorted(dir), func(c *FileNode, _ int) (string, bool) {
		return c.Path, c.IsImage()
	})
}
