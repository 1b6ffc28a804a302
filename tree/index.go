package tree

// Index is a path lookup table over one published snapshot. It is built
// once and never updated; build a new one for the next snapshot.
type Index struct {
	root  *FileNode
	nodes map[string]*FileNode
}

// NewIndex indexes every node reachable from root.
func NewIndex(root *FileNode) *Index {
	return &Index{root: root, nodes: Flatten(root)}
}

// Root returns the indexed snapshot.
func (x *Index) Root() *FileNode { return x.root }

// Get returns the node at path.
func (x *Index) Get(path string) (*FileNode, bool) {
	n, ok := x.nodes[path]
	return n, ok
}

// Has reports whether path exists in the snapshot.
func (x *Index) Has(path string) bool {
	_, ok := x.nodes[path]
	return ok
}

// Len returns the number of indexed nodes, root included.
func (x *Index) Len() int { return len(x.nodes) }

// Nearest returns the deepest existing node on the way from path to the
// root. A path that vanished from the tree resolves to its closest
// surviving ancestor.
func (x *Index) Nearest(path string) *FileNode {
	for p := path; ; p = Dir(p) {
		if n, ok := x.nodes[p]; ok {
			return n
		}
		if p == RootPath || p == "" {
			return x.root
		}
	}
}
