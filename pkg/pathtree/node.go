package pathtree

import "strings"

// Node is a handle to a node within a Tree. The zero value is invalid.
type Node struct {
	tree *Tree
	id   NodeID
}

// Valid reports whether n refers to a node.
func (n Node) Valid() bool {
	return n.tree != nil
}

// ID returns the node's index within its tree.
func (n Node) ID() NodeID {
	return n.id
}

// Tree returns the tree that owns n.
func (n Node) Tree() *Tree {
	return n.tree
}

// Name returns the node's name. The root is unnamed.
func (n Node) Name() string {
	return n.tree.nodes[n.id].name
}

// Element returns the node's element.
func (n Node) Element() Element {
	return n.tree.nodes[n.id].elem
}

// Kind returns the kind of the node's element.
func (n Node) Kind() ElementKind {
	return n.Element().Kind()
}

// IsRoot reports whether n is the root node.
func (n Node) IsRoot() bool {
	return n.id == RootID
}

// Parent returns the parent node. ok is false for the root.
func (n Node) Parent() (Node, bool) {
	p := n.tree.nodes[n.id].parent
	if p == noParent {
		return Node{}, false
	}
	return Node{tree: n.tree, id: p}, true
}

// Children returns the node's children in creation order.
func (n Node) Children() []Node {
	ids := n.tree.nodes[n.id].children
	out := make([]Node, len(ids))
	for i, id := range ids {
		out[i] = Node{tree: n.tree, id: id}
	}
	return out
}

// Child returns the child named name.
func (n Node) Child(name string) (Node, bool) {
	id, ok := n.tree.findChild(n.id, name)
	if !ok {
		return Node{}, false
	}
	return Node{tree: n.tree, id: id}, true
}

// HasChildren reports whether n has at least one child.
func (n Node) HasChildren() bool {
	return len(n.tree.nodes[n.id].children) > 0
}

// FullPath returns the absolute path of n.
func (n Node) FullPath() string {
	if n.IsRoot() {
		return Separator
	}
	var names []string
	for id := n.id; id != RootID; id = n.tree.nodes[id].parent {
		names = append(names, n.tree.nodes[id].name)
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteString(Separator)
		b.WriteString(names[i])
	}
	return b.String()
}

// Ancestor returns the nearest ancestor (including n itself) whose element is
// of kind k.
func (n Node) Ancestor(k ElementKind) (Node, bool) {
	for cur, ok := n, true; ok; cur, ok = cur.Parent() {
		if cur.Kind() == k {
			return cur, true
		}
	}
	return Node{}, false
}
