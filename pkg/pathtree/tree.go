package pathtree

import (
	"errors"
	"fmt"
	"strings"
)

// Tree errors.
var (
	ErrInvalidDeviceName  = errors.New("invalid device name")
	ErrConflictingElement = errors.New("node already has a different element")
	ErrRootElement        = errors.New("element not allowed on the root node")
)

// NodeID indexes a node within its tree.
type NodeID int

// RootID is the ID of the root node.
const RootID NodeID = 0

const noParent NodeID = -1

type node struct {
	name     string
	elem     Element
	parent   NodeID
	children []NodeID
}

// Tree is a hierarchical namespace of named nodes.
type Tree struct {
	nodes []node
}

// New creates a tree holding only the root node.
func New() *Tree {
	return &Tree{
		nodes: []node{{elem: NullElement{}, parent: noParent}},
	}
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return Node{tree: t, id: RootID}
}

// Len returns the number of nodes, including the root.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the handle for id. It panics if id is out of range.
func (t *Tree) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(t.nodes) {
		panic(fmt.Sprintf("pathtree: node id %d out of range", id))
	}
	return Node{tree: t, id: id}
}

// GetNodeByPath returns the node at absPath, creating any missing nodes as
// Null. Trailing separators are ignored.
func (t *Tree) GetNodeByPath(absPath string) (Node, error) {
	parts, err := Split(absPath)
	if err != nil {
		return Node{}, fmt.Errorf("%q: %w", absPath, err)
	}
	cur := RootID
	for _, name := range parts {
		cur = t.getOrCreateChild(cur, name)
	}
	return Node{tree: t, id: cur}, nil
}

// FindNodeByPath returns the node at absPath without creating anything.
func (t *Tree) FindNodeByPath(absPath string) (Node, bool) {
	parts, err := Split(absPath)
	if err != nil {
		return Node{}, false
	}
	cur := RootID
	for _, name := range parts {
		child, ok := t.findChild(cur, name)
		if !ok {
			return Node{}, false
		}
		cur = child
	}
	return Node{tree: t, id: cur}, true
}

func (t *Tree) findChild(parent NodeID, name string) (NodeID, bool) {
	for _, c := range t.nodes[parent].children {
		if t.nodes[c].name == name {
			return c, true
		}
	}
	return 0, false
}

func (t *Tree) getOrCreateChild(parent NodeID, name string) NodeID {
	if c, ok := t.findChild(parent, name); ok {
		return c
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{name: name, elem: NullElement{}, parent: parent})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id
}

// ReplaceNull sets elem on n only if n currently holds a Null element.
// It reports whether the node changed.
func (t *Tree) ReplaceNull(n Node, elem Element) bool {
	if elem == nil || IsNull(elem) {
		return false
	}
	if !IsNull(t.nodes[n.id].elem) {
		return false
	}
	if n.id == RootID {
		return false
	}
	t.nodes[n.id].elem = elem
	return true
}

// SetElement assigns elem to n. Assigning an element equal to the current
// one is a no-op; replacing a typed node with a different element fails
// with ErrConflictingElement.
func (t *Tree) SetElement(n Node, elem Element) (bool, error) {
	if n.id == RootID {
		return false, ErrRootElement
	}
	cur := t.nodes[n.id].elem
	if IsNull(cur) {
		if IsNull(elem) {
			return false, nil
		}
		t.nodes[n.id].elem = elem
		return true, nil
	}
	if cur == elem {
		return false, nil
	}
	return false, fmt.Errorf("%s is %s: %w", n.FullPath(), cur.Kind(), ErrConflictingElement)
}

// AddPlugin ensures a plugin node named name exists below the root.
func (t *Tree) AddPlugin(name string) (Node, bool, error) {
	name = strings.Trim(name, Separator)
	if name == "" || strings.Contains(name, Separator) {
		return Node{}, false, fmt.Errorf("plugin %q: %w", name, ErrEmptyComponent)
	}
	n, err := t.GetNodeByPath(Separator + name)
	if err != nil {
		return Node{}, false, err
	}
	return n, t.ReplaceNull(n, PluginElement{}), nil
}

// AddDevice ensures the device node for deviceName ("plugin/device", with or
// without a leading separator) exists and holds a Device element. The node
// directly below the root becomes a Plugin if it is still Null.
func (t *Tree) AddDevice(deviceName string, elem DeviceElement) (Node, bool, error) {
	name := strings.TrimPrefix(deviceName, Separator)
	parts := strings.Split(strings.TrimRight(name, Separator), Separator)
	if len(parts) < 2 {
		return Node{}, false, fmt.Errorf("%q needs plugin and device components: %w", deviceName, ErrInvalidDeviceName)
	}
	for _, p := range parts {
		if p == "" {
			return Node{}, false, fmt.Errorf("%q: %w", deviceName, ErrInvalidDeviceName)
		}
	}
	if elem.DeviceName == "" {
		elem.DeviceName = strings.Join(parts, Separator)
	}

	n, err := t.GetNodeByPath(Join(parts...))
	if err != nil {
		return Node{}, false, err
	}
	changed := t.ReplaceNull(n, elem)

	plugin, _ := t.FindNodeByPath(Separator + parts[0])
	if t.ReplaceNull(plugin, PluginElement{}) {
		changed = true
	}
	return n, changed, nil
}

// AddInterface ensures an Interface node exists at absPath.
func (t *Tree) AddInterface(absPath string, elem InterfaceElement) (Node, bool, error) {
	n, err := t.GetNodeByPath(absPath)
	if err != nil {
		return Node{}, false, err
	}
	return n, t.ReplaceNull(n, elem), nil
}

// AddSensor ensures a Sensor node numbered number exists below the
// interface at ifacePath.
func (t *Tree) AddSensor(ifacePath string, number int) (Node, bool, error) {
	n, err := t.GetNodeByPath(Join(ifacePath, fmt.Sprint(number)))
	if err != nil {
		return Node{}, false, err
	}
	return n, t.ReplaceNull(n, SensorElement{Number: number}), nil
}

// AddAlias sets an alias at absPath. A Null node always takes the alias; an
// existing alias is replaced only by one of equal or higher priority; any
// other element is left untouched and reported as a conflict.
func (t *Tree) AddAlias(absPath, source string, priority AliasPriority) (bool, error) {
	if source == "" {
		return false, fmt.Errorf("alias %q: %w", absPath, ErrEmptyPath)
	}
	n, err := t.GetNodeByPath(absPath)
	if err != nil {
		return false, err
	}
	if n.IsRoot() {
		return false, ErrRootElement
	}
	elem := AliasElement{Source: source, Priority: priority}
	switch cur := t.nodes[n.id].elem.(type) {
	case NullElement:
		t.nodes[n.id].elem = elem
		return true, nil
	case AliasElement:
		if cur == elem || priority < cur.Priority || priority == AliasPriorityMinimum {
			return false, nil
		}
		t.nodes[n.id].elem = elem
		return true, nil
	default:
		return false, fmt.Errorf("%s is %s: %w", n.FullPath(), cur.Kind(), ErrConflictingElement)
	}
}

// Visit walks the tree depth-first in pre-order, calling fn for every node
// including the root. Children are visited in creation order. Returning
// false from fn skips the node's children.
func (t *Tree) Visit(fn func(n Node) bool) {
	t.visit(RootID, fn)
}

func (t *Tree) visit(id NodeID, fn func(n Node) bool) {
	if !fn(Node{tree: t, id: id}) {
		return
	}
	// Children may be appended during the walk; iterate by index.
	for i := 0; i < len(t.nodes[id].children); i++ {
		t.visit(t.nodes[id].children[i], fn)
	}
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := &Tree{nodes: make([]node, len(t.nodes))}
	for i, n := range t.nodes {
		c.nodes[i] = node{
			name:     n.name,
			elem:     n.elem,
			parent:   n.parent,
			children: append([]NodeID(nil), n.children...),
		}
	}
	return c
}
