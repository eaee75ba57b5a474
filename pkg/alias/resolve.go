package alias

import (
	"strconv"

	"github.com/devtree-io/devtree-go/pkg/pathtree"
)

// MaxResolutionDepth bounds the number of alias hops followed by a single
// resolution.
const MaxResolutionDepth = 64

// OriginalSource is the result of resolving a path: the concrete node it
// ends at, the transform accumulated on the way, and where that node sits
// in the device hierarchy.
type OriginalSource struct {
	// Path is the concrete path the resolution ended at.
	Path string

	// Transform holds the layers met along the alias chain, outermost first.
	Transform Transform

	// DevicePath is the path of the device node above Path, if any.
	DevicePath string

	// DeviceName is the sender name of that device.
	DeviceName string

	// InterfacePath is the path of the interface node at or above Path.
	InterfacePath string

	// InterfaceName is the last component of InterfacePath.
	InterfaceName string

	// Sensor is the sensor number when Path addresses a single sensor.
	Sensor int

	// HasSensor reports whether Sensor is set.
	HasSensor bool
}

// IsDevice reports whether the source lies at or below a device.
func (o OriginalSource) IsDevice() bool {
	return o.DevicePath != ""
}

// ResolveTreeNode resolves the alias node at path. It fails if the node does
// not exist or is not an alias, if the chain dangles, or if it loops.
func ResolveTreeNode(tree *pathtree.Tree, path string) (OriginalSource, bool) {
	n, ok := tree.FindNodeByPath(path)
	if !ok || n.Kind() != pathtree.KindAlias {
		return OriginalSource{}, false
	}
	return resolveAlias(tree, n)
}

// Resolve resolves any path: alias nodes are followed, concrete nodes
// resolve to themselves with an identity transform. A path that does not
// exist below an alias node is resolved against the alias target, so
// /p/d/direction/0 follows the alias at /p/d/direction.
func Resolve(tree *pathtree.Tree, path string) (OriginalSource, bool) {
	path = pathtree.Clean(path)
	n, ok := tree.FindNodeByPath(path)
	if ok && n.Kind() == pathtree.KindAlias {
		return resolveAlias(tree, n)
	}
	if !ok {
		if src, ok := resolveBelowAlias(tree, path); ok {
			return src, true
		}
	}
	return concreteSource(tree, path, nil)
}

func resolveBelowAlias(tree *pathtree.Tree, path string) (OriginalSource, bool) {
	n, rest, ok := aliasAbove(tree, path)
	if !ok {
		return OriginalSource{}, false
	}
	return resolveChain(tree, n, rest)
}

// aliasAbove finds the nearest existing ancestor of the missing path and
// returns it if it is an alias, along with the components below it.
func aliasAbove(tree *pathtree.Tree, path string) (pathtree.Node, []string, bool) {
	var rest []string
	for cur := path; cur != pathtree.Separator; {
		parent, last := splitLast(cur)
		rest = append([]string{last}, rest...)
		n, ok := tree.FindNodeByPath(parent)
		if !ok {
			cur = parent
			continue
		}
		if n.Kind() != pathtree.KindAlias {
			return pathtree.Node{}, nil, false
		}
		return n, rest, true
	}
	return pathtree.Node{}, nil, false
}

// ResolveFullTree attempts to resolve every alias in the tree and returns
// the full paths of those that could not be resolved, in traversal order.
func ResolveFullTree(tree *pathtree.Tree) []string {
	var bad []string
	tree.Visit(func(n pathtree.Node) bool {
		if n.Kind() != pathtree.KindAlias {
			return true
		}
		if _, ok := resolveAlias(tree, n); !ok {
			bad = append(bad, n.FullPath())
		}
		return true
	})
	return bad
}

func resolveAlias(tree *pathtree.Tree, start pathtree.Node) (OriginalSource, bool) {
	return resolveChain(tree, start, nil)
}

// resolveChain follows aliases from start. rest holds path components that
// sit below start and are appended to its target. Targets that do not exist
// are retried against the nearest alias above them, under the same visited
// set and depth bound.
func resolveChain(tree *pathtree.Tree, start pathtree.Node, rest []string) (OriginalSource, bool) {
	visited := make(map[pathtree.NodeID]struct{})
	var transform Transform
	cur := start

	for depth := 0; depth < MaxResolutionDepth; depth++ {
		if _, seen := visited[cur.ID()]; seen {
			return OriginalSource{}, false
		}
		visited[cur.ID()] = struct{}{}

		elem, ok := cur.Element().(pathtree.AliasElement)
		if !ok {
			return OriginalSource{}, false
		}
		parsed := Parse(elem.Source)
		if !parsed.IsValid() {
			return OriginalSource{}, false
		}
		transform = Compose(transform, parsed.Transform())

		base := pathtree.Separator
		if parent, ok := cur.Parent(); ok {
			base = parent.FullPath()
		}
		target := pathtree.ResolveRelative(base, parsed.Leaf())
		if len(rest) > 0 {
			target = pathtree.Join(append([]string{target}, rest...)...)
			rest = nil
		}

		next, ok := tree.FindNodeByPath(target)
		if ok && next.Kind() == pathtree.KindAlias {
			cur = next
			continue
		}
		if !ok {
			if above, below, found := aliasAbove(tree, target); found {
				cur, rest = above, below
				continue
			}
		}
		return concreteSource(tree, target, transform)
	}
	return OriginalSource{}, false
}

// concreteSource builds the source for a non-alias target. The target must
// exist and be typed (or be a Null node grouping other nodes); a missing
// numeric component directly below an interface addresses a sensor that
// has no node of its own.
func concreteSource(tree *pathtree.Tree, target string, transform Transform) (OriginalSource, bool) {
	src := OriginalSource{Path: target, Transform: transform}

	n, ok := tree.FindNodeByPath(target)
	if !ok {
		parentPath, last := splitLast(target)
		parent, ok := tree.FindNodeByPath(parentPath)
		if !ok || parent.Kind() != pathtree.KindInterface {
			return OriginalSource{}, false
		}
		num, err := strconv.Atoi(last)
		if err != nil || num < 0 {
			return OriginalSource{}, false
		}
		if count := parent.Element().(pathtree.InterfaceElement).Count; count > 0 && num >= count {
			return OriginalSource{}, false
		}
		src.Sensor, src.HasSensor = num, true
		n = parent
	} else if n.Kind() == pathtree.KindNull && !n.HasChildren() {
		return OriginalSource{}, false
	}

	for cur, ok := n, true; ok; cur, ok = cur.Parent() {
		switch e := cur.Element().(type) {
		case pathtree.SensorElement:
			if !src.HasSensor {
				src.Sensor, src.HasSensor = e.Number, true
			}
		case pathtree.InterfaceElement:
			if src.InterfacePath == "" {
				src.InterfacePath = cur.FullPath()
				src.InterfaceName = cur.Name()
			}
		case pathtree.DeviceElement:
			src.DevicePath = cur.FullPath()
			src.DeviceName = e.DeviceName
			return src, true
		}
	}
	return src, true
}

func splitLast(p string) (string, string) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			if i == 0 {
				return pathtree.Separator, p[1:]
			}
			return p[:i], p[i+1:]
		}
	}
	return pathtree.Separator, p
}
