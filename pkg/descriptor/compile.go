package descriptor

import (
	"fmt"
	"sort"

	"github.com/devtree-io/devtree-go/pkg/alias"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
)

// SemanticNode is the name of the node below a device that holds its
// semantic aliases.
const SemanticNode = "semantic"

// maxSemanticDepth bounds nesting of the semantic tree.
const maxSemanticDepth = 16

// ProcessDeviceDescriptorForPathTree compiles a device descriptor into tree
// below the device node deviceName ("plugin/device"). listenPort and host
// record where the device is served. It reports whether the tree changed;
// compiling the same descriptor again changes nothing.
func ProcessDeviceDescriptorForPathTree(tree *pathtree.Tree, deviceName string, data []byte, listenPort int, host string) (bool, error) {
	d, err := Parse(data)
	if err != nil {
		return false, fmt.Errorf("device %s: %w", deviceName, err)
	}
	return Compile(tree, deviceName, d, listenPort, host)
}

// Compile is ProcessDeviceDescriptorForPathTree for an already parsed
// descriptor. The descriptor is normalized in place.
func Compile(tree *pathtree.Tree, deviceName string, d *Descriptor, listenPort int, host string) (bool, error) {
	implied := d.Normalize()

	dev, changed, err := tree.AddDevice(deviceName, pathtree.DeviceElement{Host: host, Port: listenPort})
	if err != nil {
		return false, err
	}
	devicePath := dev.FullPath()

	for _, iface := range d.Interfaces() {
		path := pathtree.Join(devicePath, iface.Name)
		var c bool
		if gen, ok := implied[iface.Name]; ok {
			c, err = tree.AddAlias(path, pathtree.Join(devicePath, gen), pathtree.AliasPriorityAutomatic)
		} else {
			_, c, err = tree.AddInterface(path, pathtree.InterfaceElement{Count: iface.Count})
		}
		if err != nil {
			return changed, fmt.Errorf("interface %s: %w", path, err)
		}
		changed = changed || c
	}

	if sem := d.Semantic(); sem != nil {
		c, err := addSemantic(tree, devicePath, pathtree.Join(devicePath, SemanticNode), sem, 0)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}

	if v, ok := d.Get(KeyAutomaticAliases); ok {
		c, err := addAutomaticAliases(tree, devicePath, v)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func addSemantic(tree *pathtree.Tree, devicePath, at string, obj map[string]any, depth int) (bool, error) {
	if depth > maxSemanticDepth {
		return false, fmt.Errorf("%w: %s nests too deeply", ErrInvalidSemantic, at)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	changed := false
	for _, k := range keys {
		path := pathtree.Join(at, k)
		v := obj[k]
		if child, ok := v.(map[string]any); ok && !isAliasObject(child) {
			c, err := addSemantic(tree, devicePath, path, child, depth+1)
			if err != nil {
				return changed, err
			}
			changed = changed || c
			continue
		}
		source, err := absoluteAlias(v, devicePath)
		if err != nil {
			return changed, fmt.Errorf("%w: %s: %v", ErrInvalidSemantic, path, err)
		}
		c, err := tree.AddAlias(path, source, pathtree.AliasPrioritySemantic)
		if err != nil {
			return changed, fmt.Errorf("%w: %s: %v", ErrInvalidSemantic, path, err)
		}
		changed = changed || c
	}
	return changed, nil
}

// addAutomaticAliases accepts either a list of {"path", "source"} objects
// or an object mapping paths to sources.
func addAutomaticAliases(tree *pathtree.Tree, devicePath string, v any) (bool, error) {
	type entry struct {
		path   string
		source any
	}
	var entries []entry
	switch val := v.(type) {
	case []any:
		for i, e := range val {
			obj, ok := e.(map[string]any)
			if !ok {
				return false, fmt.Errorf("%w: entry %d is not an object", ErrInvalidAutomaticAlias, i)
			}
			path, _ := obj["path"].(string)
			src, ok := obj[alias.SourceKey]
			if path == "" || !ok {
				return false, fmt.Errorf("%w: entry %d needs path and source", ErrInvalidAutomaticAlias, i)
			}
			entries = append(entries, entry{path, src})
		}
	case map[string]any:
		paths := make([]string, 0, len(val))
		for p := range val {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			entries = append(entries, entry{p, val[p]})
		}
	default:
		return false, fmt.Errorf("%w: must be a list or an object", ErrInvalidAutomaticAlias)
	}

	changed := false
	for _, e := range entries {
		if !pathtree.IsAbsolute(e.path) {
			return changed, fmt.Errorf("%w: %q is not absolute", ErrInvalidAutomaticAlias, e.path)
		}
		source, err := absoluteAlias(e.source, devicePath)
		if err != nil {
			return changed, fmt.Errorf("%w: %s: %v", ErrInvalidAutomaticAlias, e.path, err)
		}
		c, err := tree.AddAlias(e.path, source, pathtree.AliasPriorityAutomatic)
		if err != nil {
			return changed, fmt.Errorf("%w: %s: %v", ErrInvalidAutomaticAlias, e.path, err)
		}
		changed = changed || c
	}
	return changed, nil
}

func isAliasObject(obj map[string]any) bool {
	_, src := obj[alias.SourceKey]
	_, child := obj[alias.ChildKey]
	return src || child
}

// absoluteAlias parses an alias value and makes its leaf absolute relative
// to the device path.
func absoluteAlias(v any, devicePath string) (string, error) {
	p := alias.ParseValue(v)
	if !p.IsValid() {
		return "", fmt.Errorf("unparseable alias %v", v)
	}
	if !pathtree.IsAbsolute(p.Leaf()) {
		p = p.WithLeaf(pathtree.ResolveRelative(devicePath, p.Leaf()))
	}
	return p.Alias(), nil
}
