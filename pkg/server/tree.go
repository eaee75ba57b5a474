package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/devtree-io/devtree-go/pkg/alias"
	"github.com/devtree-io/devtree-go/pkg/descriptor"
	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
	"github.com/devtree-io/devtree-go/pkg/wire"
)

// ErrInvalidAlias is returned for an alias source that does not parse.
var ErrInvalidAlias = errors.New("invalid alias")

// AliasInfo describes one alias node.
type AliasInfo struct {
	Path      string
	Source    string
	Automatic bool
}

// AddDeviceDescriptor compiles a local device's descriptor into the tree.
func (s *Server) AddDeviceDescriptor(deviceName string, data []byte) error {
	return s.compile(deviceName, data, s.Port(), "")
}

// AddExternalDevice adds a device served at host:port to the tree. path is
// the device path ("/plugin/device").
func (s *Server) AddExternalDevice(path, host string, port int, data []byte) error {
	if !pathtree.IsAbsolute(path) {
		return fmt.Errorf("external device %q: %w", path, pathtree.ErrNotAbsolute)
	}
	name := strings.TrimPrefix(pathtree.Clean(path), pathtree.Separator)
	return s.compile(name, data, port, host)
}

func (s *Server) compile(deviceName string, data []byte, port int, host string) error {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	changed, err := descriptor.ProcessDeviceDescriptorForPathTree(s.tree, deviceName, data, port, host)
	if changed {
		s.treeChanged = true
	}
	return err
}

// AddAlias sets a configured alias at path. It reports whether the tree
// changed.
func (s *Server) AddAlias(path, source string) (bool, error) {
	if !alias.Parse(source).IsValid() {
		return false, fmt.Errorf("%w at %s: %q", ErrInvalidAlias, path, source)
	}
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	changed, err := s.tree.AddAlias(path, source, pathtree.AliasPriorityManual)
	if err != nil {
		return false, fmt.Errorf("alias %s: %w", path, err)
	}
	if changed {
		s.treeChanged = true
	}
	return changed, nil
}

// AddRuntimeAlias adds an alias like AddAlias and, when a state file is
// configured, records it there so it survives a restart.
func (s *Server) AddRuntimeAlias(path, source string) (bool, error) {
	changed, err := s.AddAlias(path, source)
	if err != nil || s.store == nil {
		return changed, err
	}
	if err := s.store.SetAlias(path, source); err != nil {
		return changed, fmt.Errorf("save alias %s: %w", path, err)
	}
	return changed, nil
}

// restoreAliases applies aliases saved by AddRuntimeAlias. An alias that no
// longer applies is skipped with a warning; an unreadable state file is an
// error.
func (s *Server) restoreAliases() error {
	if s.store == nil {
		return nil
	}
	state, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("state file: %w", err)
	}
	if state == nil {
		return nil
	}
	paths := slices.Sorted(maps.Keys(state.Aliases))
	for _, p := range paths {
		if _, err := s.AddAlias(p, state.Aliases[p]); err != nil && s.config.Log != nil {
			s.config.Log.Warn("saved alias skipped", "path", p, "error", err)
		}
	}
	s.debugLog("aliases restored", "file", s.store.Path(), "count", len(paths))
	return nil
}

// AddAliases adds every alias of a JSON object (comments allowed) mapping
// paths to alias sources. Values are path strings or alias objects.
func (s *Server) AddAliases(data []byte) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &entries); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAlias, err)
	}
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var errs []error
	for _, p := range paths {
		raw := entries[p]
		var source string
		if err := json.Unmarshal(raw, &source); err != nil {
			source = string(raw)
		}
		if _, err := s.AddAlias(p, source); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tree returns a copy of the path tree.
func (s *Server) Tree() *pathtree.Tree {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	return s.tree.Clone()
}

// BadPaths returns the aliases the last resolution could not resolve.
func (s *Server) BadPaths() []string {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	return slices.Clone(s.badPaths)
}

// Resolve follows path through any aliases to its concrete source.
func (s *Server) Resolve(path string) (alias.OriginalSource, bool) {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	return alias.Resolve(s.tree, path)
}

// Aliases lists every alias node in traversal order.
func (s *Server) Aliases() []AliasInfo {
	s.treeMu.Lock()
	defer s.treeMu.Unlock()
	var out []AliasInfo
	s.tree.Visit(func(n pathtree.Node) bool {
		if a, ok := n.Element().(pathtree.AliasElement); ok {
			out = append(out, AliasInfo{Path: n.FullPath(), Source: a.Source, Automatic: a.Automatic()})
		}
		return true
	})
	return out
}

// publishTree resolves the whole tree and broadcasts it.
func (s *Server) publishTree(reason string) error {
	s.treeMu.Lock()
	bad := alias.ResolveFullTree(s.tree)
	s.badPaths = bad
	s.treeChanged = false
	nodes := s.tree.Len()
	payload, err := wire.EncodeTree(s.tree)
	s.treeMu.Unlock()
	if err != nil {
		return err
	}
	conn := s.Connection()

	for _, p := range bad {
		if s.config.Log != nil {
			s.config.Log.Warn("unresolved alias", "path", p)
		}
	}
	if s.config.Logger != nil {
		s.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: conn.ID(),
			Direction:    log.DirectionOut,
			Layer:        log.LayerRouting,
			Category:     log.CategoryTree,
			Role:         log.RoleServer,
			Tree:         &log.TreeEvent{Nodes: nodes, Changed: true, BadPaths: bad, Reason: reason},
		})
	}
	return conn.SendTree(payload)
}
