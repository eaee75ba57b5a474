package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownPlugin is returned by Load for a name nothing registered.
var ErrUnknownPlugin = errors.New("unknown plugin")

// EntryPoint initializes a plugin. params is the plugin's configuration,
// nil when none was given.
type EntryPoint func(ctx *RegistrationContext, params json.RawMessage) error

var registry = struct {
	mu      sync.RWMutex
	entries map[string]EntryPoint
}{entries: make(map[string]EntryPoint)}

// Register makes a plugin available by name. It panics if name is empty,
// ep is nil, or name is already registered.
func Register(name string, ep EntryPoint) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if name == "" || ep == nil {
		panic("plugin: Register needs a name and an entry point")
	}
	if _, dup := registry.entries[name]; dup {
		panic(fmt.Sprintf("plugin: %q registered twice", name))
	}
	registry.entries[name] = ep
}

func Lookup(name string) (EntryPoint, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	ep, ok := registry.entries[name]
	return ep, ok
}

// Names lists registered plugins, sorted.
func Names() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.entries))
	for n := range registry.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func unregister(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.entries, name)
}
