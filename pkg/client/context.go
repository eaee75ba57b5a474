package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/alias"
	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
	"github.com/devtree-io/devtree-go/pkg/report"
	"github.com/devtree-io/devtree-go/pkg/wire"
)

// Context errors.
var (
	ErrContextClosed  = errors.New("client context closed")
	ErrInvalidPath    = errors.New("interface path must be absolute")
	ErrNotOwned       = errors.New("interface belongs to another context")
	ErrTreeNotArrived = errors.New("path tree not received")
)

// Source feeds a Context with envelopes from a server.
type Source interface {
	// Poll returns the envelopes received since the last call.
	Poll() ([]*wire.Envelope, error)
	Close() error
}

// Notifier is implemented by sources that can signal new envelopes.
type Notifier interface {
	Notify() <-chan struct{}
}

// ContextConfig configures a Context.
type ContextConfig struct {
	// TreePollInterval is how often WaitForTree polls a source that cannot
	// notify.
	TreePollInterval time.Duration

	// Logger receives routing events (optional).
	Logger log.Logger

	// Log receives operational debug output (optional).
	Log *slog.Logger
}

func DefaultContextConfig() ContextConfig {
	return ContextConfig{TreePollInterval: 10 * time.Millisecond}
}

// Context is a client's view of one server. Update and the methods that
// open or release interfaces are meant for one goroutine; Interface state
// queries may come from anywhere.
type Context struct {
	appID  string
	source Source
	config ContextConfig

	mu          sync.Mutex
	tree        *pathtree.Tree
	treeArrived bool
	senders     map[uint32]string
	types       map[uint32]report.Kind
	interfaces  []*Interface
	closed      bool
	unknown     uint64
}

// NewContext creates a context reading from source. The context owns the
// source and closes it on Close.
func NewContext(appID string, source Source, config ContextConfig) *Context {
	if config.TreePollInterval <= 0 {
		config.TreePollInterval = DefaultContextConfig().TreePollInterval
	}
	return &Context{
		appID:   appID,
		source:  source,
		config:  config,
		tree:    pathtree.New(),
		senders: make(map[uint32]string),
		types:   make(map[uint32]report.Kind),
	}
}

func (c *Context) AppID() string { return c.appID }

// CheckStatus reports whether the path tree has arrived at least once.
func (c *Context) CheckStatus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.treeArrived
}

// WaitForTree updates the context until the path tree arrives or ctx ends.
func (c *Context) WaitForTree(ctx context.Context) error {
	var notify <-chan struct{}
	if n, ok := c.source.(Notifier); ok {
		notify = n.Notify()
	}
	ticker := time.NewTicker(c.config.TreePollInterval)
	defer ticker.Stop()

	for {
		if err := c.Update(); err != nil {
			return err
		}
		if c.CheckStatus() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTreeNotArrived, ctx.Err())
		case <-notify:
		case <-ticker.C:
		}
	}
}

// Tree returns a copy of the server's path tree.
func (c *Context) Tree() *pathtree.Tree {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Clone()
}

// Resolve resolves path against the server's path tree.
func (c *Context) Resolve(path string) (alias.OriginalSource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return alias.Resolve(c.tree, path)
}

// GetInterface returns the interface for path, creating it on first use.
// A path that does not resolve yet is bound once a tree that resolves it
// arrives.
func (c *Context) GetInterface(path string) (*Interface, error) {
	if !pathtree.IsAbsolute(path) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	path = pathtree.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	for _, iface := range c.interfaces {
		if iface.path == path {
			return iface, nil
		}
	}
	iface := newInterface(c, path)
	c.bindLocked(iface)
	c.interfaces = append(c.interfaces, iface)
	c.debugLog("interface opened", "path", path)
	return iface, nil
}

// ReleaseInterface drops iface and its callbacks.
func (c *Context) ReleaseInterface(iface *Interface) error {
	if iface.ctx != c {
		return ErrNotOwned
	}
	c.mu.Lock()
	idx := slices.Index(c.interfaces, iface)
	if idx >= 0 {
		c.interfaces = slices.Delete(c.interfaces, idx, idx+1)
	}
	c.mu.Unlock()
	iface.drop()
	return nil
}

// Update drains the source and dispatches what it delivered. Callbacks run
// on the calling goroutine.
func (c *Context) Update() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrContextClosed
	}

	envs, err := c.source.Poll()
	if err != nil {
		return fmt.Errorf("poll source: %w", err)
	}
	for _, env := range envs {
		c.handle(env)
	}
	return nil
}

// Close releases every interface and closes the source.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ifaces := c.interfaces
	c.interfaces = nil
	c.mu.Unlock()

	for _, iface := range ifaces {
		iface.drop()
	}
	return c.source.Close()
}

// UnknownCount returns how many data envelopes were dropped because their
// sender or type had not been announced.
func (c *Context) UnknownCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unknown
}

func (c *Context) handle(env *wire.Envelope) {
	switch env.Kind {
	case wire.KindSenderName:
		c.mu.Lock()
		c.senders[env.Sender] = env.Name
		c.mu.Unlock()
	case wire.KindTypeName:
		kind, ok := report.KindFromMessageName(env.Name)
		if !ok {
			c.debugLog("ignoring message type", "name", env.Name)
			return
		}
		c.mu.Lock()
		c.types[env.Type] = kind
		c.mu.Unlock()
	case wire.KindTree:
		if err := c.setTree(env.Payload); err != nil {
			c.debugLog("bad tree", "error", err)
			c.logError(err, "tree")
		}
	case wire.KindData:
		c.dispatch(env)
	}
}

func (c *Context) setTree(payload []byte) error {
	tree, err := wire.DecodeTree(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = tree
	c.treeArrived = true
	for _, iface := range c.interfaces {
		c.bindLocked(iface)
	}
	c.debugLog("tree updated", "nodes", tree.Len())
	if c.config.Logger != nil {
		c.config.Logger.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionIn,
			Layer:     log.LayerRouting,
			Category:  log.CategoryTree,
			Role:      log.RoleClient,
			Tree:      &log.TreeEvent{Nodes: tree.Len(), Changed: true, Reason: "received"},
		})
	}
	return nil
}

func (c *Context) bindLocked(iface *Interface) {
	src, ok := alias.Resolve(c.tree, iface.path)
	if !ok || !src.IsDevice() {
		iface.bind(nil)
		return
	}
	iface.bind(&src)
}

func (c *Context) dispatch(env *wire.Envelope) {
	c.mu.Lock()
	device, okSender := c.senders[env.Sender]
	kind, okType := c.types[env.Type]
	if !okSender || !okType {
		c.unknown++
		c.mu.Unlock()
		return
	}
	ifaces := append([]*Interface(nil), c.interfaces...)
	c.mu.Unlock()

	r, err := report.Decode(kind, env.Payload)
	if err != nil {
		c.debugLog("bad report", "device", device, "kind", kind.String(), "error", err)
		c.logError(err, device)
		return
	}
	ts := env.Time()

	for _, iface := range ifaces {
		src, ok := iface.accepts(device, r.Kind(), r.SensorID())
		if !ok {
			continue
		}
		delivered := applyTransform(src.Transform, r)
		for _, cb := range iface.deliver(ts, delivered) {
			cb.fn(ts, delivered, cb.userdata)
		}
	}
}

func (c *Context) logError(err error, context string) {
	if c.config.Logger != nil {
		c.config.Logger.Log(log.NewErrorEvent(c.appID, log.LayerRouting, err, context))
	}
}

func (c *Context) debugLog(msg string, args ...any) {
	if c.config.Log != nil {
		c.config.Log.Debug(msg, args...)
	}
}
