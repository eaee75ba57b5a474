package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/devicetoken"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
)

// Registration errors.
var (
	ErrInvalidDeviceName = errors.New("device name must be a single path component")
	ErrUnloaded          = errors.New("plugin unloaded")
)

// Host is what a plugin registers into.
type Host interface {
	Connection() *connection.Connection

	// AddDeviceDescriptor compiles a device descriptor into the path tree
	// below deviceName ("plugin/device").
	AddDeviceDescriptor(deviceName string, descriptor []byte) error
}

// HardwareDetectFunc looks for newly attached hardware.
type HardwareDetectFunc func(ctx *RegistrationContext) error

// RegistrationContext is a loaded plugin's handle on the server.
type RegistrationContext struct {
	name    string
	host    Host
	ctx     context.Context
	options devicetoken.Options
	log     *slog.Logger

	mu       sync.Mutex
	tokens   []devicetoken.Token
	detect   []HardwareDetectFunc
	unloaded bool
}

// Options configures the contexts Load creates.
type Options struct {
	Token devicetoken.Options

	// Log receives plugin output (optional). Each plugin gets a child
	// logger tagged with its name.
	Log *slog.Logger
}

// NewRegistrationContext creates the context for plugin name. Async device
// workers run until ctx ends or the plugin is unloaded.
func NewRegistrationContext(ctx context.Context, name string, host Host, options Options) *RegistrationContext {
	l := options.Log
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	return &RegistrationContext{
		name:    name,
		host:    host,
		ctx:     ctx,
		options: options.Token,
		log:     l.With("plugin", name),
	}
}

// Load looks up the plugin registered as name and runs its entry point.
// A failed entry point is unloaded before the error is returned.
func Load(ctx context.Context, name string, params json.RawMessage, host Host, options Options) (*RegistrationContext, error) {
	ep, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
	}
	rc := NewRegistrationContext(ctx, name, host, options)
	if err := ep(rc, params); err != nil {
		rc.Unload()
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}
	return rc, nil
}

func (r *RegistrationContext) PluginName() string { return r.name }

// Logger returns the plugin's logger.
func (r *RegistrationContext) Logger() *slog.Logger { return r.log }

// Context is cancelled when the server shuts down.
func (r *RegistrationContext) Context() context.Context { return r.ctx }

// NewSyncDevice registers device name with its descriptor. update runs
// once per server tick.
func (r *RegistrationContext) NewSyncDevice(name string, descriptor []byte, update devicetoken.UpdateCallback) (*devicetoken.SyncDeviceToken, error) {
	full, err := r.prepare(name, descriptor)
	if err != nil {
		return nil, err
	}
	t, err := devicetoken.NewSyncDeviceToken(r.host.Connection(), r.options, full)
	if err != nil {
		return nil, err
	}
	t.SetUpdateCallback(update)
	r.adopt(t)
	return t, nil
}

// NewAsyncDevice registers device name with its descriptor and starts a
// worker calling wait in a loop.
func (r *RegistrationContext) NewAsyncDevice(name string, descriptor []byte, wait devicetoken.WaitCallback) (*devicetoken.AsyncDeviceToken, error) {
	full, err := r.prepare(name, descriptor)
	if err != nil {
		return nil, err
	}
	t, err := devicetoken.NewAsyncDeviceToken(r.host.Connection(), r.options, full)
	if err != nil {
		return nil, err
	}
	t.SetWaitCallback(wait)
	r.adopt(t)
	if err := t.Start(r.ctx); err != nil {
		return nil, fmt.Errorf("start %s: %w", full, err)
	}
	return t, nil
}

func (r *RegistrationContext) prepare(name string, descriptor []byte) (string, error) {
	r.mu.Lock()
	unloaded := r.unloaded
	r.mu.Unlock()
	if unloaded {
		return "", ErrUnloaded
	}
	if name == "" || strings.Contains(name, pathtree.Separator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDeviceName, name)
	}
	full := r.name + pathtree.Separator + name
	if err := r.host.AddDeviceDescriptor(full, descriptor); err != nil {
		return "", fmt.Errorf("device %s: %w", full, err)
	}
	return full, nil
}

func (r *RegistrationContext) adopt(t devicetoken.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, t)
}

// AddHardwareDetectCallback registers fn to run on every hardware detect
// request.
func (r *RegistrationContext) AddHardwareDetectCallback(fn HardwareDetectFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detect = append(r.detect, fn)
}

// HardwareDetect runs the detect callbacks in registration order and
// returns their errors joined.
func (r *RegistrationContext) HardwareDetect() error {
	r.mu.Lock()
	if r.unloaded {
		r.mu.Unlock()
		return ErrUnloaded
	}
	fns := append([]HardwareDetectFunc(nil), r.detect...)
	r.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tokens returns the devices the plugin created, in creation order.
func (r *RegistrationContext) Tokens() []devicetoken.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]devicetoken.Token(nil), r.tokens...)
}

// Unload stops every token, in reverse creation order. Stopping an async
// token waits for its worker to exit.
func (r *RegistrationContext) Unload() {
	r.mu.Lock()
	if r.unloaded {
		r.mu.Unlock()
		return
	}
	r.unloaded = true
	tokens := r.tokens
	r.detect = nil
	r.mu.Unlock()

	for i := len(tokens) - 1; i >= 0; i-- {
		tokens[i].Stop()
	}
	r.log.Debug("plugin unloaded", "devices", len(tokens))
}

