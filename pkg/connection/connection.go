package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/google/uuid"
)

// Connection errors.
var (
	ErrNoDeviceName     = errors.New("device needs at least one non-empty name")
	ErrEmptyTypeName    = errors.New("message type name is empty")
	ErrConnectionClosed = errors.New("connection closed")
	ErrNotSubscribable  = errors.New("transport does not serve in-process clients")
)

// Config configures a Connection.
type Config struct {
	// Logger receives routing events (optional).
	Logger log.Logger

	// Log receives operational debug output (optional).
	Log *slog.Logger
}

func DefaultConfig() Config {
	return Config{}
}

// Connection is the server's single routing endpoint. It owns the
// registry and the transport, and runs device process hooks each tick.
type Connection struct {
	id        string
	config    Config
	registry  *Registry
	transport Transport

	mu      sync.Mutex
	devices []*ConnectionDevice
	hooks   []func()

	sendMu  sync.Mutex
	closing atomic.Bool
}

// New creates a Connection over t.
func New(t Transport, config Config) *Connection {
	return &Connection{
		id:        uuid.New().String(),
		config:    config,
		registry:  NewRegistry(),
		transport: t,
	}
}

// NewLocalConnection creates a Connection serving in-process clients only.
func NewLocalConnection(config Config) *Connection {
	return New(NewLoopback(), config)
}

// NewSharedConnection creates a Connection that also serves remote
// clients over TCP.
func NewSharedConnection(ctx context.Context, shared SharedConfig, config Config) (*Connection, error) {
	if shared.Logger == nil {
		shared.Logger = config.Logger
	}
	if shared.Log == nil {
		shared.Log = config.Log
	}
	t, err := NewShared(ctx, shared)
	if err != nil {
		return nil, err
	}
	return New(t, config), nil
}

// ID returns the connection's unique id.
func (c *Connection) ID() string { return c.id }

func (c *Connection) Registry() *Registry { return c.registry }

func (c *Connection) Transport() Transport { return c.transport }

// Subscribe attaches an in-process client.
func (c *Connection) Subscribe() (*Subscription, error) {
	s, ok := c.transport.(Subscriber)
	if !ok {
		return nil, ErrNotSubscribable
	}
	return s.Subscribe()
}

// RegisterMessageType returns the handle for name, announcing it to peers
// the first time.
func (c *Connection) RegisterMessageType(name string) (MessageType, error) {
	raw, err := c.RegisterRawMessageType(name)
	if err != nil {
		return AnyMessageType, err
	}
	return MessageType{name: name, raw: raw}, nil
}

// RegisterRawMessageType is RegisterMessageType returning the bare id.
func (c *Connection) RegisterRawMessageType(name string) (RawMessageType, error) {
	if name == "" {
		return AnyRawMessageType, ErrEmptyTypeName
	}
	if c.closing.Load() {
		return AnyRawMessageType, ErrConnectionClosed
	}
	id, isNew, err := c.registry.AnnounceType(name, func(id uint32) error {
		return c.transport.RegisterMessageType(id, name)
	})
	if err != nil {
		return AnyRawMessageType, fmt.Errorf("announce message type %q: %w", name, err)
	}
	if isNew {
		c.debugLog("message type registered", "name", name, "id", id)
	}
	return NewRawMessageType(id), nil
}

// RegisterDevice registers a device under one or more names.
func (c *Connection) RegisterDevice(names ...string) (*ConnectionDevice, error) {
	if len(names) == 0 {
		return nil, ErrNoDeviceName
	}
	for _, n := range names {
		if n == "" {
			return nil, ErrNoDeviceName
		}
	}
	if c.closing.Load() {
		return nil, ErrConnectionClosed
	}

	d := &ConnectionDevice{conn: c, names: append([]string(nil), names...)}
	for _, n := range names {
		id, _, err := c.registry.AnnounceSender(n, func(id uint32) error {
			return c.transport.RegisterSender(id, n)
		})
		if err != nil {
			return nil, fmt.Errorf("announce sender %q: %w", n, err)
		}
		d.senders = append(d.senders, NewSenderType(id))
	}

	c.mu.Lock()
	c.devices = append(c.devices, d)
	c.mu.Unlock()

	c.debugLog("device registered", "names", names)
	c.logState(d.Name(), "", "REGISTERED")
	return d, nil
}

// Devices returns the registered devices in registration order.
func (c *Connection) Devices() []*ConnectionDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ConnectionDevice(nil), c.devices...)
}

// RegisterHandler routes inbound data to fn.
func (c *Connection) RegisterHandler(sender SenderType, msgType RawMessageType, fn Handler) {
	c.transport.RegisterHandler(sender, msgType, fn)
}

// AddProcessHook adds fn to run after the device hooks on every Process.
func (c *Connection) AddProcessHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Process runs each device's process hook once in registration order, then
// each device's send window hook, then the extra hooks, then polls the
// transport.
func (c *Connection) Process() error {
	if c.closing.Load() {
		return ErrConnectionClosed
	}
	c.mu.Lock()
	devices := append([]*ConnectionDevice(nil), c.devices...)
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()

	for _, d := range devices {
		d.runProcess()
	}
	for _, d := range devices {
		d.runSendWindow()
	}
	for _, fn := range hooks {
		fn()
	}
	return c.transport.Poll()
}

// Guard returns an unlocked guard on the send mutex.
func (c *Connection) Guard() *GuardPtr {
	return &GuardPtr{conn: c}
}

// SendTree publishes the serialized path tree.
func (c *Connection) SendTree(payload []byte) error {
	g := c.Guard()
	if !g.Lock() {
		return ErrConnectionClosed
	}
	defer g.Release()
	if err := c.transport.SendTree(payload); err != nil {
		return fmt.Errorf("send tree: %w", err)
	}
	return nil
}

// Closing reports whether Close has been called.
func (c *Connection) Closing() bool { return c.closing.Load() }

// Close refuses new guards, waits for the current holder, and closes the
// transport.
func (c *Connection) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.debugLog("connection closing", "id", c.id)
	return c.transport.Close()
}

func (c *Connection) send(d *ConnectionDevice, sender SenderType, msgType MessageType, ts time.Time, payload []byte) error {
	if err := c.transport.Send(sender, msgType.Raw(), ts, payload); err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Log(log.NewErrorEvent(c.id, log.LayerRouting, err, d.Name()))
		}
		return fmt.Errorf("send %s from %q: %w", msgType, d.Name(), err)
	}
	if c.config.Logger != nil {
		sid, _ := sender.ID()
		tid, _ := msgType.ID()
		c.config.Logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Direction:    log.DirectionOut,
			Layer:        log.LayerRouting,
			Category:     log.CategoryMessage,
			Role:         log.RoleServer,
			Device:       d.Name(),
			Message: &log.MessageEvent{
				Kind:        "DATA",
				SenderID:    sid,
				TypeID:      tid,
				TypeName:    msgType.Name(),
				SourceTime:  ts,
				PayloadSize: len(payload),
			},
		})
	}
	return nil
}

func (c *Connection) logState(device, oldState, newState string) {
	if c.config.Logger == nil {
		return
	}
	c.config.Logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerRouting,
		Category:     log.CategoryState,
		Role:         log.RoleServer,
		Device:       device,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityDeviceToken,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (c *Connection) debugLog(msg string, args ...any) {
	if c.config.Log != nil {
		c.config.Log.Debug(msg, args...)
	}
}
