package devicetoken

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/report"
)

// Token errors.
var (
	ErrStopped          = errors.New("device token stopped")
	ErrNoWaitCallback   = errors.New("async device token has no wait callback")
	ErrAlreadyStarted   = errors.New("async device token already started")
	ErrSendWindowClosed = errors.New("send window not granted")
)

// State is a device token's lifecycle state.
type State uint8

const (
	StateCreated State = iota
	StateRegistered
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRegistered:
		return "REGISTERED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// SendHook observes every report a token sent successfully.
type SendHook func(device string, msgType connection.MessageType, ts time.Time, payload []byte)

// Options configures a token.
type Options struct {
	// SendFinishedTimeout bounds how long the mainloop waits for an async
	// token to finish a granted send.
	SendFinishedTimeout time.Duration

	// WaitRetryDelay is the pause after a wait callback error.
	WaitRetryDelay time.Duration

	OnSend SendHook

	// Logger receives token state changes (optional).
	Logger log.Logger

	// Log receives operational debug output (optional).
	Log *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		SendFinishedTimeout: 50 * time.Millisecond,
		WaitRetryDelay:      10 * time.Millisecond,
	}
}

// Token is the producer side of a device.
type Token interface {
	Name() string
	State() State
	Device() *connection.ConnectionDevice

	// SendData publishes a raw payload.
	SendData(msgType connection.MessageType, ts time.Time, payload []byte) error

	// SendReport encodes and publishes a typed report.
	SendReport(r report.Report, ts time.Time) error

	Stop()
}

// base holds what both token forms share.
type base struct {
	conn    *connection.Connection
	options Options

	mu       sync.Mutex
	dev      *connection.ConnectionDevice
	state    State
	msgTypes map[report.Kind]connection.MessageType
}

func newBase(conn *connection.Connection, options Options) base {
	def := DefaultOptions()
	if options.SendFinishedTimeout <= 0 {
		options.SendFinishedTimeout = def.SendFinishedTimeout
	}
	if options.WaitRetryDelay <= 0 {
		options.WaitRetryDelay = def.WaitRetryDelay
	}
	return base{
		conn:     conn,
		options:  options,
		msgTypes: make(map[report.Kind]connection.MessageType),
	}
}

// attach binds dev to owner. A token's device is set exactly once.
func (b *base) attach(owner any, dev *connection.ConnectionDevice) {
	b.mu.Lock()
	if b.dev != nil {
		b.mu.Unlock()
		panic(fmt.Sprintf("devicetoken: %q already has a connection device", b.dev.Name()))
	}
	b.dev = dev
	b.mu.Unlock()
	dev.SetOwner(owner)
	b.setState(StateRegistered)
}

func (b *base) Name() string { return b.Device().Name() }

func (b *base) Device() *connection.ConnectionDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev
}

func (b *base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) setState(s State) {
	b.mu.Lock()
	old := b.state
	b.state = s
	dev := b.dev
	b.mu.Unlock()
	if old == s {
		return
	}

	var name string
	if dev != nil {
		name = dev.Name()
	}
	b.debugLog("device token state", "device", name, "from", old.String(), "to", s.String())
	if b.options.Logger != nil {
		b.options.Logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerRouting,
			Category:  log.CategoryState,
			Role:      log.RoleServer,
			Device:    name,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityDeviceToken,
				OldState: old.String(),
				NewState: s.String(),
			},
		})
	}
}

// messageType returns the registered type for a report kind.
func (b *base) messageType(kind report.Kind) (connection.MessageType, error) {
	b.mu.Lock()
	mt, ok := b.msgTypes[kind]
	b.mu.Unlock()
	if ok {
		return mt, nil
	}
	mt, err := b.conn.RegisterMessageType(kind.MessageName())
	if err != nil {
		return connection.AnyMessageType, err
	}
	b.mu.Lock()
	b.msgTypes[kind] = mt
	b.mu.Unlock()
	return mt, nil
}

// sendLocked takes a guard and writes. It never writes when the guard
// cannot be locked.
func (b *base) sendLocked(msgType connection.MessageType, ts time.Time, payload []byte) error {
	dev := b.Device()
	sent, err := dev.SendGuarded(b.conn.Guard(), msgType, ts, payload)
	if err != nil {
		return err
	}
	if !sent {
		return ErrStopped
	}
	if b.options.OnSend != nil {
		b.options.OnSend(dev.Name(), msgType, ts, payload)
	}
	return nil
}

func encodeReport(b *base, r report.Report) (connection.MessageType, []byte, error) {
	mt, err := b.messageType(r.Kind())
	if err != nil {
		return mt, nil, err
	}
	payload, err := report.Encode(r)
	if err != nil {
		return mt, nil, fmt.Errorf("encode %s report: %w", r.Kind(), err)
	}
	return mt, payload, nil
}

func (b *base) debugLog(msg string, args ...any) {
	if b.options.Log != nil {
		b.options.Log.Debug(msg, args...)
	}
}
