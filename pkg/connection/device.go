package connection

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrForeignSender is returned when a device sends with a sender handle
// it does not own.
var ErrForeignSender = errors.New("sender does not belong to device")

// ConnectionDevice is a device's presence on the Connection: its names, one
// sender per name, and the token that drives it.
type ConnectionDevice struct {
	conn    *Connection
	names   []string
	senders []SenderType

	mu      sync.Mutex
	owner   any
	process func()
	window  func()
}

// Name returns the primary name.
func (d *ConnectionDevice) Name() string { return d.names[0] }

func (d *ConnectionDevice) Names() []string { return slices.Clone(d.names) }

// Sender returns the sender of the primary name.
func (d *ConnectionDevice) Sender() SenderType { return d.senders[0] }

func (d *ConnectionDevice) Senders() []SenderType { return slices.Clone(d.senders) }

// SetOwner binds the device to its token. It panics on a second call.
func (d *ConnectionDevice) SetOwner(owner any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owner != nil {
		panic(fmt.Sprintf("connection: device %q already has an owner", d.Name()))
	}
	d.owner = owner
}

func (d *ConnectionDevice) Owner() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.owner
}

// SetProcessHook sets the function Connection.Process runs for this
// device on every tick.
func (d *ConnectionDevice) SetProcessHook(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.process = fn
}

// SetSendWindowHook sets the function Connection.Process runs for this
// device after every device's process hook has run.
func (d *ConnectionDevice) SetSendWindowHook(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = fn
}

func (d *ConnectionDevice) runProcess() {
	d.mu.Lock()
	fn := d.process
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *ConnectionDevice) runSendWindow() {
	d.mu.Lock()
	fn := d.window
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SendData sends payload as the primary sender. It panics unless g is
// locked.
func (d *ConnectionDevice) SendData(g Guard, msgType MessageType, ts time.Time, payload []byte) error {
	return d.SendDataAs(g, d.senders[0], msgType, ts, payload)
}

// SendDataAs sends payload as one of the device's senders. It panics
// unless g is a locked guard of the device's own connection.
func (d *ConnectionDevice) SendDataAs(g Guard, sender SenderType, msgType MessageType, ts time.Time, payload []byte) error {
	if g == nil || !g.Locked() {
		panic(fmt.Sprintf("connection: device %q sent without holding the send guard", d.Name()))
	}
	if p := guardPtrOf(g); p == nil || p.conn != d.conn {
		panic(fmt.Sprintf("connection: device %q sent holding another connection's guard", d.Name()))
	}
	if !slices.Contains(d.senders, sender) {
		return fmt.Errorf("%w: %s on %q", ErrForeignSender, sender, d.Name())
	}
	return d.conn.send(d, sender, msgType, ts, payload)
}

// SendGuarded locks g, sends, and releases. It reports false without
// sending when the guard cannot be locked.
func (d *ConnectionDevice) SendGuarded(g Guard, msgType MessageType, ts time.Time, payload []byte) (bool, error) {
	if !g.Lock() {
		return false, nil
	}
	defer g.Release()
	return true, d.SendData(g, msgType, ts, payload)
}
