package devicetoken

import (
	"fmt"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/report"
)

// UpdateCallback runs once per tick for a sync device.
type UpdateCallback func() error

// SyncDeviceToken is a device driven by the server tick.
type SyncDeviceToken struct {
	base

	cbMu   sync.Mutex
	update UpdateCallback
}

var _ Token = (*SyncDeviceToken)(nil)

// NewSyncDeviceToken registers a device under names and returns its token.
func NewSyncDeviceToken(conn *connection.Connection, options Options, names ...string) (*SyncDeviceToken, error) {
	dev, err := conn.RegisterDevice(names...)
	if err != nil {
		return nil, fmt.Errorf("register sync device: %w", err)
	}
	t := &SyncDeviceToken{base: newBase(conn, options)}
	t.attach(t, dev)
	dev.SetProcessHook(t.process)
	return t, nil
}

// SetUpdateCallback sets the function run on every tick.
func (t *SyncDeviceToken) SetUpdateCallback(fn UpdateCallback) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.update = fn
}

func (t *SyncDeviceToken) process() {
	switch t.State() {
	case StateStopping, StateStopped:
		return
	case StateRegistered:
		t.setState(StateRunning)
	}

	t.cbMu.Lock()
	fn := t.update
	t.cbMu.Unlock()
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		t.debugLog("update callback failed", "device", t.Name(), "error", err)
	}
}

// SendData sends from the tick goroutine. It fails with ErrStopped once
// the token or the connection is shutting down.
func (t *SyncDeviceToken) SendData(msgType connection.MessageType, ts time.Time, payload []byte) error {
	if s := t.State(); s == StateStopping || s == StateStopped {
		return ErrStopped
	}
	return t.sendLocked(msgType, ts, payload)
}

func (t *SyncDeviceToken) SendReport(r report.Report, ts time.Time) error {
	mt, payload, err := encodeReport(&t.base, r)
	if err != nil {
		return err
	}
	return t.SendData(mt, ts, payload)
}

// Stop detaches the update callback.
func (t *SyncDeviceToken) Stop() {
	if t.State() == StateStopped {
		return
	}
	t.setState(StateStopping)
	t.Device().SetProcessHook(nil)
	t.setState(StateStopped)
}
