package devicetoken

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/report"
)

// WaitCallback blocks until the device has data, sending it through the
// token before returning. ctx is cancelled when the token stops.
type WaitCallback func(ctx context.Context) error

// AsyncDeviceToken is a device with its own worker goroutine. Sends from
// the worker only happen inside a window the mainloop grants.
type AsyncDeviceToken struct {
	base

	rts      chan struct{}
	cts      chan struct{}
	finished chan struct{}
	done     chan struct{}
	exited   chan struct{}

	mu       sync.Mutex
	wait     WaitCallback
	started  bool
	cancel   context.CancelFunc
	stopOnce sync.Once
}

var _ Token = (*AsyncDeviceToken)(nil)

// NewAsyncDeviceToken registers a device under names and returns its
// token. Call SetWaitCallback and Start to run it.
func NewAsyncDeviceToken(conn *connection.Connection, options Options, names ...string) (*AsyncDeviceToken, error) {
	dev, err := conn.RegisterDevice(names...)
	if err != nil {
		return nil, fmt.Errorf("register async device: %w", err)
	}
	t := &AsyncDeviceToken{
		base:     newBase(conn, options),
		rts:      make(chan struct{}, 1),
		cts:      make(chan struct{}),
		finished: make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	t.attach(t, dev)
	dev.SetSendWindowHook(t.serviceSendWindow)
	return t, nil
}

func (t *AsyncDeviceToken) SetWaitCallback(fn WaitCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wait = fn
}

// Start launches the worker.
func (t *AsyncDeviceToken) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}
	if t.wait == nil {
		return ErrNoWaitCallback
	}
	select {
	case <-t.done:
		return ErrStopped
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.started = true
	t.setState(StateRunning)
	go t.run(ctx, t.wait)
	return nil
}

func (t *AsyncDeviceToken) run(ctx context.Context, wait WaitCallback) {
	defer close(t.exited)
	for {
		select {
		case <-t.done:
			return
		default:
		}

		err := wait(ctx)
		if err == nil {
			continue
		}
		select {
		case <-t.done:
			return
		default:
		}
		t.debugLog("wait callback failed", "device", t.Name(), "error", err)

		timer := time.NewTimer(t.options.WaitRetryDelay)
		select {
		case <-t.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// SendData asks the mainloop for a send window, sends inside it, and
// reports back. It returns ErrStopped if the token stops at any point
// before the write.
func (t *AsyncDeviceToken) SendData(msgType connection.MessageType, ts time.Time, payload []byte) error {
	select {
	case t.rts <- struct{}{}:
	case <-t.done:
		return ErrStopped
	}

	select {
	case <-t.cts:
	case <-t.done:
		return ErrStopped
	}
	defer t.signalFinished()

	select {
	case <-t.done:
		return ErrStopped
	default:
	}
	return t.sendLocked(msgType, ts, payload)
}

func (t *AsyncDeviceToken) SendReport(r report.Report, ts time.Time) error {
	mt, payload, err := encodeReport(&t.base, r)
	if err != nil {
		return err
	}
	return t.SendData(mt, ts, payload)
}

func (t *AsyncDeviceToken) signalFinished() {
	select {
	case t.finished <- struct{}{}:
	default:
	}
}

// serviceSendWindow runs on the mainloop. It grants one pending send
// request and waits a bounded time for it to finish.
func (t *AsyncDeviceToken) serviceSendWindow() {
	select {
	case <-t.rts:
	default:
		return
	}

	// A send that overran an earlier window may have left a signal.
	select {
	case <-t.finished:
	default:
	}

	timer := time.NewTimer(t.options.SendFinishedTimeout)
	defer timer.Stop()

	select {
	case t.cts <- struct{}{}:
	case <-t.done:
		return
	case <-timer.C:
		t.debugLog("send window not taken", "device", t.Name())
		return
	}

	select {
	case <-t.finished:
	case <-t.done:
	case <-timer.C:
		t.debugLog("send overran its window", "device", t.Name(),
			"timeout", t.options.SendFinishedTimeout)
	}
}

// Stop signals the worker, cancels the wait callback's context, and
// blocks until the worker has exited. A wait callback that ignores its
// context delays Stop until it returns.
func (t *AsyncDeviceToken) Stop() {
	t.stopOnce.Do(func() {
		t.setState(StateStopping)
		close(t.done)

		t.mu.Lock()
		started, cancel := t.started, t.cancel
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if started {
			<-t.exited
		}
		t.Device().SetSendWindowHook(nil)
		t.setState(StateStopped)
	})
}

// Done is closed when Stop begins.
func (t *AsyncDeviceToken) Done() <-chan struct{} { return t.done }
