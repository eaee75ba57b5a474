package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State is the state of a Redialer.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc opens a connection. It is called for every attempt, so it may
// rediscover the server address.
type DialFunc func(ctx context.Context) (*Conn, error)

// RedialConfig configures a Redialer.
type RedialConfig struct {
	// Address is dialed when Dial is nil.
	Address string
	Dial    DialFunc

	DialConfig DialConfig
	Backoff    BackoffConfig

	// Log receives operational debug output (optional).
	Log *slog.Logger
}

// Redialer keeps a client connection up, reconnecting with backoff.
type Redialer struct {
	config  RedialConfig
	backoff *Backoff

	mu            sync.Mutex
	state         State
	onStateChange func(oldState, newState State)
}

func NewRedialer(config RedialConfig) *Redialer {
	if config.Dial == nil {
		addr, dc := config.Address, config.DialConfig
		config.Dial = func(ctx context.Context) (*Conn, error) {
			return Dial(ctx, addr, dc)
		}
	}
	return &Redialer{
		config:  config,
		backoff: NewBackoff(config.Backoff),
	}
}

// OnStateChange sets a callback for state transitions. Call before Run.
func (r *Redialer) OnStateChange(fn func(oldState, newState State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
}

func (r *Redialer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run dials until ctx is cancelled. Each established connection is handed
// to serve, which owns it until it returns; the connection is closed
// afterwards and a new one dialed after a backoff delay.
func (r *Redialer) Run(ctx context.Context, serve func(ctx context.Context, c *Conn)) {
	defer r.setState(StateClosed)

	r.setState(StateConnecting)
	for {
		c, err := r.config.Dial(ctx)
		if err == nil {
			r.backoff.Reset()
			r.setState(StateConnected)
			serve(ctx, c)
			c.Close()
		} else {
			r.debugLog("dial failed", "error", err, "attempt", r.backoff.Attempts()+1)
		}

		if ctx.Err() != nil {
			return
		}
		r.setState(StateReconnecting)

		delay := r.backoff.Next()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Redialer) setState(s State) {
	r.mu.Lock()
	old := r.state
	r.state = s
	fn := r.onStateChange
	r.mu.Unlock()

	if old != s {
		r.debugLog("connection state", "from", old.String(), "to", s.String())
		if fn != nil {
			fn(old, s)
		}
	}
}

func (r *Redialer) debugLog(msg string, args ...any) {
	if r.config.Log != nil {
		r.config.Log.Debug(msg, args...)
	}
}
