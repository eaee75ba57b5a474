package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/devtree-io/devtree-go/pkg/log"
)

// DialConfig configures the client side of a connection.
type DialConfig struct {
	MaxFrameSize   uint32
	ConnectTimeout time.Duration
	Logger         log.Logger
}

// DefaultDialConfig returns the default client settings.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		MaxFrameSize:   DefaultMaxFrameSize,
		ConnectTimeout: 10 * time.Second,
	}
}

// Dial connects to a server. The config's ConnectTimeout applies when ctx
// has no deadline.
func Dial(ctx context.Context, address string, config DialConfig) (*Conn, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultDialConfig().ConnectTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	c := newConn(nc, config.MaxFrameSize, config.Logger, log.RoleClient)
	c.logState("", "CONNECTED")
	return c, nil
}
