package connection

// Guard grants permission to send. Lock attempts to take it and reports
// whether it is held; Release gives it back. Sends require a *GuardPtr or
// a guard whose Unwrap method leads to one.
type Guard interface {
	Lock() bool
	Locked() bool
	Release()
}

// guardPtrOf follows Unwrap until it reaches a *GuardPtr.
func guardPtrOf(g Guard) *GuardPtr {
	for g != nil {
		switch v := g.(type) {
		case *GuardPtr:
			return v
		case interface{ Unwrap() Guard }:
			g = v.Unwrap()
		default:
			return nil
		}
	}
	return nil
}

// GuardPtr is a deferred lock on a connection's send mutex. It is not
// locked on construction and must not be shared between goroutines.
type GuardPtr struct {
	conn *Connection
	held bool
}

var _ Guard = (*GuardPtr)(nil)

// Lock takes the send mutex, blocking while another sender holds it. It
// returns false once the connection is closing. Locking a held guard is a
// no-op that returns true.
func (g *GuardPtr) Lock() bool {
	if g.held {
		return true
	}
	if g.conn.closing.Load() {
		return false
	}
	g.conn.sendMu.Lock()
	if g.conn.closing.Load() {
		g.conn.sendMu.Unlock()
		return false
	}
	g.held = true
	return true
}

func (g *GuardPtr) Locked() bool { return g.held }

// Release unlocks if held.
func (g *GuardPtr) Release() {
	if !g.held {
		return
	}
	g.held = false
	g.conn.sendMu.Unlock()
}
