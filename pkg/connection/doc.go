// Package connection routes device reports from a server to its clients.
//
// A server owns exactly one Connection. Devices register with it and get a
// ConnectionDevice carrying one sender handle per device name; report
// kinds are registered as message types. Names and ids are announced to
// every peer, late joiners included, before any data they label.
//
// # Transports
//
// The Connection writes through a Transport:
//
//   - Loopback: an in-process queue for clients in the server process
//   - Shared: a Loopback plus a TCP server (pkg/transport) broadcasting
//     the same envelopes to remote clients
//
// # Send guard
//
// Device sends must hold a locked Guard. A GuardPtr is backed by the
// connection's send mutex and refuses to lock once the connection is
// closing:
//
//	g := conn.Guard()
//	if g.Lock() {
//	    defer g.Release()
//	    dev.SendData(g, msgType, ts, payload)
//	}
//
// SendData panics when the guard is not locked.
package connection
