// Package transport carries wire envelopes between a devtree server and its
// clients.
//
// # Stack
//
//	┌────────────────────────────────┐
//	│   CBOR envelopes (pkg/wire)    │
//	├────────────────────────────────┤
//	│   Length-prefix framing (4B)   │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// Server accepts connections and answers pings itself. Clients use Dial,
// or a Redialer to stay connected across server restarts, and a KeepAlive
// to notice a dead server.
//
// Connections are unauthenticated and unencrypted. Run the server on a
// trusted network or bind it to localhost.
package transport
