// Package log captures routing events for debugging.
//
// This is separate from operational logging through log/slog. A Logger
// receives machine-readable events from the transport (frames), the wire
// layer (decoded envelopes) and the routing core (path tree updates, device
// token state changes, errors):
//
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger, // from log.NewFileLogger("/tmp/server.dtlog")
//	)
//
// FileLogger writes a stream of CBOR-encoded events. Reader reads such a
// file back, optionally filtered.
package log
