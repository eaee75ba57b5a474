// Package devicetoken provides the handles plugins publish reports
// through.
//
// A SyncDeviceToken is driven by the server tick: its update callback runs
// inside Connection.Process, on the mainloop goroutine.
//
// An AsyncDeviceToken owns one worker goroutine that blocks in the
// plugin's wait callback. Each send from that goroutine asks the mainloop
// for a send window:
//
//	worker                     mainloop (process hook)
//	  rts <- {}        ──▶       <-rts (non-blocking)
//	  <-cts            ◀──       cts <- {}
//	  send
//	  finished <- {}   ──▶       <-finished (bounded wait)
//
// Stop closes done, which every wait point selects on, then waits for the
// worker to exit. Nothing is sent after done is closed.
package devicetoken
