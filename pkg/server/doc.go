// Package server is the devtree core process.
//
// A Server owns the Connection devices publish on, the path tree clients
// resolve against, and the plugins that create devices. Start loads the
// configured plugins, external devices and aliases, resolves the tree and
// publishes it. After that the caller drives the mainloop by calling
// Update, or lets Run call it on a ticker.
//
// One Update tick, in order:
//
//  1. every sync device's update callback
//  2. every async device's pending send window
//  3. inbound transport traffic
//  4. if the tree changed: re-resolve, record bad paths, broadcast
package server
