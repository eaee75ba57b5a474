// Package examples registers the "demo" plugin: simulated devices that
// exercise the whole devtree stack without hardware.
//
// Devices:
//   - demo/tracker: a sync device with two tracked sensors moving on a
//     circle, published every tick
//   - demo/button: an async device toggling a button from its own worker
//   - demo/dial: an analog dial that appears on the first hardware detect
//
// Import the package for its side effect:
//
//	import _ "github.com/devtree-io/devtree-go/pkg/examples"
package examples
