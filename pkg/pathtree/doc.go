// Package pathtree implements the hierarchical namespace that describes
// plugins, devices, interfaces, sensors and aliases.
//
// # Tree Structure
//
// Every node has a name that is unique among its siblings and an Element
// describing what the node is:
//
//	/                         (root, unnamed)
//	├── com_example_tracker   Plugin
//	│   └── Tracker0          Device
//	│       ├── tracker       Interface
//	│       │   └── 0         Sensor
//	│       └── semantic      Null
//	│           └── head      Alias -> ../tracker/0
//	└── me
//	    └── head              Alias -> /com_example_tracker/Tracker0/semantic/head
//
// Nodes are created lazily as Null the first time a path is looked up, and
// the real kind is filled in once it is known. Mutators follow a
// replace-if-null policy: a concrete element always wins over a placeholder
// and an already typed node is never downgraded.
//
// # Ownership
//
// The tree stores nodes in an arena and links them by index. Node values are
// lightweight handles into that arena; they stay valid for the lifetime of
// the tree because nodes are never deleted.
//
// # Threading
//
// A Tree is not safe for concurrent use. It is owned by the server mainloop
// (or by a client context) and only mutated on that goroutine.
package pathtree
