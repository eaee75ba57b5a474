// Package descriptor compiles device descriptors into path tree nodes.
//
// A device descriptor is the JSON document a device publishes about itself:
//
//	{
//	  "deviceVendor": "Example Corp",
//	  "deviceName": "Tracker",
//	  "interfaces": {
//	    "tracker": {"count": 2},
//	    "eyetracker": {"count": 1},
//	    "button": {"count": 4}
//	  },
//	  "semantic": {
//	    "hmd": "tracker/0",
//	    "hand": {"left": "tracker/1"}
//	  },
//	  "automaticAliases": [
//	    {"path": "/me/head", "source": "semantic/hmd"}
//	  ]
//	}
//
// Normalization expands composite interfaces into the primitive interfaces
// they imply. An eyetracker implies direction, location2D, tracker and
// button (blink); a skeleton implies tracker. Compiling a descriptor against
// a tree gives every declared interface an Interface node and every implied
// interface an Alias node pointing at the interface that generates it.
// Semantic entries become aliases below the device's "semantic" node and
// automatic aliases are placed at their absolute paths.
package descriptor
