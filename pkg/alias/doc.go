// Package alias parses alias specifications and resolves alias chains in a
// path tree down to their original source.
//
// # Alias Forms
//
// An alias is either a bare path (a "simple" alias):
//
//	/com_example_tracker/Tracker0/tracker/0
//
// or a JSON object naming a source plus transform keys. Sources nest:
//
//	{
//	  "translate": {"x": 0.1, "y": 0, "z": 0},
//	  "source": {
//	    "rotate": {"axis": "y", "degrees": 180},
//	    "child": "/com_example_tracker/Tracker0/tracker/0"
//	  }
//	}
//
// "source" and "child" are interchangeable. Every other key of an object
// level is part of that level's transform layer. Comments and trailing
// commas are accepted.
//
// # Resolution
//
// ResolveTreeNode follows alias nodes until it reaches a concrete node,
// composing the transform layers it meets. A visited set and
// MaxResolutionDepth bound the walk, so cyclic aliases fail instead of
// looping. ResolveFullTree runs this for every alias and returns the paths
// that could not be resolved.
package alias
