// Package config loads devtree server configuration from YAML or from JSON
// with comments.
//
// Example (YAML):
//
//	name: lab
//	listen: ":3883"
//	transport: shared
//	tickInterval: 5ms
//	plugins:
//	  - name: demo
//	    params: {rate: 60}
//	aliases:
//	  /me/head: /demo/tracker/tracker/0
//	  /me/hands/left:
//	    source: /demo/tracker/tracker/1
//	    rotate: {axis: z, degrees: 90}
//	externalDevices:
//	  - path: /remote/glove
//	    host: 10.0.0.7
//	    port: 3883
//	    descriptor: {interfaces: {tracker: {count: 5}}}
//	discovery:
//	  enabled: true
//	protocolLog: /tmp/devtree.cbor
package config
