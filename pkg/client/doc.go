// Package client is the consumer side of a devtree server.
//
// A Context reads envelopes from a Source, keeps a copy of the server's
// path tree, and hands reports to the Interfaces an application opened:
//
//	ctx := client.NewContext("com.example.app", source, client.DefaultContextConfig())
//	head, _ := ctx.GetInterface("/me/head")
//	client.Register(head, func(ts time.Time, p report.Pose, _ any) { ... }, nil)
//	for {
//	    ctx.Update()
//	    ...
//	}
//
// Interface paths go through alias resolution, so /me/head may name a
// tracker sensor several aliases away. Transforms on the alias chain are
// applied to pose, position and orientation reports before they reach
// callbacks or the state cache.
//
// Sources are a connection.Subscription for clients inside the server
// process, or a Remote that dials the server and reconnects on failure.
package client
