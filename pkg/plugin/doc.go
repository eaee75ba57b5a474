// Package plugin is the boundary between the devtree server and hardware
// driver plugins.
//
// Plugins are compiled in and register an EntryPoint under a name from an
// init function:
//
//	func init() {
//		plugin.Register("demo", func(ctx *plugin.RegistrationContext, params json.RawMessage) error {
//			_, err := ctx.NewSyncDevice("tracker", descriptor, update)
//			return err
//		})
//	}
//
// The server calls Load for every configured plugin. The entry point gets
// a RegistrationContext through which it creates device tokens and
// hardware detect callbacks. Unload stops every token the plugin created.
package plugin
