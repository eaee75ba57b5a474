// Package discovery advertises devtree servers over mDNS/DNS-SD and finds
// them from clients.
//
// Servers register one instance of the _devtree._tcp service on the
// transport port. TXT records:
//
//	name=<server name>      required
//	version=<protocol>      required
//	host=<advertised host>  optional
package discovery
