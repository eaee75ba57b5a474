// Package wire defines the CBOR envelopes exchanged between a server's
// connection and its clients.
//
// Every frame on a shared connection carries exactly one Envelope. Data
// envelopes carry a report payload tagged with the sender id, the message
// type id and a timestamp. Ids are only meaningful together with the name
// registrations that precede them on the same stream:
//
//	{1: 2, 2: 0, 5: "com_example/Tracker0"}        // sender 0 is named
//	{1: 3, 3: 4, 5: "devtree.report.pose"}         // type 4 is named
//	{1: 1, 2: 0, 3: 4, 4: 1700000000000000000, 6: h'...'}
//
// # CBOR Integer Keys
//
// All maps use integer keys for compactness. The key assignments are fixed
// by the struct tags in this package.
package wire
