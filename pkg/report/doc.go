// Package report defines the typed sensor reports that devices publish and
// clients receive.
//
// Each report kind is registered with the connection under its message name
// ("devtree.report.<kind>"). Payloads are CBOR encoded with integer keys;
// vectors and quaternions encode as arrays.
//
// Clients keep the last report of every kind for synchronous state queries,
// except imaging reports whose buffers are too large to retain.
package report
