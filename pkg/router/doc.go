// Package router implements the flake router: the hub that peers connect
// to over any number of server wires.
//
// The router hands out 16-bit addresses to sessions and objects, keeps
// the object registry and answers requests for objects it hosts itself.
// Requests for objects hosted by a peer are forwarded to that peer as
// indications and its answer is relayed back under the original token.
//
// # Groups
//
// Every object has a broadcast address. Sessions join it to receive the
// object's changed, propertyCreated, joined, left and destroyed
// broadcasts, and custom messages sent to it. The host of an object hears
// its group without joining. AnnounceAddr carries objectCreated and
// destroyed for every object.
//
// # Lifecycle
//
// When a session goes away it leaves all groups, the objects it hosted
// are destroyed and requests still forwarded to it fail with
// wire.StatusNotConnected. Freed addresses are reused only after the
// never-used ones, oldest first.
//
// # Configuration
//
// Config holds the programmatic settings; FileConfig reads the same
// settings and the list of listeners from YAML.
package router
