// Package discovery announces and finds flake routers with mDNS/DNS-SD.
//
// A router registers one instance of the _flake._tcp service on the port
// of its TCP listener. The instance name defaults to "flake-" plus a
// per-machine id. TXT records carry:
//
//   - ver: protocol version, "major.minor"
//   - name: the router name
//   - wires: further listener types, comma-separated (optional)
//   - auth: the authentication type peers must use (optional)
//   - path: the WebSocket path (optional)
//
// Browsers ignore routers whose major version differs from their own.
// FindRouter is the shortcut used by peers that were given no address.
package discovery
