// Package transport moves flake frames over byte links.
//
// A Wire is one bidirectional link that carries whole encoded frames. Stream
// links (TCP, TLS, serial, BLE, in-memory pipes) recover frame boundaries
// from the frame header with a Framer. Datagram links (UDP, DTLS, WebSocket,
// MQTT) carry exactly one frame per datagram. A ServerWire produces Wires for
// peers that reach the router.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  Frames (wire.Frame)           │
//	├────────────────────────────────┤
//	│  FrameConn (encode, log, lock) │
//	├────────────────────────────────┤
//	│  Wire                          │
//	├──────────────┬─────────────────┤
//	│ Framer       │ one datagram    │
//	│ TCP TLS      │ UDP DTLS        │
//	│ serial BLE   │ WebSocket MQTT  │
//	└──────────────┴─────────────────┘
//
// # Keep-Alive
//
// Liveness is probed with the ping control message. A probe that is not
// confirmed within PongTimeout counts as missed; MaxMissedPongs consecutive
// misses close the wire.
package transport
