// Package persistence stores the router-hosted objects across restarts.
//
// A snapshot is one CBOR document holding every router-hosted object with
// its address, broadcast address, type and property table. The property
// table keeps the flake wire encoding, so a snapshot restores exactly what
// peers last wrote. Service-hosted objects are never saved: they vanish
// with the session that hosts them.
package persistence
