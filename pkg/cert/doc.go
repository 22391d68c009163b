// Package cert manages the X.509 material of TLS and DTLS wires: PEM files,
// a small issuing Authority for routers and peers, and chain verification.
package cert
