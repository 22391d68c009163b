package router

import (
	"crypto/tls"
	"fmt"

	"github.com/pion/dtls/v2"

	"github.com/coldwave/flake-go/pkg/transport"
)

// AddTCPServerWire listens for TCP peers on port, with TLS when tlsConf is
// set.
func (r *Router) AddTCPServerWire(port int, tlsConf *tls.Config) (*transport.TCPServerWire, error) {
	sw := transport.NewTCPServerWire(fmt.Sprintf(":%d", port), tlsConf)
	return sw, r.AddServerWire(sw)
}

// AddUDPServerWire listens for UDP peers on port.
func (r *Router) AddUDPServerWire(port int) (*transport.UDPServerWire, error) {
	sw := transport.NewUDPServerWire(fmt.Sprintf(":%d", port))
	return sw, r.AddServerWire(sw)
}

// AddDTLSServerWire listens for DTLS peers on port.
func (r *Router) AddDTLSServerWire(port int, conf *dtls.Config) (*transport.DTLSServerWire, error) {
	sw := transport.NewDTLSServerWire(fmt.Sprintf(":%d", port), conf)
	return sw, r.AddServerWire(sw)
}

// AddSerialServerWire serves one peer at a time on a serial device.
// Either callback may be nil.
func (r *Router) AddSerialServerWire(cfg transport.SerialConfig, onConnect, onDisconnect func(transport.Wire)) (*transport.SerialServerWire, error) {
	sw := transport.NewSerialServerWire(cfg, onConnect, onDisconnect)
	return sw, r.AddServerWire(sw)
}

// AddReversedTCPServerWire dials out to a peer at host:port and serves it
// like an accepted one.
func (r *Router) AddReversedTCPServerWire(host string, port int, tlsConf *tls.Config) (*transport.ReversedTCPServerWire, error) {
	sw := transport.NewReversedTCPServerWire(host, port, tlsConf)
	return sw, r.AddServerWire(sw)
}

// AddWebSocketServerWire upgrades WebSocket peers at path on port.
func (r *Router) AddWebSocketServerWire(port int, path string, tlsConf *tls.Config) (*transport.WebSocketServerWire, error) {
	sw := transport.NewWebSocketServerWire(fmt.Sprintf(":%d", port), path, tlsConf)
	return sw, r.AddServerWire(sw)
}

// AddMQTTServerWire serves peers that exchange frames through an MQTT
// broker.
func (r *Router) AddMQTTServerWire(cfg transport.MQTTConfig) (*transport.MQTTServerWire, error) {
	sw := transport.NewMQTTServerWire(cfg)
	return sw, r.AddServerWire(sw)
}

// AddBLEServerWire serves peers over the BLE backend.
func (r *Router) AddBLEServerWire(backend transport.BLEBackend) (*transport.BLEServerWire, error) {
	sw := transport.NewBLEServerWire(backend)
	return sw, r.AddServerWire(sw)
}
