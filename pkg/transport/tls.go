package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/pion/dtls/v2"

	"github.com/coldwave/flake-go/pkg/version"
)

// TLSConfig holds the certificate material for TLS and DTLS wires.
type TLSConfig struct {
	// Certificate is this endpoint's certificate. Required for servers.
	Certificate tls.Certificate

	// RootCAs verifies the router certificate on clients.
	RootCAs *x509.CertPool

	// ClientCAs verifies peer certificates on the router. When set, peers
	// that present a verified certificate are reported as authenticated.
	ClientCAs *x509.CertPool

	// RequireClientCert rejects peers without a valid certificate.
	RequireClientCert bool

	// ServerName is the expected router name on clients.
	ServerName string

	// InsecureSkipVerify disables certificate verification. Testing only.
	InsecureSkipVerify bool
}

// NewServerTLSConfig creates the router side TLS configuration.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	conf := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cfg.Certificate},
		ClientCAs:    cfg.ClientCAs,
		NextProtos:   version.SupportedALPNProtocols(),
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		SessionTicketsDisabled: true,
	}
	switch {
	case cfg.RequireClientCert:
		conf.ClientAuth = tls.RequireAndVerifyClientCert
	case cfg.ClientCAs != nil:
		conf.ClientAuth = tls.VerifyClientCertIfGiven
	default:
		conf.ClientAuth = tls.NoClientCert
	}
	return conf, nil
}

// NewClientTLSConfig creates the peer side TLS configuration.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	conf := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		NextProtos:         version.SupportedALPNProtocols(),
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
		SessionTicketsDisabled: true,
	}
	if len(cfg.Certificate.Certificate) > 0 {
		conf.Certificates = []tls.Certificate{cfg.Certificate}
	}
	return conf, nil
}

// NewServerDTLSConfig creates the router side DTLS configuration.
func NewServerDTLSConfig(cfg *TLSConfig) (*dtls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	conf := &dtls.Config{
		Certificates:         []tls.Certificate{cfg.Certificate},
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		ClientCAs:            cfg.ClientCAs,
	}
	switch {
	case cfg.RequireClientCert:
		conf.ClientAuth = dtls.RequireAndVerifyClientCert
	case cfg.ClientCAs != nil:
		conf.ClientAuth = dtls.VerifyClientCertIfGiven
	default:
		conf.ClientAuth = dtls.NoClientCert
	}
	return conf, nil
}

// NewClientDTLSConfig creates the peer side DTLS configuration. An empty
// ServerName is filled in from the dialed address by NewDTLSWire.
func NewClientDTLSConfig(cfg *TLSConfig) (*dtls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	conf := &dtls.Config{
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
		RootCAs:              cfg.RootCAs,
		ServerName:           cfg.ServerName,
		InsecureSkipVerify:   cfg.InsecureSkipVerify,
	}
	if len(cfg.Certificate.Certificate) > 0 {
		conf.Certificates = []tls.Certificate{cfg.Certificate}
	}
	return conf, nil
}

// hostOf returns the host part of address, or address itself when it has
// no port.
func hostOf(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return host
}

// tlsConfigFor returns conf with ServerName taken from address when it is
// unset, the way tls.Dial does.
func tlsConfigFor(conf *tls.Config, address string) *tls.Config {
	if conf == nil {
		conf = &tls.Config{}
	}
	if conf.ServerName != "" || conf.InsecureSkipVerify {
		return conf
	}
	c := conf.Clone()
	c.ServerName = hostOf(address)
	return c
}

// dtlsConfigFor is tlsConfigFor for DTLS.
func dtlsConfigFor(conf *dtls.Config, address string) *dtls.Config {
	if conf == nil {
		conf = &dtls.Config{}
	}
	if conf.ServerName != "" || conf.InsecureSkipVerify {
		return conf
	}
	c := *conf
	c.ServerName = hostOf(address)
	return &c
}

// VerifyALPN accepts an empty negotiation or a supported flake protocol.
func VerifyALPN(state tls.ConnectionState) error {
	p := state.NegotiatedProtocol
	if version.AcceptALPN(p) {
		return nil
	}
	return fmt.Errorf("ALPN protocol %q is not supported", p)
}

// VerifyConnection performs the checks shared by both sides of a TLS wire.
func VerifyConnection(state tls.ConnectionState) error {
	if state.Version < tls.VersionTLS12 {
		return fmt.Errorf("TLS version %x is below TLS 1.2", state.Version)
	}
	return VerifyALPN(state)
}
