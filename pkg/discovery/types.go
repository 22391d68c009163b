package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of flake routers.
	ServiceType = "_flake._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"   // Protocol version, "major.minor"
	TXTKeyName    = "name"  // Router name
	TXTKeyWires   = "wires" // Listener types, comma-separated (optional)
	TXTKeyAuth    = "auth"  // Authentication type (optional)
	TXTKeyPath    = "path"  // WebSocket path (optional)
)

const (
	// BrowseTimeout is the default timeout of FindRouter.
	BrowseTimeout = 5 * time.Second

	// DefaultTTL is the default record TTL.
	DefaultTTL = 120 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidVersion      = errors.New("invalid protocol version")
	ErrIncompatible        = errors.New("incompatible protocol version")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("router not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// RouterInfo is what a router announces about itself.
type RouterInfo struct {
	// InstanceName is the DNS-SD instance. Empty means DefaultInstanceName.
	InstanceName string

	// Name is the router's configured name.
	Name string

	// Port is the TCP port peers connect to.
	Port uint16

	// Version is the protocol version. Empty means version.Current.
	Version string

	// Wires lists the additional listener types, e.g. "tls" or "websocket".
	Wires []string

	// Auth is the authentication type peers must use, if any.
	Auth string

	// Path is the WebSocket path when Wires contains a websocket listener.
	Path string
}

// RouterService is a router found by browsing.
type RouterService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Name    string
	Version string
	Wires   []string
	Auth    string
	Path    string
}

// Address returns host:port for dialing the router. It prefers the first
// resolved address over the host name.
func (s *RouterService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
