package discovery

import (
	"context"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
)

// Advertiser announces a router on the local network.
type Advertiser interface {
	// AdvertiseRouter starts announcing the router, replacing any
	// previous announcement.
	AdvertiseRouter(ctx context.Context, info *RouterInfo) error

	// UpdateRouter changes the TXT records of the running announcement.
	UpdateRouter(info *RouterInfo) error

	// StopRouter withdraws the announcement.
	StopRouter() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: DefaultTTL,
	}
}

// machineID is replaced in tests.
var machineID = func() (string, error) { return machineid.ProtectedID("flake") }

// DefaultInstanceName returns "flake-" followed by a per-machine id, so
// that the name survives restarts without leaking the raw machine id. The
// host name is used when the machine id cannot be read.
func DefaultInstanceName() string {
	if id, err := machineID(); err == nil && len(id) >= 12 {
		return "flake-" + id[:12]
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		name := "flake-" + host
		if len(name) > MaxInstanceNameLen {
			name = name[:MaxInstanceNameLen]
		}
		return name
	}
	return "flake"
}
