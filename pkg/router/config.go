package router

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldwave/flake-go/pkg/auth"
	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/transport"
)

// Router defaults.
const (
	DefaultConnectTimeout  = 30 * time.Second
	DefaultReaperInterval  = 5 * time.Second
	DefaultMaxAuthAttempts = 3
)

// Config configures a Router.
type Config struct {
	// Name identifies the router in logs and mDNS.
	Name string

	// Timeout bounds requests the router forwards to hosting sessions.
	Timeout time.Duration

	// ConnectTimeout closes wires that have not completed the connect
	// handshake in time. Zero disables the check.
	ConnectTimeout time.Duration

	// ReaperInterval is how often ConnectTimeout is enforced.
	ReaperInterval time.Duration

	// Authenticator, when set, makes every session authenticate on
	// connect. Wires whose transport already authenticated the peer skip
	// the handshake.
	Authenticator auth.Sink

	// MaxAuthAttempts closes a session after that many refused auth
	// requests.
	MaxAuthAttempts int

	// SnapshotPath enables saveChanges: router-hosted objects are written
	// there and restored by New.
	SnapshotPath string

	// ChangeInterval coalesces changed broadcasts of one object. Zero
	// broadcasts every change at once.
	ChangeInterval time.Duration

	// SuppressBounceBack drops coalesced changes that returned to their
	// last broadcast value.
	SuppressBounceBack bool

	// KeepAlive pings connected sessions when non-nil.
	KeepAlive *transport.KeepAliveConfig

	// Registerer receives the router metrics. Nil keeps them in a private
	// registry, see Router.Gatherer.
	Registerer prometheus.Registerer

	// Logger receives operational logs. Nil selects slog.Default().
	Logger *slog.Logger

	// ProtocolLogger captures frames and state changes. May be nil.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Name:               "flake",
		Timeout:            interaction.DefaultTimeout,
		ConnectTimeout:     DefaultConnectTimeout,
		ReaperInterval:     DefaultReaperInterval,
		MaxAuthAttempts:    DefaultMaxAuthAttempts,
		SuppressBounceBack: true,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "flake"
	}
	if c.Timeout <= 0 {
		c.Timeout = interaction.DefaultTimeout
	}
	if c.ReaperInterval <= 0 {
		c.ReaperInterval = DefaultReaperInterval
	}
	if c.MaxAuthAttempts <= 0 {
		c.MaxAuthAttempts = DefaultMaxAuthAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
