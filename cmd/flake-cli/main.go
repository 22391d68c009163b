// Command flake-cli is an interactive client for flake routers.
//
// Usage:
//
//	flake-cli [flags]
//
// Flags:
//
//	-addr string          Router address, host[:port] or tcp://, tls://, udp://, ws://, wss:// URL.
//	                      Empty browses the local network.
//	-ca string            PEM file of the router CA for tls and wss
//	-user string          User name for interactive authentication
//	-password string      Password; prompted for when -user is set without it
//	-secret string        Shared secret for signature authentication
//	-timeout duration     Request timeout (default 10s)
//	-protocol-log string  File path for protocol event logging (CBOR format)
//
// Examples:
//
//	# Find a router on the LAN and connect
//	flake-cli
//
//	# Connect over WebSocket with credentials
//	flake-cli -addr ws://router.local:8080/flake -user ada
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/coldwave/flake-go/pkg/auth"
	"github.com/coldwave/flake-go/pkg/cert"
	"github.com/coldwave/flake-go/pkg/connection"
	"github.com/coldwave/flake-go/pkg/discovery"
	flakelog "github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/transport"
	"github.com/coldwave/flake-go/pkg/wire"
)

var (
	addr        = flag.String("addr", "", "Router address; empty browses the local network")
	caFile      = flag.String("ca", "", "PEM file of the router CA for tls and wss")
	user        = flag.String("user", "", "User name for interactive authentication")
	password    = flag.String("password", "", "Password for interactive authentication")
	secret      = flag.String("secret", "", "Shared secret for signature authentication")
	timeout     = flag.Duration("timeout", 10*time.Second, "Request timeout")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flake> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// Logs go through readline so they do not break the prompt.
	logger := slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

	address := *addr
	if address == "" {
		fmt.Fprintln(rl.Stdout(), "Browsing for routers...")
		if address, err = discovery.FindRouter(ctx, discovery.BrowseTimeout); err != nil {
			return fmt.Errorf("no router found: %w", err)
		}
		fmt.Fprintf(rl.Stdout(), "Found router at %s\n", address)
	}

	w, err := dialWire(address)
	if err != nil {
		return err
	}

	cfg := connection.DefaultConfig()
	cfg.Timeout = *timeout
	cfg.Logger = logger
	if *protocolLog != "" {
		pl, err := flakelog.NewFileLogger(*protocolLog)
		if err != nil {
			return fmt.Errorf("failed to create protocol logger: %w", err)
		}
		defer pl.Close()
		cfg.ProtocolLogger = pl
	}

	conn, err := connection.Dial(ctx, w, cfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	conn.AddSink(connection.SinkFunc(func(_ *connection.Connection, err error) {
		if err != nil {
			fmt.Fprintf(rl.Stderr(), "Disconnected: %v\n", err)
		}
		cancel()
	}))

	if err := conn.Connect(ctx, authSink(rl)); err != nil {
		conn.Close()
		return fmt.Errorf("connect %s: %w", address, err)
	}
	fmt.Fprintf(rl.Stdout(), "Connected as %s\n", conn.Addr())

	sh := newShell(conn, rl)
	sh.Run(ctx, cancel)

	dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
	defer dcancel()
	return conn.Disconnect(dctx)
}

// authSink picks the handshake from the flags.
func authSink(rl *readline.Instance) connection.AuthenticationSink {
	switch {
	case *secret != "":
		return auth.NewSignature([]byte(*secret))
	case *user != "":
		a := &auth.Interactive{User: *user, Password: *password}
		if *password == "" {
			a.Prompt = func(wire.PropArray) (string, string, bool) {
				pw, err := rl.ReadPassword("password: ")
				if err != nil {
					return "", "", false
				}
				return *user, string(pw), true
			}
		}
		return a
	default:
		return auth.None{}
	}
}

func dialWire(address string) (transport.Wire, error) {
	t, err := parseTarget(address, transport.DefaultPort)
	if err != nil {
		return nil, err
	}
	switch t.scheme {
	case "udp":
		return transport.NewUDPWire(t.host), nil
	case "ws":
		return transport.NewWebSocketWire(t.url, nil), nil
	case "tls", "wss":
		tc := &transport.TLSConfig{}
		if *caFile != "" {
			if tc.RootCAs, err = cert.LoadCertPool(*caFile); err != nil {
				return nil, err
			}
		}
		conf, err := transport.NewClientTLSConfig(tc)
		if err != nil {
			return nil, err
		}
		if t.scheme == "wss" {
			return transport.NewWebSocketWire(t.url, conf), nil
		}
		return transport.NewTLSWire(t.host, conf), nil
	default:
		return transport.NewTCPWire(t.host), nil
	}
}
