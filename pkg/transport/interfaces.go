package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Wire errors. ErrWireClosed and ErrNotOpen match net.ErrClosed so that
// wire.StatusOf reports them as StatusNotConnected.
var (
	ErrWireClosed       = fmt.Errorf("transport: wire closed: %w", net.ErrClosed)
	ErrNotOpen          = fmt.Errorf("transport: wire not open: %w", net.ErrClosed)
	ErrServerClosed     = errors.New("transport: server wire closed")
	ErrNotInitialized   = errors.New("transport: server wire not initialized")
	ErrAlreadyListening = errors.New("transport: server wire already initialized")
)

// Wire is a bidirectional link carrying whole frames.
type Wire interface {
	// Open establishes the link. Wires handed out by a ServerWire are
	// already open and cannot be reopened once closed.
	Open(ctx context.Context) error

	// Read blocks until one complete encoded frame arrives.
	// Only one goroutine may call Read at a time.
	Read() ([]byte, error)

	// Write sends one complete encoded frame.
	Write(frame []byte) error

	// Close tears the link down. It is safe to call more than once.
	Close() error

	IsOpen() bool

	// ID is unique per wire instance and stable across reopen.
	ID() string

	// Secure reports whether the link is encrypted.
	Secure() bool

	// Authenticated reports whether the link authenticated its peer
	// (e.g. a verified client certificate).
	Authenticated() bool

	// RemoteAddr describes the other end for logs.
	RemoteAddr() string
}

// ServerWire accepts incoming Wires.
type ServerWire interface {
	// Init binds the underlying listener.
	Init(ctx context.Context) error

	// Accept blocks until a new peer wire is available.
	Accept(ctx context.Context) (Wire, error)

	// Available reports whether Accept can still succeed.
	Available() bool

	// Describe names the listener, e.g. "tcp://[::]:9986".
	Describe() string

	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ Wire       = (*streamWire)(nil)
	_ Wire       = (*packetWire)(nil)
	_ Wire       = (*udpPeerWire)(nil)
	_ Wire       = (*wsWire)(nil)
	_ Wire       = (*mqttWire)(nil)
	_ ServerWire = (*TCPServerWire)(nil)
	_ ServerWire = (*UDPServerWire)(nil)
	_ ServerWire = (*DTLSServerWire)(nil)
	_ ServerWire = (*SerialServerWire)(nil)
	_ ServerWire = (*BLEServerWire)(nil)
	_ ServerWire = (*WebSocketServerWire)(nil)
	_ ServerWire = (*MQTTServerWire)(nil)
	_ ServerWire = (*PipeServerWire)(nil)
	_ ServerWire = (*ReversedTCPServerWire)(nil)
)
