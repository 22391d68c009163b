package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/transport"
)

// ErrManagerClosed is returned by a closed Manager.
var ErrManagerClosed = errors.New("connection manager closed")

// DefaultDialTimeout bounds one dial attempt of the reconnect loop.
const DefaultDialTimeout = 30 * time.Second

// State represents the managed connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the connection manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc opens a wire, runs the handshake and returns the connected
// Connection.
type DialFunc func(ctx context.Context) (*Connection, error)

// Manager keeps one Connection alive. When the wire drops it dials again
// with exponential backoff until Close.
type Manager struct {
	dial    DialFunc
	backoff *transport.Backoff

	mu            sync.RWMutex
	state         State
	conn          *Connection
	autoReconnect bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onStateChange  func(oldState, newState State)
	onConnected    func(*Connection)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a manager that dials with dial.
func NewManager(dial DialFunc) *Manager {
	return NewManagerWithBackoff(dial, transport.DefaultBackoffConfig())
}

// NewManagerWithBackoff creates a manager with custom redial delays.
func NewManagerWithBackoff(dial DialFunc, cfg transport.BackoffConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dial:          dial,
		backoff:       transport.NewBackoffWithConfig(cfg),
		state:         StateDisconnected,
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Conn returns the live connection, or nil.
func (m *Manager) Conn() *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateConnected {
		return nil
	}
	return m.conn
}

// SetAutoReconnect enables or disables redialing after a loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// OnStateChange sets a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnConnected sets a callback run after every successful dial, the place
// to re-register services and subscriptions.
func (m *Manager) OnConnected(fn func(*Connection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnReconnecting sets a callback for reconnection attempts.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// BackoffAttempts returns the number of redials since the last success.
func (m *Manager) BackoffAttempts() int { return m.backoff.Attempts() }

func (m *Manager) setState(s State) State {
	m.mu.Lock()
	old := m.state
	m.state = s
	fn := m.onStateChange
	m.mu.Unlock()
	if fn != nil && old != s {
		fn(old, s)
	}
	return old
}

// Connect dials once and starts watching the connection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	case StateConnected, StateConnecting, StateReconnecting:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	m.setState(StateConnecting)
	c, err := m.dial(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}
	m.attach(c)
	return nil
}

func (m *Manager) attach(c *Connection) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		c.Close()
		return
	}
	m.conn = c
	onConnected := m.onConnected
	m.mu.Unlock()

	m.backoff.Reset()
	m.setState(StateConnected)
	if onConnected != nil {
		onConnected(c)
	}

	m.wg.Add(1)
	go m.watch(c)
}

// watch waits for c to end and starts redialing.
func (m *Manager) watch(c *Connection) {
	defer m.wg.Done()
	select {
	case <-m.ctx.Done():
		return
	case <-c.Done():
	}

	m.mu.RLock()
	auto := m.autoReconnect && m.state == StateConnected && m.conn == c
	m.mu.RUnlock()
	if !auto {
		m.mu.Lock()
		if m.state == StateConnected && m.conn == c {
			m.mu.Unlock()
			m.setState(StateDisconnected)
			return
		}
		m.mu.Unlock()
		return
	}
	m.setState(StateReconnecting)
	m.reconnect()
}

func (m *Manager) reconnect() {
	for {
		delay := m.backoff.Next()
		m.mu.RLock()
		fn := m.onReconnecting
		m.mu.RUnlock()
		if fn != nil {
			fn(m.backoff.Attempts(), delay)
		}

		t := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(m.ctx, DefaultDialTimeout)
		c, err := m.dial(ctx)
		cancel()
		if err == nil {
			m.attach(c)
			return
		}
		if m.ctx.Err() != nil {
			return
		}
	}
}

// Close stops redialing and closes the live connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	c := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.setState(StateClosed)
	m.cancel()
	var err error
	if c != nil {
		err = c.Close()
	}
	m.wg.Wait()
	return err
}
