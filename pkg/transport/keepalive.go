package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout bounds one ping round trip.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of consecutive failed pings before
	// the wire is declared dead.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead wire goes unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// PingFunc performs one ping round trip. seq numbers the ping for logs.
type PingFunc func(ctx context.Context, seq uint32) error

// KeepAlive sends periodic ping control messages and reports a dead
// wire after MaxMissedPongs consecutive failures.
type KeepAlive struct {
	config    KeepAliveConfig
	ping      PingFunc
	onTimeout func()

	sequence atomic.Uint32

	mu           sync.Mutex
	missedPongs  int
	lastPingTime time.Time
	lastPongTime time.Time
	lastLatency  time.Duration
	running      bool
	stopCh       chan struct{}
	done         chan struct{}
}

// NewKeepAlive creates a keep-alive manager. onTimeout runs once, on the
// keep-alive goroutine, when the wire is declared dead.
func NewKeepAlive(config KeepAliveConfig, ping PingFunc, onTimeout func()) *KeepAlive {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return &KeepAlive{config: config, ping: ping, onTimeout: onTimeout}
}

// Start begins pinging until ctx ends, Stop is called or the wire is
// declared dead.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.done = make(chan struct{})
	go ka.loop(ctx, ka.stopCh, ka.done)
}

// Stop stops pinging and waits for an in-flight ping to finish.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	if !ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = false
	close(ka.stopCh)
	done := ka.done
	ka.mu.Unlock()
	<-done
}

// IsRunning returns true if keep-alive monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
	CurrentSeq   uint32
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastPongTime: ka.lastPongTime,
		LastLatency:  ka.lastLatency,
		MissedPongs:  ka.missedPongs,
		CurrentSeq:   ka.sequence.Load(),
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !ka.probe(ctx) {
				ka.mu.Lock()
				ka.running = false
				ka.mu.Unlock()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
		}
	}
}

// probe sends one ping and returns false once too many have failed.
func (ka *KeepAlive) probe(ctx context.Context) bool {
	seq := ka.sequence.Add(1)
	start := time.Now()

	ka.mu.Lock()
	ka.lastPingTime = start
	ka.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, ka.config.PongTimeout)
	err := ka.ping(pctx, seq)
	cancel()
	if ctx.Err() != nil {
		return true
	}

	ka.mu.Lock()
	defer ka.mu.Unlock()
	if err != nil {
		ka.missedPongs++
		return ka.missedPongs < ka.config.MaxMissedPongs
	}
	ka.lastPongTime = time.Now()
	ka.lastLatency = ka.lastPongTime.Sub(start)
	ka.missedPongs = 0
	return true
}
