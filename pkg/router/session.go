package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/transport"
	"github.com/coldwave/flake-go/pkg/wire"
)

// session is the router side of one accepted wire. Frames are read and
// dispatched on a single goroutine; requests the router forwards to the
// peer go through req.
type session struct {
	r       *Router
	fc      *transport.FrameConn
	req     *interaction.Requester
	logger  *slog.Logger
	created time.Time

	mu            sync.Mutex
	addr          wire.Addr
	connected     bool
	authenticated bool
	challenge     *wire.PropArray
	authAttempts  int
	keepAlive     *transport.KeepAlive

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(r *Router, w transport.Wire) *session {
	fc := transport.NewFrameConn(w, r.cfg.ProtocolLogger, log.RoleRouter)
	s := &session{
		r:             r,
		fc:            fc,
		req:           interaction.NewRequester(fc, r.cfg.Timeout),
		logger:        r.logger.With("wire", w.ID()),
		created:       time.Now(),
		authenticated: w.Authenticated(),
		done:          make(chan struct{}),
	}
	fc.LogState(log.StateEntitySession, "", "OPEN", w.RemoteAddr())
	return s
}

// Addr returns the address assigned on connect, or EmptyAddr before.
func (s *session) Addr() wire.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *session) isAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Close closes the wire; the reader then runs the cleanup. It is safe to
// call from any goroutine.
func (s *session) Close() error {
	return s.fc.Close()
}

func (s *session) readLoop() {
	for {
		f, err := s.fc.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrMalformedFrame) {
				s.logger.Debug("dropping malformed frame", "error", err)
				continue
			}
			s.shutdown(err)
			return
		}
		s.handle(f)
	}
}

func (s *session) handle(f *wire.Frame) {
	switch {
	case f.Type.IsConfirmation():
		if !s.req.Resolve(f) {
			s.logger.Debug("dropping unmatched confirmation", "msg_type", f.Type, "token", f.Token)
		}
	case f.Type.ExpectsAnswer():
		s.r.dispatch(s, f)
	default:
		s.logger.Debug("dropping unexpected frame", "msg_type", f.Type, "src", f.Source)
	}
}

// reply answers f. An oversize payload is trimmed so the peer still gets
// its confirmation. A peer that went away in the meantime is only logged.
func (s *session) reply(f *wire.Frame, status wire.Status, payload wire.PropArray) {
	conf := f.Reply(status, payload)
	conf.FitPayload()
	s.r.metrics.request(f.Type, conf.Status)
	if err := s.fc.Send(conf); err != nil {
		s.logger.Debug("reply failed", "msg_type", f.Type, "error", err)
	}
}

// send writes an unsolicited frame. A payload too large to encode goes out
// with its largest values replaced by NO_ALLOC error properties; f itself
// may be shared between sessions and is left untouched.
func (s *session) send(f *wire.Frame) {
	err := s.fc.Send(f)
	if errors.Is(err, wire.ErrPayloadTooLarge) {
		fitted := *f
		fitted.FitPayload()
		err = s.fc.Send(&fitted)
	}
	if err != nil {
		s.logger.Debug("send failed", "msg_type", f.Type, "dst", f.Destination, "error", err)
	}
}

// attach marks the handshake complete under addr.
func (s *session) attach(addr wire.Addr) {
	s.mu.Lock()
	s.addr = addr
	s.connected = true
	s.challenge = nil
	s.mu.Unlock()

	s.fc.SetPeerAddr(addr)
	s.fc.LogState(log.StateEntitySession, "OPEN", "CONNECTED", addr.String())
	s.startKeepAlive()
}

func (s *session) startKeepAlive() {
	if s.r.cfg.KeepAlive == nil {
		return
	}
	ka := transport.NewKeepAlive(*s.r.cfg.KeepAlive, s.ping, func() {
		s.fc.LogControl(log.ControlMsgTimeout, 0, log.DirectionOut)
		s.logger.Warn("keep-alive timeout, closing wire")
		s.fc.Close()
	})
	s.mu.Lock()
	s.keepAlive = ka
	s.mu.Unlock()
	ka.Start(context.Background())
}

func (s *session) ping(ctx context.Context, seq uint32) error {
	s.fc.LogControl(log.ControlMsgPing, seq, log.DirectionOut)
	conf, err := s.req.Do(ctx, wire.NewFrame(wire.MsgPing, wire.RouterAddr, s.Addr(), wire.PropArray{}))
	if err != nil {
		return err
	}
	if err := conf.Err(); err != nil {
		return err
	}
	s.fc.LogControl(log.ControlMsgPong, seq, log.DirectionIn)
	return nil
}

// shutdown runs once when the wire is gone.
func (s *session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		ka := s.keepAlive
		s.keepAlive = nil
		wasConnected := s.connected
		s.connected = false
		s.mu.Unlock()

		if ka != nil {
			go ka.Stop()
		}
		s.fc.Close()
		s.r.drop(s, wasConnected)
		s.req.Close()

		reason := "closed"
		if cause != nil && !errors.Is(cause, transport.ErrWireClosed) {
			reason = cause.Error()
		}
		s.fc.LogState(log.StateEntitySession, "OPEN", "CLOSED", reason)
		close(s.done)
	})
}

func (s *session) setChallenge(c wire.PropArray) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = &c
}

// pendingChallenge returns the challenge sent with the last refused
// connect.
func (s *session) pendingChallenge() (wire.PropArray, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.challenge == nil {
		return wire.PropArray{}, false
	}
	return *s.challenge, true
}

func (s *session) setAuthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = true
}

// failAuth counts a refused attempt and returns the total.
func (s *session) failAuth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authAttempts++
	return s.authAttempts
}
