package connection

import (
	"context"
	"fmt"

	"github.com/coldwave/flake-go/pkg/auth"
	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/wire"
)

// AuthenticationSink answers the router's authentication requests.
type AuthenticationSink = auth.Sink

// Connect runs the connect handshake. sink answers an authentication
// request from the router; with a nil sink such a request fails with
// wire.StatusUnauthorized.
func (c *Connection) Connect(ctx context.Context, sink AuthenticationSink) error {
	return c.connect(ctx, wire.PropArray{}, sink)
}

// ConnectWithProps runs the connect handshake sending props, typically
// AUTH_USER and AUTH_PASS for routers that check them directly.
func (c *Connection) ConnectWithProps(ctx context.Context, props wire.PropArray) error {
	return c.connect(ctx, props, nil)
}

func (c *Connection) connect(ctx context.Context, props wire.PropArray, sink AuthenticationSink) error {
	if c.Connected() {
		return ErrAlreadyConnected
	}
	ctx, cancel := context.WithTimeout(ctx, c.req.Timeout())
	defer cancel()

	conf, err := c.req.Do(ctx, wire.NewFrame(wire.MsgConnect, wire.EmptyAddr, wire.RouterAddr, props))
	if err != nil {
		return err
	}

	if conf.Status == wire.StatusUnauthorized {
		if conf, err = c.authenticate(ctx, conf.Payload, sink); err != nil {
			c.fc.LogState(log.StateEntityConnection, "OPEN", "UNAUTHORIZED", err.Error())
			return err
		}
	}
	if err := conf.Err(); err != nil {
		return err
	}

	addr, ok := conf.Payload.Get(wire.TagObjectAddr).AsAddr()
	if !ok || addr == wire.EmptyAddr {
		return fmt.Errorf("connect: %w", ErrBadConfirmation)
	}

	c.mu.Lock()
	c.addr = addr
	c.connected = true
	c.mu.Unlock()

	c.fc.LogState(log.StateEntityConnection, "OPEN", "CONNECTED", "")
	c.logger.Debug("connected", "addr", addr)
	c.startKeepAlive()
	return nil
}

// authenticate answers the challenge in props and returns the router's
// answer to the auth request. Any refusal is reported as
// wire.StatusUnauthorized.
func (c *Connection) authenticate(ctx context.Context, props wire.PropArray, sink AuthenticationSink) (*interaction.Confirmation, error) {
	if sink == nil {
		return nil, wire.StatusUnauthorized
	}

	var resp wire.PropArray
	status := wire.StatusUnauthorized
	switch typ := auth.Type(props); typ {
	case wire.AuthSignature:
		resp, status = sink.OnAuthChallengeReceived(props)
	case wire.AuthInteractive:
		resp, status = sink.OnConnect(props)
	default:
		c.logger.Debug("unsupported auth type", "auth_type", typ)
	}
	if status != wire.StatusOK {
		return nil, wire.StatusUnauthorized
	}

	conf, err := c.req.Do(ctx, wire.NewFrame(wire.MsgAuth, wire.EmptyAddr, wire.RouterAddr, resp))
	if err != nil {
		return nil, err
	}
	if conf.Status != wire.StatusOK {
		return nil, wire.StatusUnauthorized
	}
	return conf, nil
}
