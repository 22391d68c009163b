package auth

import (
	"errors"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Handshake errors.
var (
	ErrUnknownAlgorithm = errors.New("auth: unknown signature algorithm")
	ErrChallengeInvalid = errors.New("auth: challenge missing or malformed")
)

// Sink takes part in the authentication handshake.
type Sink interface {
	// AuthenticationType selects the handshake. A router requires none
	// when it returns wire.AuthNone.
	AuthenticationType() wire.AuthType

	// OnAuthChallengeRequested builds the challenge a router sends with
	// its StatusUnauthorized answer. peer is the connect payload.
	OnAuthChallengeRequested(peer wire.PropArray) (wire.PropArray, wire.Status)

	// OnAuthChallengeReceived answers a signature challenge on the peer.
	OnAuthChallengeReceived(challenge wire.PropArray) (wire.PropArray, wire.Status)

	// OnAuthResponseReceived verifies the peer's answer on the router.
	OnAuthResponseReceived(challenge, response wire.PropArray) wire.Status

	// OnConnect supplies credentials for an interactive handshake on the
	// peer. props is what the router sent along.
	OnConnect(props wire.PropArray) (wire.PropArray, wire.Status)
}

// None is a Sink for links that need no authentication.
type None struct{}

func (None) AuthenticationType() wire.AuthType { return wire.AuthNone }

func (None) OnAuthChallengeRequested(wire.PropArray) (wire.PropArray, wire.Status) {
	return wire.PropArray{}, wire.StatusOK
}

func (None) OnAuthChallengeReceived(wire.PropArray) (wire.PropArray, wire.Status) {
	return wire.PropArray{}, wire.StatusNotImpl
}

func (None) OnAuthResponseReceived(wire.PropArray, wire.PropArray) wire.Status {
	return wire.StatusOK
}

func (None) OnConnect(wire.PropArray) (wire.PropArray, wire.Status) {
	return wire.PropArray{}, wire.StatusNotImpl
}

// Type reads AUTH_TYPE from props, defaulting to wire.AuthNone.
func Type(props wire.PropArray) wire.AuthType {
	v, ok := props.Get(wire.TagAuthType).AsInt()
	if !ok {
		return wire.AuthNone
	}
	return wire.AuthType(v)
}

var (
	_ Sink = None{}
	_ Sink = (*Signature)(nil)
	_ Sink = (*Interactive)(nil)
)
