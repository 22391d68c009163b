package auth

import (
	"crypto/subtle"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Interactive authenticates with a user name and password. A peer sets
// User and Password; a router sets Accounts.
type Interactive struct {
	User     string
	Password string

	// Prompt, if set, supplies credentials on the peer instead of
	// User and Password.
	Prompt func(props wire.PropArray) (user, password string, ok bool)

	Accounts map[string]string
}

func (a *Interactive) AuthenticationType() wire.AuthType { return wire.AuthInteractive }

func (a *Interactive) OnAuthChallengeRequested(wire.PropArray) (wire.PropArray, wire.Status) {
	return wire.NewPropArray(wire.NewUint8(wire.TagAuthType, uint8(wire.AuthInteractive))), wire.StatusOK
}

func (a *Interactive) OnAuthChallengeReceived(wire.PropArray) (wire.PropArray, wire.Status) {
	return wire.PropArray{}, wire.StatusNotImpl
}

// OnAuthResponseReceived checks the credentials against Accounts.
func (a *Interactive) OnAuthResponseReceived(_, response wire.PropArray) wire.Status {
	user, _ := response.Get(wire.TagAuthUser).AsString()
	pass, _ := response.Get(wire.TagAuthPass).AsString()
	want, ok := a.Accounts[user]
	if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(want)) != 1 {
		return wire.StatusUnauthorized
	}
	return wire.StatusOK
}

// OnConnect returns the peer's credentials.
func (a *Interactive) OnConnect(props wire.PropArray) (wire.PropArray, wire.Status) {
	user, pass := a.User, a.Password
	if a.Prompt != nil {
		var ok bool
		if user, pass, ok = a.Prompt(props); !ok {
			return wire.PropArray{}, wire.StatusRefused
		}
	}
	return wire.NewPropArray(
		wire.NewString(wire.TagAuthUser, user),
		wire.NewString(wire.TagAuthPass, pass),
	), wire.StatusOK
}
