package auth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/wire"
)

func TestSignatureHandshake(t *testing.T) {
	router := NewSignature([]byte("shared secret"))
	peer := NewSignature([]byte("shared secret"))

	challenge, st := router.OnAuthChallengeRequested(wire.PropArray{})
	require.Equal(t, wire.StatusOK, st)
	assert.Equal(t, wire.AuthSignature, Type(challenge))

	resp, st := peer.OnAuthChallengeReceived(challenge)
	require.Equal(t, wire.StatusOK, st)
	assert.True(t, resp.Has(wire.TagSignature))

	assert.Equal(t, wire.StatusOK, router.OnAuthResponseReceived(challenge, resp))
}

func TestSignatureRejects(t *testing.T) {
	router := NewSignature([]byte("shared secret"))
	challenge, _ := router.OnAuthChallengeRequested(wire.PropArray{})

	wrong, _ := NewSignature([]byte("other secret")).OnAuthChallengeReceived(challenge)
	assert.Equal(t, wire.StatusUnauthorized, router.OnAuthResponseReceived(challenge, wrong))

	// A response to an older challenge does not verify.
	old, _ := router.OnAuthChallengeRequested(wire.PropArray{})
	replay, _ := NewSignature([]byte("shared secret")).OnAuthChallengeReceived(old)
	assert.Equal(t, wire.StatusUnauthorized, router.OnAuthResponseReceived(challenge, replay))

	tampered := replay.Clone()
	tampered.Set(wire.NewString(wire.TagSignAlgo, "MD5"))
	assert.Equal(t, wire.StatusUnauthorized, router.OnAuthResponseReceived(old, tampered))
}

func TestSignatureDeterministicNonce(t *testing.T) {
	s := NewSignature([]byte("k"))
	s.Rand = bytes.NewReader(bytes.Repeat([]byte{7}, NonceSize))
	challenge, st := s.OnAuthChallengeRequested(wire.PropArray{})
	require.Equal(t, wire.StatusOK, st)
	nonce, _ := challenge.Get(wire.TagSignHash).AsBytes()
	assert.Equal(t, bytes.Repeat([]byte{7}, NonceSize), nonce)

	_, st = s.OnAuthChallengeRequested(wire.PropArray{})
	assert.Equal(t, wire.StatusFailed, st, "exhausted nonce source")
}

func TestChallengeReceivedMalformed(t *testing.T) {
	_, st := NewSignature([]byte("k")).OnAuthChallengeReceived(wire.NewPropArray(
		wire.NewString(wire.TagSignAlgo, AlgoHMACSHA256),
		wire.NewBinary(wire.TagSignHash, []byte{1, 2, 3}),
	))
	assert.Equal(t, wire.StatusUnsupported, st)
}

func TestInteractive(t *testing.T) {
	router := &Interactive{Accounts: map[string]string{"admin": "secret"}}

	tests := []struct {
		name string
		peer *Interactive
		want wire.Status
	}{
		{"valid", &Interactive{User: "admin", Password: "secret"}, wire.StatusOK},
		{"wrong password", &Interactive{User: "admin", Password: "guess"}, wire.StatusUnauthorized},
		{"unknown user", &Interactive{User: "root", Password: "secret"}, wire.StatusUnauthorized},
		{"prompt", &Interactive{Prompt: func(wire.PropArray) (string, string, bool) {
			return "admin", "secret", true
		}}, wire.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenge, _ := router.OnAuthChallengeRequested(wire.PropArray{})
			assert.Equal(t, wire.AuthInteractive, Type(challenge))
			creds, st := tt.peer.OnConnect(challenge)
			require.Equal(t, wire.StatusOK, st)
			assert.Equal(t, tt.want, router.OnAuthResponseReceived(challenge, creds))
		})
	}
}

func TestInteractivePromptCancelled(t *testing.T) {
	peer := &Interactive{Prompt: func(wire.PropArray) (string, string, bool) { return "", "", false }}
	_, st := peer.OnConnect(wire.PropArray{})
	assert.Equal(t, wire.StatusRefused, st)
}

func TestNone(t *testing.T) {
	var s Sink = None{}
	assert.Equal(t, wire.AuthNone, s.AuthenticationType())
	assert.Equal(t, wire.AuthNone, Type(wire.PropArray{}))
}
