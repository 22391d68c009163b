package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Signature algorithm parameters.
const (
	AlgoHMACSHA256 = "HMAC-SHA256"
	NonceSize      = 32
	KeySize        = 32
)

var keyInfo = []byte("flake auth v1")

// Signature authenticates with an HMAC over a router nonce, keyed by a
// secret both ends share.
type Signature struct {
	secret []byte

	// Rand is the nonce source; nil selects crypto/rand.
	Rand io.Reader
}

// NewSignature creates a signature sink for secret.
func NewSignature(secret []byte) *Signature {
	return &Signature{secret: bytes.Clone(secret)}
}

func (s *Signature) AuthenticationType() wire.AuthType { return wire.AuthSignature }

// deriveKey expands the shared secret with the nonce as salt.
func (s *Signature) deriveKey(nonce []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, nonce, keyInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func (s *Signature) sign(nonce []byte) ([]byte, error) {
	key, err := s.deriveKey(nonce)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(nonce)
	return mac.Sum(nil), nil
}

// OnAuthChallengeRequested returns a fresh nonce.
func (s *Signature) OnAuthChallengeRequested(wire.PropArray) (wire.PropArray, wire.Status) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return wire.PropArray{}, wire.StatusFailed
	}
	return wire.NewPropArray(
		wire.NewUint8(wire.TagAuthType, uint8(wire.AuthSignature)),
		wire.NewString(wire.TagSignAlgo, AlgoHMACSHA256),
		wire.NewBinary(wire.TagSignHash, nonce),
	), wire.StatusOK
}

// OnAuthChallengeReceived signs the router's nonce.
func (s *Signature) OnAuthChallengeReceived(challenge wire.PropArray) (wire.PropArray, wire.Status) {
	nonce, err := challengeNonce(challenge)
	if err != nil {
		return wire.PropArray{}, wire.StatusUnsupported
	}
	sig, err := s.sign(nonce)
	if err != nil {
		return wire.PropArray{}, wire.StatusFailed
	}
	return wire.NewPropArray(
		wire.NewString(wire.TagSignAlgo, AlgoHMACSHA256),
		wire.NewBinary(wire.TagSignHash, nonce),
		wire.NewBinary(wire.TagSignature, sig),
	), wire.StatusOK
}

// OnAuthResponseReceived checks that response signs the nonce of
// challenge.
func (s *Signature) OnAuthResponseReceived(challenge, response wire.PropArray) wire.Status {
	nonce, err := challengeNonce(challenge)
	if err != nil {
		return wire.StatusUnauthorized
	}
	echoed, err := challengeNonce(response)
	if err != nil || !hmac.Equal(nonce, echoed) {
		return wire.StatusUnauthorized
	}
	got, _ := response.Get(wire.TagSignature).AsBytes()
	want, err := s.sign(nonce)
	if err != nil || !hmac.Equal(got, want) {
		return wire.StatusUnauthorized
	}
	return wire.StatusOK
}

func (s *Signature) OnConnect(wire.PropArray) (wire.PropArray, wire.Status) {
	return wire.PropArray{}, wire.StatusNotImpl
}

func challengeNonce(props wire.PropArray) ([]byte, error) {
	algo, _ := props.Get(wire.TagSignAlgo).AsString()
	if algo != AlgoHMACSHA256 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	nonce, ok := props.Get(wire.TagSignHash).AsBytes()
	if !ok || len(nonce) != NonceSize {
		return nil, ErrChallengeInvalid
	}
	return nonce, nil
}
