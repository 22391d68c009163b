package interaction

import (
	"errors"
	"sync/atomic"

	"github.com/coldwave/flake-go/pkg/wire"
)

// ErrAlreadyAcknowledged is returned by a second Ack on one indication.
var ErrAlreadyAcknowledged = errors.New("interaction: indication already acknowledged")

// Confirmation is the token-correlated answer to a request.
type Confirmation struct {
	// Message is the base type of the answered request.
	Message     wire.MessageType
	Source      wire.Addr
	Destination wire.Addr
	Status      wire.Status
	Token       wire.Token
	Payload     wire.PropArray
}

// NewConfirmation converts a confirmation frame.
func NewConfirmation(f *wire.Frame) *Confirmation {
	return &Confirmation{
		Message:     f.Type.Base(),
		Source:      f.Source,
		Destination: f.Destination,
		Status:      f.Status,
		Token:       f.Token,
		Payload:     f.Payload,
	}
}

// Err returns nil when Status counts as success.
func (c *Confirmation) Err() error {
	if c.Status.IsSuccess() {
		return nil
	}
	return c.Status
}

// Indication is a message delivered to a handler. Indications that expect
// an answer must be acknowledged exactly once; until then the remote
// requester stays blocked.
type Indication struct {
	Message     wire.MessageType
	Source      wire.Addr
	Destination wire.Addr
	Token       wire.Token
	Payload     wire.PropArray

	send  func(*wire.Frame) error
	acked atomic.Bool
}

// NewIndication wraps f. send carries the confirmation back; it may be nil
// for broadcasts.
func NewIndication(f *wire.Frame, send func(*wire.Frame) error) *Indication {
	return &Indication{
		Message:     f.Type,
		Source:      f.Source,
		Destination: f.Destination,
		Token:       f.Token,
		Payload:     f.Payload,
		send:        send,
	}
}

// Name returns the MESSAGE_NAME property, as carried by custom messages.
func (i *Indication) Name() string {
	s, _ := i.Payload.Get(wire.TagMessageName).AsString()
	return s
}

// NeedsAck reports whether the sender waits for a confirmation. Token 0
// marks a request-half indication fanned out to a group; nobody waits for
// those.
func (i *Indication) NeedsAck() bool {
	return i.Message.ExpectsAnswer() && i.Token != 0
}

// Ack answers the indication. Broadcasts are marked acknowledged without
// sending anything. Values too large for one confirmation are replaced by
// NO_ALLOC error properties.
func (i *Indication) Ack(status wire.Status, props wire.PropArray) error {
	if !i.acked.CompareAndSwap(false, true) {
		return ErrAlreadyAcknowledged
	}
	if !i.NeedsAck() || i.send == nil {
		return nil
	}
	conf := &wire.Frame{
		Type:        i.Message.Confirmation(),
		Source:      i.Destination,
		Destination: i.Source,
		Token:       i.Token,
		Status:      status,
		Payload:     props,
	}
	conf.FitPayload()
	return i.send(conf)
}

// Acknowledged reports whether Ack has been called.
func (i *Indication) Acknowledged() bool {
	return i.acked.Load()
}
