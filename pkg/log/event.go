package log

import (
	"time"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Event is a protocol event captured at one layer of a connection.
// CBOR encoding uses integer keys.
type Event struct {
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the wire the event belongs to.
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// LocalRole tells router-side and peer-side captures apart.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the transport address of the other end.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PeerAddr is the flake address of the peer, once assigned.
	PeerAddr wire.Addr `cbor:"8,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates message flow relative to the local endpoint.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport sees raw frame bytes.
	LayerTransport Layer = 0
	// LayerWire sees decoded frames.
	LayerWire Layer = 1
	// LayerService sees object and session lifecycle.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryControl Category = 1
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role is the local endpoint's role.
type Role uint8

const (
	RolePeer   Role = 0
	RoleRouter Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RolePeer:
		return "PEER"
	case RoleRouter:
		return "ROUTER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame bytes.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data may be cut short for large frames.
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded frame.
type MessageEvent struct {
	Type        wire.MessageType `cbor:"1,keyasint"`
	Source      wire.Addr        `cbor:"2,keyasint"`
	Destination wire.Addr        `cbor:"3,keyasint"`
	Token       wire.Token       `cbor:"4,keyasint,omitempty"`

	// Status is set for confirmations only.
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// Properties maps tag to formatted value.
	Properties map[uint32]string `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the time between request and confirmation, if known.
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// NewMessageEvent summarizes a frame for logging.
func NewMessageEvent(f *wire.Frame) *MessageEvent {
	m := &MessageEvent{
		Type:        f.Type,
		Source:      f.Source,
		Destination: f.Destination,
	}
	if f.Type.HasToken() {
		m.Token = f.Token
	}
	if f.Type.IsConfirmation() {
		s := f.Status
		m.Status = &s
	}
	if f.Payload.Len() > 0 {
		m.Properties = make(map[uint32]string, f.Payload.Len())
		for _, p := range f.Payload.Props() {
			m.Properties[uint32(p.Tag)] = wire.FormatValue(p.Value)
		}
	}
	return m
}

// StateChangeEvent captures lifecycle transitions.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`

	// Object is the address the change applies to, if any.
	Object wire.Addr `cbor:"5,keyasint,omitempty"`
}

// StateEntity names what changed state.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = 0
	StateEntitySession    StateEntity = 1
	StateEntityObject     StateEntity = 2
	StateEntityGroup      StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityObject:
		return "OBJECT"
	case StateEntityGroup:
		return "GROUP"
	default:
		return "UNKNOWN"
	}
}

// ControlMsgEvent captures keepalive traffic.
type ControlMsgEvent struct {
	Type     ControlMsgType `cbor:"1,keyasint"`
	Sequence uint32         `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType is the kind of keepalive event.
type ControlMsgType uint8

const (
	ControlMsgPing    ControlMsgType = 0
	ControlMsgPong    ControlMsgType = 1
	ControlMsgTimeout ControlMsgType = 2
)

// String returns the control message type name.
func (c ControlMsgType) String() string {
	switch c {
	case ControlMsgPing:
		return "PING"
	case ControlMsgPong:
		return "PONG"
	case ControlMsgTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is a wire.Status value when one applies.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context names the operation that failed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// NewErrorEvent builds an error event from err.
func NewErrorEvent(layer Layer, context string, err error) *ErrorEventData {
	e := &ErrorEventData{Layer: layer, Message: err.Error(), Context: context}
	if s := wire.StatusOf(err); s != wire.StatusFailed {
		code := int(s)
		e.Code = &code
	}
	return e
}
