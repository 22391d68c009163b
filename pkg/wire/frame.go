package wire

import (
	"errors"
	"fmt"
	"math"
)

// Frame layout sizes.
const (
	// PrefixSize covers type, source and destination.
	PrefixSize = 5

	// TokenSize is the size of the optional token.
	TokenSize = 2

	// LengthSize is the size of the payload length field.
	LengthSize = 2

	// MaxFrameSize is the largest possible frame.
	MaxFrameSize = PrefixSize + TokenSize + LengthSize + MaxPayloadSize
)

// Frame errors.
var (
	ErrShortFrame         = errors.New("wire: short frame")
	ErrUnknownMessageType = errors.New("wire: unknown message type")
	ErrFrameLength        = errors.New("wire: payload length mismatch")
)

// Frame is one protocol message.
type Frame struct {
	Type        MessageType
	Source      Addr
	Destination Addr

	// Token is only encoded when Type.HasToken().
	Token Token

	// Status is only encoded for confirmations.
	Status Status

	Payload PropArray
}

// NewFrame creates a frame without a token.
func NewFrame(t MessageType, src, dst Addr, payload PropArray) *Frame {
	return &Frame{Type: t, Source: src, Destination: dst, Payload: payload}
}

// Reply builds the confirmation answering f, with source and destination
// swapped and the same token.
func (f *Frame) Reply(status Status, payload PropArray) *Frame {
	return &Frame{
		Type:        f.Type.Base().Confirmation(),
		Source:      f.Destination,
		Destination: f.Source,
		Token:       f.Token,
		Status:      status,
		Payload:     payload,
	}
}

// FitPayload makes an oversize confirmation encodable. Values are trimmed
// with FitPropArray and an OK status becomes PARTIAL_SUCCESS; when that is
// not enough the frame carries NO_ALLOC and an empty payload.
func (f *Frame) FitPayload() {
	fitted, trimmed := FitPropArray(f.Payload)
	if trimmed {
		f.Payload = fitted
		if f.Status == StatusOK {
			f.Status = StatusPartialSuccess
		}
	}
	if _, err := MarshalPropArray(f.Payload); err != nil {
		f.Status = StatusNoAlloc
		f.Payload = PropArray{}
	}
}

// String formats the frame header for logs.
func (f *Frame) String() string {
	s := fmt.Sprintf("%s %s->%s", f.Type, f.Source, f.Destination)
	if f.Type.HasToken() {
		s += fmt.Sprintf(" tok=%d", f.Token)
	}
	if f.Type.IsConfirmation() {
		s += " " + f.Status.String()
	}
	return s
}

// HeaderSize returns the header length for frames of type t.
func HeaderSize(t MessageType) int {
	if t.HasToken() {
		return PrefixSize + TokenSize + LengthSize
	}
	return PrefixSize + LengthSize
}

// EncodeFrame serializes f.
func EncodeFrame(f *Frame) ([]byte, error) {
	hdr := HeaderSize(f.Type)
	buf := make([]byte, hdr, hdr+64)
	buf[0] = byte(f.Type)
	le.PutUint16(buf[1:], uint16(f.Source))
	le.PutUint16(buf[3:], uint16(f.Destination))
	if f.Type.HasToken() {
		le.PutUint16(buf[5:], uint16(f.Token))
	}
	if f.Type.IsConfirmation() {
		buf = append(buf, byte(f.Status.WireByte()))
	}
	buf, err := AppendPropArray(buf, f.Payload)
	if err != nil {
		return nil, err
	}
	n := len(buf) - hdr
	if n > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	le.PutUint16(buf[hdr-LengthSize:], uint16(n))
	return buf, nil
}

// DecodeFrame parses one complete frame. The payload must match the
// declared length exactly.
func DecodeFrame(b []byte) (*Frame, error) {
	if len(b) < PrefixSize+LengthSize {
		return nil, ErrShortFrame
	}
	f := &Frame{
		Type:        MessageType(b[0]),
		Source:      Addr(le.Uint16(b[1:])),
		Destination: Addr(le.Uint16(b[3:])),
	}
	if !f.Type.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, b[0])
	}
	hdr := HeaderSize(f.Type)
	if len(b) < hdr {
		return nil, ErrShortFrame
	}
	if f.Type.HasToken() {
		f.Token = Token(le.Uint16(b[5:]))
	}
	n := int(le.Uint16(b[hdr-LengthSize:]))
	if len(b)-hdr != n {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrFrameLength, n, len(b)-hdr)
	}
	body := b[hdr:]
	if f.Type.IsConfirmation() {
		if len(body) < 1 {
			return nil, ErrShortFrame
		}
		f.Status = Status(int8(body[0]))
		body = body[1:]
	}
	payload, err := UnmarshalPropArray(body)
	if err != nil {
		return nil, err
	}
	f.Payload = payload
	return f, nil
}

// PayloadLength reads the payload length from a complete header.
func PayloadLength(hdr []byte) (int, error) {
	if len(hdr) < PrefixSize {
		return 0, ErrShortFrame
	}
	t := MessageType(hdr[0])
	if !t.IsValid() {
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownMessageType, hdr[0])
	}
	size := HeaderSize(t)
	if len(hdr) < size {
		return 0, ErrShortFrame
	}
	return int(le.Uint16(hdr[size-LengthSize:])), nil
}
