package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameLayout(t *testing.T) {
	f := &Frame{
		Type:        MsgSetProperties,
		Source:      0x0102,
		Destination: 0x0304,
		Token:       0x0506,
		Payload:     NewPropArray(NewUint8(0x0001, 5)),
	}
	data, err := EncodeFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x07,
		0x02, 0x01,
		0x04, 0x03,
		0x06, 0x05,
		0x07, 0x00,
		0x01, 0x00, 0x06, 0x00, 0x01, 0x00, 0x05,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("frame = % x, want % x", data, want)
	}
}

func TestBroadcastHasNoToken(t *testing.T) {
	f := NewFrame(MsgChanged, 7, 8, PropArray{})
	f.Token = 99
	data, err := EncodeFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != PrefixSize+LengthSize {
		t.Errorf("len = %d, want %d", len(data), PrefixSize+LengthSize)
	}
	out, err := DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Token != 0 {
		t.Errorf("Token = %d, want 0", out.Token)
	}
}

func TestConfirmationRoundTrip(t *testing.T) {
	req := &Frame{Type: MsgGetProperties, Source: 10, Destination: 20, Token: 3}
	conf := req.Reply(StatusPartialSuccess, NewPropArray(NewUint8(1, 1), NewError(2, StatusNotFound)))

	if conf.Source != 20 || conf.Destination != 10 {
		t.Errorf("addresses not swapped: %s", conf)
	}
	data, err := EncodeFrame(conf)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Type.IsConfirmation() || out.Type.Base() != MsgGetProperties {
		t.Errorf("Type = %s", out.Type)
	}
	if out.Status != StatusPartialSuccess {
		t.Errorf("Status = %s", out.Status)
	}
	if out.Token != 3 {
		t.Errorf("Token = %d, want 3", out.Token)
	}
	if !out.Payload.Equal(conf.Payload) {
		t.Errorf("Payload = %s, want %s", out.Payload, conf.Payload)
	}
}

func TestLocalStatusEncodedAsFailed(t *testing.T) {
	req := &Frame{Type: MsgPing, Token: 1}
	data, err := EncodeFrame(req.Reply(StatusBind, PropArray{}))
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeFrame(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != StatusFailed {
		t.Errorf("Status = %s, want FAILED", out.Status)
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortFrame},
		{"unknown type", []byte{0x7f, 0, 0, 0, 0, 0, 0}, ErrUnknownMessageType},
		{"missing token", []byte{0x01, 0, 0, 0, 0, 0, 0}, ErrShortFrame},
		{"length mismatch", []byte{0x1f, 0, 0, 0, 0, 5, 0}, ErrFrameLength},
		{"bad payload", []byte{0x1f, 0, 0, 0, 0, 2, 0, 1, 0}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMessageTypeClasses(t *testing.T) {
	tests := []struct {
		typ       MessageType
		token     bool
		answer    bool
		broadcast bool
	}{
		{MsgConnect, true, true, false},
		{MsgDeleteObject, true, true, false},
		{MsgSetPropertiesReq, true, true, false},
		{MsgObjectDeleted, true, true, false},
		{MsgChanged, false, false, true},
		{MsgObjectCreated, false, false, true},
		{MsgPing, true, true, false},
		{MsgAuth, true, true, false},
		{MsgCustom.Confirmation(), true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.HasToken(); got != tt.token {
				t.Errorf("HasToken() = %v, want %v", got, tt.token)
			}
			if got := tt.typ.ExpectsAnswer(); got != tt.answer {
				t.Errorf("ExpectsAnswer() = %v, want %v", got, tt.answer)
			}
			if got := tt.typ.IsBroadcast(); got != tt.broadcast {
				t.Errorf("IsBroadcast() = %v, want %v", got, tt.broadcast)
			}
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	if got := MsgSetPropertiesReq.String(); got != "setPropertiesReq" {
		t.Errorf("String() = %q", got)
	}
	if got := MsgPing.Confirmation().String(); got != "ping.conf" {
		t.Errorf("String() = %q", got)
	}
	if got := MessageType(0x7f).String(); got != "unknown(0x7f)" {
		t.Errorf("String() = %q", got)
	}
}

func TestFitPayloadKeepsConfirmationEncodable(t *testing.T) {
	var big PropArray
	big.Set(NewBinary(0x0300, make([]byte, 40000)))
	big.Set(NewBinary(0x0301, make([]byte, 40000)))
	f := (&Frame{Type: MsgGetProperties, Token: 3}).Reply(StatusOK, big)

	f.FitPayload()
	if f.Status != StatusPartialSuccess {
		t.Errorf("status = %s, want PARTIAL_SUCCESS", f.Status)
	}
	if _, err := EncodeFrame(f); err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if !f.Payload.HasErrors() {
		t.Error("expected a NO_ALLOC error property")
	}

	var many PropArray
	for i := 0; i < 13200; i++ {
		many.Set(NewError(Tag(0x0300+i), StatusNotFound))
	}
	f = (&Frame{Type: MsgGetProperties, Token: 4}).Reply(StatusOK, many)
	f.FitPayload()
	if f.Status != StatusNoAlloc || !f.Payload.IsEmpty() {
		t.Errorf("got %s with %d properties, want NO_ALLOC and empty payload", f.Status, f.Payload.Len())
	}
}
