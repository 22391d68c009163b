package wire

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func sampleArray() PropArray {
	return NewPropArray(
		NewInt32(0x0101, -123456),
		NewInt16(0x0102, -1234),
		NewInt8(0x0103, -12),
		NewUint32(0x0104, 4000000000),
		NewUint16(0x0105, 65000),
		NewUint8(0x0106, 250),
		NewBool(0x0107, true),
		NewFloat(0x0108, 21.5),
		NewDateTime(0x0109, time.Unix(1700000000, 0)),
		NewUUID(0x010A, MustParseUniqueID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
		NewString(0x010B, "living room"),
		NewBinary(0x010C, []byte{0xde, 0xad, 0xbe, 0xef}),
		NewUint16Array(0x010D, []uint16{1, 2, 3}),
		NewError(0x010E, StatusReadOnly),
	)
}

func TestPropArrayRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   PropArray
	}{
		{"empty", PropArray{}},
		{"single uint8", NewPropArray(NewUint8(0x0001, 5))},
		{"all types", sampleArray()},
		{"empty string", NewPropArray(NewString(0x0200, ""))},
		{"empty binary", NewPropArray(NewBinary(0x0201, nil))},
		{"empty array", NewPropArray(NewUint32Array(0x0202, nil))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalPropArray(tt.in)
			if err != nil {
				t.Fatalf("MarshalPropArray: %v", err)
			}
			out, err := UnmarshalPropArray(data)
			if err != nil {
				t.Fatalf("UnmarshalPropArray: %v", err)
			}
			if !out.Equal(tt.in) {
				t.Errorf("round trip mismatch:\n got  %s\n want %s", out, tt.in)
			}
		})
	}
}

func TestEmptyPropArrayEncodesToNothing(t *testing.T) {
	data, err := MarshalPropArray(PropArray{})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("len = %d, want 0", len(data))
	}
}

func TestEncodingLayout(t *testing.T) {
	a := NewPropArray(NewUint8(0x0001, 5), NewString(0x0002, "hi"))
	data, err := MarshalPropArray(a)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x02, 0x00, // count
		0x06, 0x00, 0x01, 0x00, // tag 0x00010006
		0x05,
		0x0e, 0x00, 0x02, 0x00, // tag 0x0002000e
		0x02, 0x00, 'h', 'i',
	}
	if !bytes.Equal(data, want) {
		t.Errorf("encoding = % x, want % x", data, want)
	}
}

func TestOversizeArrayBecomesError(t *testing.T) {
	big := NewArray(0x0300, TypeUint8, 1, make([]byte, 70000))
	a := NewPropArray(big, NewUint8(0x0301, 7))

	data, err := MarshalPropArray(a)
	if err != nil {
		t.Fatalf("MarshalPropArray: %v", err)
	}
	if len(data) > 64 {
		t.Fatalf("encoding unexpectedly large: %d bytes", len(data))
	}

	out, err := UnmarshalPropArray(data)
	if err != nil {
		t.Fatalf("UnmarshalPropArray: %v", err)
	}
	p := out.Get(0x0300)
	if !p.IsError() || p.Err() != StatusNoAlloc {
		t.Errorf("oversize property = %s, want error NO_ALLOC", p)
	}
	if v, _ := out.Get(0x0301).AsInt(); v != 7 {
		t.Errorf("following property = %d, want 7", v)
	}
}

func TestOversizeStringBecomesError(t *testing.T) {
	a := NewPropArray(NewString(0x0400, string(make([]byte, 0x10000))))
	data, err := MarshalPropArray(a)
	if err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalPropArray(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Get(0x0400).Err(); got != StatusNoAlloc {
		t.Errorf("status = %s, want NO_ALLOC", got)
	}
}

func TestTotalSizeLimit(t *testing.T) {
	var a PropArray
	for i := 0; i < 3; i++ {
		a.Set(NewBinary(Tag(0x0500+i), make([]byte, 30000)))
	}
	if _, err := MarshalPropArray(a); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestFitPropArrayReplacesLargestValues(t *testing.T) {
	a := NewPropArray(
		NewBinary(0x0500, make([]byte, 40000)),
		NewUint8(0x0501, 5),
		NewBinary(0x0502, make([]byte, 30000)),
	)
	fitted, trimmed := FitPropArray(a)
	if !trimmed {
		t.Fatal("expected the array to be trimmed")
	}
	if got := fitted.Get(0x0500).Err(); got != StatusNoAlloc {
		t.Errorf("largest property status = %s, want NO_ALLOC", got)
	}
	if fitted.Get(0x0502).IsError() {
		t.Error("second binary should still fit")
	}
	if v, _ := fitted.Get(0x0501).AsInt(); v != 5 {
		t.Errorf("small property = %d, want 5", v)
	}
	if a.Get(0x0500).IsError() {
		t.Error("input array was modified")
	}
	if _, err := MarshalPropArray(fitted); err != nil {
		t.Errorf("MarshalPropArray(fitted): %v", err)
	}

	small := NewPropArray(NewUint8(0x0501, 5))
	if _, trimmed := FitPropArray(small); trimmed {
		t.Error("array within limits must not be trimmed")
	}
}

func TestMismatchedValueTypeBecomesError(t *testing.T) {
	p := Property{Tag: MakeTag(0x0600, TypeUint8, 0), Value: String("nope")}
	data, err := MarshalPropArray(NewPropArray(p))
	if err != nil {
		t.Fatal(err)
	}
	out, err := UnmarshalPropArray(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Get(0x0600).Err(); got != StatusUnsupported {
		t.Errorf("status = %s, want UNSUPPORTED", got)
	}
}

func TestDecodeRejectsCorruptInput(t *testing.T) {
	valid, err := MarshalPropArray(sampleArray())
	if err != nil {
		t.Fatal(err)
	}

	// Every strict prefix must fail without panicking.
	for n := 1; n < len(valid); n++ {
		if _, err := UnmarshalPropArray(valid[:n]); err == nil {
			t.Fatalf("prefix of %d bytes decoded without error", n)
		}
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"count only", []byte{0x01, 0x00}, ErrTruncated},
		{"string overrun", []byte{0x01, 0x00, 0x0e, 0x00, 0x01, 0x00, 0xff, 0x00, 'a'}, ErrTruncated},
		{"unknown type", []byte{0x01, 0x00, 0x0b, 0x00, 0x01, 0x00, 0x00}, ErrUnknownType},
		{"bad array total", []byte{0x01, 0x00, 0x05, 0x02, 0x01, 0x00, 0x09, 0x00, 0x01, 0x00, 0x02, 0x00, 0x05, 0x00, 0x01, 0x00}, ErrMalformedArray},
		{"trailing bytes", []byte{0x00, 0x00, 0x01}, ErrTrailingData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := UnmarshalPropArray(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if out.Len() != 0 {
				t.Errorf("partial result with %d properties", out.Len())
			}
		})
	}
}

func TestTagArrayRoundTrip(t *testing.T) {
	in := TagArray{TagObjectAddr, TagObjectType, MakeTag(0x0700, TypeFloat, 0)}
	data := MarshalTagArray(in)
	out, n, err := UnmarshalTagArray(data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Errorf("consumed %d, want %d", n, len(data))
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("tag[%d] = %s, want %s", i, out[i], in[i])
		}
	}
}
