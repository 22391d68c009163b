package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/wire"
)

func TestParseTag(t *testing.T) {
	tag, err := parseTag("0x0300:uint8")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0300), tag.ID())
	assert.Equal(t, wire.TypeUint8, tag.Type())

	tag, err = parseTag("768")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0300), tag.ID())
	assert.Equal(t, wire.TypeInvalid, tag.Type())

	_, err = parseTag("0x10000")
	assert.ErrorIs(t, err, errSyntax)
	_, err = parseTag("1:complex")
	assert.ErrorIs(t, err, errSyntax)
}

func TestParseProps(t *testing.T) {
	props, err := parseProps([]string{"0x0300:uint8=42", "0x0301:string=kitchen lamp", "0x0302:bool=true"})
	require.NoError(t, err)
	require.Equal(t, 3, props.Len())

	n, ok := props.Get(wire.MakeTag(0x0300, wire.TypeUint8, 0)).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	s, _ := props.Get(wire.MakeTag(0x0301, wire.TypeString, 0)).AsString()
	assert.Equal(t, "kitchen lamp", s)

	for _, bad := range []string{"0x0300", "0x0300=1", "0x0300:uint8=300", "x:bool=true"} {
		_, err := parseProps([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseAddr(t *testing.T) {
	a, err := parseAddr("0x0010")
	require.NoError(t, err)
	assert.Equal(t, wire.Addr(16), a)

	_, err = parseAddr("-1")
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in     string
		scheme string
		host   string
		url    string
	}{
		{"localhost", "tcp", "localhost:9986", "tcp://localhost:9986"},
		{"10.0.0.2:9000", "tcp", "10.0.0.2:9000", "tcp://10.0.0.2:9000"},
		{"tls://router.local", "tls", "router.local:9986", "tls://router.local:9986"},
		{"ws://router.local:8080/flake", "ws", "router.local:8080", "ws://router.local:8080/flake"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTarget(tt.in, 9986)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, got.scheme)
			assert.Equal(t, tt.host, got.host)
			assert.Equal(t, tt.url, got.url)
		})
	}

	_, err := parseTarget("ftp://router", 9986)
	assert.ErrorIs(t, err, errSyntax)
}
