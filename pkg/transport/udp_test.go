package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPServerWireDemultiplexes(t *testing.T) {
	ctx := testContext(t)
	srv := NewUDPServerWire("127.0.0.1:0")
	require.NoError(t, srv.Init(ctx))
	defer srv.Close()

	addr := srv.Addr().String()
	assert.Equal(t, "udp://"+addr, srv.Describe())

	c1 := NewUDPWire(addr)
	c2 := NewUDPWire(addr)
	require.NoError(t, c1.Open(ctx))
	require.NoError(t, c2.Open(ctx))
	defer c1.Close()
	defer c2.Close()

	require.NoError(t, c1.Write(mustEncode(t, pingFrame(1))))
	s1, err := srv.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, c2.Write(mustEncode(t, pingFrame(2))))
	s2, err := srv.Accept(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, s1.RemoteAddr(), s2.RemoteAddr())

	got1, err := s1.Read()
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, pingFrame(1)), got1)
	got2, err := s2.Read()
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, pingFrame(2)), got2)

	// Second datagram from a known address goes to the same wire.
	require.NoError(t, c1.Write(mustEncode(t, pingFrame(3))))
	got, err := s1.Read()
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, pingFrame(3)), got)

	// Replies reach the right client.
	require.NoError(t, s2.Write(mustEncode(t, pingFrame(4))))
	got, err = c2.Read()
	require.NoError(t, err)
	assert.Equal(t, mustEncode(t, pingFrame(4)), got)

	require.NoError(t, s1.Close())
	_, err = s1.Read()
	assert.ErrorIs(t, err, ErrWireClosed)

	require.NoError(t, srv.Close())
	_, err = s2.Read()
	assert.ErrorIs(t, err, ErrWireClosed)
}
