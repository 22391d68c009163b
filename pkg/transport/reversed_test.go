package transport

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReversedTCPServerWireRedials(t *testing.T) {
	ctx := testContext(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	srv := NewReversedTCPServerWire(host, port, nil)
	srv.SetBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond})
	assert.Equal(t, "reversed+tcp://"+ln.Addr().String(), srv.Describe())

	require.NoError(t, srv.Init(ctx))

	for i := 0; i < 2; i++ {
		w, err := srv.Accept(ctx)
		require.NoError(t, err)
		conn, err := ln.Accept()
		require.NoError(t, err)
		exchange(t, acceptedStreamWire(conn, "remote", false, false), w)
		require.NoError(t, w.Close())
		conn.Close()
	}

	require.NoError(t, srv.Close())
	assert.False(t, srv.Available())
	_, err = srv.Accept(ctx)
	assert.ErrorIs(t, err, ErrServerClosed)
}
