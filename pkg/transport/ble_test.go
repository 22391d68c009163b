package transport

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeLink is a BLELink over net.Pipe that records write sizes.
type pipeLink struct {
	net.Conn
	mtu  int
	addr string

	mu     sync.Mutex
	writes []int
}

func (l *pipeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	l.writes = append(l.writes, len(p))
	l.mu.Unlock()
	return l.Conn.Write(p)
}

func (l *pipeLink) MTU() int        { return l.mtu }
func (l *pipeLink) Address() string { return l.addr }

func (l *pipeLink) maxWrite() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := 0
	for _, n := range l.writes {
		m = max(m, n)
	}
	return m
}

type pipeBackend struct {
	mtu   int
	links chan BLELink
}

type pipeListener struct {
	links  chan BLELink
	closed chan struct{}
	once   sync.Once
}

func (l *pipeListener) Accept(ctx context.Context) (BLELink, error) {
	select {
	case link := <-l.links:
		return link, nil
	case <-l.closed:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (b *pipeBackend) Connect(_ context.Context, address string) (BLELink, error) {
	central, peripheral := net.Pipe()
	b.links <- &pipeLink{Conn: peripheral, mtu: b.mtu, addr: "central"}
	return &pipeLink{Conn: central, mtu: b.mtu, addr: address}, nil
}

func (b *pipeBackend) Listen(context.Context) (BLEListener, error) {
	return &pipeListener{links: b.links, closed: make(chan struct{})}, nil
}

func TestBLEWireChunksAtMTU(t *testing.T) {
	ctx := testContext(t)
	backend := &pipeBackend{mtu: 8, links: make(chan BLELink, 1)}

	srv := NewBLEServerWire(backend)
	require.NoError(t, srv.Init(ctx))
	defer srv.Close()
	assert.True(t, srv.Available())

	client := NewBLEWire(backend, "AA:BB:CC:DD:EE:FF")
	require.NoError(t, client.Open(ctx))
	defer client.Close()
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", client.RemoteAddr())

	server, err := srv.Accept(ctx)
	require.NoError(t, err)
	exchange(t, client, server)

	link := client.(*streamWire).rwc.(*bleStream).link.(*pipeLink)
	assert.LessOrEqual(t, link.maxWrite(), 8)
	assert.Greater(t, len(link.writes), 1, "frame split into several writes")

	require.NoError(t, srv.Close())
	assert.False(t, srv.Available())
}
