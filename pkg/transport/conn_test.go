package transport

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/wire"
)

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureLogger) byLayer(l log.Layer) []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []log.Event
	for _, e := range c.events {
		if e.Layer == l {
			out = append(out, e)
		}
	}
	return out
}

func TestFrameConnSendReceive(t *testing.T) {
	a, b := Pipe()
	logger := &captureLogger{}
	ca := NewFrameConn(a, logger, log.RolePeer)
	cb := NewFrameConn(b, nil, log.RoleRouter)
	ca.SetPeerAddr(0x0042)
	defer ca.Close()
	defer cb.Close()

	sent := &wire.Frame{
		Type:        wire.MsgSetProperties,
		Source:      0x0042,
		Destination: 0x0010,
		Token:       3,
		Payload:     wire.NewPropArray(wire.NewUint8(0x0007, 5)),
	}
	errc := make(chan error, 1)
	go func() { errc <- ca.Send(sent) }()

	got, err := cb.Receive()
	require.NoError(t, err)
	require.NoError(t, <-errc)

	assert.Equal(t, sent.Type, got.Type)
	assert.Equal(t, sent.Token, got.Token)
	assert.True(t, got.Payload.Equal(sent.Payload))

	raw := logger.byLayer(log.LayerTransport)
	require.Len(t, raw, 1)
	assert.Equal(t, log.DirectionOut, raw[0].Direction)
	require.NotNil(t, raw[0].Frame)

	msgs := logger.byLayer(log.LayerWire)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Message)
	assert.Equal(t, wire.MsgSetProperties, msgs[0].Message.Type)
	assert.Equal(t, wire.Addr(0x0042), msgs[0].PeerAddr)
}

func TestFrameConnMalformedFrameKeepsLink(t *testing.T) {
	a, b := Pipe()
	cb := NewFrameConn(b, nil, log.RoleRouter)
	defer a.Close()
	defer cb.Close()

	good := mustEncode(t, wire.NewFrame(wire.MsgChanged, 1, 2, wire.PropArray{}))
	go func() {
		// Well delimited, but the payload announces a property it lacks.
		_ = a.Write([]byte{0x1f, 0, 0, 0, 0, 2, 0, 1, 0})
		_ = a.Write(good)
	}()

	_, err := cb.Receive()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
	assert.True(t, errors.Is(err, wire.ErrTruncated))

	f, err := cb.Receive()
	require.NoError(t, err)
	assert.Equal(t, wire.MsgChanged, f.Type)
}

func TestFrameConnConcurrentSenders(t *testing.T) {
	a, b := Pipe()
	ca := NewFrameConn(a, nil, log.RolePeer)
	cb := NewFrameConn(b, nil, log.RoleRouter)
	defer ca.Close()
	defer cb.Close()

	const senders, perSender = 4, 25
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				f := &wire.Frame{
					Type:    wire.MsgCustom,
					Source:  wire.Addr(s + 1),
					Token:   wire.Token(i),
					Payload: wire.NewPropArray(wire.NewBinary(0x0300, make([]byte, 200))),
				}
				if err := ca.Send(f); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}(s)
	}

	next := make(map[wire.Addr]wire.Token)
	for i := 0; i < senders*perSender; i++ {
		f, err := cb.Receive()
		require.NoError(t, err)
		assert.Equal(t, next[f.Source], f.Token, "frames from one sender arrive in order")
		next[f.Source] = f.Token + 1
	}
	wg.Wait()
}

func TestSendOnClosedWire(t *testing.T) {
	a, b := Pipe()
	b.Close()
	a.Close()
	err := NewFrameConn(a, nil, log.RolePeer).Send(wire.NewFrame(wire.MsgChanged, 1, 2, wire.PropArray{}))
	assert.Equal(t, wire.StatusNotConnected, wire.StatusOf(err))
}
