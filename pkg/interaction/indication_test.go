package interaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/wire"
)

func TestIndicationAckOnce(t *testing.T) {
	req := &wire.Frame{
		Type:        wire.MsgSetPropertiesReq,
		Source:      3,
		Destination: 9,
		Token:       42,
		Payload:     wire.NewPropArray(wire.NewUint8(0x300, 1)),
	}
	var sent []*wire.Frame
	ind := NewIndication(req, func(f *wire.Frame) error {
		sent = append(sent, f)
		return nil
	})

	assert.True(t, ind.NeedsAck())
	assert.False(t, ind.Acknowledged())
	require.NoError(t, ind.Ack(wire.StatusOK, wire.NewPropArray(wire.NewUint8(0x300, 1))))
	assert.True(t, ind.Acknowledged())
	assert.ErrorIs(t, ind.Ack(wire.StatusFailed, wire.PropArray{}), ErrAlreadyAcknowledged)

	require.Len(t, sent, 1)
	conf := sent[0]
	assert.Equal(t, wire.MsgSetPropertiesReq.Confirmation(), conf.Type)
	assert.Equal(t, wire.Addr(9), conf.Source)
	assert.Equal(t, wire.Addr(3), conf.Destination)
	assert.Equal(t, wire.Token(42), conf.Token)
	assert.Equal(t, wire.StatusOK, conf.Status)
}

func TestBroadcastIndicationSendsNothing(t *testing.T) {
	f := wire.NewFrame(wire.MsgChanged, 3, 9, wire.PropArray{})
	ind := NewIndication(f, func(*wire.Frame) error {
		t.Error("broadcast acknowledged on the wire")
		return nil
	})
	assert.False(t, ind.NeedsAck())
	assert.NoError(t, ind.Ack(wire.StatusOK, wire.PropArray{}))
	assert.True(t, ind.Acknowledged())
}

func TestIndicationConcurrentAck(t *testing.T) {
	f := &wire.Frame{Type: wire.MsgCustomMsgReceived, Token: 1}
	var mu sync.Mutex
	sends := 0
	ind := NewIndication(f, func(*wire.Frame) error {
		mu.Lock()
		sends++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ind.Ack(wire.StatusOK, wire.PropArray{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, sends)
}

func TestIndicationName(t *testing.T) {
	f := wire.NewFrame(wire.MsgCustomMsgReceived, 1, 2,
		wire.NewPropArray(wire.NewString(wire.TagMessageName, "reboot")))
	assert.Equal(t, "reboot", NewIndication(f, nil).Name())
	assert.Empty(t, NewIndication(getFrame(), nil).Name())
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(2)
	assert.Equal(t, 2, l.Cap())
	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	assert.Equal(t, 2, l.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	assert.NoError(t, l.Acquire(context.Background()))
	l.Release()
	l.Release()
	assert.Zero(t, l.InFlight())
}

func TestLimiterGo(t *testing.T) {
	l := NewLimiter(0)
	assert.Equal(t, MaxPendingIndications, l.Cap())

	block := make(chan struct{})
	var started sync.WaitGroup
	for range MaxPendingIndications {
		started.Add(1)
		require.True(t, l.Go(func() {
			started.Done()
			<-block
		}))
	}
	started.Wait()
	assert.False(t, l.Go(func() {}))

	close(block)
	require.Eventually(t, func() bool { return l.InFlight() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestGroupIndicationWithoutToken(t *testing.T) {
	f := wire.NewFrame(wire.MsgCustomMsgReceived, 3, 9, wire.PropArray{})
	ind := NewIndication(f, func(*wire.Frame) error {
		t.Error("token-less indication acknowledged on the wire")
		return nil
	})
	assert.False(t, ind.NeedsAck())
	assert.NoError(t, ind.Ack(wire.StatusOK, wire.PropArray{}))
}

func TestIndicationAckTrimsOversizeValues(t *testing.T) {
	req := &wire.Frame{Type: wire.MsgGetPropertiesReq, Source: 3, Destination: 9, Token: 7}
	var sent *wire.Frame
	ind := NewIndication(req, func(f *wire.Frame) error {
		sent = f
		return nil
	})

	props := wire.NewPropArray(
		wire.NewBinary(0x300, make([]byte, 40000)),
		wire.NewBinary(0x301, make([]byte, 40000)),
	)
	require.NoError(t, ind.Ack(wire.StatusOK, props))
	require.NotNil(t, sent)
	assert.Equal(t, wire.StatusPartialSuccess, sent.Status)
	_, err := wire.EncodeFrame(sent)
	assert.NoError(t, err)
}
