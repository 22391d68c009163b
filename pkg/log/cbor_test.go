package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/wire"
)

func TestEventRoundTrip(t *testing.T) {
	status := wire.StatusPartialSuccess
	elapsed := 3 * time.Millisecond
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	tests := []struct {
		name  string
		event Event
	}{
		{"frame", Event{
			Timestamp: ts, ConnectionID: "c1", Direction: DirectionOut,
			Layer: LayerTransport, Category: CategoryMessage,
			Frame: &FrameEvent{Size: 12, Data: []byte{1, 2, 3}},
		}},
		{"message", Event{
			Timestamp: ts, ConnectionID: "c2", Layer: LayerWire, LocalRole: RoleRouter,
			PeerAddr: 0x0011,
			Message: &MessageEvent{
				Type: wire.MsgSetProperties.Confirmation(), Source: 1, Destination: 2, Token: 9,
				Status: &status, Properties: map[uint32]string{0x04000006: "7"},
				ProcessingTime: &elapsed,
			},
		}},
		{"state", Event{
			Timestamp: ts, Layer: LayerService, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityObject, NewState: "destroyed", Object: 0x0042},
		}},
		{"control", Event{
			Timestamp: ts, Category: CategoryControl,
			ControlMsg: &ControlMsgEvent{Type: ControlMsgPong, Sequence: 5},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			require.NoError(t, err)
			got, err := DecodeEvent(data)
			require.NoError(t, err)
			assert.True(t, got.Timestamp.Equal(tt.event.Timestamp))
			got.Timestamp = tt.event.Timestamp
			assert.Equal(t, tt.event, got)
		})
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Encode(Event{ConnectionID: string(rune('a' + i))}))
	}

	dec := NewDecoder(&buf)
	for i := 0; i < 3; i++ {
		var e Event
		require.NoError(t, dec.Decode(&e))
		assert.Equal(t, string(rune('a'+i)), e.ConnectionID)
	}
}
