package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/coldwave/flake-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.flog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, e)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionIn, Layer: LayerTransport, Category: CategoryMessage},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Direction: DirectionOut, Layer: LayerWire,
			Message: &MessageEvent{Type: wire.MsgSetProperties, Source: 0x11, Destination: 0x22}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Direction: DirectionIn, Layer: LayerWire,
			Message: &MessageEvent{Type: wire.MsgSetProperties.Confirmation(), Source: 0x22, Destination: 0x11}},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "b", Layer: LayerService, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityObject, NewState: "created", Object: 0x33}},
		{Timestamp: base.Add(4 * time.Second), ConnectionID: "c", PeerAddr: 0x33, Category: CategoryControl,
			ControlMsg: &ControlMsgEvent{Type: ControlMsgPing}},
	}
	path := createTestLogFile(t, events)

	dirOut := DirectionOut
	layerWire := LayerWire
	catState := CategoryState
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)
	addr22 := wire.Addr(0x22)
	addr33 := wire.Addr(0x33)
	setProps := wire.MsgSetProperties

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"none", Filter{}, 5},
		{"connection", Filter{ConnectionID: "b"}, 2},
		{"direction", Filter{Direction: &dirOut}, 1},
		{"layer", Filter{Layer: &layerWire}, 2},
		{"category", Filter{Category: &catState}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"address in message", Filter{Addr: &addr22}, 2},
		{"address as object or peer", Filter{Addr: &addr33}, 2},
		{"message type includes confirmations", Filter{MessageType: &setProps}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			if got := len(readAll(t, r)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.flog")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRotatedReaderOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.flog")
	one, err := EncodeEvent(Event{ConnectionID: "c0"})
	if err != nil {
		t.Fatal(err)
	}
	logger, err := OpenFileLogger(path, FileOptions{MaxSize: int64(len(one)), Keep: 5})
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"c0", "c1", "c2", "c3"} {
		logger.Log(Event{ConnectionID: id})
	}
	logger.Close()

	r, err := NewRotatedReader(path, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	var got []string
	for _, e := range readAll(t, r) {
		got = append(got, e.ConnectionID)
	}
	want := []string{"c0", "c1", "c2", "c3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}

	single, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer single.Close()
	if n := len(readAll(t, single)); n != 1 {
		t.Errorf("plain reader read %d events, want 1", n)
	}
}
