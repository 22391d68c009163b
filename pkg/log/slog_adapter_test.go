package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/coldwave/flake-go/pkg/wire"
)

func newTestAdapter() (*SlogAdapter, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAdapter(slog.New(h)), &buf
}

func TestSlogAdapterMessage(t *testing.T) {
	a, buf := newTestAdapter()
	status := wire.StatusReadOnly
	a.Log(Event{
		ConnectionID: "conn-1",
		Layer:        LayerWire,
		PeerAddr:     0x0010,
		Message: &MessageEvent{
			Type:        wire.MsgSetProperties.Confirmation(),
			Source:      0x0020,
			Destination: 0x0010,
			Token:       7,
			Status:      &status,
		},
	})

	out := buf.String()
	for _, want := range []string{
		"conn_id=conn-1",
		"layer=WIRE",
		"peer=0x0010",
		"msg_type=setProperties.conf",
		"src=0x0020",
		"token=7",
		"status=READ_ONLY",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogAdapterStateAndControl(t *testing.T) {
	a, buf := newTestAdapter()
	a.Log(Event{StateChange: &StateChangeEvent{Entity: StateEntitySession, OldState: "open", NewState: "closed", Reason: "eof"}})
	a.Log(Event{ControlMsg: &ControlMsgEvent{Type: ControlMsgPing, Sequence: 3}})

	out := buf.String()
	for _, want := range []string{"entity=SESSION", "new_state=closed", "reason=eof", "ctrl_type=PING", "seq=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	NewSlogAdapter(slog.New(h)).Log(Event{ConnectionID: "hidden"})
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %s", buf.String())
	}
}
