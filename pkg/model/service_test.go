package model

import (
	"context"
	"errors"
	"testing"

	"github.com/coldwave/flake-go/pkg/wire"
)

type recordingHost struct {
	published  []wire.PropArray
	broadcasts []string
	err        error
}

func (h *recordingHost) Addr() wire.Addr          { return 42 }
func (h *recordingHost) BroadcastAddr() wire.Addr { return 43 }

func (h *recordingHost) Publish(_ context.Context, props wire.PropArray) error {
	h.published = append(h.published, props)
	return h.err
}

func (h *recordingHost) Broadcast(name string, _ wire.PropArray) error {
	h.broadcasts = append(h.broadcasts, name)
	return h.err
}

var lampType = wire.MustParseUniqueID("2d0f4f38-92f0-4d32-bb0c-7d4f1c2b7c11")

func newLamp() *BaseService {
	return NewBaseService(lampType, wire.NewPropArray(
		wire.NewUint8(tagLevel, 0),
		wire.NewString(tagName|wire.FlagReadOnly, "lamp"),
	))
}

func TestSetPropertyRequested(t *testing.T) {
	s := newLamp()
	s.On(tagLevel, func(p *wire.Property, tx wire.PropArray, internal bool) wire.Status {
		v, _ := p.AsInt()
		if v > 100 {
			return wire.StatusUnsupported
		}
		if v > 50 {
			*p = wire.NewUint8(tagLevel, 50)
		}
		return wire.StatusOK
	})

	tests := []struct {
		name     string
		prop     wire.Property
		internal bool
		want     wire.Status
		stored   wire.Property
	}{
		{"accepted", wire.NewUint8(tagLevel, 10), false, wire.StatusOK, wire.NewUint8(tagLevel, 10)},
		{"clamped", wire.NewUint8(tagLevel, 80), false, wire.StatusOK, wire.NewUint8(tagLevel, 50)},
		{"refused", wire.NewUint8(tagLevel, 200), false, wire.StatusUnsupported, wire.NewUint8(tagLevel, 50)},
		{"read only", wire.NewString(tagName, "x"), false, wire.StatusReadOnly, wire.NewString(tagName|wire.FlagReadOnly, "lamp")},
		{"read only internal", wire.NewString(tagName|wire.FlagReadOnly, "y"), true, wire.StatusOK, wire.NewString(tagName|wire.FlagReadOnly, "y")},
		{"no handler", wire.NewUint16(tagMode, 3), false, wire.StatusOK, wire.NewUint16(tagMode, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.prop
			if got := s.SetPropertyRequested(&p, wire.NewPropArray(tt.prop), tt.internal); got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
			if got := s.Get(tt.stored.Tag); !got.Equal(tt.stored) {
				t.Errorf("stored = %s, want %s", got, tt.stored)
			}
		})
	}
}

func TestGetPropertyRequestedMissing(t *testing.T) {
	p, st := newLamp().GetPropertyRequested(tagMode)
	if st != wire.StatusNotFound || !p.IsError() {
		t.Errorf("got %s, %s", p, st)
	}
}

func TestHandleMessage(t *testing.T) {
	s := newLamp()
	s.OnMessage("toggle", func(in wire.PropArray, out *wire.PropArray) wire.Status {
		out.Set(wire.NewBool(0x0310, true))
		return wire.StatusOK
	})

	out, st := s.HandleMessage("toggle", wire.PropArray{})
	if st != wire.StatusOK || !out.Has(0x0310) {
		t.Errorf("toggle: %s %s", st, out)
	}
	if _, st := s.HandleMessage("explode", wire.PropArray{}); st != wire.StatusNotImpl {
		t.Errorf("unknown message: %s", st)
	}
}

func TestServicePublishesChanges(t *testing.T) {
	s := newLamp()
	ctx := context.Background()

	if err := s.Broadcast("hello", wire.PropArray{}); !errors.Is(err, ErrNotAttached) {
		t.Errorf("Broadcast before Attach: %v", err)
	}

	inited := false
	s.OnInitialized(func() { inited = true })
	h := &recordingHost{}
	s.Attach(h)
	if !inited || !s.IsInitialized() || s.Addr() != 42 {
		t.Fatal("Attach did not initialize")
	}

	if err := s.Set(ctx, wire.NewUint8(tagLevel, 7)); err != nil {
		t.Fatal(err)
	}
	if len(h.published) != 1 || !h.published[0].Has(tagLevel) {
		t.Fatalf("published = %v", h.published)
	}

	s.BeginUpdate()
	s.Set(ctx, wire.NewUint8(tagLevel, 8))
	s.Set(ctx, wire.NewUint16(tagMode, 1))
	if len(h.published) != 1 {
		t.Error("staged Set published")
	}
	if v, _ := s.Get(tagLevel).AsInt(); v != 7 {
		t.Errorf("staged value visible: %d", v)
	}
	if err := s.CommitUpdate(ctx); err != nil {
		t.Fatal(err)
	}
	if len(h.published) != 2 || h.published[1].Len() != 2 {
		t.Errorf("commit published %v", h.published)
	}
	if err := s.CommitUpdate(ctx); !errors.Is(err, wire.StatusNoChanges) {
		t.Errorf("empty commit: %v", err)
	}

	if err := s.Broadcast("hello", wire.PropArray{}); err != nil || len(h.broadcasts) != 1 {
		t.Errorf("Broadcast: %v %v", err, h.broadcasts)
	}
}

func TestSetPropertiesPartial(t *testing.T) {
	s := newLamp()
	s.On(tagMode, func(*wire.Property, wire.PropArray, bool) wire.Status { return wire.StatusRefused })
	h := &recordingHost{}
	s.Attach(h)

	err := s.SetProperties(context.Background(), wire.NewPropArray(
		wire.NewUint8(tagLevel, 3),
		wire.NewUint16(tagMode, 9),
	))
	if !errors.Is(err, wire.StatusPartialSuccess) {
		t.Errorf("err = %v", err)
	}
	if len(h.published) != 1 || h.published[0].Has(tagMode) {
		t.Errorf("published = %v", h.published)
	}

	err = s.SetProperties(context.Background(), wire.NewPropArray(wire.NewUint16(tagMode, 9)))
	if !errors.Is(err, wire.StatusRefused) {
		t.Errorf("all refused: err = %v", err)
	}
}
