package model

import (
	"errors"
	"testing"

	"github.com/coldwave/flake-go/pkg/wire"
)

const (
	tagLevel = wire.Tag(0x0300)<<16 | wire.Tag(wire.TypeUint8)
	tagName  = wire.Tag(0x0301)<<16 | wire.Tag(wire.TypeString)
	tagMode  = wire.Tag(0x0302)<<16 | wire.Tag(wire.TypeUint16)
)

func TestStagedValuesInvisibleUntilApplied(t *testing.T) {
	s := NewPropertyStore(wire.NewPropArray(wire.NewUint8(tagLevel, 1)))

	if s.Stage(wire.NewUint8(tagLevel, 2)) {
		t.Fatal("Stage outside a transaction succeeded")
	}

	s.BeginUpdate()
	if !s.Stage(wire.NewUint8(tagLevel, 5)) {
		t.Fatal("Stage failed")
	}
	s.BeginUpdate()
	s.Stage(wire.NewString(tagName, "pump"))

	if p, _ := s.Get(tagLevel); !p.Equal(wire.NewUint8(tagLevel, 1)) {
		t.Errorf("live value = %s before commit", p)
	}
	if p, ok := s.PendingProperty(tagLevel); !ok || !p.Equal(wire.NewUint8(tagLevel, 5)) {
		t.Errorf("pending value = %s", p)
	}
	if got := s.Pending().Len(); got != 2 {
		t.Errorf("second BeginUpdate dropped staged values: %d pending", got)
	}

	sent, ok := s.TakePending()
	if !ok {
		t.Fatal("TakePending reported nothing staged")
	}
	if s.Staging() {
		t.Error("still staging after TakePending")
	}
	if err := s.ApplyResults(sent, wire.PropArray{}); err != nil {
		t.Fatalf("ApplyResults: %v", err)
	}
	if p, _ := s.Get(tagLevel); !p.Equal(wire.NewUint8(tagLevel, 5)) {
		t.Errorf("live value = %s after commit", p)
	}
}

func TestTakePendingEmpty(t *testing.T) {
	s := NewPropertyStore(wire.PropArray{})
	s.BeginUpdate()
	if _, ok := s.TakePending(); ok {
		t.Error("TakePending reported staged values")
	}
}

func TestDiscardDropsStagedValues(t *testing.T) {
	s := NewPropertyStore(wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
	s.BeginUpdate()
	s.Stage(wire.NewUint8(tagLevel, 9))

	s.Discard()
	if s.Staging() {
		t.Error("still staging after Discard")
	}
	if s.Stage(wire.NewUint8(tagLevel, 3)) {
		t.Error("Stage succeeded after Discard")
	}
	if _, ok := s.PendingProperty(tagLevel); ok {
		t.Error("staged value survived Discard")
	}
	if p, _ := s.Get(tagLevel); !p.Equal(wire.NewUint8(tagLevel, 1)) {
		t.Errorf("live value = %s, want 1", p)
	}
}

func TestApplyResults(t *testing.T) {
	sent := wire.NewPropArray(wire.NewUint8(tagLevel, 5), wire.NewString(tagName, "x"))

	tests := []struct {
		name    string
		results wire.PropArray
		want    error
		level   int64
	}{
		{"all accepted", wire.PropArray{}, nil, 5},
		{"accepted with rewrite", wire.NewPropArray(wire.NewUint8(tagLevel, 4)), nil, 4},
		{"mixed", wire.NewPropArray(wire.NewError(tagName, wire.StatusReadOnly)), wire.StatusPartialSuccess, 5},
		{
			"all rejected",
			wire.NewPropArray(wire.NewError(tagLevel, wire.StatusNotFound), wire.NewError(tagName, wire.StatusReadOnly)),
			wire.StatusNotFound,
			1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPropertyStore(wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
			err := s.ApplyResults(sent, tt.results)
			if !errors.Is(err, tt.want) || (tt.want == nil && err != nil) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			p, _ := s.Get(tagLevel)
			if v, _ := p.AsInt(); v != tt.level {
				t.Errorf("level = %d, want %d", v, tt.level)
			}
		})
	}
}

func TestApplyReportsChanges(t *testing.T) {
	s := NewPropertyStore(wire.NewPropArray(wire.NewUint8(tagLevel, 1), wire.NewUint16(tagMode, 2)))
	changed := s.Apply(wire.NewPropArray(
		wire.NewUint8(tagLevel, 1),
		wire.NewUint16(tagMode, 3),
		wire.NewError(tagName, wire.StatusFailed),
	))
	if changed.Len() != 1 || !changed.Has(tagMode) {
		t.Errorf("changed = %s, want only mode", changed)
	}
	if s.Live().Has(tagName) {
		t.Error("error property stored")
	}
}

func TestCoversRequiresFresh(t *testing.T) {
	s := NewPropertyStore(wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
	tags := wire.TagArray{tagLevel}

	if s.Covers(tags) {
		t.Error("stale store covers")
	}
	s.SetFresh(true)
	if !s.Covers(tags) {
		t.Error("fresh store does not cover a cached tag")
	}
	if s.Covers(wire.TagArray{tagLevel, tagName}) {
		t.Error("covers an uncached tag")
	}

	got := s.Select(wire.TagArray{tagLevel, tagName})
	if !got.Get(tagName).IsError() || got.Get(tagName).Err() != wire.StatusNotFound {
		t.Errorf("Select missing tag = %s", got.Get(tagName))
	}
}
