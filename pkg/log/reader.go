package log

import (
	"io"
	"os"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// ConnectionID filters by exact connection ID match.
	ConnectionID string

	// Direction filters by message direction.
	Direction *Direction

	// Layer filters by protocol layer.
	Layer *Layer

	// Category filters by event category.
	Category *Category

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time

	// Addr matches events whose peer, source or destination is this
	// flake address.
	Addr *wire.Addr

	// MessageType filters decoded messages by base type.
	MessageType *wire.MessageType
}

// matches returns true if the event matches all filter criteria.
func (f *Filter) matches(event Event) bool {
	if f.ConnectionID != "" && event.ConnectionID != f.ConnectionID {
		return false
	}
	if f.Direction != nil && event.Direction != *f.Direction {
		return false
	}
	if f.Layer != nil && event.Layer != *f.Layer {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	if f.Addr != nil && !event.involves(*f.Addr) {
		return false
	}
	if f.MessageType != nil && (event.Message == nil || event.Message.Type.Base() != *f.MessageType) {
		return false
	}
	return true
}

func (e Event) involves(a wire.Addr) bool {
	if e.PeerAddr == a {
		return true
	}
	if e.Message != nil && (e.Message.Source == a || e.Message.Destination == a) {
		return true
	}
	return e.StateChange != nil && e.StateChange.Object == a
}

// Reader streams events from one log file or a rotated set.
type Reader struct {
	pending []string
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader creates a Reader that reads all events from the specified log file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that reads events matching the filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	return openReader([]string{path}, filter)
}

// NewRotatedReader reads the rotated files of path, oldest first, and then
// path itself.
func NewRotatedReader(path string, filter Filter) (*Reader, error) {
	var files []string
	for n := 1; ; n++ {
		p := RotatedPath(path, n)
		if _, err := os.Stat(p); err != nil {
			break
		}
		files = append(files, p)
	}
	slices.Reverse(files)
	return openReader(append(files, path), filter)
}

func openReader(files []string, filter Filter) (*Reader, error) {
	r := &Reader{pending: files, filter: filter}
	if err := r.advance(); err != nil {
		return nil, err
	}
	return r, nil
}

// advance closes the current file and opens the next one.
func (r *Reader) advance() error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	if len(r.pending) == 0 {
		return io.EOF
	}
	f, err := os.Open(r.pending[0])
	if err != nil {
		return err
	}
	r.pending = r.pending[1:]
	r.file = f
	r.decoder = NewDecoder(f)
	return nil
}

// Next returns the next event that matches the filter.
// Returns io.EOF when no more events are available.
func (r *Reader) Next() (Event, error) {
	for r.file != nil {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if err != io.EOF {
				return Event{}, err
			}
			if err := r.advance(); err != nil {
				return Event{}, err
			}
			continue
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
	return Event{}, io.EOF
}

// Close closes the open file.
func (r *Reader) Close() error {
	r.pending = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
