package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Events are encoded canonically with RFC 3339 nanosecond timestamps, so
// two captures of the same traffic compare byte for byte. Decoding
// tolerates indefinite lengths written by other tools.
var (
	encMode = mustMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode)

	decMode = mustMode(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode)
)

func mustMode[M any](build func() (M, error)) M {
	m, err := build()
	if err != nil {
		panic(fmt.Sprintf("log: cbor mode: %v", err))
	}
	return m
}

// EncodeEvent encodes one event.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one event. Bytes after the first event are an error.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	rest, err := decMode.UnmarshalFirst(data, &event)
	if err != nil {
		return Event{}, err
	}
	if len(rest) > 0 {
		return Event{}, fmt.Errorf("log: %d bytes after event", len(rest))
	}
	return event, nil
}

// NewEncoder returns a stream encoder for events.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder for events.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
