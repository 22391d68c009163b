package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/coldwave/flake-go/pkg/wire"
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates a frame above wire.MaxFrameSize.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrMessageEmpty indicates a frame shorter than the smallest header.
	ErrMessageEmpty = errors.New("transport: message too short")

	// ErrFrameTruncated indicates the stream ended inside a frame.
	ErrFrameTruncated = errors.New("transport: frame truncated")
)

// minFrameSize is the header of a frame without token.
const minFrameSize = wire.PrefixSize + wire.LengthSize

// FrameWriter writes whole frames to a byte stream. Each frame goes out in
// a single Write call so that links with write-size semantics (serial, BLE)
// never interleave two frames.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewFrameWriter creates a frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame writes one encoded frame. Safe for concurrent use.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) < minFrameSize {
		return ErrMessageEmpty
	}
	if len(data) > wire.MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), wire.MaxFrameSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// FrameReader splits a byte stream into frames using the frame header.
type FrameReader struct {
	r   io.Reader
	hdr [wire.PrefixSize + wire.TokenSize + wire.LengthSize]byte
}

// NewFrameReader creates a frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame reads one frame, header included.
//
// An unknown message type leaves the stream unsynchronized; the caller must
// drop the link.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.hdr[:wire.PrefixSize]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := wire.MessageType(fr.hdr[0])
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: 0x%02x", wire.ErrUnknownMessageType, fr.hdr[0])
	}
	size := wire.HeaderSize(t)
	if _, err := io.ReadFull(fr.r, fr.hdr[wire.PrefixSize:size]); err != nil {
		return nil, truncated(err)
	}

	n, err := wire.PayloadLength(fr.hdr[:size])
	if err != nil {
		return nil, err
	}

	frame := make([]byte, size+n)
	copy(frame, fr.hdr[:size])
	if _, err := io.ReadFull(fr.r, frame[size:]); err != nil {
		return nil, truncated(err)
	}
	return frame, nil
}

func truncated(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
		return ErrFrameTruncated
	}
	return fmt.Errorf("read frame: %w", err)
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}
