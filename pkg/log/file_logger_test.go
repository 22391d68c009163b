package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.flog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Frame:        &FrameEvent{Size: 100, Data: []byte{1, 2, 3}},
	}
	logger.Log(event)
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.ConnectionID != event.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, event.ConnectionID)
	}
	if decoded.Frame == nil || decoded.Frame.Size != 100 {
		t.Errorf("Frame = %+v", decoded.Frame)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.flog")

	for _, id := range []string{"first", "second"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatal(err)
		}
		logger.Log(Event{ConnectionID: id})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	for _, want := range []string{"first", "second"} {
		e, err := reader.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if e.ConnectionID != want {
			t.Errorf("got %q, want %q", e.ConnectionID, want)
		}
	}
}

func TestFileLoggerConcurrentAndClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.flog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{ConnectionID: "c", Layer: LayerWire})
			}
		}()
	}
	wg.Wait()

	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	logger.Log(Event{})

	reader, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	n := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		n++
	}
	if n != 200 {
		t.Errorf("read %d events, want 200", n)
	}
}

func countEvents(t *testing.T, path string) int {
	t.Helper()
	reader, err := NewReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	n := 0
	for {
		if _, err := reader.Next(); err != nil {
			return n
		}
		n++
	}
}

func TestFileLoggerRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.flog")

	one, err := EncodeEvent(Event{ConnectionID: "rotate"})
	if err != nil {
		t.Fatal(err)
	}
	// Room for exactly two events per file.
	logger, err := OpenFileLogger(path, FileOptions{MaxSize: int64(2 * len(one)), Keep: 2})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		logger.Log(Event{ConnectionID: "rotate"})
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	if n := countEvents(t, path); n != 1 {
		t.Errorf("live file has %d events, want 1", n)
	}
	for _, i := range []int{1, 2} {
		if n := countEvents(t, RotatedPath(path, i)); n != 2 {
			t.Errorf("%s has %d events, want 2", RotatedPath(path, i), n)
		}
	}
	if _, err := os.Stat(RotatedPath(path, 3)); !os.IsNotExist(err) {
		t.Errorf("third rotated file exists: %v", err)
	}
}

func TestFileLoggerRotationCountsExistingSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.flog")
	one, err := EncodeEvent(Event{ConnectionID: "x"})
	if err != nil {
		t.Fatal(err)
	}
	opts := FileOptions{MaxSize: int64(len(one))}

	first, err := OpenFileLogger(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	first.Log(Event{ConnectionID: "x"})
	first.Close()

	second, err := OpenFileLogger(path, opts)
	if err != nil {
		t.Fatal(err)
	}
	second.Log(Event{ConnectionID: "x"})
	second.Close()

	if n := countEvents(t, RotatedPath(path, 1)); n != 1 {
		t.Errorf("rotated file has %d events, want 1", n)
	}
	if n := countEvents(t, path); n != 1 {
		t.Errorf("live file has %d events, want 1", n)
	}
}
