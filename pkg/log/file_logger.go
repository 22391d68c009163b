package log

import (
	"os"
	"strconv"
	"sync"
)

// DefaultKeep is how many rotated files a FileLogger keeps by default.
const DefaultKeep = 3

// FileOptions bound the size of a protocol log.
type FileOptions struct {
	// MaxSize rotates the file before it would grow past this many bytes.
	// Zero disables rotation.
	MaxSize int64

	// Keep is the number of rotated files kept next to the live one.
	// Default: DefaultKeep.
	Keep int
}

// FileLogger appends CBOR-encoded events to a .flog file. When the file
// reaches MaxSize it is renamed to path.1, older files shift up by one,
// and the file past Keep is overwritten.
type FileLogger struct {
	path string
	opts FileOptions

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool
}

// NewFileLogger opens path for appending without rotation.
func NewFileLogger(path string) (*FileLogger, error) {
	return OpenFileLogger(path, FileOptions{})
}

// OpenFileLogger opens path for appending, creating it if needed.
func OpenFileLogger(path string, opts FileOptions) (*FileLogger, error) {
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	l := &FileLogger{path: path, opts: opts}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file, l.size = f, info.Size()
	return nil
}

// Log writes an event. Encoding and write errors are dropped.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if l.opts.MaxSize > 0 && l.size > 0 && l.size+int64(len(data)) > l.opts.MaxSize {
		l.rotate()
	}
	if l.file == nil {
		return
	}
	n, _ := l.file.Write(data)
	l.size += int64(n)
}

// rotate shifts the rotated files and reopens path. On failure the logger
// keeps trying on later events.
func (l *FileLogger) rotate() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	for i := l.opts.Keep - 1; i >= 1; i-- {
		_ = os.Rename(RotatedPath(l.path, i), RotatedPath(l.path, i+1))
	}
	_ = os.Rename(l.path, RotatedPath(l.path, 1))
	_ = l.open()
}

// Close closes the file. Later calls to Log and Close are no-ops.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// RotatedPath names the n-th rotated file of path.
func RotatedPath(path string, n int) string {
	return path + "." + strconv.Itoa(n)
}

var _ Logger = (*FileLogger)(nil)
