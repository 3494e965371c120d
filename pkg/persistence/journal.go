package persistence

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Writer manages the append-only journal file. All methods are safe for
// concurrent use.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	buf    *bufio.Writer
	frames *FrameWriter
	path   string
}

// NewWriter opens or creates the journal at the given path.
func NewWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	buf := bufio.NewWriter(file)
	return &Writer{
		file:   file,
		buf:    buf,
		frames: NewFrameWriter(buf),
		path:   path,
	}, nil
}

// Append buffers one record, wrapped in a checksummed frame.
func (w *Writer) Append(record string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.frames.WriteFrame([]byte(record))
}

// Flush pushes the buffer to the OS file descriptor.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Sync flushes and fsyncs to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// Path returns the journal file path.
func (w *Writer) Path() string {
	return w.path
}

// Size returns the current on-disk size of the journal, buffered bytes
// excluded.
func (w *Writer) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReplaceWith atomically swaps the journal with a freshly written
// compacted file and reopens it. Used at the end of a rewrite.
func (w *Writer) ReplaceWith(newPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.buf.Flush()
	_ = w.file.Close()

	if err := os.Rename(newPath, w.path); err != nil {
		return fmt.Errorf("failed to replace journal: %w", err)
	}

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("failed to reopen journal after replace: %w", err)
	}
	w.file = file
	w.buf.Reset(file)
	return nil
}
