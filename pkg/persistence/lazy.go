package persistence

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LazyWriter batches journal appends and flushes them in the background,
// trading a bounded durability window (at most the sync interval) for
// much higher ingest throughput. On Close all pending records are
// flushed and synced.
type LazyWriter struct {
	underlying *Writer

	mu      sync.Mutex
	buffer  []string
	stopped bool

	flushTicker *time.Ticker
	syncTicker  *time.Ticker
	stopCh      chan struct{}

	maxBufferSize int
}

// Defaults for the lazy writer's durability/throughput trade-off.
const (
	DefaultLazyFlushInterval = 100 * time.Millisecond
	DefaultForceSyncInterval = 1 * time.Second
	DefaultMaxBufferSize     = 1000
)

// NewLazyWriter wraps a journal Writer with batched background
// flushing. The underlying writer must not be used directly afterwards.
func NewLazyWriter(underlying *Writer, flushInterval, syncInterval time.Duration, maxBufferSize int) *LazyWriter {
	if flushInterval <= 0 {
		flushInterval = DefaultLazyFlushInterval
	}
	if syncInterval <= 0 {
		syncInterval = DefaultForceSyncInterval
	}
	if maxBufferSize <= 0 {
		maxBufferSize = DefaultMaxBufferSize
	}

	lw := &LazyWriter{
		underlying:    underlying,
		buffer:        make([]string, 0, maxBufferSize),
		maxBufferSize: maxBufferSize,
		stopCh:        make(chan struct{}),
	}

	lw.flushTicker = time.NewTicker(flushInterval)
	lw.syncTicker = time.NewTicker(syncInterval)
	go lw.flushRoutine()
	go lw.syncRoutine()

	slog.Debug("lazy journal writer started",
		"flush_interval", flushInterval,
		"sync_interval", syncInterval,
		"max_buffer_size", maxBufferSize,
	)
	return lw
}

// Append adds one record to the in-memory batch. If the batch is full a
// flush is triggered immediately in the background.
func (lw *LazyWriter) Append(record string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.stopped {
		return fmt.Errorf("journal writer is closed")
	}
	lw.buffer = append(lw.buffer, record)
	if len(lw.buffer) >= lw.maxBufferSize {
		go lw.Flush()
	}
	return nil
}

// Flush writes the batch through to the OS buffer.
func (lw *LazyWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.flushLocked()
}

func (lw *LazyWriter) flushLocked() error {
	if len(lw.buffer) == 0 {
		return nil
	}
	for _, record := range lw.buffer {
		if err := lw.underlying.Append(record); err != nil {
			return fmt.Errorf("failed to append to journal: %w", err)
		}
	}
	if err := lw.underlying.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	lw.buffer = lw.buffer[:0]
	return nil
}

// Sync flushes the batch and fsyncs the journal.
func (lw *LazyWriter) Sync() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.flushLocked(); err != nil {
		return err
	}
	return lw.underlying.Sync()
}

// Close stops the background routines, flushes pending records and
// closes the journal.
func (lw *LazyWriter) Close() error {
	lw.mu.Lock()
	if lw.stopped {
		lw.mu.Unlock()
		return fmt.Errorf("journal writer already closed")
	}
	lw.stopped = true
	lw.mu.Unlock()

	close(lw.stopCh)
	lw.flushTicker.Stop()
	lw.syncTicker.Stop()

	lw.mu.Lock()
	defer lw.mu.Unlock()
	if err := lw.flushLocked(); err != nil {
		slog.Error("final journal flush failed", "error", err)
	}
	return lw.underlying.Close()
}

// Path returns the journal file path.
func (lw *LazyWriter) Path() string {
	return lw.underlying.Path()
}

// ReplaceWith swaps in a compacted journal after flushing the batch.
func (lw *LazyWriter) ReplaceWith(newPath string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.flushLocked(); err != nil {
		return err
	}
	return lw.underlying.ReplaceWith(newPath)
}

func (lw *LazyWriter) flushRoutine() {
	for {
		select {
		case <-lw.flushTicker.C:
			if err := lw.Flush(); err != nil {
				slog.Error("periodic journal flush failed", "error", err)
			}
		case <-lw.stopCh:
			return
		}
	}
}

func (lw *LazyWriter) syncRoutine() {
	for {
		select {
		case <-lw.syncTicker.C:
			if err := lw.Sync(); err != nil {
				slog.Error("periodic journal sync failed", "error", err)
			}
		case <-lw.stopCh:
			return
		}
	}
}
