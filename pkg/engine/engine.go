// Package engine provides the high-level, embedded interface for the
// pharmacogenomic knowledge graph.
//
// It orchestrates the in-memory graph store, the annotation and evidence
// pipelines and the on-disk journal, providing a thread-safe instance
// that can be used directly within Go applications without network
// overhead.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	eng, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanonone/pharmakg/pkg/evidence"
	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/metrics"
	"github.com/sanonone/pharmakg/pkg/persistence"
)

// Options configures the Engine, including persistence paths and
// maintenance policies.
type Options struct {
	// DataDir is the directory holding the journal. It is created
	// automatically if it does not exist.
	DataDir string

	// JournalFilename is the journal file name (default "pharmakg.journal").
	JournalFilename string

	// JournalRewritePercentage triggers a compaction rewrite when the
	// journal grows past its post-replay size by this percentage.
	// E.g. 100 means rewrite when the size doubles. 0 disables it.
	JournalRewritePercentage int

	// FlushInterval and SyncInterval tune the lazy journal writer.
	// Zero values use the persistence defaults.
	FlushInterval time.Duration
	SyncInterval  time.Duration
	MaxBufferSize int

	// Evidence configures the aggregation scoring.
	Evidence evidence.Config

	// Backend optionally mirrors every mutation to durable storage.
	Backend graph.Backend
	Retry   graph.RetryPolicy
}

// DefaultOptions returns a standard configuration suitable for most
// deployments.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:                  dataDir,
		JournalFilename:          "pharmakg.journal",
		JournalRewritePercentage: 100,
		Evidence:                 evidence.DefaultConfig(),
		Retry:                    graph.DefaultRetryPolicy(),
	}
}

// Engine is the main entry point. It coordinates the in-memory graph
// and the on-disk journal.
//
// Use Open to initialize an Engine and Close to shut it down gracefully.
type Engine struct {
	// Store is the underlying in-memory graph. While exported, callers
	// should prefer Engine methods so mutations reach the journal.
	Store *graph.Store

	journal     *persistence.LazyWriter
	agg         *evidence.Aggregator
	opts        Options
	journalPath string

	journalBaseSize int64
	dirtyCounter    int64

	// adminMu serializes administrative tasks such as journal rewrite.
	// The store has its own granular locks for data access.
	adminMu sync.Mutex

	logger    *slog.Logger
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes an Engine: it creates DataDir if missing, replays the
// journal to rebuild the graph, then starts the background maintenance
// loop. It blocks until the graph is fully loaded.
func Open(opts Options) (*Engine, error) {
	if opts.JournalFilename == "" {
		opts.JournalFilename = "pharmakg.journal"
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var store *graph.Store
	if opts.Backend != nil {
		store = graph.NewWithBackend(opts.Backend, opts.Retry)
	} else {
		store = graph.New()
	}

	e := &Engine{
		Store:       store,
		opts:        opts,
		journalPath: filepath.Join(opts.DataDir, opts.JournalFilename),
		logger:      slog.Default().With("component", "engine"),
		closed:      make(chan struct{}),
	}
	e.agg = evidence.New(store, opts.Evidence)

	if err := e.replayJournal(); err != nil {
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}

	w, err := persistence.NewWriter(e.journalPath)
	if err != nil {
		return nil, err
	}
	e.journal = persistence.NewLazyWriter(w, opts.FlushInterval, opts.SyncInterval, opts.MaxBufferSize)

	if size, err := w.Size(); err == nil {
		e.journalBaseSize = size
	}

	e.wg.Add(1)
	go e.backgroundTasks()

	return e, nil
}

// Close stops background maintenance and closes the journal. All
// accepted mutations are already persisted, so no final snapshot is
// needed for durability.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()
		if e.journal != nil {
			err = e.journal.Close()
		}
	})
	return err
}

func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	statsTicker := time.NewTicker(15 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		case <-statsTicker.C:
			e.publishStats()
		}
	}
}

// checkMaintenance evaluates whether a journal rewrite is due.
func (e *Engine) checkMaintenance() {
	if e.opts.JournalRewritePercentage <= 0 {
		return
	}
	size, err := e.journalSize()
	if err != nil {
		return
	}
	threshold := e.journalBaseSize + (e.journalBaseSize * int64(e.opts.JournalRewritePercentage) / 100)
	// Min threshold 1MB to avoid rewriting tiny files constantly.
	if threshold < 1024*1024 {
		threshold = 1024 * 1024
	}
	if e.journalBaseSize > 0 && size > threshold {
		if err := e.RewriteJournal(); err != nil {
			e.logger.Error("background journal rewrite failed", "error", err)
		}
	}
}

func (e *Engine) journalSize() (int64, error) {
	info, err := os.Stat(e.journalPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// publishStats refreshes the graph size gauges.
func (e *Engine) publishStats() {
	st := e.Store.Stats()
	for typ, n := range st.Nodes {
		metrics.GraphNodes.WithLabelValues(string(typ)).Set(float64(n))
	}
	for typ, n := range st.Edges {
		metrics.GraphEdges.WithLabelValues(string(typ)).Set(float64(n))
	}
}

// Dirty returns the number of journaled mutations since the last
// rewrite.
func (e *Engine) Dirty() int64 {
	return atomic.LoadInt64(&e.dirtyCounter)
}
