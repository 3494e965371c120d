package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/metrics"
	"github.com/sanonone/pharmakg/pkg/persistence"
	"github.com/sanonone/pharmakg/pkg/variant"
)

// replayJournal reads the journal and reconstructs the graph. Mutations
// are applied directly to the store without re-journaling. A truncated
// final record (crash mid-append) stops the replay cleanly; corruption
// earlier in the file is fatal.
func (e *Engine) replayJournal() error {
	file, err := os.Open(e.journalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh start
		}
		return err
	}
	defer file.Close()

	reader := persistence.NewReader(file)
	applied := 0
	for {
		cmd, err := reader.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, persistence.ErrIncompleteFrame) {
			e.logger.Warn("journal has a truncated tail, stopping replay", "applied", applied)
			break
		}
		if err != nil {
			return fmt.Errorf("journal record %d: %w", applied, err)
		}
		if err := e.applyCommand(cmd); err != nil {
			// An annotation conflict replays exactly as it was first
			// applied: partially, without stopping recovery.
			if errors.Is(err, annotation.ErrConflict) {
				applied++
				continue
			}
			return fmt.Errorf("journal record %d (%s): %w", applied, cmd.Name, err)
		}
		applied++
	}
	if applied > 0 {
		e.logger.Info("journal replayed", "records", applied)
	}
	return nil
}

func (e *Engine) applyCommand(cmd *persistence.Command) error {
	switch cmd.Name {
	case persistence.CmdNode:
		if len(cmd.Args) != 3 {
			return fmt.Errorf("NODE record has %d args", len(cmd.Args))
		}
		var attrs graph.Attributes
		if len(cmd.Args[2]) > 0 {
			if err := json.Unmarshal(cmd.Args[2], &attrs); err != nil {
				return err
			}
		}
		return e.Store.UpsertNode(graph.NodeType(cmd.Args[0]), string(cmd.Args[1]), attrs)

	case persistence.CmdEdge:
		if len(cmd.Args) != 5 {
			return fmt.Errorf("EDGE record has %d args", len(cmd.Args))
		}
		var attrs graph.Attributes
		if len(cmd.Args[3]) > 0 {
			if err := json.Unmarshal(cmd.Args[3], &attrs); err != nil {
				return err
			}
		}
		var studies []string
		if len(cmd.Args[4]) > 0 {
			if err := json.Unmarshal(cmd.Args[4], &studies); err != nil {
				return err
			}
		}
		return e.Store.UpsertRelationship(graph.EdgeType(cmd.Args[0]),
			string(cmd.Args[1]), string(cmd.Args[2]), attrs, studies)

	case persistence.CmdAnnot:
		if len(cmd.Args) != 2 {
			return fmt.Errorf("ANNOT record has %d args", len(cmd.Args))
		}
		key, err := variant.Normalize(string(cmd.Args[0]))
		if err != nil {
			return err
		}
		var frags []annotation.Fragment
		if err := json.Unmarshal(cmd.Args[1], &frags); err != nil {
			return err
		}
		_, err = e.Store.ApplyFragments(key, frags)
		return err

	default:
		return fmt.Errorf("unknown journal command %q", cmd.Name)
	}
}

// RewriteJournal compacts the journal to the current graph state: one
// NODE record per non-variant node, one ANNOT record per annotated
// variant and one EDGE record per edge. The new file replaces the old
// one atomically.
func (e *Engine) RewriteJournal() error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	tmpPath := filepath.Join(e.opts.DataDir, "rewrite.tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	frames := persistence.NewFrameWriter(f)
	write := func(record string) error {
		return frames.WriteFrame([]byte(record))
	}

	// Variants referenced by an edge are recreated as endpoint stubs on
	// replay; orphans need their own NODE record or compaction loses them.
	edges := e.Store.Edges()
	linkedVariants := make(map[string]struct{})
	for _, ev := range edges {
		from, to := ev.Type.Endpoints()
		if from == graph.NodeVariant {
			linkedVariants[ev.From] = struct{}{}
		}
		if to == graph.NodeVariant {
			linkedVariants[ev.To] = struct{}{}
		}
	}

	for _, nv := range e.Store.Nodes() {
		if nv.Type == graph.NodeVariant {
			key, err := variant.Normalize(nv.Key)
			if err != nil {
				continue
			}
			frags := e.Store.Fragments(key)
			if len(frags) == 0 {
				if _, linked := linkedVariants[nv.Key]; linked {
					continue
				}
				if err := write(persistence.FormatCommand(persistence.CmdNode,
					[]byte(nv.Type), []byte(nv.Key), []byte("{}"))); err != nil {
					return err
				}
				continue
			}
			payload, err := json.Marshal(frags)
			if err != nil {
				return err
			}
			if err := write(persistence.FormatCommand(persistence.CmdAnnot,
				[]byte(nv.Key), payload)); err != nil {
				return err
			}
			continue
		}
		payload, err := json.Marshal(nv.Attrs)
		if err != nil {
			return err
		}
		if err := write(persistence.FormatCommand(persistence.CmdNode,
			[]byte(nv.Type), []byte(nv.Key), payload)); err != nil {
			return err
		}
	}

	for _, ev := range edges {
		attrPayload, err := json.Marshal(ev.Attrs)
		if err != nil {
			return err
		}
		studyPayload, err := json.Marshal(ev.Studies)
		if err != nil {
			return err
		}
		if err := write(persistence.FormatCommand(persistence.CmdEdge,
			[]byte(ev.Type), []byte(ev.From), []byte(ev.To), attrPayload, studyPayload)); err != nil {
			return err
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := e.journal.ReplaceWith(tmpPath); err != nil {
		return err
	}

	if size, err := e.journalSize(); err == nil {
		e.journalBaseSize = size
	}
	atomic.StoreInt64(&e.dirtyCounter, 0)
	metrics.JournalRewrites.Inc()
	e.logger.Info("journal rewritten", "base_size", e.journalBaseSize)
	return nil
}
