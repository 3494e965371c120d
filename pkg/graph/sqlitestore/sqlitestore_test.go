package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sanonone/pharmakg/pkg/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestUpsertNodeIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := graph.NodeView{
		Type:  graph.NodeGene,
		Key:   "CYP2C9",
		Attrs: graph.Attributes{graph.AttrChromosome: "10"},
	}
	if err := s.UpsertNode(ctx, v); err != nil {
		t.Fatal(err)
	}
	v.Attrs[graph.AttrName] = "Cytochrome P450 2C9"
	if err := s.UpsertNode(ctx, v); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountNodes(ctx, graph.NodeGene)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("gene rows = %d, want 1", n)
	}
}

func TestUpsertRelationshipReplacesStudies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := graph.EdgeView{
		Type:    graph.EdgeAffects,
		From:    "chr10:94761930:G>A",
		To:      "warfarin",
		Attrs:   graph.Attributes{graph.AttrEffect: "altered_dosing"},
		Studies: []string{"PMID:1"},
	}
	if err := s.UpsertRelationship(ctx, v); err != nil {
		t.Fatal(err)
	}
	v.Studies = []string{"PMID:1", "PMID:2"}
	if err := s.UpsertRelationship(ctx, v); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.Edge(ctx, graph.EdgeAffects, v.From, v.To)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("edge not found after upsert")
	}
	if len(got.Studies) != 2 {
		t.Errorf("studies = %v, want 2 entries", got.Studies)
	}
	if got.Attrs[graph.AttrEffect] != "altered_dosing" {
		t.Errorf("attrs = %v", got.Attrs)
	}
}

func TestGraphStoreMirrorsThrough(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := graph.NewWithBackend(s, graph.DefaultRetryPolicy())
	if err := g.UpsertNode(graph.NodeDrug, "Warfarin", nil); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertNode(graph.NodeVariant, "chr10:94761930:G>A", nil); err != nil {
		t.Fatal(err)
	}
	if err := g.UpsertNode(graph.NodeStudy, "PMID:1", graph.Attributes{
		graph.AttrEffectSize: 0.8,
		graph.AttrSampleSize: 100,
	}); err != nil {
		t.Fatal(err)
	}
	err := g.UpsertRelationship(graph.EdgeAffects,
		"chr10:94761930:G>A", "warfarin", nil, []string{"PMID:1"})
	if err != nil {
		t.Fatal(err)
	}

	// The mirror sees the canonical (lowercased) drug key.
	if _, found, err := s.Edge(ctx, graph.EdgeAffects, "chr10:94761930:G>A", "warfarin"); err != nil || !found {
		t.Fatalf("mirrored edge missing (found=%v err=%v)", found, err)
	}
	n, err := s.CountNodes(ctx, graph.NodeDrug)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("drug rows = %d, want 1", n)
	}
}
