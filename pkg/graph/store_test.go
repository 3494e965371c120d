package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/variant"
)

func mustKey(t *testing.T, raw string) variant.Key {
	t.Helper()
	k, err := variant.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize(%q): %v", raw, err)
	}
	return k
}

func TestUpsertNodeIdempotent(t *testing.T) {
	s := New()
	attrs := Attributes{AttrChromosome: "10", AttrName: "Cytochrome P450 2C9"}

	for i := 0; i < 3; i++ {
		if err := s.UpsertNode(NodeGene, "CYP2C9", attrs); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	st := s.Stats()
	if st.Nodes[NodeGene] != 1 {
		t.Fatalf("gene count = %d, want 1 after repeated upserts", st.Nodes[NodeGene])
	}
	nv, ok := s.GetNode(NodeGene, "CYP2C9")
	if !ok {
		t.Fatal("gene not found")
	}
	if nv.Attrs[AttrName] != "Cytochrome P450 2C9" {
		t.Errorf("attrs lost: %+v", nv.Attrs)
	}
}

func TestUpsertNodeNilNeverErases(t *testing.T) {
	s := New()
	if err := s.UpsertNode(NodeDisease, "thrombosis", Attributes{AttrName: "Deep vein thrombosis"}); err != nil {
		t.Fatal(err)
	}
	// A later partial record with a nil attribute must not erase state.
	if err := s.UpsertNode(NodeDisease, "thrombosis", Attributes{AttrName: nil}); err != nil {
		t.Fatal(err)
	}
	nv, _ := s.GetNode(NodeDisease, "thrombosis")
	if nv.Attrs[AttrName] != "Deep vein thrombosis" {
		t.Errorf("nil value erased attribute: %+v", nv.Attrs)
	}
}

func TestDrugKeysCaseInsensitive(t *testing.T) {
	s := New()
	if err := s.UpsertNode(NodeDrug, "Warfarin", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertNode(NodeDrug, "WARFARIN", Attributes{AttrDrugbankID: "DB00682"}); err != nil {
		t.Fatal(err)
	}
	if got := s.Stats().Nodes[NodeDrug]; got != 1 {
		t.Fatalf("drug count = %d, want 1 (case-insensitive keys)", got)
	}
	if _, ok := s.GetNode(NodeDrug, "warfarin"); !ok {
		t.Error("canonical lower-case lookup failed")
	}
}

func TestUpsertRelationshipStudyUnion(t *testing.T) {
	s := New()
	vk := "chr10:94761930:G>A"

	// Two writers assert the same edge with different provenance; the
	// final edge is the union regardless of order or repetition.
	if err := s.UpsertRelationship(EdgeAffects, vk, "warfarin",
		Attributes{AttrEffect: string(EffectAlteredDosing)}, []string{"PMID:100", "PMID:200"}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRelationship(EdgeAffects, vk, "Warfarin",
		nil, []string{"PMID:200", "PMID:300"}); err != nil {
		t.Fatal(err)
	}

	edges := s.OutEdges(NodeVariant, vk, EdgeAffects)
	if len(edges) != 1 {
		t.Fatalf("edge count = %d, want 1", len(edges))
	}
	want := []string{"PMID:100", "PMID:200", "PMID:300"}
	if !reflect.DeepEqual(edges[0].Studies, want) {
		t.Errorf("studies = %v, want %v", edges[0].Studies, want)
	}
	if edges[0].Attrs[AttrEffect] != string(EffectAlteredDosing) {
		t.Errorf("effect attribute lost: %+v", edges[0].Attrs)
	}
	// Endpoint and study stubs must exist.
	if _, ok := s.GetNode(NodeStudy, "PMID:300"); !ok {
		t.Error("study stub not created")
	}
	if _, ok := s.GetNode(NodeVariant, vk); !ok {
		t.Error("variant stub not created")
	}
}

func TestUpsertRelationshipRequiresStudies(t *testing.T) {
	s := New()
	err := s.UpsertRelationship(EdgeAffects, "chr10:94761930:G>A", "warfarin", nil, nil)
	if !errors.Is(err, ErrNoSupportingStudies) {
		t.Fatalf("err = %v, want ErrNoSupportingStudies", err)
	}
	// The rejected edge must leave no trace.
	if got := s.Stats().TotalEdges(); got != 0 {
		t.Errorf("rejected edge left %d edges behind", got)
	}

	err = s.UpsertRelationship(EdgeTreats, "warfarin", "thrombosis", nil, []string{})
	if !errors.Is(err, ErrNoSupportingStudies) {
		t.Fatalf("TREATS without studies: err = %v", err)
	}
}

func TestUpsertRelationshipSchemaViolation(t *testing.T) {
	s := New()
	err := s.UpsertRelationship(EdgeType("CAUSES"), "a", "b", nil, nil)
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("unknown edge type: err = %v, want integrity violation", err)
	}
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("error %v is not *IntegrityError", err)
	}

	err = s.UpsertRelationship(EdgeHasVariant, "BRCA1", "chr17:41276045:ACT>A", nil, []string{"PMID:1"})
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("HAS_VARIANT with studies: err = %v, want integrity violation", err)
	}
}

func TestHasVariantRepointing(t *testing.T) {
	s := New()
	vk := "chr10:94761930:G>A"

	if err := s.UpsertRelationship(EdgeHasVariant, "CYP2C19", vk, nil, nil); err != nil {
		t.Fatal(err)
	}
	// A later assertion of a different primary gene replaces the mapping.
	if err := s.UpsertRelationship(EdgeHasVariant, "CYP2C9", vk, nil, nil); err != nil {
		t.Fatal(err)
	}

	gene, ok := s.GeneOfVariant(vk)
	if !ok || gene != "CYP2C9" {
		t.Fatalf("GeneOfVariant = %q, %v; want CYP2C9", gene, ok)
	}
	if got := s.VariantsOfGene("CYP2C19"); len(got) != 0 {
		t.Errorf("stale gene still lists variant: %v", got)
	}
	if got := s.VariantsOfGene("CYP2C9"); !reflect.DeepEqual(got, []string{vk}) {
		t.Errorf("VariantsOfGene = %v", got)
	}
	if got := s.Stats().Edges[EdgeHasVariant]; got != 1 {
		t.Errorf("HAS_VARIANT count = %d, want exactly 1 per variant", got)
	}
}

func TestApplyFragmentsConvergence(t *testing.T) {
	s := New()
	key := mustKey(t, "chr10:94761930:G>A")

	batches := [][]annotation.Fragment{
		{annotation.PathogenicityFragment("cadd", annotation.TierPredicted, variant.LikelyBenign)},
		{annotation.PathogenicityFragment("clinvar", annotation.TierCurated, variant.Pathogenic)},
		{annotation.FrequencyFragment("gnomad", annotation.TierPopulation, 0.004)},
	}

	// Apply in two different orders to two stores; the merged annotation
	// must converge.
	apply := func(order []int) annotation.Annotated {
		st := New()
		var last annotation.Annotated
		for _, i := range order {
			var err error
			last, err = st.ApplyFragments(key, batches[i])
			if err != nil {
				t.Fatal(err)
			}
		}
		return last
	}
	a := apply([]int{0, 1, 2})
	b := apply([]int{2, 1, 0})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("annotation state is order-dependent:\n %+v\n %+v", a, b)
	}
	if a.Pathogenicity != variant.Pathogenic {
		t.Errorf("curated class lost: %q", a.Pathogenicity)
	}

	// A low-trust late arrival must not degrade the established view.
	if _, err := s.ApplyFragments(key, batches[1]); err != nil {
		t.Fatal(err)
	}
	got, err := s.ApplyFragments(key, batches[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Pathogenicity != variant.Pathogenic {
		t.Errorf("predicted fragment degraded curated class to %q", got.Pathogenicity)
	}
}

func TestApplyFragmentsSameSourceReplaces(t *testing.T) {
	s := New()
	key := mustKey(t, "chr10:94761930:G>A")

	if _, err := s.ApplyFragments(key, []annotation.Fragment{
		annotation.FrequencyFragment("gnomad", annotation.TierPopulation, 0.10),
	}); err != nil {
		t.Fatal(err)
	}
	got, err := s.ApplyFragments(key, []annotation.Fragment{
		annotation.FrequencyFragment("gnomad", annotation.TierPopulation, 0.02),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Same source re-asserting a field replaces its earlier value rather
	// than averaging with it.
	if got.Frequency == nil || *got.Frequency != 0.02 {
		t.Errorf("frequency = %v, want corrected value 0.02", got.Frequency)
	}
}

func TestApplyFragmentsConflictKeepsPartial(t *testing.T) {
	s := New()
	key := mustKey(t, "chr10:94761930:G>A")

	_, err := s.ApplyFragments(key, []annotation.Fragment{
		annotation.PathogenicityFragment("clinvar", annotation.TierCurated, variant.Pathogenic),
		annotation.PathogenicityFragment("panel", annotation.TierCurated, variant.Benign),
		annotation.FrequencyFragment("gnomad", annotation.TierPopulation, 0.004),
	})
	if !errors.Is(err, annotation.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	stored, ok := s.Annotation(key)
	if !ok {
		t.Fatal("variant missing after conflicted apply")
	}
	if stored.Pathogenicity != variant.PathogenicityAbsent {
		t.Errorf("conflicted field stored as %q, want absent", stored.Pathogenicity)
	}
	if stored.Frequency == nil || *stored.Frequency != 0.004 {
		t.Errorf("partial merge not stored: %+v", stored)
	}
}

func TestVariantsInRange(t *testing.T) {
	s := New()
	keys := []string{
		"chr10:94761930:G>A",
		"chr10:94762000:C>T",
		"chr10:94800000:A>G",
		"chr17:41276045:ACT>A",
	}
	for _, k := range keys {
		if err := s.UpsertNode(NodeVariant, k, nil); err != nil {
			t.Fatal(err)
		}
	}

	got := s.VariantsInRange("10", 94761930, 94762000)
	want := []string{"chr10:94761930:G>A", "chr10:94762000:C>T"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("range scan = %v, want %v", got, want)
	}
	if got := s.VariantsInRange("17", 0, 1); got != nil {
		t.Errorf("empty range returned %v", got)
	}
}

func TestConcurrentUpserts(t *testing.T) {
	s := New()
	vk := "chr10:94761930:G>A"

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			study := fmt.Sprintf("PMID:%d", i%8)
			if err := s.UpsertRelationship(EdgeAffects, vk, "warfarin",
				Attributes{AttrEffect: string(EffectAlteredDosing)}, []string{study}); err != nil {
				t.Error(err)
			}
			if err := s.UpsertNode(NodeGene, "CYP2C9", Attributes{AttrChromosome: "10"}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	edges := s.OutEdges(NodeVariant, vk, EdgeAffects)
	if len(edges) != 1 {
		t.Fatalf("edge count = %d, want 1", len(edges))
	}
	if len(edges[0].Studies) != 8 {
		t.Errorf("study union = %v, want 8 distinct studies", edges[0].Studies)
	}
	if got := s.Stats().Nodes[NodeGene]; got != 1 {
		t.Errorf("gene count = %d", got)
	}
}

// flakyBackend fails the first n calls to each operation, then succeeds.
type flakyBackend struct {
	mu       sync.Mutex
	failures int
	nodes    []NodeView
	edges    []EdgeView
}

func (b *flakyBackend) UpsertNode(_ context.Context, n NodeView) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("transient storage error")
	}
	b.nodes = append(b.nodes, n)
	return nil
}

func (b *flakyBackend) UpsertRelationship(_ context.Context, e EdgeView) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("transient storage error")
	}
	b.edges = append(b.edges, e)
	return nil
}

func (b *flakyBackend) Close(context.Context) error { return nil }

func TestBackendMirrorRetries(t *testing.T) {
	fb := &flakyBackend{failures: 2}
	policy := RetryPolicy{
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Timeout:         time.Second,
	}
	s := NewWithBackend(fb, policy)

	if err := s.UpsertNode(NodeGene, "CYP2C9", Attributes{AttrChromosome: "10"}); err != nil {
		t.Fatalf("upsert should survive transient backend failures: %v", err)
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.nodes) != 1 || fb.nodes[0].Key != "CYP2C9" {
		t.Errorf("backend did not receive the node: %+v", fb.nodes)
	}
}
