package annotation

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/sanonone/pharmakg/pkg/variant"
)

var testKey = variant.Key{Chrom: "10", Pos: 94761930, Ref: "G", Alt: "A"}

func TestMergeTierPrecedence(t *testing.T) {
	// A curated Pathogenic must beat a predicted Benign regardless of order.
	frags := []Fragment{
		PathogenicityFragment("cadd", TierPredicted, variant.Benign),
		PathogenicityFragment("clinvar", TierCurated, variant.Pathogenic),
	}
	merged, err := Merge(testKey, frags)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Pathogenicity != variant.Pathogenic {
		t.Errorf("tier precedence broken: got %q, want pathogenic", merged.Pathogenicity)
	}
}

func TestMergeTier1Conflict(t *testing.T) {
	frags := []Fragment{
		PathogenicityFragment("clinvar", TierCurated, variant.Pathogenic),
		PathogenicityFragment("curated_panel", TierCurated, variant.Benign),
		FrequencyFragment("gnomad", TierPopulation, 0.01),
	}
	merged, err := Merge(testKey, frags)
	if err == nil {
		t.Fatal("expected ConflictError for disagreeing tier-1 sources")
	}
	if !errors.Is(err, ErrConflict) {
		t.Errorf("error %v does not wrap ErrConflict", err)
	}
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("error %v is not a *ConflictError", err)
	}
	if ce.Field != KindPathogenicity {
		t.Errorf("conflict field = %q, want pathogenicity", ce.Field)
	}
	// The conflicted field must stay absent; the rest of the merge survives.
	if merged.Pathogenicity != variant.PathogenicityAbsent {
		t.Errorf("conflicted field must be absent, got %q", merged.Pathogenicity)
	}
	if merged.Frequency == nil || *merged.Frequency != 0.01 {
		t.Errorf("partial merge lost the frequency field: %+v", merged)
	}
}

func TestMergeSameTierSeverityWins(t *testing.T) {
	// Within Tier 2/3 the conservative (more severe) class wins.
	frags := []Fragment{
		PathogenicityFragment("predictor_a", TierPredicted, variant.LikelyBenign),
		PathogenicityFragment("predictor_b", TierPredicted, variant.LikelyPathogenic),
	}
	merged, err := Merge(testKey, frags)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Pathogenicity != variant.LikelyPathogenic {
		t.Errorf("severity tie-break broken: got %q", merged.Pathogenicity)
	}
}

func TestMergeUncertainLosesToConcrete(t *testing.T) {
	// An explicit Uncertain from Tier 1 loses to a concrete class from Tier 3.
	frags := []Fragment{
		PathogenicityFragment("clinvar", TierCurated, variant.Uncertain),
		PathogenicityFragment("cadd", TierPredicted, variant.LikelyBenign),
	}
	merged, err := Merge(testKey, frags)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Pathogenicity != variant.LikelyBenign {
		t.Errorf("Uncertain should lose to any concrete class, got %q", merged.Pathogenicity)
	}

	// But with no concrete class at all, Uncertain stands.
	merged, err = Merge(testKey, []Fragment{
		PathogenicityFragment("clinvar", TierCurated, variant.Uncertain),
	})
	if err != nil {
		t.Fatal(err)
	}
	if merged.Pathogenicity != variant.Uncertain {
		t.Errorf("lone Uncertain assertion lost: got %q", merged.Pathogenicity)
	}
}

func TestMergePresenceBeatsAbsence(t *testing.T) {
	// A Tier-3 frequency must survive even though Tier 1/2 sources are
	// present but silent on the field.
	frags := []Fragment{
		PathogenicityFragment("clinvar", TierCurated, variant.Pathogenic),
		GeneMappingFragment("refseq", TierPopulation, "CYP2C9"),
		FrequencyFragment("insilico", TierPredicted, 0.002),
	}
	merged, err := Merge(testKey, frags)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Frequency == nil || *merged.Frequency != 0.002 {
		t.Errorf("present lower-tier value lost to absence: %+v", merged.Frequency)
	}
}

func TestMergeNumericTierAndAveraging(t *testing.T) {
	frags := []Fragment{
		FrequencyFragment("gnomad", TierPopulation, 0.010),
		FrequencyFragment("exac", TierPopulation, 0.030),
		FrequencyFragment("insilico", TierPredicted, 0.500), // weaker tier, ignored
	}
	merged, err := Merge(testKey, frags)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Frequency == nil {
		t.Fatal("frequency absent")
	}
	if got := *merged.Frequency; math.Abs(got-0.020) > 1e-12 {
		t.Errorf("same-tier average = %g, want 0.020", got)
	}
}

func TestMergeGeneMapping(t *testing.T) {
	frags := []Fragment{
		GeneMappingFragment("insilico", TierPredicted, "CYP2C19"),
		GeneMappingFragment("clinvar", TierCurated, "CYP2C9"),
	}
	merged, err := Merge(testKey, frags)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Gene != "CYP2C9" {
		t.Errorf("primary gene = %q, want highest-trust CYP2C9", merged.Gene)
	}
	if !reflect.DeepEqual(merged.AltGenes, []string{"CYP2C19"}) {
		t.Errorf("alternate candidates = %v, want [CYP2C19]", merged.AltGenes)
	}
}

func TestMergeOrderIndependence(t *testing.T) {
	frags := []Fragment{
		PathogenicityFragment("clinvar", TierCurated, variant.LikelyPathogenic),
		PathogenicityFragment("predictor", TierPredicted, variant.Benign),
		FrequencyFragment("gnomad", TierPopulation, 0.004),
		FrequencyFragment("exac", TierPopulation, 0.006),
		ConservationFragment("phylop", TierPredicted, 2.85),
		EffectFragment("vep", TierPredicted, variant.EffectMissense),
		GeneMappingFragment("refseq", TierPopulation, "CYP2C9"),
	}

	want, err := Merge(testKey, frags)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]Fragment, len(frags))
		copy(shuffled, frags)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got, err := Merge(testKey, shuffled)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("merge is order-dependent:\n got %+v\nwant %+v", got, want)
		}
	}
}

func TestMergeRejectsBadFragments(t *testing.T) {
	cases := []Fragment{
		FrequencyFragment("gnomad", TierPopulation, 1.5),
		FrequencyFragment("gnomad", TierPopulation, -0.1),
		PathogenicityFragment("clinvar", TierCurated, "definitely_fine"),
		GeneMappingFragment("refseq", TierPopulation, ""),
		{Source: "x", Tier: 9, Kind: KindFrequency},
		{Source: "", Tier: TierCurated, Kind: KindFrequency},
	}
	for i, f := range cases {
		if _, err := Merge(testKey, []Fragment{f}); err == nil {
			t.Errorf("case %d: bad fragment %+v accepted", i, f)
		}
	}
}
