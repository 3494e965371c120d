// Package annotation merges heterogeneous per-variant annotation fragments
// into a single consistent view, applying the trust-tier precedence and
// conflict-resolution rules of the knowledge graph.
//
// Sources are never treated as open-ended dictionaries: a fragment is a
// closed tagged union of the few annotation kinds the graph understands,
// which keeps the precedence rules exhaustively checkable.
package annotation

import (
	"fmt"

	"github.com/sanonone/pharmakg/pkg/variant"
)

// Tier is the precedence rank of an annotation source. Lower numbers mean
// higher curation rigor and win precedence battles.
type Tier int

const (
	// TierCurated is a curated clinical database (e.g. ClinVar expert panel).
	TierCurated Tier = 1
	// TierPopulation is a population frequency database (e.g. gnomAD).
	TierPopulation Tier = 2
	// TierPredicted is a computational prediction (e.g. CADD, PhyloP).
	TierPredicted Tier = 3
)

// Valid reports whether the tier is one of the three defined ranks.
func (t Tier) Valid() bool { return t >= TierCurated && t <= TierPredicted }

// Kind discriminates the closed set of fragment payloads.
type Kind string

const (
	KindFrequency     Kind = "frequency"
	KindConservation  Kind = "conservation"
	KindPathogenicity Kind = "pathogenicity"
	KindEffect        Kind = "effect"
	KindGeneMapping   Kind = "gene_mapping"
)

// Fragment is one annotation assertion from one source. Exactly one payload
// field is meaningful, selected by Kind; the constructors below keep that
// invariant without needing an interface hierarchy.
type Fragment struct {
	Source string `json:"source"`
	Tier   Tier   `json:"tier"`
	Kind   Kind   `json:"kind"`

	Frequency     float64               `json:"frequency,omitempty"`
	Conservation  float64               `json:"conservation,omitempty"`
	Pathogenicity variant.Pathogenicity `json:"pathogenicity,omitempty"`
	Effect        variant.EffectType    `json:"effect,omitempty"`
	Gene          string                `json:"gene,omitempty"`
}

// Frequency builds a population allele-frequency fragment.
func FrequencyFragment(source string, tier Tier, af float64) Fragment {
	return Fragment{Source: source, Tier: tier, Kind: KindFrequency, Frequency: af}
}

// Conservation builds a conservation-score fragment.
func ConservationFragment(source string, tier Tier, score float64) Fragment {
	return Fragment{Source: source, Tier: tier, Kind: KindConservation, Conservation: score}
}

// Pathogenicity builds a clinical-classification fragment.
func PathogenicityFragment(source string, tier Tier, class variant.Pathogenicity) Fragment {
	return Fragment{Source: source, Tier: tier, Kind: KindPathogenicity, Pathogenicity: class}
}

// Effect builds a molecular-consequence fragment.
func EffectFragment(source string, tier Tier, effect variant.EffectType) Fragment {
	return Fragment{Source: source, Tier: tier, Kind: KindEffect, Effect: effect}
}

// GeneMapping builds a gene-symbol mapping fragment.
func GeneMappingFragment(source string, tier Tier, gene string) Fragment {
	return Fragment{Source: source, Tier: tier, Kind: KindGeneMapping, Gene: gene}
}

// validate rejects fragments whose payload is outside the field's domain.
// A bad fragment is a data-quality problem of the record it arrived with,
// so it surfaces as an error rather than being silently dropped.
func (f Fragment) validate() error {
	if f.Source == "" {
		return fmt.Errorf("fragment without source id")
	}
	if !f.Tier.Valid() {
		return fmt.Errorf("fragment from %q has invalid tier %d", f.Source, f.Tier)
	}
	switch f.Kind {
	case KindFrequency:
		if f.Frequency < 0 || f.Frequency > 1 {
			return fmt.Errorf("allele frequency %g from %q outside [0,1]", f.Frequency, f.Source)
		}
	case KindConservation:
		// Conservation scores are bounded but scale-dependent; only reject
		// values that cannot be a score at all.
		if f.Conservation != f.Conservation { // NaN
			return fmt.Errorf("conservation score from %q is NaN", f.Source)
		}
	case KindPathogenicity:
		if !f.Pathogenicity.Valid() {
			return fmt.Errorf("unknown pathogenicity class %q from %q", f.Pathogenicity, f.Source)
		}
	case KindEffect:
		if !f.Effect.Valid() {
			return fmt.Errorf("unknown effect type %q from %q", f.Effect, f.Source)
		}
	case KindGeneMapping:
		if f.Gene == "" {
			return fmt.Errorf("empty gene symbol from %q", f.Source)
		}
	default:
		return fmt.Errorf("unknown fragment kind %q from %q", f.Kind, f.Source)
	}
	return nil
}

// Annotated is the merged annotation view of one variant. Numeric fields are
// pointers because absence is meaningful: an absent value never out-competes
// a present one during merging.
type Annotated struct {
	Key variant.Key `json:"key"`

	// Gene is the primary gene mapping (highest-trust source). AltGenes
	// retains the symbols asserted by lower-trust sources; they never
	// become the primary gene edge target.
	Gene     string   `json:"gene,omitempty"`
	AltGenes []string `json:"alt_genes,omitempty"`

	Effect        variant.EffectType    `json:"effect,omitempty"`
	Pathogenicity variant.Pathogenicity `json:"pathogenicity,omitempty"`
	Frequency     *float64              `json:"frequency,omitempty"`
	Conservation  *float64              `json:"conservation,omitempty"`

	// Sources lists the distinct source ids that contributed, sorted.
	Sources []string `json:"sources,omitempty"`
}
