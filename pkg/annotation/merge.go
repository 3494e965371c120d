package annotation

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sanonone/pharmakg/pkg/variant"
)

// ErrConflict is the sentinel wrapped by every ConflictError.
var ErrConflict = errors.New("conflicting annotation")

// ConflictError reports an irreconcilable disagreement between two curated
// (Tier 1) sources on a categorical field. The field is left absent in the
// merged result; resolution is the caller's responsibility and is never
// guessed by the merger.
type ConflictError struct {
	Key     variant.Key
	Field   Kind
	SourceA string
	SourceB string
	ValueA  string
	ValueB  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting %s for %s: %s=%q vs %s=%q (both tier 1)",
		e.Field, e.Key, e.SourceA, e.ValueA, e.SourceB, e.ValueB)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Merge reduces a set of annotation fragments into one Annotated view of the
// variant, applying tier precedence and the conservative same-tier
// tie-breaks. The reduction is commutative: the same fragment set in any
// input order yields the same result.
//
// When two Tier-1 sources assert different pathogenicity classes the merge
// returns a *ConflictError; the rest of the annotation is still merged and
// returned with the pathogenicity field left absent, so a caller may keep
// the partial result while escalating the conflict.
func Merge(key variant.Key, frags []Fragment) (Annotated, error) {
	out := Annotated{Key: key}

	for _, f := range frags {
		if err := f.validate(); err != nil {
			return out, fmt.Errorf("merge %s: %w", key, err)
		}
	}

	// Sort a private copy so the reduction below is order-independent.
	sorted := make([]Fragment, len(frags))
	copy(sorted, frags)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.Source < b.Source
	})

	out.Frequency = mergeNumeric(sorted, KindFrequency, func(f Fragment) float64 { return f.Frequency })
	out.Conservation = mergeNumeric(sorted, KindConservation, func(f Fragment) float64 { return f.Conservation })
	out.Effect = mergeEffect(sorted)
	out.Gene, out.AltGenes = mergeGene(sorted)
	out.Sources = collectSources(sorted)

	pathogenicity, err := mergePathogenicity(key, sorted)
	out.Pathogenicity = pathogenicity
	if err != nil {
		return out, err
	}
	return out, nil
}

// mergeNumeric takes the value from the highest-trust tier that asserts the
// field; multiple assertions within that tier are averaged. Absence stays
// absent (nil), it is never coerced into a zero.
func mergeNumeric(sorted []Fragment, kind Kind, value func(Fragment) float64) *float64 {
	var vals []float64
	best := Tier(0)
	for _, f := range sorted {
		if f.Kind != kind {
			continue
		}
		if best == 0 {
			best = f.Tier
		}
		if f.Tier != best {
			break // sorted by tier, every later fragment is weaker
		}
		vals = append(vals, value(f))
	}
	if len(vals) == 0 {
		return nil
	}
	v := stat.Mean(vals, nil)
	return &v
}

// mergeEffect picks the effect from the highest-trust tier; within the tier
// the more disruptive classification wins (safety-first).
func mergeEffect(sorted []Fragment) variant.EffectType {
	result := variant.EffectType("")
	best := Tier(0)
	for _, f := range sorted {
		if f.Kind != KindEffect {
			continue
		}
		if best == 0 {
			best = f.Tier
		}
		if f.Tier != best {
			break
		}
		if result == "" || f.Effect.Severity() > result.Severity() {
			result = f.Effect
		}
	}
	return result
}

// mergePathogenicity applies the asymmetric rules for the clinical class:
//
//   - an explicit Uncertain is an assertion, but it loses to any concrete
//     class from any tier;
//   - among concrete assertions the highest-trust tier wins;
//   - two Tier-1 sources asserting different concrete classes is a hard
//     conflict, never averaged and never tie-broken;
//   - disagreement within Tier 2 or 3 resolves to the more severe class.
func mergePathogenicity(key variant.Key, sorted []Fragment) (variant.Pathogenicity, error) {
	var concrete, uncertain []Fragment
	for _, f := range sorted {
		if f.Kind != KindPathogenicity {
			continue
		}
		if f.Pathogenicity.IsConcrete() {
			concrete = append(concrete, f)
		} else {
			uncertain = append(uncertain, f)
		}
	}

	pool := concrete
	if len(pool) == 0 {
		if len(uncertain) == 0 {
			return variant.PathogenicityAbsent, nil
		}
		return variant.Uncertain, nil
	}

	best := pool[0].Tier // pool inherits tier-sorted order
	winner := pool[0]
	for _, f := range pool[1:] {
		if f.Tier != best {
			break
		}
		if f.Pathogenicity == winner.Pathogenicity {
			continue
		}
		if best == TierCurated {
			return variant.PathogenicityAbsent, &ConflictError{
				Key:     key,
				Field:   KindPathogenicity,
				SourceA: winner.Source,
				SourceB: f.Source,
				ValueA:  string(winner.Pathogenicity),
				ValueB:  string(f.Pathogenicity),
			}
		}
		if f.Pathogenicity.Severity() > winner.Pathogenicity.Severity() {
			winner = f
		}
	}
	return winner.Pathogenicity, nil
}

// mergeGene selects the primary gene mapping from the highest-trust tier
// (lexicographic order breaks exact ties deterministically) and keeps every
// other asserted symbol as an alternate candidate.
func mergeGene(sorted []Fragment) (string, []string) {
	primary := ""
	best := Tier(0)
	seen := make(map[string]struct{})
	for _, f := range sorted {
		if f.Kind != KindGeneMapping {
			continue
		}
		seen[f.Gene] = struct{}{}
		if best == 0 {
			best = f.Tier
		}
		if f.Tier != best {
			continue
		}
		if primary == "" || f.Gene < primary {
			primary = f.Gene
		}
	}
	if primary == "" {
		return "", nil
	}

	delete(seen, primary)
	if len(seen) == 0 {
		return primary, nil
	}
	alts := make([]string, 0, len(seen))
	for g := range seen {
		alts = append(alts, g)
	}
	sort.Strings(alts)
	return primary, alts
}

func collectSources(sorted []Fragment) []string {
	seen := make(map[string]struct{}, len(sorted))
	for _, f := range sorted {
		seen[f.Source] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
