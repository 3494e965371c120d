// Package variant defines the canonical identity of a genomic variant and the
// normalizer that produces it from raw textual descriptors.
//
// A canonical Key is the globally unique handle used everywhere else in the
// engine (graph keys, journal entries, query parameters). Normalization is
// pure and deterministic: it never performs lookups, so two equivalent
// descriptors always collapse to the same Key no matter where or when they
// are parsed.
package variant

import "fmt"

// Key is the canonical variant identity: chromosome, 1-based position,
// reference allele and alternate allele.
type Key struct {
	Chrom string `json:"chrom"`
	Pos   int    `json:"pos"`
	Ref   string `json:"ref"`
	Alt   string `json:"alt"`
}

// String renders the key in the conventional "chr10:94761930:G>A" form.
// This string is also the graph node key for the variant.
func (k Key) String() string {
	return fmt.Sprintf("chr%s:%d:%s>%s", k.Chrom, k.Pos, k.Ref, k.Alt)
}

// IsZero reports whether the key is the empty value.
func (k Key) IsZero() bool {
	return k.Chrom == "" && k.Pos == 0 && k.Ref == "" && k.Alt == ""
}

// EffectType classifies the molecular consequence of a variant.
type EffectType string

const (
	EffectMissense   EffectType = "missense"
	EffectNonsense   EffectType = "nonsense"
	EffectSynonymous EffectType = "synonymous"
	EffectFrameshift EffectType = "frameshift"
	EffectSplice     EffectType = "splice"
	EffectUnknown    EffectType = "unknown"
)

// effectSeverity ranks effect types for the conservative same-tier tie-break.
// Higher means more disruptive.
var effectSeverity = map[EffectType]int{
	EffectUnknown:    0,
	EffectSynonymous: 1,
	EffectMissense:   2,
	EffectSplice:     3,
	EffectNonsense:   4,
	EffectFrameshift: 5,
}

// Severity returns the disruption rank of the effect type. Unrecognized
// values rank as unknown.
func (e EffectType) Severity() int {
	return effectSeverity[e]
}

// Valid reports whether the effect type is a known member of the enum.
func (e EffectType) Valid() bool {
	_, ok := effectSeverity[e]
	return ok
}

// Pathogenicity is the clinical severity classification of a variant on the
// ACMG-style five point scale. The zero value means "not asserted", which is
// distinct from an explicit Uncertain assertion.
type Pathogenicity string

const (
	PathogenicityAbsent     Pathogenicity = ""
	Benign                  Pathogenicity = "benign"
	LikelyBenign            Pathogenicity = "likely_benign"
	Uncertain               Pathogenicity = "uncertain"
	LikelyPathogenic        Pathogenicity = "likely_pathogenic"
	Pathogenic              Pathogenicity = "pathogenic"
)

var pathogenicitySeverity = map[Pathogenicity]int{
	Benign:           1,
	LikelyBenign:     2,
	Uncertain:        3,
	LikelyPathogenic: 4,
	Pathogenic:       5,
}

// Severity returns the rank on the Benign(1)..Pathogenic(5) scale.
// The absent value ranks 0, below every explicit assertion.
func (p Pathogenicity) Severity() int {
	return pathogenicitySeverity[p]
}

// Valid reports whether the value is an explicit member of the scale.
func (p Pathogenicity) Valid() bool {
	_, ok := pathogenicitySeverity[p]
	return ok
}

// IsConcrete reports whether the classification commits to a direction,
// i.e. it is explicit and not Uncertain. Concrete classes from any source
// out-compete an Uncertain assertion during merging.
func (p Pathogenicity) IsConcrete() bool {
	return p.Valid() && p != Uncertain
}
