package evidence

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/variant"
)

// Features is the numeric feature row of one variant, suitable for
// export into a model training matrix. Absent annotations encode as NaN
// so downstream imputation can tell "missing" from "zero".
type Features struct {
	Variant            string  `json:"variant"`
	Gene               string  `json:"gene,omitempty"`
	Frequency          float64 `json:"frequency"`
	Conservation       float64 `json:"conservation"`
	EffectSeverity     float64 `json:"effect_severity"`
	PathogenicityScore float64 `json:"pathogenicity_score"`
	DrugCount          float64 `json:"drug_count"`
	StudyCount         float64 `json:"study_count"`
	MaxAbsEffectSize   float64 `json:"max_abs_effect_size"`
	TotalSampleSize    float64 `json:"total_sample_size"`
}

// FeatureVector builds the feature row of one variant from its merged
// annotation and its evidence edges. The boolean reports whether the
// variant exists in the graph.
func (a *Aggregator) FeatureVector(variantKey string) (Features, bool) {
	key, err := variant.Normalize(variantKey)
	if err != nil {
		return Features{}, false
	}
	ann, ok := a.store.Annotation(key)
	if !ok {
		return Features{}, false
	}

	f := Features{
		Variant:      key.String(),
		Gene:         ann.Gene,
		Frequency:    math.NaN(),
		Conservation: math.NaN(),
	}
	if ann.Frequency != nil {
		f.Frequency = *ann.Frequency
	}
	if ann.Conservation != nil {
		f.Conservation = *ann.Conservation
	}
	f.EffectSeverity = float64(ann.Effect.Severity())
	f.PathogenicityScore = float64(ann.Pathogenicity.Severity())

	var effectSizes, sampleSizes []float64
	seen := make(map[string]struct{})
	edges := a.store.OutEdges(graph.NodeVariant, key.String(), graph.EdgeAffects)
	f.DrugCount = float64(len(edges))
	for _, e := range edges {
		for _, sk := range e.Studies {
			if _, dup := seen[sk]; dup {
				continue
			}
			seen[sk] = struct{}{}
			if sv, ok := a.store.Study(sk); ok {
				effectSizes = append(effectSizes, math.Abs(sv.EffectSize))
				sampleSizes = append(sampleSizes, float64(sv.SampleSize))
			}
		}
	}
	f.StudyCount = float64(len(seen))
	if len(effectSizes) > 0 {
		f.MaxAbsEffectSize = floats.Max(effectSizes)
		f.TotalSampleSize = floats.Sum(sampleSizes)
	}
	return f, true
}

// FeatureMatrix builds one feature row per variant of the gene, in the
// store's sorted variant order.
func (a *Aggregator) FeatureMatrix(gene string) []Features {
	variants := a.store.VariantsOfGene(gene)
	rows := make([]Features, 0, len(variants))
	for _, vk := range variants {
		if f, ok := a.FeatureVector(vk); ok {
			rows = append(rows, f)
		}
	}
	return rows
}
