// Package evidence turns raw graph provenance into ranked
// pharmacogenomic matches: it walks gene -> variant -> drug paths and
// scores each variant-drug association from its supporting studies with
// a capped, saturating confidence model.
package evidence

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/sanonone/pharmakg/pkg/graph"
)

// Config bounds the aggregation. Zero values are replaced by
// DefaultConfig at construction.
type Config struct {
	// MinStudySampleSize excludes underpowered studies from the
	// confidence sum. They remain listed as provenance.
	MinStudySampleSize int `yaml:"min_study_sample_size"`
	// MaxVariantsPerGeneQuery caps the fan-out of a gene-wide query.
	MaxVariantsPerGeneQuery int `yaml:"max_variants_per_gene_query"`
	// DominanceCap limits the share of the confidence mass a single
	// study may contribute when several are eligible.
	DominanceCap float64 `yaml:"dominance_cap"`
	// NormalizationConstant sets the saturation scale of the score.
	NormalizationConstant float64 `yaml:"normalization_constant"`
}

// DefaultConfig returns the aggregation defaults.
func DefaultConfig() Config {
	return Config{
		MinStudySampleSize:      30,
		MaxVariantsPerGeneQuery: 500,
		DominanceCap:            0.6,
		NormalizationConstant:   1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinStudySampleSize <= 0 {
		c.MinStudySampleSize = d.MinStudySampleSize
	}
	if c.MaxVariantsPerGeneQuery <= 0 {
		c.MaxVariantsPerGeneQuery = d.MaxVariantsPerGeneQuery
	}
	if c.DominanceCap <= 0 || c.DominanceCap >= 1 {
		c.DominanceCap = d.DominanceCap
	}
	if c.NormalizationConstant <= 0 {
		c.NormalizationConstant = d.NormalizationConstant
	}
	return c
}

// Match is one scored variant-drug association.
type Match struct {
	Variant    string              `json:"variant"`
	Gene       string              `json:"gene,omitempty"`
	Drug       string              `json:"drug"`
	Effect     graph.AffectsEffect `json:"effect,omitempty"`
	Confidence float64             `json:"confidence"`
	// Studies lists the full provenance, including studies excluded
	// from the confidence sum for being underpowered.
	Studies []graph.StudyView `json:"studies"`
}

// Aggregator scores evidence over a graph store. Construct with New; the
// zero value is not usable.
type Aggregator struct {
	store  *graph.Store
	cfg    Config
	logger *slog.Logger
}

// New creates an aggregator over the given store.
func New(store *graph.Store, cfg Config) *Aggregator {
	return &Aggregator{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "evidence"),
	}
}

// QueryGeneDrug returns the scored matches between any variant of the
// gene and the drug, best first. An unknown gene or drug, or a known
// pair with no connecting evidence, yields an empty result and no error.
func (a *Aggregator) QueryGeneDrug(gene, drug string) []Match {
	drug = strings.ToLower(strings.TrimSpace(drug))
	variants := a.store.VariantsOfGene(gene)
	if len(variants) > a.cfg.MaxVariantsPerGeneQuery {
		a.logger.Warn("gene query fan-out capped",
			"gene", gene, "variants", len(variants), "cap", a.cfg.MaxVariantsPerGeneQuery)
		variants = variants[:a.cfg.MaxVariantsPerGeneQuery]
	}

	var matches []Match
	for _, vk := range variants {
		for _, e := range a.store.OutEdges(graph.NodeVariant, vk, graph.EdgeAffects) {
			if drug != "" && e.To != drug {
				continue
			}
			matches = append(matches, a.score(gene, e))
		}
	}
	rank(matches)
	return matches
}

// QueryVariant returns the scored drug associations of a single variant,
// best first.
func (a *Aggregator) QueryVariant(variantKey string) []Match {
	gene, _ := a.store.GeneOfVariant(variantKey)
	var matches []Match
	for _, e := range a.store.OutEdges(graph.NodeVariant, variantKey, graph.EdgeAffects) {
		matches = append(matches, a.score(gene, e))
	}
	rank(matches)
	return matches
}

// QueryDrug returns the scored variant associations of a drug, best
// first, across all genes.
func (a *Aggregator) QueryDrug(drug string) []Match {
	var matches []Match
	for _, e := range a.store.InEdges(graph.NodeDrug, drug, graph.EdgeAffects) {
		gene, _ := a.store.GeneOfVariant(e.From)
		matches = append(matches, a.score(gene, e))
	}
	rank(matches)
	return matches
}

func (a *Aggregator) score(gene string, e graph.EdgeView) Match {
	m := Match{
		Variant: e.From,
		Gene:    gene,
		Drug:    e.To,
		Studies: make([]graph.StudyView, 0, len(e.Studies)),
	}
	if eff, ok := e.Attrs[graph.AttrEffect].(string); ok {
		m.Effect = graph.AffectsEffect(eff)
	}
	for _, sk := range e.Studies {
		sv, ok := a.store.Study(sk)
		if !ok {
			sv = graph.StudyView{Key: sk}
		}
		m.Studies = append(m.Studies, sv)
	}
	m.Confidence = a.confidence(m.Studies)
	return m
}

// confidence maps the supporting studies onto (0, 1).
//
// Each eligible study contributes weight sampleSize * |effectSize|.
// With two or more eligible studies no single study may carry more than
// the configured dominance share of the total: the largest weight is
// clipped to cap/(1-cap) times the sum of the others. The clipped sum is
// squashed through 1 - exp(-sum/norm), so confidence grows strictly with
// additional eligible evidence yet never reaches 1.
func (a *Aggregator) confidence(studies []graph.StudyView) float64 {
	var weights []float64
	for _, s := range studies {
		if s.SampleSize < a.cfg.MinStudySampleSize {
			continue
		}
		w := float64(s.SampleSize) * math.Abs(s.EffectSize)
		if w > 0 {
			weights = append(weights, w)
		}
	}
	if len(weights) == 0 {
		return 0
	}

	sum := 0.0
	if len(weights) >= 2 {
		sort.Float64s(weights)
		largest := weights[len(weights)-1]
		rest := 0.0
		for _, w := range weights[:len(weights)-1] {
			rest += w
		}
		limit := a.cfg.DominanceCap / (1 - a.cfg.DominanceCap) * rest
		if largest > limit {
			largest = limit
		}
		sum = rest + largest
	} else {
		sum = weights[0]
	}
	return 1 - math.Exp(-sum/a.cfg.NormalizationConstant)
}

// rank orders matches by confidence, then by provenance breadth, then by
// variant key so equal evidence always renders in the same order.
func rank(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.Studies) != len(b.Studies) {
			return len(a.Studies) > len(b.Studies)
		}
		if a.Variant != b.Variant {
			return a.Variant < b.Variant
		}
		return a.Drug < b.Drug
	})
}

// Describe renders a one-line human summary of a match, used by the MCP
// tools and the CLI.
func (m Match) Describe() string {
	return fmt.Sprintf("%s -> %s (%s, confidence %.3f, %d studies)",
		m.Variant, m.Drug, m.Effect, m.Confidence, len(m.Studies))
}
