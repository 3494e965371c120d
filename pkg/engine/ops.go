package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/evidence"
	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/metrics"
	"github.com/sanonone/pharmakg/pkg/persistence"
	"github.com/sanonone/pharmakg/pkg/variant"
)

// StudyRef describes one supporting study arriving with a record.
type StudyRef struct {
	Key        string  `json:"key"`
	EffectSize float64 `json:"effect_size"`
	SampleSize int     `json:"sample_size"`
	PubRef     string  `json:"pub_ref,omitempty"`
}

// DrugLink asserts that the record's variant affects a drug response.
type DrugLink struct {
	Drug    string              `json:"drug"`
	Effect  graph.AffectsEffect `json:"effect"`
	Studies []StudyRef          `json:"studies"`
}

// Record is one source record of the ingestion pipeline: a raw variant
// identifier plus whatever annotations and drug evidence the source
// carries.
type Record struct {
	Variant   string                `json:"variant"`
	Gene      string                `json:"gene,omitempty"`
	Fragments []annotation.Fragment `json:"fragments,omitempty"`
	Drugs     []DrugLink            `json:"drugs,omitempty"`
}

// BatchResult summarizes an IngestBatch run.
type BatchResult struct {
	Accepted  int      `json:"accepted"`
	Malformed int      `json:"malformed"`
	Conflicts int      `json:"conflicts"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// IngestRecord normalizes and applies one source record: the variant key
// is canonicalized, annotation fragments are merged, the gene mapping
// becomes a HAS_VARIANT edge and each drug link becomes an AFFECTS edge
// with its studies upserted first.
//
// A malformed variant returns variant.ErrMalformed. A Tier-1 annotation
// conflict returns annotation.ErrConflict after applying the rest of the
// record. Evidence links without studies are skipped and reported via
// graph.ErrNoSupportingStudies. Integrity violations abort immediately.
func (e *Engine) IngestRecord(source string, rec Record) error {
	key, err := variant.Normalize(rec.Variant)
	if err != nil {
		metrics.MalformedRecords.WithLabelValues(source).Inc()
		return err
	}

	// The variant exists once its identifier parses, even when the record
	// carries nothing else. Orphan variants are kept, never dropped.
	if err := e.UpsertNode(graph.NodeVariant, key.String(), nil); err != nil {
		return err
	}

	var conflictErr error
	if len(rec.Fragments) > 0 {
		merged, err := e.Store.ApplyFragments(key, rec.Fragments)
		switch {
		case errors.Is(err, annotation.ErrConflict):
			metrics.AnnotationConflicts.Inc()
			e.logger.Warn("annotation conflict", "variant", key.String(), "error", err)
			conflictErr = err
		case err != nil:
			return err
		}
		if err := e.logAnnot(key, rec.Fragments); err != nil {
			return err
		}
		// A curated gene mapping in the merged view wins over the
		// record's own gene field.
		if merged.Gene != "" && rec.Gene == "" {
			rec.Gene = merged.Gene
		}
	}

	if rec.Gene != "" {
		if err := e.UpsertRelationship(graph.EdgeHasVariant, rec.Gene, key.String(), nil, nil); err != nil {
			return err
		}
	}

	for _, link := range rec.Drugs {
		if err := e.ingestDrugLink(key.String(), link); err != nil {
			return err
		}
	}

	metrics.RecordsIngested.WithLabelValues(source).Inc()
	return conflictErr
}

func (e *Engine) ingestDrugLink(variantKey string, link DrugLink) error {
	studyKeys := make([]string, 0, len(link.Studies))
	for _, st := range link.Studies {
		if err := e.UpsertNode(graph.NodeStudy, st.Key, graph.Attributes{
			graph.AttrEffectSize: st.EffectSize,
			graph.AttrSampleSize: st.SampleSize,
			graph.AttrPubRef:     st.PubRef,
		}); err != nil {
			return err
		}
		studyKeys = append(studyKeys, st.Key)
	}

	var attrs graph.Attributes
	if link.Effect != "" {
		attrs = graph.Attributes{graph.AttrEffect: string(link.Effect)}
	}
	return e.UpsertRelationship(graph.EdgeAffects, variantKey, link.Drug, attrs, studyKeys)
}

// IngestBatch applies records independently: malformed records,
// conflicts and zero-study evidence links are counted and reported
// without stopping the batch, while an integrity violation aborts it.
func (e *Engine) IngestBatch(source string, recs []Record) (BatchResult, error) {
	var res BatchResult
	for i, rec := range recs {
		err := e.IngestRecord(source, rec)
		switch {
		case err == nil:
			res.Accepted++
		case errors.Is(err, variant.ErrMalformed):
			res.Malformed++
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
		case errors.Is(err, annotation.ErrConflict):
			// The record was applied; only the conflicted field is absent.
			res.Accepted++
			res.Conflicts++
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
		case errors.Is(err, graph.ErrNoSupportingStudies):
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i, err))
		default:
			metrics.IntegrityViolations.Inc()
			return res, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return res, nil
}

// IngestEvidence upserts the studies and the AFFECTS edge for one
// variant-drug association.
func (e *Engine) IngestEvidence(variantKey, drug string, effect graph.AffectsEffect, studies []StudyRef) error {
	key, err := variant.Normalize(variantKey)
	if err != nil {
		return err
	}
	return e.ingestDrugLink(key.String(), DrugLink{Drug: drug, Effect: effect, Studies: studies})
}

// LinkDrugDisease upserts a TREATS edge with its supporting studies.
func (e *Engine) LinkDrugDisease(drug, disease string, level graph.TreatsLevel, studies []StudyRef) error {
	studyKeys := make([]string, 0, len(studies))
	for _, st := range studies {
		if err := e.UpsertNode(graph.NodeStudy, st.Key, graph.Attributes{
			graph.AttrEffectSize: st.EffectSize,
			graph.AttrSampleSize: st.SampleSize,
			graph.AttrPubRef:     st.PubRef,
		}); err != nil {
			return err
		}
		studyKeys = append(studyKeys, st.Key)
	}
	var attrs graph.Attributes
	if level != "" {
		attrs = graph.Attributes{graph.AttrLevel: string(level)}
	}
	return e.UpsertRelationship(graph.EdgeTreats, drug, disease, attrs, studyKeys)
}

// UpsertNode applies the node mutation and journals it.
func (e *Engine) UpsertNode(typ graph.NodeType, key string, attrs graph.Attributes) error {
	if err := e.Store.UpsertNode(typ, key, attrs); err != nil {
		if errors.Is(err, graph.ErrIntegrity) {
			metrics.IntegrityViolations.Inc()
		}
		return err
	}
	return e.logNode(typ, key, attrs)
}

// UpsertRelationship applies the edge mutation and journals it.
func (e *Engine) UpsertRelationship(typ graph.EdgeType, from, to string, attrs graph.Attributes, studyKeys []string) error {
	if err := e.Store.UpsertRelationship(typ, from, to, attrs, studyKeys); err != nil {
		if errors.Is(err, graph.ErrIntegrity) {
			metrics.IntegrityViolations.Inc()
		}
		return err
	}
	return e.logEdge(typ, from, to, attrs, studyKeys)
}

// Annotate applies annotation fragments to a variant and journals them.
// On a Tier-1 conflict the partial merge is stored and the conflict is
// returned alongside it.
func (e *Engine) Annotate(variantKey string, frags []annotation.Fragment) (annotation.Annotated, error) {
	key, err := variant.Normalize(variantKey)
	if err != nil {
		return annotation.Annotated{}, err
	}
	merged, err := e.Store.ApplyFragments(key, frags)
	if err != nil && !errors.Is(err, annotation.ErrConflict) {
		return merged, err
	}
	if err != nil {
		metrics.AnnotationConflicts.Inc()
	}
	if jerr := e.logAnnot(key, frags); jerr != nil {
		return merged, jerr
	}
	return merged, err
}

// QueryEvidence returns the ranked variant-drug matches between a gene
// and a drug. Empty results are not an error.
func (e *Engine) QueryEvidence(gene, drug string) []evidence.Match {
	defer e.observeQuery("gene_drug", time.Now())
	return e.agg.QueryGeneDrug(gene, drug)
}

// QueryVariantEvidence returns the ranked drug associations of one
// variant, accepting any normalizable form of the key.
func (e *Engine) QueryVariantEvidence(variantKey string) ([]evidence.Match, error) {
	key, err := variant.Normalize(variantKey)
	if err != nil {
		return nil, err
	}
	defer e.observeQuery("variant", time.Now())
	return e.agg.QueryVariant(key.String()), nil
}

// QueryDrugEvidence returns the ranked variant associations of a drug.
func (e *Engine) QueryDrugEvidence(drug string) []evidence.Match {
	defer e.observeQuery("drug", time.Now())
	return e.agg.QueryDrug(drug)
}

func (e *Engine) observeQuery(kind string, start time.Time) {
	metrics.EvidenceQueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// VariantsForGene lists the variant keys linked to a gene.
func (e *Engine) VariantsForGene(gene string) []string {
	return e.Store.VariantsOfGene(gene)
}

// VariantsInRange lists the variant keys on a chromosome within
// [lo, hi], in positional order.
func (e *Engine) VariantsInRange(chrom string, lo, hi int) []string {
	return e.Store.VariantsInRange(chrom, lo, hi)
}

// DrugsForVariant lists the drugs a variant affects, sorted.
func (e *Engine) DrugsForVariant(variantKey string) ([]string, error) {
	key, err := variant.Normalize(variantKey)
	if err != nil {
		return nil, err
	}
	edges := e.Store.OutEdges(graph.NodeVariant, key.String(), graph.EdgeAffects)
	drugs := make([]string, 0, len(edges))
	for _, ed := range edges {
		drugs = append(drugs, ed.To)
	}
	return drugs, nil
}

// GenesForDrug lists the genes whose variants affect the drug.
func (e *Engine) GenesForDrug(drug string) []string {
	seen := make(map[string]struct{})
	for _, ed := range e.Store.InEdges(graph.NodeDrug, drug, graph.EdgeAffects) {
		if gene, ok := e.Store.GeneOfVariant(ed.From); ok {
			seen[gene] = struct{}{}
		}
	}
	genes := make([]string, 0, len(seen))
	for g := range seen {
		genes = append(genes, g)
	}
	sort.Strings(genes)
	return genes
}

// DrugIndications lists the diseases a drug treats.
func (e *Engine) DrugIndications(drug string) []string {
	edges := e.Store.OutEdges(graph.NodeDrug, drug, graph.EdgeTreats)
	diseases := make([]string, 0, len(edges))
	for _, ed := range edges {
		diseases = append(diseases, ed.To)
	}
	return diseases
}

// Annotation returns the merged annotation of a variant.
func (e *Engine) Annotation(variantKey string) (annotation.Annotated, bool, error) {
	key, err := variant.Normalize(variantKey)
	if err != nil {
		return annotation.Annotated{}, false, err
	}
	ann, ok := e.Store.Annotation(key)
	return ann, ok, nil
}

// FeatureVector exports the numeric feature row of one variant.
func (e *Engine) FeatureVector(variantKey string) (evidence.Features, bool) {
	return e.agg.FeatureVector(variantKey)
}

// FeatureMatrix exports one feature row per variant of a gene.
func (e *Engine) FeatureMatrix(gene string) []evidence.Features {
	return e.agg.FeatureMatrix(gene)
}

// Stats reports graph size per node and edge type.
func (e *Engine) Stats() graph.Stats {
	return e.Store.Stats()
}

// journaling helpers

func (e *Engine) appendJournal(record string) error {
	if e.journal == nil {
		return nil
	}
	if err := e.journal.Append(record); err != nil {
		return fmt.Errorf("journal append failed: %w", err)
	}
	atomic.AddInt64(&e.dirtyCounter, 1)
	metrics.JournalRecords.Inc()
	return nil
}

func (e *Engine) logNode(typ graph.NodeType, key string, attrs graph.Attributes) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return e.appendJournal(persistence.FormatCommand(persistence.CmdNode,
		[]byte(typ), []byte(key), payload))
}

func (e *Engine) logEdge(typ graph.EdgeType, from, to string, attrs graph.Attributes, studyKeys []string) error {
	attrPayload, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	studyPayload, err := json.Marshal(studyKeys)
	if err != nil {
		return err
	}
	return e.appendJournal(persistence.FormatCommand(persistence.CmdEdge,
		[]byte(typ), []byte(from), []byte(to), attrPayload, studyPayload))
}

func (e *Engine) logAnnot(key variant.Key, frags []annotation.Fragment) error {
	payload, err := json.Marshal(frags)
	if err != nil {
		return err
	}
	return e.appendJournal(persistence.FormatCommand(persistence.CmdAnnot,
		[]byte(key.String()), payload))
}
