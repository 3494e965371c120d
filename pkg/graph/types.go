// Package graph implements the provenance-aware pharmacogenomic knowledge
// graph store: typed nodes, typed relationships carrying supporting-study
// provenance, idempotent upserts and the traversal primitives the evidence
// aggregator is built on.
//
// The store is an explicitly constructed object passed to ingestion and
// query entry points; there is no global instance. Concurrency discipline
// (per-key striped locking) is part of its public contract, see Store.
package graph

import (
	"errors"
	"fmt"
)

// NodeType enumerates the node labels of the graph.
type NodeType string

const (
	NodeGene    NodeType = "Gene"
	NodeVariant NodeType = "Variant"
	NodeDrug    NodeType = "Drug"
	NodeDisease NodeType = "Disease"
	NodeStudy   NodeType = "Study"
)

// Valid reports whether the node type is one of the defined labels.
func (t NodeType) Valid() bool {
	switch t {
	case NodeGene, NodeVariant, NodeDrug, NodeDisease, NodeStudy:
		return true
	}
	return false
}

// EdgeType enumerates the relationship types of the graph.
type EdgeType string

const (
	// EdgeHasVariant links a Gene to one of its Variants.
	EdgeHasVariant EdgeType = "HAS_VARIANT"
	// EdgeAffects links a Variant to a Drug whose response it modulates.
	EdgeAffects EdgeType = "AFFECTS"
	// EdgeTreats links a Drug to a Disease indication.
	EdgeTreats EdgeType = "TREATS"
)

// edgeSchema maps every edge type to its required (from, to) node types.
// Anything outside this table is a programming error, not a data error.
var edgeSchema = map[EdgeType][2]NodeType{
	EdgeHasVariant: {NodeGene, NodeVariant},
	EdgeAffects:    {NodeVariant, NodeDrug},
	EdgeTreats:     {NodeDrug, NodeDisease},
}

// Endpoints returns the (from, to) node types the edge type connects.
func (t EdgeType) Endpoints() (NodeType, NodeType) {
	ep := edgeSchema[t]
	return ep[0], ep[1]
}

// requiresStudies reports whether an edge type must carry >=1 supporting
// study reference. HAS_VARIANT is structural and carries none.
func (t EdgeType) requiresStudies() bool {
	return t == EdgeAffects || t == EdgeTreats
}

// AffectsEffect is the effect classification on an AFFECTS edge.
type AffectsEffect string

const (
	EffectIncreasesRisk AffectsEffect = "increases_risk"
	EffectDecreasesRisk AffectsEffect = "decreases_risk"
	EffectNoEffect      AffectsEffect = "no_effect"
	EffectAlteredDosing AffectsEffect = "altered_dosing"
)

// TreatsLevel is the evidence level on a TREATS edge.
type TreatsLevel string

const (
	LevelEstablished     TreatsLevel = "established"
	LevelInvestigational TreatsLevel = "investigational"
)

// Attributes is the scalar attribute bag of a node or edge. Merging is
// last-write-wins on non-nil values; nil values never erase prior state.
type Attributes map[string]any

// Well-known attribute names. Study attributes feed the evidence
// aggregator, the rest are descriptive.
const (
	AttrEffect     = "effect"      // AFFECTS: AffectsEffect
	AttrLevel      = "level"       // TREATS: TreatsLevel
	AttrEffectSize = "effect_size" // Study: signed float64
	AttrSampleSize = "sample_size" // Study: positive int
	AttrPubRef     = "pub_ref"     // Study: opaque publication reference
	AttrChromosome = "chromosome"  // Gene
	AttrStrand     = "strand"      // Gene
	AttrName       = "name"        // Gene/Disease: display name
	AttrDrugbankID = "drugbank_id" // Drug: external database identifier
)

// ErrIntegrity is the sentinel wrapped by every IntegrityError.
var ErrIntegrity = errors.New("graph integrity violation")

// IntegrityError reports a violated programming contract, e.g. an AFFECTS
// edge whose source is a Gene. It is always fatal for the ingestion batch
// and is never retried.
type IntegrityError struct {
	Op     string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", e.Op, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func integrityErr(op, format string, args ...any) error {
	return &IntegrityError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// ErrNoSupportingStudies rejects an evidence edge ingested without any
// supporting study reference. Unlike an IntegrityError this is a
// data-quality problem of the single record: the caller skips it and the
// batch continues.
var ErrNoSupportingStudies = errors.New("evidence edge requires at least one supporting study")

// NodeView is a read-only copy of a node handed out by the store.
type NodeView struct {
	Type  NodeType   `json:"type"`
	Key   string     `json:"key"`
	Attrs Attributes `json:"attrs,omitempty"`
}

// EdgeView is a read-only copy of an edge, supporting studies included.
type EdgeView struct {
	Type    EdgeType   `json:"type"`
	From    string     `json:"from"`
	To      string     `json:"to"`
	Attrs   Attributes `json:"attrs,omitempty"`
	Studies []string   `json:"studies,omitempty"`
}

// StudyView is the typed projection of a Study node consumed by the
// evidence aggregator.
type StudyView struct {
	Key        string  `json:"key"`
	EffectSize float64 `json:"effect_size"`
	SampleSize int     `json:"sample_size"`
	PubRef     string  `json:"pub_ref,omitempty"`
}

// Stats summarizes graph size per node and edge type.
type Stats struct {
	Nodes map[NodeType]int `json:"nodes"`
	Edges map[EdgeType]int `json:"edges"`
}

// TotalNodes returns the node count across all types.
func (s Stats) TotalNodes() int {
	n := 0
	for _, c := range s.Nodes {
		n += c
	}
	return n
}

// TotalEdges returns the edge count across all types.
func (s Stats) TotalEdges() int {
	n := 0
	for _, c := range s.Edges {
		n += c
	}
	return n
}
