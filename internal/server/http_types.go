package server

import (
	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/engine"
	"github.com/sanonone/pharmakg/pkg/graph"
)

// IngestBatchRequest is the body of POST /ingest/variants.
type IngestBatchRequest struct {
	Source  string          `json:"source"`
	Records []engine.Record `json:"records"`
}

// IngestEvidenceRequest is the body of POST /ingest/evidence.
type IngestEvidenceRequest struct {
	Variant string              `json:"variant"`
	Drug    string              `json:"drug"`
	Effect  graph.AffectsEffect `json:"effect,omitempty"`
	Studies []engine.StudyRef   `json:"studies"`
}

// IngestIndicationRequest is the body of POST /ingest/indications.
type IngestIndicationRequest struct {
	Drug    string            `json:"drug"`
	Disease string            `json:"disease"`
	Level   graph.TreatsLevel `json:"level,omitempty"`
	Studies []engine.StudyRef `json:"studies"`
}

// AnnotateRequest is the body of POST /annotate.
type AnnotateRequest struct {
	Variant   string                `json:"variant"`
	Fragments []annotation.Fragment `json:"fragments"`
}

// AnnotateResponse carries the merged annotation; on a trust conflict
// the response is 409 with the partial merge and the conflict message.
type AnnotateResponse struct {
	Annotation annotation.Annotated `json:"annotation"`
	Conflict   string               `json:"conflict,omitempty"`
}

// NormalizeRequest is the body of POST /variants/normalize.
type NormalizeRequest struct {
	Variant string `json:"variant"`
}

// NormalizeResponse returns the canonical form of a variant key.
type NormalizeResponse struct {
	Key        string `json:"key"`
	Chromosome string `json:"chromosome"`
	Position   int    `json:"position"`
	Ref        string `json:"ref"`
	Alt        string `json:"alt"`
}
