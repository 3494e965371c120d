// HTTP API handlers.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"

	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/evidence"
	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/variant"
)

// router is the main manual router. It inspects the URL and delegates to
// the proper handler.
func (s *Server) router(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// --- Debug endpoints (pprof) ---
	if strings.HasPrefix(path, "/debug/pprof") {
		switch {
		case path == "/debug/pprof/":
			pprof.Index(w, r)
		case path == "/debug/pprof/cmdline":
			pprof.Cmdline(w, r)
		case path == "/debug/pprof/profile":
			pprof.Profile(w, r)
		case path == "/debug/pprof/symbol":
			pprof.Symbol(w, r)
		case path == "/debug/pprof/trace":
			pprof.Trace(w, r)
		default:
			s.writeHTTPError(w, http.StatusNotFound, "pprof endpoint not found")
		}
		return
	}

	// --- Ingestion endpoints ---
	switch path {
	case "/ingest/variants":
		s.handleIngestVariants(w, r)
		return
	case "/ingest/evidence":
		s.handleIngestEvidence(w, r)
		return
	case "/ingest/indications":
		s.handleIngestIndication(w, r)
		return
	case "/annotate":
		s.handleAnnotate(w, r)
		return
	}

	// --- Variant endpoints (keys carry ':' and '>', so they travel in
	// query parameters rather than path segments) ---
	switch path {
	case "/variants/normalize":
		s.handleNormalize(w, r)
		return
	case "/variants/annotation":
		s.handleVariantAnnotation(w, r)
		return
	case "/variants/drugs":
		s.handleVariantDrugs(w, r)
		return
	case "/variants/evidence":
		s.handleVariantEvidence(w, r)
		return
	case "/variants/range":
		s.handleVariantRange(w, r)
		return
	}

	// --- Query endpoints ---
	if path == "/evidence/query" {
		s.handleEvidenceQuery(w, r)
		return
	}
	if path == "/graph/stats" {
		s.handleGraphStats(w, r)
		return
	}

	// URL patterns with parameters, e.g. /genes/{symbol}/variants
	if strings.HasPrefix(path, "/genes/") {
		s.handleGeneRequest(w, r, strings.TrimPrefix(path, "/genes/"))
		return
	}
	if strings.HasPrefix(path, "/drugs/") {
		s.handleDrugRequest(w, r, strings.TrimPrefix(path, "/drugs/"))
		return
	}
	if strings.HasPrefix(path, "/tasks/") {
		s.handleGetTask(w, r, strings.TrimPrefix(path, "/tasks/"))
		return
	}

	// --- Admin endpoints ---
	switch path {
	case "/admin/seed":
		s.handleSeed(w, r)
		return
	case "/admin/rewrite-journal":
		s.handleRewriteJournal(w, r)
		return
	}

	s.writeHTTPError(w, http.StatusNotFound, "endpoint not found")
}

// --- Ingestion handlers ---

func (s *Server) handleIngestVariants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req IngestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Source == "" {
		req.Source = "http"
	}

	res, err := s.Engine.IngestBatch(req.Source, req.Records)
	if err != nil {
		// Per-record data problems are reported inside res; an error
		// here means the batch hit an integrity violation and stopped.
		s.writeHTTPResponse(w, http.StatusBadRequest, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, res)
}

func (s *Server) handleIngestEvidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req IngestEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Engine.IngestEvidence(req.Variant, req.Drug, req.Effect, req.Studies); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleIngestIndication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req IngestIndicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Engine.LinkDrugDisease(req.Drug, req.Disease, req.Level, req.Studies); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req AnnotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	merged, err := s.Engine.Annotate(req.Variant, req.Fragments)
	switch {
	case errors.Is(err, annotation.ErrConflict):
		// The partial merge was stored; the conflict needs escalation.
		s.writeHTTPResponse(w, http.StatusConflict, AnnotateResponse{
			Annotation: merged,
			Conflict:   err.Error(),
		})
	case err != nil:
		s.writeDomainError(w, err)
	default:
		s.writeHTTPResponse(w, http.StatusOK, AnnotateResponse{Annotation: merged})
	}
}

// --- Variant handlers ---

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req NormalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key, err := variant.Normalize(req.Variant)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, NormalizeResponse{
		Key:        key.String(),
		Chromosome: key.Chrom,
		Position:   key.Pos,
		Ref:        key.Ref,
		Alt:        key.Alt,
	})
}

func (s *Server) handleVariantAnnotation(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	ann, ok, err := s.Engine.Annotation(key)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "variant not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, ann)
}

func (s *Server) handleVariantDrugs(w http.ResponseWriter, r *http.Request) {
	drugs, err := s.Engine.DrugsForVariant(r.URL.Query().Get("key"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, orEmpty(drugs))
}

func (s *Server) handleVariantEvidence(w http.ResponseWriter, r *http.Request) {
	matches, err := s.Engine.QueryVariantEvidence(r.URL.Query().Get("key"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, orEmptyMatches(matches))
}

func (s *Server) handleVariantRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chrom := q.Get("chrom")
	from, err1 := strconv.Atoi(q.Get("from"))
	to, err2 := strconv.Atoi(q.Get("to"))
	if chrom == "" || err1 != nil || err2 != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "required query parameters: chrom, from, to")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, orEmpty(s.Engine.VariantsInRange(chrom, from, to)))
}

// --- Query handlers ---

func (s *Server) handleEvidenceQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	q := r.URL.Query()
	gene, drug := q.Get("gene"), q.Get("drug")

	var matches []evidence.Match
	switch {
	case gene != "":
		matches = s.Engine.QueryEvidence(gene, drug)
	case drug != "":
		matches = s.Engine.QueryDrugEvidence(drug)
	default:
		s.writeHTTPError(w, http.StatusBadRequest, "required query parameter: gene or drug")
		return
	}
	// No connecting evidence is an empty result, not an error.
	s.writeHTTPResponse(w, http.StatusOK, orEmptyMatches(matches))
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, s.Engine.Stats())
}

// handleGeneRequest serves /genes/{symbol}/variants and
// /genes/{symbol}/features.
func (s *Server) handleGeneRequest(w http.ResponseWriter, r *http.Request, rest string) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	symbol, action, ok := strings.Cut(rest, "/")
	if !ok || symbol == "" {
		s.writeHTTPError(w, http.StatusNotFound, "expected /genes/{symbol}/variants or /genes/{symbol}/features")
		return
	}
	switch action {
	case "variants":
		s.writeHTTPResponse(w, http.StatusOK, orEmpty(s.Engine.VariantsForGene(symbol)))
	case "features":
		rows := s.Engine.FeatureMatrix(symbol)
		if rows == nil {
			rows = []evidence.Features{}
		}
		s.writeHTTPResponse(w, http.StatusOK, rows)
	default:
		s.writeHTTPError(w, http.StatusNotFound, "unknown gene action")
	}
}

// handleDrugRequest serves /drugs/{name}/genes and
// /drugs/{name}/indications.
func (s *Server) handleDrugRequest(w http.ResponseWriter, r *http.Request, rest string) {
	if r.Method != http.MethodGet {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	name, action, ok := strings.Cut(rest, "/")
	if !ok || name == "" {
		s.writeHTTPError(w, http.StatusNotFound, "expected /drugs/{name}/genes or /drugs/{name}/indications")
		return
	}
	switch action {
	case "genes":
		s.writeHTTPResponse(w, http.StatusOK, orEmpty(s.Engine.GenesForDrug(name)))
	case "indications":
		s.writeHTTPResponse(w, http.StatusOK, orEmpty(s.Engine.DrugIndications(name)))
	default:
		s.writeHTTPError(w, http.StatusNotFound, "unknown drug action")
	}
}

// --- Admin handlers ---

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	if err := s.Engine.SeedReference(); err != nil {
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "OK"})
}

// handleRewriteJournal starts an asynchronous journal compaction and
// returns a task id to poll.
func (s *Server) handleRewriteJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeHTTPError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	task := s.taskManager.NewTask()
	go func() {
		task.SetStatus(TaskStatusRunning)
		task.SetProgress("compacting journal")
		if err := s.Engine.RewriteJournal(); err != nil {
			task.SetError(err)
			return
		}
		task.SetStatus(TaskStatusCompleted)
	}()
	s.writeHTTPResponse(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request, id string) {
	task, found := s.taskManager.GetTask(id)
	if !found {
		s.writeHTTPError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.Snapshot())
}

// --- Response helpers ---

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}

// writeDomainError maps the engine's error taxonomy onto HTTP status
// codes: malformed input and schema misuse are the client's fault,
// anything else is ours.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, variant.ErrMalformed),
		errors.Is(err, graph.ErrNoSupportingStudies),
		errors.Is(err, graph.ErrIntegrity):
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, annotation.ErrConflict):
		s.writeHTTPError(w, http.StatusConflict, err.Error())
	default:
		s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyMatches(m []evidence.Match) []evidence.Match {
	if m == nil {
		return []evidence.Match{}
	}
	return m
}
