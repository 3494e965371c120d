package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sanonone/pharmakg/pkg/engine"
	"github.com/sanonone/pharmakg/pkg/evidence"
	"github.com/sanonone/pharmakg/pkg/graph"
)

func newTestServer(t *testing.T, authToken string) *httptest.Server {
	t.Helper()
	eng, err := engine.Open(engine.DefaultOptions(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })

	s := NewServer(eng, ":0", authToken)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestHealthzAndAuth(t *testing.T) {
	ts := newTestServer(t, "test-secret-token")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("healthz expected 200, got %d", resp.StatusCode)
	}

	// Metrics are also reachable without a token.
	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("metrics expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/graph/stats")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("protected expected 401, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", ts.URL+"/graph/stats", nil)
	req.Header.Add("Authorization", "Bearer test-secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("protected with token expected 200, got %d", resp.StatusCode)
	}
}

func TestIngestAndEvidenceQuery(t *testing.T) {
	ts := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/ingest/variants", IngestBatchRequest{
		Source: "clinvar",
		Records: []engine.Record{{
			Variant: "10:94761930:G:A",
			Gene:    "CYP2C9",
			Drugs: []engine.DrugLink{{
				Drug:   "warfarin",
				Effect: graph.EffectAlteredDosing,
				Studies: []engine.StudyRef{
					{Key: "PMID:1", EffectSize: 0.8, SampleSize: 400},
				},
			}},
		}},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("ingest status = %d", resp.StatusCode)
	}
	res := decodeBody[engine.BatchResult](t, resp)
	if res.Accepted != 1 {
		t.Fatalf("batch result = %+v", res)
	}

	resp, err := http.Get(ts.URL + "/evidence/query?gene=CYP2C9&drug=warfarin")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("query status = %d", resp.StatusCode)
	}
	matches := decodeBody[[]evidence.Match](t, resp)
	if len(matches) != 1 || matches[0].Variant != "chr10:94761930:G>A" {
		t.Errorf("matches = %+v", matches)
	}

	// A pair with no connecting evidence returns 200 and an empty list.
	resp, err = http.Get(ts.URL + "/evidence/query?gene=CYP2C9&drug=ibuprofen")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("empty query status = %d", resp.StatusCode)
	}
	if empty := decodeBody[[]evidence.Match](t, resp); len(empty) != 0 {
		t.Errorf("expected empty result, got %+v", empty)
	}
}

func TestMalformedVariantIs400(t *testing.T) {
	ts := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/variants/normalize", NormalizeRequest{Variant: "chr99:banana"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed variant status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/variants/normalize", NormalizeRequest{Variant: "10-94761930-G-A"})
	if resp.StatusCode != 200 {
		t.Fatalf("normalize status = %d", resp.StatusCode)
	}
	norm := decodeBody[NormalizeResponse](t, resp)
	if norm.Key != "chr10:94761930:G>A" {
		t.Errorf("normalized key = %q", norm.Key)
	}
}

func TestAnnotateConflictIs409(t *testing.T) {
	ts := newTestServer(t, "")

	resp := postJSON(t, ts.URL+"/annotate", map[string]any{
		"variant": "chr10:94761930:G>A",
		"fragments": []map[string]any{
			{"source": "clinvar", "tier": 1, "kind": "pathogenicity", "pathogenicity": "pathogenic"},
			{"source": "panel", "tier": 1, "kind": "pathogenicity", "pathogenicity": "benign"},
			{"source": "gnomad", "tier": 2, "kind": "frequency", "frequency": 0.01},
		},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("conflict status = %d, want 409", resp.StatusCode)
	}
	body := decodeBody[AnnotateResponse](t, resp)
	if body.Conflict == "" {
		t.Error("conflict message missing")
	}
	if body.Annotation.Frequency == nil || *body.Annotation.Frequency != 0.01 {
		t.Errorf("partial merge missing from 409 body: %+v", body.Annotation)
	}
}

func TestSeedAndGraphEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	resp, err := http.Post(ts.URL+"/admin/seed", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("seed status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/genes/CYP2C9/variants")
	if err != nil {
		t.Fatal(err)
	}
	variants := decodeBody[[]string](t, resp)
	if len(variants) != 1 {
		t.Errorf("gene variants = %v", variants)
	}

	resp, err = http.Get(ts.URL + "/drugs/warfarin/indications")
	if err != nil {
		t.Fatal(err)
	}
	inds := decodeBody[[]string](t, resp)
	if len(inds) != 1 || inds[0] != "Atrial Fibrillation" {
		t.Errorf("indications = %v", inds)
	}

	resp, err = http.Get(ts.URL + "/graph/stats")
	if err != nil {
		t.Fatal(err)
	}
	stats := decodeBody[graph.Stats](t, resp)
	if stats.Nodes[graph.NodeGene] != 6 || stats.Nodes[graph.NodeDrug] != 3 {
		t.Errorf("stats = %+v", stats)
	}

	resp, err = http.Get(ts.URL + fmt.Sprintf("/variants/range?chrom=%s&from=%d&to=%d", "10", 94761000, 94762000))
	if err != nil {
		t.Fatal(err)
	}
	inRange := decodeBody[[]string](t, resp)
	if len(inRange) != 1 {
		t.Errorf("range = %v", inRange)
	}
}
