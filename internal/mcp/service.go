package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/pharmakg/pkg/engine"
	"github.com/sanonone/pharmakg/pkg/variant"
)

type Service struct {
	engine *engine.Engine
}

func NewService(eng *engine.Engine) *Service {
	return &Service{engine: eng}
}

// --- Tool Handlers ---

func (s *Service) NormalizeVariant(ctx context.Context, req *mcp.CallToolRequest, args NormalizeVariantArgs) (*mcp.CallToolResult, NormalizeVariantResult, error) {
	key, err := variant.Normalize(args.Variant)
	if err != nil {
		return nil, NormalizeVariantResult{}, err
	}
	return nil, NormalizeVariantResult{
		Key:        key.String(),
		Chromosome: key.Chrom,
		Position:   key.Pos,
		Ref:        key.Ref,
		Alt:        key.Alt,
	}, nil
}

func (s *Service) QueryEvidence(ctx context.Context, req *mcp.CallToolRequest, args QueryEvidenceArgs) (*mcp.CallToolResult, QueryEvidenceResult, error) {
	if args.Drug == "" {
		return nil, QueryEvidenceResult{}, fmt.Errorf("drug is required")
	}

	matches := s.engine.QueryDrugEvidence(args.Drug)
	if args.Gene != "" {
		matches = s.engine.QueryEvidence(args.Gene, args.Drug)
	}

	res := make([]string, 0, len(matches))
	for _, m := range matches {
		res = append(res, m.Describe())
	}
	if len(res) == 0 {
		res = append(res, "No connecting evidence found.")
	}
	return nil, QueryEvidenceResult{Matches: res}, nil
}

func (s *Service) VariantReport(ctx context.Context, req *mcp.CallToolRequest, args VariantReportArgs) (*mcp.CallToolResult, VariantReportResult, error) {
	ann, found, err := s.engine.Annotation(args.Variant)
	if err != nil {
		return nil, VariantReportResult{}, err
	}

	key, _ := variant.Normalize(args.Variant)

	// Format as a readable description for the LLM
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Variant %s:\n", key.String()))

	if !found {
		sb.WriteString("- no annotation recorded\n")
	} else {
		if ann.Gene != "" {
			sb.WriteString(fmt.Sprintf("- gene: %s\n", ann.Gene))
		}
		if ann.Pathogenicity != "" {
			sb.WriteString(fmt.Sprintf("- pathogenicity: %s\n", ann.Pathogenicity))
		}
		if ann.Effect != "" {
			sb.WriteString(fmt.Sprintf("- effect: %s\n", ann.Effect))
		}
		if ann.Frequency != nil {
			sb.WriteString(fmt.Sprintf("- allele frequency: %g\n", *ann.Frequency))
		}
		if ann.Conservation != nil {
			sb.WriteString(fmt.Sprintf("- conservation: %g\n", *ann.Conservation))
		}
		if len(ann.Sources) > 0 {
			sb.WriteString(fmt.Sprintf("- sources: %s\n", strings.Join(ann.Sources, ", ")))
		}
	}

	matches, err := s.engine.QueryVariantEvidence(args.Variant)
	if err != nil {
		return nil, VariantReportResult{}, err
	}
	if len(matches) > 0 {
		sb.WriteString("\nDrug evidence:\n")
		for _, m := range matches {
			sb.WriteString("- " + m.Describe() + "\n")
		}
	}

	return nil, VariantReportResult{Report: sb.String()}, nil
}

func (s *Service) GeneDrugs(ctx context.Context, req *mcp.CallToolRequest, args GeneDrugsArgs) (*mcp.CallToolResult, GeneDrugsResult, error) {
	var lines []string
	for _, vk := range s.engine.VariantsForGene(args.Gene) {
		drugs, err := s.engine.DrugsForVariant(vk)
		if err != nil {
			return nil, GeneDrugsResult{}, err
		}
		for _, d := range drugs {
			lines = append(lines, fmt.Sprintf("%s (via %s)", d, vk))
		}
	}
	if len(lines) == 0 {
		lines = []string{fmt.Sprintf("No drug links found for gene %q.", args.Gene)}
	}
	return nil, GeneDrugsResult{Drugs: lines}, nil
}

func (s *Service) DrugIndications(ctx context.Context, req *mcp.CallToolRequest, args DrugIndicationsArgs) (*mcp.CallToolResult, DrugIndicationsResult, error) {
	inds := s.engine.DrugIndications(args.Drug)
	if len(inds) == 0 {
		inds = []string{fmt.Sprintf("No indications recorded for drug %q.", args.Drug)}
	}
	return nil, DrugIndicationsResult{Indications: inds}, nil
}

func (s *Service) GraphStats(ctx context.Context, req *mcp.CallToolRequest, args GraphStatsArgs) (*mcp.CallToolResult, GraphStatsResult, error) {
	stats := s.engine.Stats()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Knowledge graph: %d nodes, %d edges.\n", stats.TotalNodes(), stats.TotalEdges()))
	for typ, n := range stats.Nodes {
		sb.WriteString(fmt.Sprintf("- %s nodes: %d\n", typ, n))
	}
	for typ, n := range stats.Edges {
		sb.WriteString(fmt.Sprintf("- %s edges: %d\n", typ, n))
	}
	return nil, GraphStatsResult{Summary: sb.String()}, nil
}
