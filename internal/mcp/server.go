package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/pharmakg/pkg/engine"
)

func NewMCPServer(eng *engine.Engine) *mcp.Server {
	service := NewService(eng)

	// Create Server instance
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "PharmaKG",
		Version: "0.3.0",
	}, nil) // Options can be nil for default

	// Register Tools using the Generic AddTool which inspects structs!

	mcp.AddTool(s, &mcp.Tool{
		Name:        "normalize_variant",
		Description: "Normalize a genomic variant identifier (e.g. '10:94761930:G:A' or 'chr10:94761930:G>A') into its canonical key.",
	}, service.NormalizeVariant)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "query_evidence",
		Description: "Rank the variant-drug evidence connecting a gene to a drug, or all evidence for a drug, by aggregate confidence.",
	}, service.QueryEvidence)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "variant_report",
		Description: "Report everything known about one variant: merged annotation, gene, affected drugs and their evidence.",
	}, service.VariantReport)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "gene_drugs",
		Description: "List the drugs whose response is affected by variants of a gene, with the variants behind each link.",
	}, service.GeneDrugs)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "drug_indications",
		Description: "List the diseases a drug treats according to the knowledge graph.",
	}, service.DrugIndications)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "graph_stats",
		Description: "Report the size of the knowledge graph per node and edge type.",
	}, service.GraphStats)

	return s
}
