package mcp

// --- Tool Arguments ---

type NormalizeVariantArgs struct {
	Variant string `json:"variant" jsonschema:"The variant identifier to normalize (e.g. '10:94761930:G:A'),required"`
}

type NormalizeVariantResult struct {
	Key        string `json:"key"`
	Chromosome string `json:"chromosome"`
	Position   int    `json:"position"`
	Ref        string `json:"ref"`
	Alt        string `json:"alt"`
}

type QueryEvidenceArgs struct {
	Gene string `json:"gene,omitempty" jsonschema:"Gene symbol (e.g. 'CYP2C9'). Omit to query by drug alone"`
	Drug string `json:"drug" jsonschema:"Drug name (e.g. 'warfarin'),required"`
}

type QueryEvidenceResult struct {
	Matches []string `json:"matches"` // Formatted strings for the LLM
}

type VariantReportArgs struct {
	Variant string `json:"variant" jsonschema:"Variant key in any normalizable form,required"`
}

type VariantReportResult struct {
	Report string `json:"report"` // Textual summary of the variant's neighborhood
}

type GeneDrugsArgs struct {
	Gene string `json:"gene" jsonschema:"Gene symbol,required"`
}

type GeneDrugsResult struct {
	Drugs []string `json:"drugs"` // One formatted line per drug link
}

type DrugIndicationsArgs struct {
	Drug string `json:"drug" jsonschema:"Drug name,required"`
}

type DrugIndicationsResult struct {
	Indications []string `json:"indications"`
}

type GraphStatsArgs struct{}

type GraphStatsResult struct {
	Summary string `json:"summary"`
}
