package engine

import (
	"fmt"

	"github.com/sanonone/pharmakg/pkg/annotation"
	"github.com/sanonone/pharmakg/pkg/graph"
	"github.com/sanonone/pharmakg/pkg/variant"
)

// SeedReference loads a small curated pharmacogene dataset: the
// canonical drug-metabolizer genes with one well-studied variant each,
// their drug responses and indications. Useful for demos and smoke
// tests; all upserts are idempotent so re-seeding is harmless.
func (e *Engine) SeedReference() error {
	genes := []struct {
		symbol, name, chrom string
	}{
		{"CYP2C19", "Cytochrome P450 2C19", "19"},
		{"CYP2C9", "Cytochrome P450 2C9", "10"},
		{"CYP2D6", "Cytochrome P450 2D6", "22"},
		{"CYP3A4", "Cytochrome P450 3A4", "7"},
		{"TPMT", "Thiopurine S-methyltransferase", "6"},
		{"VKORC1", "Vitamin K epoxide reductase complex subunit 1", "16"},
	}
	for _, g := range genes {
		err := e.UpsertNode(graph.NodeGene, g.symbol, graph.Attributes{
			graph.AttrName:       g.name,
			graph.AttrChromosome: g.chrom,
		})
		if err != nil {
			return fmt.Errorf("seed gene %s: %w", g.symbol, err)
		}
	}

	drugs := []struct{ name, drugbank string }{
		{"warfarin", "DB00682"},
		{"omeprazole", "DB00338"},
		{"clopidogrel", "DB00758"},
	}
	for _, d := range drugs {
		err := e.UpsertNode(graph.NodeDrug, d.name, graph.Attributes{
			graph.AttrDrugbankID: d.drugbank,
		})
		if err != nil {
			return fmt.Errorf("seed drug %s: %w", d.name, err)
		}
	}

	diseases := []struct{ key, icd string }{
		{"Atrial Fibrillation", "I48"},
		{"Gastroesophageal Reflux Disease", "K21"},
		{"Acute Coronary Syndrome", "I24"},
	}
	for _, d := range diseases {
		err := e.UpsertNode(graph.NodeDisease, d.key, graph.Attributes{"icd10": d.icd})
		if err != nil {
			return fmt.Errorf("seed disease %s: %w", d.key, err)
		}
	}

	records := []Record{
		{
			Variant: "chr10:94761930:G>A",
			Gene:    "CYP2C9",
			Fragments: []annotation.Fragment{
				annotation.PathogenicityFragment("clinvar", annotation.TierCurated, variant.LikelyPathogenic),
				annotation.ConservationFragment("cadd", annotation.TierPredicted, 25.3),
				annotation.EffectFragment("vep", annotation.TierPredicted, variant.EffectMissense),
			},
			Drugs: []DrugLink{{
				Drug:   "warfarin",
				Effect: graph.EffectAlteredDosing,
				Studies: []StudyRef{
					{Key: "PMID:12345678", EffectSize: 0.9, SampleSize: 450, PubRef: "pubmed/12345678"},
					{Key: "PMID:12345679", EffectSize: 0.7, SampleSize: 320, PubRef: "pubmed/12345679"},
				},
			}},
		},
		{
			Variant: "chr19:49503616:G>C",
			Gene:    "CYP2C19",
			Fragments: []annotation.Fragment{
				annotation.PathogenicityFragment("clinvar", annotation.TierCurated, variant.LikelyPathogenic),
				annotation.ConservationFragment("cadd", annotation.TierPredicted, 22.1),
			},
			Drugs: []DrugLink{{
				Drug:   "omeprazole",
				Effect: graph.EffectDecreasesRisk,
				Studies: []StudyRef{
					{Key: "PMID:12345680", EffectSize: 0.5, SampleSize: 210, PubRef: "pubmed/12345680"},
				},
			}},
		},
		{
			Variant: "chr22:42127942:C>T",
			Gene:    "CYP2D6",
			Fragments: []annotation.Fragment{
				annotation.PathogenicityFragment("clinvar", annotation.TierCurated, variant.Benign),
				annotation.ConservationFragment("cadd", annotation.TierPredicted, 5.2),
			},
			Drugs: []DrugLink{{
				Drug:   "clopidogrel",
				Effect: graph.EffectIncreasesRisk,
				Studies: []StudyRef{
					{Key: "PMID:12345681", EffectSize: 0.6, SampleSize: 380, PubRef: "pubmed/12345681"},
					{Key: "PMID:12345682", EffectSize: 0.4, SampleSize: 150, PubRef: "pubmed/12345682"},
				},
			}},
		},
	}
	if _, err := e.IngestBatch("seed", records); err != nil {
		return fmt.Errorf("seed records: %w", err)
	}

	indications := []struct {
		drug, disease string
		study         StudyRef
	}{
		{"warfarin", "Atrial Fibrillation", StudyRef{Key: "PMID:12345690", EffectSize: 1.1, SampleSize: 900, PubRef: "pubmed/12345690"}},
		{"omeprazole", "Gastroesophageal Reflux Disease", StudyRef{Key: "PMID:12345691", EffectSize: 0.8, SampleSize: 600, PubRef: "pubmed/12345691"}},
		{"clopidogrel", "Acute Coronary Syndrome", StudyRef{Key: "PMID:12345692", EffectSize: 0.9, SampleSize: 780, PubRef: "pubmed/12345692"}},
	}
	for _, ind := range indications {
		if err := e.LinkDrugDisease(ind.drug, ind.disease, graph.LevelEstablished, []StudyRef{ind.study}); err != nil {
			return fmt.Errorf("seed indication %s: %w", ind.drug, err)
		}
	}
	return nil
}
