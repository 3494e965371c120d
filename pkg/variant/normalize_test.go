package variant

import (
	"errors"
	"testing"
)

func TestNormalizeEquivalentForms(t *testing.T) {
	// All of these must collapse to the exact same canonical key.
	want := Key{Chrom: "10", Pos: 94761930, Ref: "G", Alt: "A"}

	forms := []string{
		"chr10:94761930:G>A",
		"CHR10:94761930:g>a",
		"10:94761930:G:A",
		"10-94761930-G-A",
		"  chr10:94761930:G>A  ",
		"Chr10:94761930:g:A",
	}

	for _, raw := range forms {
		t.Run(raw, func(t *testing.T) {
			got, err := Normalize(raw)
			if err != nil {
				t.Fatalf("Normalize(%q) failed: %v", raw, err)
			}
			if got != want {
				t.Errorf("Normalize(%q) = %+v, want %+v", raw, got, want)
			}
		})
	}
}

func TestNormalizeIdempotence(t *testing.T) {
	// Re-normalizing the rendered form of a key must yield the same key.
	key, err := Normalize("17:41276045:ACT:A")
	if err != nil {
		t.Fatal(err)
	}
	again, err := Normalize(key.String())
	if err != nil {
		t.Fatalf("re-normalizing %q failed: %v", key.String(), err)
	}
	if again != key {
		t.Errorf("round trip changed key: %+v -> %+v", key, again)
	}
}

func TestNormalizeChromAliases(t *testing.T) {
	cases := map[string]string{
		"chrM:100:A>G":  "MT",
		"MT:100:A>G":    "MT",
		"chrX:5000:C>T": "X",
		"y:1:G>A":       "Y",
	}
	for raw, wantChrom := range cases {
		got, err := Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", raw, err)
		}
		if got.Chrom != wantChrom {
			t.Errorf("Normalize(%q).Chrom = %q, want %q", raw, got.Chrom, wantChrom)
		}
	}
}

func TestNormalizeSymbolicAlleles(t *testing.T) {
	cases := []string{
		"chr7:117559590:CTT>-",
		"chr7:117559590:G>*",
		"chr7:117559590:A><DEL>",
		"chr7:117559590:del>ins",
	}
	for _, raw := range cases {
		if _, err := Normalize(raw); err != nil {
			t.Errorf("Normalize(%q) rejected symbolic allele: %v", raw, err)
		}
	}
}

func TestNormalizeMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no separator", "chr10 94761930 G A"},
		{"missing fields", "chr10:94761930"},
		{"non-numeric position", "chr10:abc:G>A"},
		{"zero position", "chr10:0:G>A"},
		{"negative position", "chr10:-5:G>A"},
		{"bad chromosome", "chr99:100:G>A"},
		{"bad nucleotide", "chr10:100:G>Z"},
		{"empty allele", "chr10:100:>A"},
		{"dash form with symbolic allele", "1-100-A--"},
		{"dash form missing alt", "1-100-A-"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw)
			if err == nil {
				t.Fatalf("Normalize(%q) unexpectedly succeeded", tc.raw)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error %v does not wrap ErrMalformed", err)
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Errorf("error %v is not a *MalformedError", err)
			}
		})
	}
}

func TestPathogenicityOrdering(t *testing.T) {
	scale := []Pathogenicity{Benign, LikelyBenign, Uncertain, LikelyPathogenic, Pathogenic}
	for i := 1; i < len(scale); i++ {
		if scale[i].Severity() <= scale[i-1].Severity() {
			t.Errorf("%s should rank above %s", scale[i], scale[i-1])
		}
	}
	if PathogenicityAbsent.Severity() != 0 {
		t.Errorf("absent pathogenicity must rank below every assertion")
	}
	if Uncertain.IsConcrete() {
		t.Error("Uncertain must not count as a concrete classification")
	}
	if !LikelyBenign.IsConcrete() {
		t.Error("LikelyBenign is a concrete classification")
	}
}
