package variant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is the sentinel wrapped by every MalformedError. Callers that
// only need the record-skip decision can test with errors.Is.
var ErrMalformed = errors.New("malformed variant")

// MalformedError reports an unparseable variant descriptor. It is
// unrecoverable for the record it belongs to: the caller skips it and
// continues with the rest of the batch.
type MalformedError struct {
	Raw    string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed variant %q: %s", e.Raw, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

func malformed(raw, format string, args ...any) error {
	return &MalformedError{Raw: raw, Reason: fmt.Sprintf(format, args...)}
}

// validChroms is the accepted chromosome set after prefix stripping.
var validChroms = func() map[string]struct{} {
	m := make(map[string]struct{}, 25)
	for i := 1; i <= 22; i++ {
		m[strconv.Itoa(i)] = struct{}{}
	}
	m["X"] = struct{}{}
	m["Y"] = struct{}{}
	m["MT"] = struct{}{}
	return m
}()

// Normalize parses a raw textual variant descriptor into a canonical Key.
//
// Accepted shapes (case-insensitive, "chr" prefix optional everywhere):
//
//	chr10:94761930:G>A
//	10:94761930:G:A
//	10-94761930-G-A
//
// Two descriptors that differ only in chromosome-prefix style or allele
// case normalize to the identical Key. The function performs no external
// lookups and fails with a MalformedError on any syntactic problem.
func Normalize(raw string) (Key, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Key{}, malformed(raw, "empty descriptor")
	}

	var fields []string
	switch {
	case strings.Contains(s, ":"):
		fields = strings.Split(s, ":")
	case strings.Contains(s, "-"):
		// The dash form cannot express the symbolic "-" allele: the
		// separator swallows it and the field-count check below rejects
		// the descriptor. Symbolic alleles need the colon form.
		fields = strings.Split(s, "-")
	default:
		return Key{}, malformed(raw, "no recognized field separator")
	}

	// The colon form may carry the alleles as a single "REF>ALT" field.
	if len(fields) == 3 && strings.Contains(fields[2], ">") {
		alleles := strings.SplitN(fields[2], ">", 2)
		fields = []string{fields[0], fields[1], alleles[0], alleles[1]}
	}

	if len(fields) != 4 {
		return Key{}, malformed(raw, "expected chrom, position, ref, alt (got %d fields)", len(fields))
	}

	return NormalizeParts(fields[0], fields[1], fields[2], fields[3])
}

// NormalizeParts builds a canonical Key from already-split fields. It applies
// the same validation and canonicalization rules as Normalize.
func NormalizeParts(chrom, pos, ref, alt string) (Key, error) {
	raw := fmt.Sprintf("%s:%s:%s>%s", chrom, pos, ref, alt)

	c, err := normalizeChrom(chrom)
	if err != nil {
		return Key{}, malformed(raw, "%v", err)
	}

	p, err := strconv.Atoi(strings.TrimSpace(pos))
	if err != nil {
		return Key{}, malformed(raw, "non-numeric position %q", pos)
	}
	if p <= 0 {
		return Key{}, malformed(raw, "position must be positive, got %d", p)
	}

	r, err := normalizeAllele(ref)
	if err != nil {
		return Key{}, malformed(raw, "reference allele: %v", err)
	}
	a, err := normalizeAllele(alt)
	if err != nil {
		return Key{}, malformed(raw, "alternate allele: %v", err)
	}

	return Key{Chrom: c, Pos: p, Ref: r, Alt: a}, nil
}

// normalizeChrom strips the optional "chr" prefix, upper-cases, folds the
// mitochondrial aliases and validates against the accepted set.
func normalizeChrom(chrom string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(chrom))
	c = strings.TrimPrefix(c, "CHR")
	if c == "M" {
		c = "MT"
	}
	if c == "" {
		return "", errors.New("missing chromosome")
	}
	if _, ok := validChroms[c]; !ok {
		return "", fmt.Errorf("unknown chromosome %q", chrom)
	}
	return c, nil
}

// normalizeAllele upper-cases the allele and validates that it is either a
// nucleotide sequence (ACGTN) or one of the symbolic markers used for
// deletions, insertions and structural alleles.
func normalizeAllele(allele string) (string, error) {
	a := strings.ToUpper(strings.TrimSpace(allele))
	if a == "" {
		return "", errors.New("missing allele")
	}

	// Symbolic alleles pass through verbatim.
	switch a {
	case "-", "*", "DEL", "INS":
		return a, nil
	}
	if strings.HasPrefix(a, "<") && strings.HasSuffix(a, ">") && len(a) > 2 {
		return a, nil
	}

	for _, ch := range a {
		switch ch {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return "", fmt.Errorf("invalid nucleotide %q in %q", string(ch), allele)
		}
	}
	return a, nil
}
