// Package variant extracts variant calls from FHIR Observations.
package variant

import "fmt"

// UnknownAllele marks a reference allele that could not be resolved.
const UnknownAllele = "."

// Allele is the substitution to perform at one position.
type Allele struct {
	Ref string // Reference allele, or UnknownAllele
	Alt string // Alternate allele
}

// RefKnown returns true if the reference allele was resolved.
func (a Allele) RefKnown() bool {
	return a.Ref != UnknownAllele && a.Ref != ""
}

// IsSNV returns true if the allele is a single nucleotide substitution.
func (a Allele) IsSNV() bool {
	return a.RefKnown() && len(a.Ref) == 1 && len(a.Alt) == 1
}

// IsIndel returns true if the allele changes sequence length.
func (a Allele) IsIndel() bool {
	return a.RefKnown() && len(a.Ref) != len(a.Alt)
}

// Call is a single variant call at a 1-based position.
type Call struct {
	Pos int64
	Allele
}

func (c Call) String() string {
	return fmt.Sprintf("%d:%s>%s", c.Pos, c.Ref, c.Alt)
}

// PositionMap maps 1-based positions to the allele to apply there.
//
// When several Observations resolve to the same position, the one that
// appears last in the Bundle wins. This follows Bundle enumeration order,
// not genomic order.
type PositionMap map[int64]Allele

// Set records a call, replacing any earlier call at the same position.
func (m PositionMap) Set(c Call) {
	m[c.Pos] = c.Allele
}
