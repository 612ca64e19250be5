package variant

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/inodb/fhir-consensus/internal/fhir"
)

// LOINC codes identifying variant Observations and their components.
const (
	CodeGeneticVariant = "69548-6" // Genetic variant assessment
	CodeExactStartEnd  = "81254-5" // Genomic allele start-end
)

// hgvsGenomic matches a genomic substitution such as "NC_000001.11:g.123A>G".
var hgvsGenomic = regexp.MustCompile(`g\.(\d+)([ACGTN]+)>([ACGTN]+)`)

// Resolution is a partial result from one Resolver.
// Pos is nil when the resolver found no position; Alt is empty when it
// found no alleles.
type Resolution struct {
	Pos *int64
	Ref string
	Alt string
}

// Resolver derives part of a variant call from an Observation.
type Resolver interface {
	// Name identifies the resolver in logs.
	Name() string

	// Resolve inspects obs. It never fails: missing data yields an empty
	// Resolution.
	Resolve(obs *fhir.Observation) Resolution
}

// DefaultResolvers is the resolution order used by NewExtractor.
// Structured position components take precedence over notation strings.
var DefaultResolvers = []Resolver{ComponentPosition{}, Notation{}}

// Resolve runs resolvers in order and merges their results. The position
// comes from the first resolver that yields one; the alleles from the first
// resolver that yields an alternate allele. It returns false if no position
// or no alternate allele was found.
func Resolve(obs *fhir.Observation, resolvers []Resolver) (Call, bool) {
	var (
		pos      *int64
		ref, alt string
		haveAlt  bool
	)
	for _, r := range resolvers {
		res := r.Resolve(obs)
		if pos == nil && res.Pos != nil {
			pos = res.Pos
		}
		if !haveAlt && res.Alt != "" {
			ref, alt, haveAlt = res.Ref, res.Alt, true
		}
		if pos != nil && haveAlt {
			break
		}
	}

	if pos == nil || !haveAlt {
		return Call{}, false
	}
	if ref == "" {
		ref = UnknownAllele
	}
	return Call{Pos: *pos, Allele: Allele{Ref: ref, Alt: alt}}, true
}

// ComponentPosition reads the position from an exact start-end component:
// the low bound of its valueRange, or else its valueInteger.
// If several components carry the code, the last one wins, even when it
// has no usable value.
type ComponentPosition struct{}

func (ComponentPosition) Name() string { return "component" }

func (ComponentPosition) Resolve(obs *fhir.Observation) Resolution {
	var res Resolution
	for _, comp := range obs.Component {
		if !comp.Code.HasCode(CodeExactStartEnd) {
			continue
		}
		switch {
		case comp.ValueRange != nil:
			res.Pos = nil
			if low := comp.ValueRange.Low; low != nil && low.Value != nil {
				res.Pos = floatPosition(*low.Value)
			}
		case comp.ValueInteger != nil:
			res.Pos = floatPosition(*comp.ValueInteger)
		}
	}
	return res
}

// floatPosition converts a JSON number to a position. Non-integral or
// out-of-range values yield nil.
func floatPosition(v float64) *int64 {
	if v != math.Trunc(v) || v >= math.MaxInt64 || v < math.MinInt64 {
		return nil
	}
	p := int64(v)
	return &p
}

// Notation parses HGVS-style genomic notation ("g.<pos><ref>><alt>") from
// coded values on the Observation and its components.
type Notation struct{}

func (Notation) Name() string { return "notation" }

func (Notation) Resolve(obs *fhir.Observation) Resolution {
	for _, cand := range NotationCandidates(obs) {
		m := hgvsGenomic.FindStringSubmatch(cand)
		if m == nil {
			continue
		}
		res := Resolution{Ref: m[2], Alt: m[3]}
		if p, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			res.Pos = &p
		}
		return res
	}
	return Resolution{}
}

// NotationCandidates returns the coded values that may hold variant
// notation: record-level valueCodeableConcept codings first, then those of
// each component. A coding qualifies if its system mentions "hgvs" or its
// code contains a colon.
func NotationCandidates(obs *fhir.Observation) []string {
	var cands []string
	collect := func(cc *fhir.CodeableConcept) {
		if cc == nil {
			return
		}
		for _, c := range cc.Coding {
			if c.Code == "" {
				continue
			}
			if strings.Contains(c.System, "hgvs") || strings.Contains(c.Code, ":") {
				cands = append(cands, c.Code)
			}
		}
	}

	collect(obs.ValueCodeableConcept)
	for i := range obs.Component {
		collect(obs.Component[i].ValueCodeableConcept)
	}
	return cands
}
