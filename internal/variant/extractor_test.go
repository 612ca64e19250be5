package variant

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/fhir-consensus/internal/fhir"
)

func parseBundle(t *testing.T, s string) *fhir.Bundle {
	t.Helper()
	b, err := fhir.ParseBundle(strings.NewReader(s))
	require.NoError(t, err)
	return b
}

// variantObs builds an Observation entry carrying the genetic variant code.
func variantObs(extra string) string {
	obs := `{"resourceType": "Observation",
	  "code": {"coding": [{"system": "http://loinc.org", "code": "69548-6"}]}`
	if extra != "" {
		obs += ", " + extra
	}
	return `{"resource": ` + obs + `}}`
}

func bundleOf(entries ...string) string {
	return `{"resourceType": "Bundle", "type": "transaction", "entry": [` +
		strings.Join(entries, ",") + `]}`
}

const (
	hgvsValue = `"valueCodeableConcept": {"coding": [{"system": "http://varnomen.hgvs.org", "code": "NC_045512.2:g.%sA>G"}]}`
)

func TestSampleID(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/data/patient-1.fhir.json", "patient-1"},
		{"patient-1.merged.fhir.json", "patient-1"},
		{"patient-1.merged.json", "patient-1"},
		{"patient-1.json", "patient-1"},
		{"patient-1.fhir.json.gz", "patient-1"},
		{"patient-1", "patient-1"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, SampleID(tt.path))
		})
	}
}

func TestExtract_NotationOnly(t *testing.T) {
	b := parseBundle(t, bundleOf(
		variantObs(strings.ReplaceAll(hgvsValue, "%s", "23403")),
	))

	calls := NewExtractor().Extract(b)
	require.Len(t, calls, 1)
	assert.Equal(t, Allele{Ref: "A", Alt: "G"}, calls[23403])
}

func TestExtract_ComponentPositionTakesPrecedence(t *testing.T) {
	// The structured component says 100; the notation says 23403.
	// Position comes from the component, alleles from the notation.
	b := parseBundle(t, bundleOf(variantObs(
		strings.ReplaceAll(hgvsValue, "%s", "23403")+`,
		"component": [{
		  "code": {"coding": [{"system": "http://loinc.org", "code": "81254-5"}]},
		  "valueRange": {"low": {"value": 100}}
		}]`,
	)))

	calls := NewExtractor().Extract(b)
	require.Len(t, calls, 1)
	assert.Equal(t, Allele{Ref: "A", Alt: "G"}, calls[100])
}

func TestExtract_ComponentValueInteger(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(`"component": [
		{
		  "code": {"coding": [{"code": "81254-5"}]},
		  "valueInteger": 42
		},
		{
		  "code": {"coding": [{"code": "other"}]},
		  "valueCodeableConcept": {"coding": [{"system": "http://varnomen.hgvs.org", "code": "g.7CT>A"}]}
		}
	]`)))

	calls := NewExtractor().Extract(b)
	require.Len(t, calls, 1)
	assert.Equal(t, Allele{Ref: "CT", Alt: "A"}, calls[42])
}

func TestExtract_NonIntegralValueIntegerFallsBackToNotation(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(`"component": [
		{"code": {"coding": [{"code": "81254-5"}]}, "valueInteger": 4.7}
	], "valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.9A>G"}]}`)))

	calls := NewExtractor().Extract(b)
	require.Len(t, calls, 1)
	assert.Equal(t, Allele{Ref: "A", Alt: "G"}, calls[9])
	assert.NotContains(t, calls, int64(4))
}

func TestExtract_IgnoresMalformedUnusedFields(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(`"id": 17,
	  "status": {"bad": true},
	  "subject": "Patient/1",
	  "valueCodeableConcept": {"text": ["x"], "coding": [{"system": "hgvs", "code": "g.9A>G", "display": 3}]},
	  "component": [
		{"code": {"coding": [{"code": "81254-5"}]}, "valueRange": {"low": {"value": 9, "unit": 1}, "high": "n/a"}}
	  ]`)))

	calls := NewExtractor().Extract(b)
	require.Len(t, calls, 1)
	assert.Equal(t, Allele{Ref: "A", Alt: "G"}, calls[9])
}

func TestExtract_ColonHeuristic(t *testing.T) {
	// No hgvs system, but the code contains a colon.
	b := parseBundle(t, bundleOf(variantObs(
		`"valueCodeableConcept": {"coding": [{"system": "http://example.org", "code": "chr1:g.12T>C"}]}`,
	)))

	calls := NewExtractor().Extract(b)
	assert.Equal(t, PositionMap{12: {Ref: "T", Alt: "C"}}, calls)
}

func TestExtract_NonCandidateIgnored(t *testing.T) {
	// Neither an hgvs system nor a colon: not a notation candidate.
	b := parseBundle(t, bundleOf(variantObs(
		`"valueCodeableConcept": {"coding": [{"system": "http://example.org", "code": "g.12T>C"}]}`,
	)))

	assert.Empty(t, NewExtractor().Extract(b))
}

func TestExtract_RecordLevelCandidatesFirst(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(
		`"valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.10A>T"}]},
		"component": [{
		  "code": {"coding": [{"code": "x"}]},
		  "valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.20C>G"}]}
		}]`,
	)))

	assert.Equal(t, PositionMap{10: {Ref: "A", Alt: "T"}}, NewExtractor().Extract(b))
}

func TestExtract_FirstMatchingCandidateWins(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(
		`"valueCodeableConcept": {"coding": [
		  {"system": "hgvs", "code": "p.Asp614Gly"},
		  {"system": "hgvs", "code": "g.30G>A"},
		  {"system": "hgvs", "code": "g.40T>C"}
		]}`,
	)))

	assert.Equal(t, PositionMap{30: {Ref: "G", Alt: "A"}}, NewExtractor().Extract(b))
}

func TestExtract_PositionWithoutAltIsDiscarded(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(`"component": [{
		"code": {"coding": [{"code": "81254-5"}]},
		"valueInteger": 5
	}]`)))

	assert.Empty(t, NewExtractor().Extract(b))
}

func TestExtract_LowercaseAllelesDoNotMatch(t *testing.T) {
	b := parseBundle(t, bundleOf(variantObs(
		`"valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.5a>g"}]}`,
	)))

	assert.Empty(t, NewExtractor().Extract(b))
}

func TestExtract_SkipsNonVariantRecords(t *testing.T) {
	b := parseBundle(t, bundleOf(
		`{"resource": {"resourceType": "Patient", "id": "p1"}}`,
		`{"resource": {"resourceType": "DiagnosticReport",
		  "code": {"coding": [{"code": "69548-6"}]}}}`,
		`{"resource": {"resourceType": "Observation",
		  "code": {"coding": [{"code": "8480-6"}]},
		  "valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.5A>G"}]}}}`,
		`{"resource": {"resourceType": "Observation", "component": "garbage"}}`,
	))

	assert.Empty(t, NewExtractor().Extract(b))
}

func TestExtract_LastWriteWins(t *testing.T) {
	b := parseBundle(t, bundleOf(
		variantObs(`"valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.5A>G"}]}`),
		variantObs(`"valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.9C>T"}]}`),
		variantObs(`"valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.5A>C"}]}`),
	))

	calls := NewExtractor().Extract(b)
	require.Len(t, calls, 2)
	assert.Equal(t, "C", calls[5].Alt)
	assert.Equal(t, "T", calls[9].Alt)
}

func TestExtract_EmptyBundle(t *testing.T) {
	calls := NewExtractor().Extract(parseBundle(t, `{"resourceType": "Bundle"}`))
	assert.NotNil(t, calls)
	assert.Empty(t, calls)
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample-7.fhir.json")
	require.NoError(t, os.WriteFile(path, []byte(bundleOf(
		variantObs(`"valueCodeableConcept": {"coding": [{"system": "hgvs", "code": "g.3GA>T"}]}`),
	)), 0644))

	sampleID, calls, err := NewExtractor().ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sample-7", sampleID)
	assert.Equal(t, PositionMap{3: {Ref: "GA", Alt: "T"}}, calls)
}

func TestExtractFile_Unparsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fhir.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, _, err := NewExtractor().ExtractFile(path)
	assert.Error(t, err)
}
