package fhir

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBundle = `{
  "resourceType": "Bundle",
  "type": "transaction",
  "entry": [
    {"resource": {"resourceType": "Patient", "id": "p1"}},
    {"resource": {
      "resourceType": "Observation",
      "id": "obs1",
      "status": "final",
      "code": {"coding": [{"system": "http://loinc.org", "code": "69548-6"}]},
      "subject": {"reference": "Patient/p1"},
      "valueCodeableConcept": {"coding": [{"system": "http://varnomen.hgvs.org", "code": "NC_045512.2:g.23403A>G"}]},
      "component": [
        {
          "code": {"coding": [{"system": "http://loinc.org", "code": "81254-5"}]},
          "valueRange": {"low": {"value": 23403}}
        },
        {
          "code": {"coding": [{"system": "http://loinc.org", "code": "81254-5"}]},
          "valueInteger": 100
        }
      ]
    }}
  ]
}`

func TestParseBundle(t *testing.T) {
	b, err := ParseBundle(strings.NewReader(sampleBundle))
	require.NoError(t, err)

	assert.Equal(t, "Bundle", b.ResourceType)
	assert.Equal(t, "transaction", b.Type)
	require.Len(t, b.Entry, 2)
	assert.Equal(t, "Patient", b.Entry[0].Resource.Type())
	assert.Equal(t, "p1", b.Entry[0].Resource.ID())
	assert.Equal(t, ResourceObservation, b.Entry[1].Resource.Type())
}

func TestParseBundle_Invalid(t *testing.T) {
	_, err := ParseBundle(strings.NewReader(`{"entry": [`))
	assert.Error(t, err)

	_, err = ParseBundle(strings.NewReader(`[1, 2, 3]`))
	assert.Error(t, err)
}

func TestResource_Observation(t *testing.T) {
	b, err := ParseBundle(strings.NewReader(sampleBundle))
	require.NoError(t, err)

	obs, err := b.Entry[1].Resource.Observation()
	require.NoError(t, err)

	assert.True(t, obs.HasCode("69548-6"))
	assert.False(t, obs.HasCode("81254-5"))

	require.NotNil(t, obs.ValueCodeableConcept)
	require.Len(t, obs.ValueCodeableConcept.Coding, 1)
	assert.Equal(t, "NC_045512.2:g.23403A>G", obs.ValueCodeableConcept.Coding[0].Code)

	require.Len(t, obs.Component, 2)
	require.NotNil(t, obs.Component[0].ValueRange)
	require.NotNil(t, obs.Component[0].ValueRange.Low)
	require.NotNil(t, obs.Component[0].ValueRange.Low.Value)
	assert.Equal(t, 23403.0, *obs.Component[0].ValueRange.Low.Value)
	assert.Nil(t, obs.Component[0].ValueInteger)

	require.NotNil(t, obs.Component[1].ValueInteger)
	assert.Equal(t, 100.0, *obs.Component[1].ValueInteger)
	assert.Nil(t, obs.Component[1].ValueRange)
}

func TestResource_Observation_WrongType(t *testing.T) {
	r := Resource{"resourceType": "Patient"}
	_, err := r.Observation()
	assert.Error(t, err)
}

func TestResource_Observation_Malformed(t *testing.T) {
	r := Resource{
		"resourceType": "Observation",
		"component":    "not-a-list",
	}
	_, err := r.Observation()
	assert.Error(t, err)
}

func TestReadBundle_Gzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p1.fhir.json.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleBundle))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	b, err := ReadBundle(path)
	require.NoError(t, err)
	assert.Len(t, b.Entry, 2)
}

func TestReadBundle_Errors(t *testing.T) {
	_, err := ReadBundle(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	_, err = ReadBundle(path)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, path, pe.Path)
}

func TestWriteBundle_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "p1.fhir.json")

	b := NewTransactionBundle([]Resource{
		{"resourceType": "Patient", "id": "p1"},
		{"resourceType": "DiagnosticReport", "id": "r1"},
	})
	require.NoError(t, WriteBundle(path, b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"type\": \"transaction\"")

	got, err := ReadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "Bundle", got.ResourceType)
	require.Len(t, got.Entry, 2)
	assert.Equal(t, "DiagnosticReport", got.Entry[1].Resource.Type())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
