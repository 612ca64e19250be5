package fasta

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		header string
		id     string
		desc   string
	}{
		{">NC_045512.2 Severe acute respiratory syndrome coronavirus 2", "NC_045512.2", "NC_045512.2 Severe acute respiratory syndrome coronavirus 2"},
		{">chr1", "chr1", "chr1"},
		{">chrM\tmitochondrion", "chrM", "chrM\tmitochondrion"},
		{">  ref  ", "ref", "ref"},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := parseHeader(tt.header)
			assert.Equal(t, tt.id, r.ID)
			assert.Equal(t, tt.desc, r.Description)
		})
	}
}

func TestParse(t *testing.T) {
	content := `>ref1 first
ACGT
ACGT

>ref2
NNNN
`
	records, err := Parse(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "ref1", records[0].ID)
	assert.Equal(t, "ACGTACGT", records[0].Seq)
	assert.Equal(t, 8, records[0].Len())
	assert.Equal(t, "ref2", records[1].ID)
	assert.Equal(t, "NNNN", records[1].Seq)
}

func TestParse_DataBeforeHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("ACGT\n>ref\nACGT\n"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
}

func TestReadSingle(t *testing.T) {
	dir := t.TempDir()

	one := filepath.Join(dir, "one.fa")
	require.NoError(t, os.WriteFile(one, []byte(">ref desc\nACGT\nAA\n"), 0644))
	r, err := ReadSingle(one)
	require.NoError(t, err)
	assert.Equal(t, Record{ID: "ref", Description: "ref desc", Seq: "ACGTAA"}, r)

	empty := filepath.Join(dir, "empty.fa")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = ReadSingle(empty)
	assert.ErrorIs(t, err, ErrNoRecords)

	two := filepath.Join(dir, "two.fa")
	require.NoError(t, os.WriteFile(two, []byte(">a\nA\n>b\nC\n"), 0644))
	_, err = ReadSingle(two)
	assert.ErrorIs(t, err, ErrMultipleRecords)

	_, err = ReadSingle(filepath.Join(dir, "missing.fa"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadSingle_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ref.fa.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(">ref\nACGTN\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	r, err := ReadSingle(path)
	require.NoError(t, err)
	assert.Equal(t, "ACGTN", r.Seq)
}

func TestWriter(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		width    int
		expected string
	}{
		{
			name:     "wrapped",
			record:   Record{ID: "s1", Description: "Consensus sequence", Seq: "ACGTACGTAC"},
			width:    4,
			expected: ">s1 Consensus sequence\nACGT\nACGT\nAC\n",
		},
		{
			name:     "exact multiple",
			record:   Record{ID: "s1", Seq: "ACGTACGT"},
			width:    4,
			expected: ">s1\nACGT\nACGT\n",
		},
		{
			name:     "unwrapped",
			record:   Record{ID: "s1", Seq: "ACGTACGT"},
			width:    0,
			expected: ">s1\nACGTACGT\n",
		},
		{
			name:     "description starts with id",
			record:   Record{ID: "ref", Description: "ref desc", Seq: "A"},
			width:    60,
			expected: ">ref desc\nA\n",
		},
		{
			name:     "empty sequence",
			record:   Record{ID: "s1"},
			width:    60,
			expected: ">s1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(&buf, tt.width)
			require.NoError(t, w.Write(tt.record))
			require.NoError(t, w.Flush())
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.fa")
	seq := strings.Repeat("ACGTN", 30)

	require.NoError(t, WriteFile(path, Record{ID: "sample", Description: "Consensus sequence | Reference: ref | Variants: 0", Seq: seq}, DefaultLineWidth))

	r, err := ReadSingle(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", r.ID)
	assert.Equal(t, "sample Consensus sequence | Reference: ref | Variants: 0", r.Description)
	assert.Equal(t, seq, r.Seq)
}
