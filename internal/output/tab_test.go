package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/fhir-consensus/internal/consensus"
	"github.com/inodb/fhir-consensus/internal/variant"
)

func TestTabWriter_WriteHeader(t *testing.T) {
	var buf bytes.Buffer
	w := NewTabWriter(&buf)

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Flush())

	assert.Equal(t, "#Sample\tPosition\tRef\tAlt\tType\n", buf.String())
}

func TestTabWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := NewTabWriter(&buf)

	calls := variant.PositionMap{
		2:   {Ref: "C", Alt: "T"},
		100: {Ref: "AT", Alt: "A"},
		40:  {Ref: ".", Alt: "G"},
		7:   {Ref: "GC", Alt: "TA"},
	}

	require.NoError(t, w.Write("p1", calls))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"p1\t100\tAT\tA\tindel",
		"p1\t40\t.\tG\t-",
		"p1\t7\tGC\tTA\tMNV",
		"p1\t2\tC\tT\tSNV",
	}, lines)
}

func TestTabWriter_Write_Empty(t *testing.T) {
	var buf bytes.Buffer
	w := NewTabWriter(&buf)

	require.NoError(t, w.Write("p1", variant.PositionMap{}))
	require.NoError(t, w.Flush())
	assert.Empty(t, buf.String())
}

func TestCallType(t *testing.T) {
	tests := []struct {
		allele   variant.Allele
		expected string
	}{
		{variant.Allele{Ref: "A", Alt: "G"}, "SNV"},
		{variant.Allele{Ref: "A", Alt: "AT"}, "indel"},
		{variant.Allele{Ref: "AC", Alt: "GT"}, "MNV"},
		{variant.Allele{Ref: ".", Alt: "G"}, "-"},
		{variant.Allele{Ref: "", Alt: "G"}, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.allele.Ref+">"+tt.allele.Alt, func(t *testing.T) {
			assert.Equal(t, tt.expected, callType(tt.allele))
		})
	}
}

func TestSummaryWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewSummaryWriter(&buf)

	res := &consensus.Result{
		SampleID:    "p1",
		ReferenceID: "NC_045512.2",
		Seq:         "ATGT",
		Variants:    3,
		Stats:       consensus.Stats{Applied: 2, Dropped: 1},
		Overlaps:    []consensus.Overlap{{Pos: 1, Covered: 2}},
	}

	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Write(res))
	require.NoError(t, w.Flush())

	assert.Equal(t,
		"#Sample\tReference\tVariants\tApplied\tDropped\tOverlaps\tLength\n"+
			"p1\tNC_045512.2\t3\t2\t1\t1\t4\n",
		buf.String())
}
