// Package output provides variant call and consensus report formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/fhir-consensus/internal/consensus"
	"github.com/inodb/fhir-consensus/internal/variant"
)

// CallWriter writes the variant calls of one or more samples.
type CallWriter interface {
	WriteHeader() error
	Write(sampleID string, calls variant.PositionMap) error
	Flush() error
}

// TabWriter writes variant calls in tab-delimited format.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited call writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Sample",
			"Position",
			"Ref",
			"Alt",
			"Type",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes the calls of one sample, highest position first, which is
// the order they are applied to the reference.
func (tw *TabWriter) Write(sampleID string, calls variant.PositionMap) error {
	for _, pos := range consensus.DescendingPositions(calls) {
		a := calls[pos]
		values := []string{
			sampleID,
			strconv.FormatInt(pos, 10),
			orDash(a.Ref),
			orDash(a.Alt),
			callType(a),
		}
		if _, err := tw.w.WriteString(strings.Join(values, "\t") + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

func callType(a variant.Allele) string {
	switch {
	case !a.RefKnown():
		return "-"
	case a.IsSNV():
		return "SNV"
	case a.IsIndel():
		return "indel"
	default:
		return "MNV"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// SummaryWriter writes one line per consensus result.
type SummaryWriter struct {
	w *bufio.Writer
}

// NewSummaryWriter creates a new summary writer.
func NewSummaryWriter(w io.Writer) *SummaryWriter {
	return &SummaryWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (sw *SummaryWriter) WriteHeader() error {
	_, err := sw.w.WriteString("#Sample\tReference\tVariants\tApplied\tDropped\tOverlaps\tLength\n")
	return err
}

// Write writes a single result.
func (sw *SummaryWriter) Write(r *consensus.Result) error {
	_, err := fmt.Fprintf(sw.w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
		r.SampleID, r.ReferenceID, r.Variants, r.Applied, r.Dropped, len(r.Overlaps), len(r.Seq))
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (sw *SummaryWriter) Flush() error {
	return sw.w.Flush()
}
