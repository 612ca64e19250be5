package output

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/inodb/fhir-consensus/internal/variant"
)

// VCFWriter writes variant calls as a sites-only VCF. Each record carries
// the sample it came from in the SAMPLE INFO field.
type VCFWriter struct {
	w     *bufio.Writer
	chrom string
}

// NewVCFWriter creates a VCF writer. chrom is written in the CHROM column
// of every record, normally the reference sequence ID.
func NewVCFWriter(w io.Writer, chrom string) *VCFWriter {
	if chrom == "" {
		chrom = "."
	}
	return &VCFWriter{
		w:     bufio.NewWriter(w),
		chrom: chrom,
	}
}

// WriteHeader writes the meta-information and column header lines.
func (vw *VCFWriter) WriteHeader() error {
	lines := []string{
		"##fileformat=VCFv4.2",
		"##source=fhir-consensus",
	}
	if vw.chrom != "." {
		lines = append(lines, fmt.Sprintf("##contig=<ID=%s>", vw.chrom))
	}
	lines = append(lines,
		`##INFO=<ID=SAMPLE,Number=1,Type=String,Description="Sample the call was extracted from">`,
		`##INFO=<ID=REFUNK,Number=0,Type=Flag,Description="Reference allele was not given; REF is N">`,
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO",
	)
	_, err := vw.w.WriteString(strings.Join(lines, "\n") + "\n")
	return err
}

// Write writes the calls of one sample in ascending position order.
func (vw *VCFWriter) Write(sampleID string, calls variant.PositionMap) error {
	positions := make([]int64, 0, len(calls))
	for pos := range calls {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	for _, pos := range positions {
		a := calls[pos]
		ref := a.Ref
		info := "SAMPLE=" + sampleID
		if !a.RefKnown() {
			ref = "N"
			info += ";REFUNK"
		}
		if _, err := fmt.Fprintf(vw.w, "%s\t%d\t.\t%s\t%s\t.\t.\t%s\n", vw.chrom, pos, ref, orDash(a.Alt), info); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (vw *VCFWriter) Flush() error {
	return vw.w.Flush()
}
