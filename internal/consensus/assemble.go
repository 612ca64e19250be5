// Package consensus applies variant calls to a reference sequence.
package consensus

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/fhir-consensus/internal/fasta"
	"github.com/inodb/fhir-consensus/internal/variant"
)

// ErrOverlappingVariants is returned when overlap rejection is enabled and
// a multi-base reference allele covers another call's position.
var ErrOverlappingVariants = errors.New("overlapping variant calls")

// Stats counts what happened to each call during Apply.
type Stats struct {
	Applied int // Calls written into the sequence
	Dropped int // Calls whose position lies outside the reference
}

// Apply applies calls to seq and returns the edited sequence.
//
// Each reference base becomes one cell. Calls are applied from the highest
// position to the lowest. A call with an unknown reference allele replaces
// one cell with the alternate allele; a call with a known reference allele
// of length L replaces the first cell and empties the following L-1 cells.
// Calls outside the sequence are dropped.
func Apply(seq string, calls variant.PositionMap) (string, Stats) {
	var stats Stats
	if len(calls) == 0 {
		return seq, stats
	}

	// One cell per byte; ranging over the string would skip the
	// continuation bytes of multi-byte characters.
	cells := make([]string, len(seq))
	for i := 0; i < len(seq); i++ {
		cells[i] = seq[i : i+1]
	}

	for _, pos := range DescendingPositions(calls) {
		idx := pos - 1
		if idx < 0 || idx >= int64(len(cells)) {
			stats.Dropped++
			continue
		}

		a := calls[pos]
		cells[idx] = a.Alt
		if a.Ref != variant.UnknownAllele {
			for k := int64(1); k < int64(len(a.Ref)); k++ {
				if idx+k < int64(len(cells)) {
					cells[idx+k] = ""
				}
			}
		}
		stats.Applied++
	}

	return strings.Join(cells, ""), stats
}

// DescendingPositions returns the positions of calls sorted from highest to
// lowest. Applying length-changing edits in this order keeps every lower,
// not yet applied, position pointing at its original base.
func DescendingPositions(calls variant.PositionMap) []int64 {
	positions := make([]int64, 0, len(calls))
	for pos := range calls {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i] > positions[j]
	})
	return positions
}

// Overlap is a call whose reference allele spans another call's position.
type Overlap struct {
	Pos     int64 // Position of the spanning call
	Covered int64 // Position of the call inside the span
}

func (o Overlap) String() string {
	return fmt.Sprintf("%d covers %d", o.Pos, o.Covered)
}

// FindOverlaps reports every pair of calls where a known reference allele
// starting at one position covers another call's position. Results are
// ordered by spanning position, then covered position.
func FindOverlaps(calls variant.PositionMap) []Overlap {
	var overlaps []Overlap
	for pos, a := range calls {
		if a.Ref == variant.UnknownAllele {
			continue
		}
		for k := int64(1); k < int64(len(a.Ref)); k++ {
			if _, ok := calls[pos+k]; ok {
				overlaps = append(overlaps, Overlap{Pos: pos, Covered: pos + k})
			}
		}
	}
	sort.Slice(overlaps, func(i, j int) bool {
		if overlaps[i].Pos != overlaps[j].Pos {
			return overlaps[i].Pos < overlaps[j].Pos
		}
		return overlaps[i].Covered < overlaps[j].Covered
	})
	return overlaps
}

// Options configures an Assembler.
type Options struct {
	// RejectOverlaps makes Assemble fail when calls overlap. When false,
	// overlaps are logged and applied in descending order, so the lower
	// call's reference span empties the cell written by the higher one.
	RejectOverlaps bool
}

// Result is a consensus sequence and its provenance.
type Result struct {
	SampleID    string
	ReferenceID string
	Seq         string
	Variants    int // Calls in the position map
	Stats
	Overlaps []Overlap
}

// Description returns the FASTA description for the consensus record.
func (r *Result) Description() string {
	return fmt.Sprintf("Consensus sequence | Reference: %s | Variants: %d", r.ReferenceID, r.Variants)
}

// Record returns the consensus as a FASTA record named after the sample.
func (r *Result) Record() fasta.Record {
	return fasta.Record{
		ID:          r.SampleID,
		Description: r.Description(),
		Seq:         r.Seq,
	}
}

// Assembler builds consensus sequences.
type Assembler struct {
	opts   Options
	logger *zap.Logger
}

// NewAssembler creates an assembler with the given options.
func NewAssembler(opts Options) *Assembler {
	return &Assembler{
		opts:   opts,
		logger: zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and debug messages.
func (a *Assembler) SetLogger(l *zap.Logger) {
	a.logger = l
}

// Assemble applies calls to ref and returns the consensus for sampleID.
func (a *Assembler) Assemble(sampleID string, ref fasta.Record, calls variant.PositionMap) (*Result, error) {
	overlaps := FindOverlaps(calls)
	if len(overlaps) > 0 {
		if a.opts.RejectOverlaps {
			return nil, fmt.Errorf("sample %s: %w: %v", sampleID, ErrOverlappingVariants, overlaps)
		}
		for _, o := range overlaps {
			a.logger.Warn("overlapping variant calls",
				zap.String("sample", sampleID),
				zap.Int64("pos", o.Pos),
				zap.String("ref", calls[o.Pos].Ref),
				zap.Int64("covered", o.Covered))
		}
	}

	seq, stats := Apply(ref.Seq, calls)
	if stats.Dropped > 0 {
		a.logger.Debug("dropped variant calls outside reference",
			zap.String("sample", sampleID),
			zap.Int("dropped", stats.Dropped),
			zap.Int("reference_length", ref.Len()))
	}

	return &Result{
		SampleID:    sampleID,
		ReferenceID: ref.ID,
		Seq:         seq,
		Variants:    len(calls),
		Stats:       stats,
		Overlaps:    overlaps,
	}, nil
}
