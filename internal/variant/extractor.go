package variant

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/fhir-consensus/internal/fhir"
)

// sampleSuffixes are stripped from bundle file names, in order, to derive
// the sample identifier.
var sampleSuffixes = []string{".fhir.json", ".merged", ".json"}

// Extractor pulls variant calls out of FHIR Bundles.
type Extractor struct {
	resolvers []Resolver
	logger    *zap.Logger
}

// NewExtractor creates an extractor using the given resolvers, in order.
// With no resolvers, DefaultResolvers is used.
func NewExtractor(resolvers ...Resolver) *Extractor {
	if len(resolvers) == 0 {
		resolvers = DefaultResolvers
	}
	return &Extractor{
		resolvers: resolvers,
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger for debug messages about skipped records.
func (e *Extractor) SetLogger(l *zap.Logger) {
	e.logger = l
}

// Extract returns the position map for all variant Observations in b.
// Records that are not variant Observations, cannot be decoded, or lack a
// position or alternate allele are skipped.
func (e *Extractor) Extract(b *fhir.Bundle) PositionMap {
	calls := make(PositionMap)
	var skipped int

	for i, entry := range b.Entry {
		if entry.Resource.Type() != fhir.ResourceObservation {
			continue
		}

		obs, err := entry.Resource.Observation()
		if err != nil {
			skipped++
			e.logger.Debug("skipping undecodable observation",
				zap.Int("entry", i),
				zap.String("id", entry.Resource.ID()),
				zap.Error(err))
			continue
		}
		if !obs.HasCode(CodeGeneticVariant) {
			continue
		}

		c, ok := Resolve(obs, e.resolvers)
		if !ok {
			skipped++
			e.logger.Debug("skipping variant observation without position or alt allele",
				zap.Int("entry", i),
				zap.String("id", entry.Resource.ID()))
			continue
		}

		if prev, dup := calls[c.Pos]; dup {
			e.logger.Debug("variant call overrides earlier call at same position",
				zap.Int64("pos", c.Pos),
				zap.String("previous", prev.Ref+">"+prev.Alt),
				zap.String("current", c.Ref+">"+c.Alt))
		}
		calls.Set(c)
	}

	e.logger.Debug("extracted variant calls",
		zap.Int("calls", len(calls)),
		zap.Int("skipped", skipped))

	return calls
}

// ExtractFile reads a Bundle file and returns its sample identifier and
// position map.
func (e *Extractor) ExtractFile(path string) (string, PositionMap, error) {
	b, err := fhir.ReadBundle(path)
	if err != nil {
		return "", nil, err
	}
	return SampleID(path), e.Extract(b), nil
}

// SampleID derives a sample identifier from a bundle file name by removing
// the known suffixes ".fhir.json", ".merged" and ".json".
func SampleID(path string) string {
	id := strings.TrimSuffix(filepath.Base(path), ".gz")
	for _, s := range sampleSuffixes {
		id = strings.ReplaceAll(id, s, "")
	}
	return id
}
