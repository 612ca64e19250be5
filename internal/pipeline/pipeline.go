// Package pipeline runs bundle-to-consensus jobs.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inodb/fhir-consensus/internal/consensus"
	"github.com/inodb/fhir-consensus/internal/duckdb"
	"github.com/inodb/fhir-consensus/internal/fasta"
	"github.com/inodb/fhir-consensus/internal/variant"
)

// RunRecorder persists the provenance of a consensus run.
type RunRecorder interface {
	RecordRun(run duckdb.Run, calls variant.PositionMap) error
}

// Options configures a Pipeline.
type Options struct {
	Consensus consensus.Options
	LineWidth int // FASTA line width; 0 uses fasta.DefaultLineWidth
	Workers   int // Concurrent bundles in RunBatch; 0 means 1
}

// Pipeline extracts variant calls from bundles and writes consensus FASTA.
type Pipeline struct {
	extractor *variant.Extractor
	assembler *consensus.Assembler
	recorder  RunRecorder
	mu        sync.Mutex // guards recorder
	opts      Options
	logger    *zap.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.LineWidth == 0 {
		opts.LineWidth = fasta.DefaultLineWidth
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{
		extractor: variant.NewExtractor(),
		assembler: consensus.NewAssembler(opts.Consensus),
		opts:      opts,
		logger:    zap.NewNop(),
	}
}

// SetLogger sets the logger for the pipeline and its stages.
func (p *Pipeline) SetLogger(l *zap.Logger) {
	p.logger = l
	p.extractor.SetLogger(l)
	p.assembler.SetLogger(l)
}

// SetRecorder enables recording of every run.
func (p *Pipeline) SetRecorder(r RunRecorder) {
	p.recorder = r
}

// Job is a single bundle to process.
type Job struct {
	BundlePath    string
	ReferencePath string // used for provenance only
	OutputPath    string
}

// Run processes one job against an already loaded reference.
func (p *Pipeline) Run(ref fasta.Record, job Job) (*consensus.Result, error) {
	sampleID, calls, err := p.extractor.ExtractFile(job.BundlePath)
	if err != nil {
		return nil, err
	}

	res, err := p.assembler.Assemble(sampleID, ref, calls)
	if err != nil {
		return nil, err
	}

	if err := fasta.WriteFile(job.OutputPath, res.Record(), p.opts.LineWidth); err != nil {
		return nil, err
	}

	p.logger.Info("wrote consensus sequence",
		zap.String("sample", res.SampleID),
		zap.String("reference", res.ReferenceID),
		zap.Int("variants", res.Variants),
		zap.Int("applied", res.Applied),
		zap.Int("dropped", res.Dropped),
		zap.String("output", job.OutputPath))

	if p.recorder != nil {
		if err := p.record(job, res, calls); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (p *Pipeline) record(job Job, res *consensus.Result, calls variant.PositionMap) error {
	run := duckdb.NewRun(res.SampleID)
	run.ReferenceID = res.ReferenceID
	run.ReferencePath = job.ReferencePath
	run.OutputPath = job.OutputPath
	run.Variants = res.Variants
	run.Applied = res.Applied
	run.Dropped = res.Dropped
	run.Overlaps = len(res.Overlaps)

	fp, err := duckdb.StatFile(job.BundlePath)
	if err != nil {
		return err
	}
	run.Bundle = fp

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.recorder.RecordRun(run, calls); err != nil {
		return fmt.Errorf("record run for %s: %w", res.SampleID, err)
	}
	return nil
}

// RunFile loads the reference at referencePath and processes one bundle.
func (p *Pipeline) RunFile(bundlePath, referencePath, outputPath string) (*consensus.Result, error) {
	ref, err := fasta.ReadSingle(referencePath)
	if err != nil {
		return nil, err
	}
	return p.Run(ref, Job{BundlePath: bundlePath, ReferencePath: referencePath, OutputPath: outputPath})
}

// OutputPath returns the consensus FASTA path for a bundle in outDir.
func OutputPath(outDir, bundlePath string) string {
	return filepath.Join(outDir, variant.SampleID(bundlePath)+".fasta")
}

// RunBatch processes bundles concurrently against one reference, writing
// <outDir>/<sample>.fasta for each. Results are returned in input order.
// The first failure cancels bundles not yet started.
func (p *Pipeline) RunBatch(ctx context.Context, referencePath, outDir string, bundles []string) ([]*consensus.Result, error) {
	ref, err := fasta.ReadSingle(referencePath)
	if err != nil {
		return nil, err
	}

	results := make([]*consensus.Result, len(bundles))
	seen := make(map[string]string, len(bundles))
	for _, b := range bundles {
		out := OutputPath(outDir, b)
		if prev, dup := seen[out]; dup {
			return nil, fmt.Errorf("bundles %s and %s both write %s", prev, b, out)
		}
		seen[out] = b
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, b := range bundles {
		i, b := i, b // per-iteration copy; go directive is below 1.22
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job := Job{BundlePath: b, ReferencePath: referencePath, OutputPath: OutputPath(outDir, b)}
			res, err := p.Run(ref, job)
			if err != nil {
				return fmt.Errorf("process %s: %w", b, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
