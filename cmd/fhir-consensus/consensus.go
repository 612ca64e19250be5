package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/fhir-consensus/internal/consensus"
	"github.com/inodb/fhir-consensus/internal/duckdb"
	"github.com/inodb/fhir-consensus/internal/pipeline"
)

func newConsensusCmd() *cobra.Command {
	var input, reference, outputPath string

	cmd := &cobra.Command{
		Use:   "consensus",
		Short: "Build the consensus sequence of one sample",
		Long: `Extract variant calls from a FHIR Bundle and apply them to a single-record
reference FASTA. The sample ID is the bundle file name without its
.fhir.json, .merged and .json parts.`,
		Example: `  fhir-consensus consensus -i p1.fhir.json -r NC_045512.2.fasta -o p1.fasta
  fhir-consensus consensus -i p1.fhir.json.gz -r ref.fasta.gz -o p1.fasta --reject-overlaps`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeStore, err := newPipeline()
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := p.RunFile(input, reference, outputPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Consensus sequence written to %s (%d variants, %d applied)\n",
				outputPath, res.Variants, res.Applied)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "FHIR Bundle JSON file (optionally gzipped)")
	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Reference FASTA file with exactly one record")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output FASTA file")
	addAssemblyFlags(cmd)
	cobra.CheckErr(cmd.MarkFlagRequired("input"))
	cobra.CheckErr(cmd.MarkFlagRequired("reference"))
	cobra.CheckErr(cmd.MarkFlagRequired("output"))

	return cmd
}

// addAssemblyFlags adds flags overriding the consensus.* config keys.
func addAssemblyFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("reject-overlaps", false, "Fail when variant calls overlap (config: consensus.reject_overlaps)")
	cmd.Flags().Int("line-width", 60, "FASTA line width, 0 for one line (config: consensus.line_width)")
	cmd.Flags().String("store", "", "DuckDB run log path (config: store.path)")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			keyRejectOverlaps: "reject-overlaps",
			keyLineWidth:      "line-width",
			keyStorePath:      "store",
		})
	}
}

// bindFlags binds config keys to flags of the command being run.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// newPipeline builds a pipeline from the current configuration. When
// store.path is set every run is recorded there; the returned func closes
// the store.
func newPipeline() (*pipeline.Pipeline, func(), error) {
	width := viper.GetInt(keyLineWidth)
	if width < 0 {
		return nil, nil, &usageError{fmt.Errorf("line width must not be negative, got %d", width)}
	}
	if width == 0 {
		width = -1
	}

	p := pipeline.New(pipeline.Options{
		Consensus: consensus.Options{RejectOverlaps: viper.GetBool(keyRejectOverlaps)},
		LineWidth: width,
		Workers:   viper.GetInt(keyBatchWorkers),
	})
	p.SetLogger(logger)

	path := viper.GetString(keyStorePath)
	if path == "" {
		return p, func() {}, nil
	}
	store, err := duckdb.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	logger.Debug("recording runs", zap.String("store", path))
	p.SetRecorder(store)
	return p, func() { store.Close() }, nil
}
