package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/fhir-consensus/internal/output"
)

func newBatchCmd() *cobra.Command {
	var reference, outDir string

	cmd := &cobra.Command{
		Use:   "batch [flags] <bundle>...",
		Short: "Build consensus sequences for many samples",
		Long: `Build one consensus FASTA per bundle, written to <output-dir>/<sample>.fasta,
and print a summary line per sample. Bundles are processed concurrently
(config: batch.workers).`,
		Example: `  fhir-consensus batch -r NC_045512.2.fasta -d consensus bundles/*.fhir.json
  fhir-consensus batch -r ref.fasta -d out --workers 8 --store runs.duckdb bundles/*.json.gz`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeStore, err := newPipeline()
			if err != nil {
				return err
			}
			defer closeStore()

			results, err := p.RunBatch(cmd.Context(), reference, outDir, args)
			if err != nil {
				return err
			}
			logger.Info("batch complete", zap.Int("samples", len(results)), zap.String("output_dir", outDir))

			w := output.NewSummaryWriter(cmd.OutOrStdout())
			if err := w.WriteHeader(); err != nil {
				return err
			}
			for _, res := range results {
				if err := w.Write(res); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Reference FASTA file with exactly one record")
	cmd.Flags().StringVarP(&outDir, "output-dir", "d", ".", "Directory for consensus FASTA files")
	cmd.Flags().Int("workers", 1, "Bundles to process concurrently (config: batch.workers)")
	addAssemblyFlags(cmd)
	bindAssembly := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if err := bindAssembly(cmd, args); err != nil {
			return err
		}
		return bindFlags(cmd, map[string]string{keyBatchWorkers: "workers"})
	}
	cobra.CheckErr(cmd.MarkFlagRequired("reference"))

	return cmd
}
