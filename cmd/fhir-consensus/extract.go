package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inodb/fhir-consensus/internal/output"
	"github.com/inodb/fhir-consensus/internal/variant"
)

func newExtractCmd() *cobra.Command {
	var (
		format   string
		chrom    string
		noHeader bool
	)

	cmd := &cobra.Command{
		Use:   "extract [flags] <bundle>...",
		Short: "Print the variant calls of FHIR bundles",
		Long: `Print the variant calls found in each bundle. The tab format lists calls
highest position first, the order the consensus command applies them. The
vcf format writes a sites-only VCF in ascending position order.`,
		Example: `  fhir-consensus extract p1.fhir.json
  fhir-consensus extract --no-header bundles/*.fhir.json > calls.tsv
  fhir-consensus extract -f vcf --chrom NC_045512.2 p1.fhir.json > p1.vcf`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w output.CallWriter
			switch format {
			case "tab":
				w = output.NewTabWriter(cmd.OutOrStdout())
			case "vcf":
				w = output.NewVCFWriter(cmd.OutOrStdout(), chrom)
			default:
				return &usageError{fmt.Errorf("unknown output format %q", format)}
			}

			ext := variant.NewExtractor()
			ext.SetLogger(logger)

			if !noHeader {
				if err := w.WriteHeader(); err != nil {
					return err
				}
			}
			for _, path := range args {
				sampleID, calls, err := ext.ExtractFile(path)
				if err != nil {
					return err
				}
				if err := w.Write(sampleID, calls); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&format, "output-format", "f", "tab", "Output format: tab, vcf")
	cmd.Flags().StringVar(&chrom, "chrom", "", "CHROM value for vcf output (default: .)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Omit the header lines")

	return cmd
}
