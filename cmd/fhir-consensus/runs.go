package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inodb/fhir-consensus/internal/duckdb"
	"github.com/inodb/fhir-consensus/internal/output"
	"github.com/inodb/fhir-consensus/internal/variant"
)

func newRunsCmd() *cobra.Command {
	var sampleID, runID string
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the consensus run log",
		Long: `List consensus runs recorded in the DuckDB run log configured with
store.path (or --store), newest first. With --calls, print the variant calls
applied in one run.`,
		Example: `  fhir-consensus runs --store runs.duckdb
  fhir-consensus runs --sample p1
  fhir-consensus runs --calls 3f0c5a52-...`,
		Args: exactArgs(0),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return bindFlags(cmd, map[string]string{keyStorePath: "store"})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString(keyStorePath)
			if path == "" {
				return &usageError{errors.New("no run log configured; set store.path or pass --store")}
			}
			store, err := duckdb.Open(path)
			if err != nil {
				return fmt.Errorf("open run log: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case clearAll:
				if err := store.ClearRuns(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared run log %s\n", path)
				return nil
			case runID != "":
				run, err := store.Run(runID)
				if err != nil {
					return err
				}
				calls, err := store.Calls(runID)
				if err != nil {
					return err
				}
				return writeRunCalls(out, run.SampleID, calls)
			default:
				runs, err := store.Runs(sampleID)
				if err != nil {
					return err
				}
				return writeRuns(out, runs)
			}
		},
	}

	cmd.Flags().StringVar(&sampleID, "sample", "", "Only runs of this sample")
	cmd.Flags().StringVar(&runID, "calls", "", "Print the calls of this run ID")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all recorded runs")
	cmd.Flags().String("store", "", "DuckDB run log path (config: store.path)")
	cmd.MarkFlagsMutuallyExclusive("calls", "clear")

	return cmd
}

func writeRuns(w io.Writer, runs []duckdb.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSAMPLE\tREFERENCE\tVARIANTS\tAPPLIED\tDROPPED\tOVERLAPS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.SampleID, r.ReferenceID, r.Variants, r.Applied, r.Dropped, r.Overlaps,
			r.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func writeRunCalls(w io.Writer, sampleID string, calls []variant.Call) error {
	m := make(variant.PositionMap, len(calls))
	for _, c := range calls {
		m.Set(c)
	}
	tw := output.NewTabWriter(w)
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	if err := tw.Write(sampleID, m); err != nil {
		return err
	}
	return tw.Flush()
}
