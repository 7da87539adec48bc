package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mickamy/plandiff/internal/compare"
	"github.com/mickamy/plandiff/internal/render/export"
	"github.com/mickamy/plandiff/internal/render/text"
)

var (
	compareBefore string
	compareAfter  string
	compareFormat string
	compareOut    string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two execution plans",
	Long:  `Compares a before/after pair of EXPLAIN (FORMAT JSON) documents and reports metric deltas, ranked key changes and an improvement/regression verdict.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if compareBefore == "" || compareAfter == "" {
			return fmt.Errorf("--before and --after are required")
		}
		beforeDoc, _, err := loadPlan(compareBefore)
		if err != nil {
			return fmt.Errorf("load before: %w", err)
		}
		afterDoc, _, err := loadPlan(compareAfter)
		if err != nil {
			return fmt.Errorf("load after: %w", err)
		}

		engine, err := compare.NewEngine(beforeDoc, afterDoc)
		if err != nil {
			return err
		}

		out, closeOut, err := openOutput(compareOut)
		if err != nil {
			return err
		}
		defer closeOut()

		switch compareFormat {
		case "text":
			return text.RenderComparison(out, engine, text.Options{EnableColor: colorEnabled() && compareOut == ""})
		case "json":
			payload, err := export.ComparisonJSON(engine)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", payload)
			return err
		case "csv":
			return export.DeltasCSV(out, engine)
		default:
			return fmt.Errorf("unknown format %q (expected text, json or csv)", compareFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVar(&compareBefore, "before", "", "Path to the baseline EXPLAIN JSON")
	compareCmd.Flags().StringVar(&compareAfter, "after", "", "Path to the target EXPLAIN JSON")
	compareCmd.Flags().StringVar(&compareFormat, "format", "text", "Output format: text, json or csv")
	compareCmd.Flags().StringVar(&compareOut, "out", "", "Output path (stdout if omitted)")
}
