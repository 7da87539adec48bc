package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/model"
	"github.com/mickamy/plandiff/internal/parser"
	"github.com/mickamy/plandiff/internal/render/export"
	"github.com/mickamy/plandiff/internal/render/text"
)

var (
	analyzeInput  string
	analyzeFormat string
	analyzeOut    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a single execution plan",
	Long:  `Reads an EXPLAIN (FORMAT JSON) document and reports derived metrics: summary, buffer statistics, estimation accuracy and the most expensive operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeInput == "" {
			return fmt.Errorf("--input is required")
		}
		doc, x, err := loadPlan(analyzeInput)
		if err != nil {
			return err
		}

		out, closeOut, err := openOutput(analyzeOut)
		if err != nil {
			return err
		}
		defer closeOut()

		switch analyzeFormat {
		case "text":
			return text.RenderAnalysis(out, doc, x, text.Options{EnableColor: colorEnabled() && analyzeOut == ""})
		case "json":
			payload, err := export.AnalysisJSON(doc, x)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", payload)
			return err
		case "csv":
			return export.NodeMetricsCSV(out, x)
		default:
			return fmt.Errorf("unknown format %q (expected text, json or csv)", analyzeFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "Path to EXPLAIN JSON input")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "text", "Output format: text, json or csv")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "Output path (stdout if omitted)")
}

func loadPlan(path string) (*model.Document, *metrics.Extractor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	doc, err := parser.ParseJSON(file)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	x, err := metrics.NewExtractor(doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, x, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
