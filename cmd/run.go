package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/parser"
	"github.com/mickamy/plandiff/internal/render/text"
	"github.com/mickamy/plandiff/internal/runner"
)

var (
	runURL     string
	runSQLPath string
	runQuery   string
	runOut     string
	runTimeout time.Duration
	runAnalyze bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) for a query",
	Long:  `Connects to PostgreSQL, runs the query under EXPLAIN and writes the resulting JSON document, optionally rendering the analysis report directly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := strings.TrimSpace(runURL)
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return fmt.Errorf("--url is required or set $DATABASE_URL")
		}
		if runSQLPath != "" && runQuery != "" {
			return fmt.Errorf("specify only one of --sql or --query")
		}

		var sqlText string
		switch {
		case runSQLPath != "":
			data, err := os.ReadFile(runSQLPath)
			if err != nil {
				return fmt.Errorf("read sql file: %w", err)
			}
			sqlText = string(data)
		case runQuery != "":
			sqlText = runQuery
		default:
			return fmt.Errorf("--sql or --query is required")
		}

		slog.Info("running explain", "timeout", runTimeout)
		payload, err := runner.Run(context.Background(), dsn, sqlText, runner.Options{Timeout: runTimeout})
		if err != nil {
			return err
		}

		if runAnalyze {
			doc, err := parser.ParseJSON(bytes.NewReader(payload))
			if err != nil {
				return err
			}
			x, err := metrics.NewExtractor(doc)
			if err != nil {
				return err
			}
			return text.RenderAnalysis(os.Stdout, doc, x, text.Options{EnableColor: colorEnabled()})
		}

		pretty, err := indentJSON(payload)
		if err != nil {
			return err
		}
		if runOut == "" {
			_, err = os.Stdout.Write(pretty)
			return err
		}
		return os.WriteFile(runOut, pretty, 0o644)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runURL, "url", "", "PostgreSQL connection string; defaults to $DATABASE_URL")
	runCmd.Flags().StringVar(&runSQLPath, "sql", "", "Path to the SQL file to EXPLAIN")
	runCmd.Flags().StringVar(&runQuery, "query", "", "Inline SQL string to EXPLAIN")
	runCmd.Flags().StringVar(&runOut, "out", "", "Path to write the resulting JSON (defaults to stdout)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Optional execution timeout, e.g. 45s")
	runCmd.Flags().BoolVar(&runAnalyze, "analyze", false, "Render the analysis report instead of raw JSON")
}

func indentJSON(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent json: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
