package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mickamy/plandiff/internal/config"
)

var (
	configPath string
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "plandiff",
	Short: "Analyze and compare PostgreSQL execution plans",
	Long: `plandiff ingests EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) documents and
produces derived metrics, bottleneck diagnostics and before/after comparisons
with an improvement/regression verdict.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := strings.TrimSpace(configPath)
		if path == "" {
			path = strings.TrimSpace(os.Getenv("PLANDIFF_CONFIG"))
		}
		return config.Apply(path)
	},
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (JSON or YAML). Falls back to $PLANDIFF_CONFIG")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// colorEnabled reports whether the report should use colors: on when stdout
// is a terminal and --no-color was not given.
func colorEnabled() bool {
	if noColor {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
