package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/mickamy/plandiff/internal/compare"
	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/model"
	"github.com/mickamy/plandiff/internal/summary"
)

// Analysis bundles everything extracted from a single plan.
type Analysis struct {
	Summary    summary.Summary            `json:"summary"`
	IO         summary.IOTiming           `json:"io"`
	Buffers    metrics.BufferStats        `json:"buffers"`
	Accuracy   metrics.EstimationAccuracy `json:"estimation_accuracy"`
	Depth      int                        `json:"plan_depth"`
	NodeCount  int                        `json:"node_count"`
	TypeCounts map[string]int             `json:"node_type_counts"`
	Expensive  []metrics.NodeMetric       `json:"expensive_operations"`
	SeqScans   []metrics.NodeMetric       `json:"sequential_scans"`
	IndexScans []metrics.NodeMetric       `json:"index_scans"`
	Sorts      []metrics.NodeMetric       `json:"sorts"`
	Joins      []metrics.NodeMetric       `json:"joins"`
}

// BuildAnalysis collects the extractor's full query surface for export.
func BuildAnalysis(doc *model.Document, x *metrics.Extractor) (*Analysis, error) {
	sum, err := summary.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Summary:    sum,
		IO:         summary.IO(doc),
		Buffers:    x.TotalBufferStats(),
		Accuracy:   x.EstimationAccuracy(),
		Depth:      x.PlanDepth(),
		NodeCount:  x.NodeCount(),
		TypeCounts: x.NodeTypeCounts(),
		Expensive:  x.ExpensiveOperations(0),
		SeqScans:   x.SequentialScans(),
		IndexScans: x.IndexScans(),
		Sorts:      x.Sorts(),
		Joins:      x.Joins(),
	}, nil
}

// AnalysisJSON marshals a single-plan analysis into indented JSON.
func AnalysisJSON(doc *model.Document, x *metrics.Extractor) ([]byte, error) {
	analysis, err := BuildAnalysis(doc, x)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(analysis, "", "  ")
}

// ComparisonJSON marshals the full comparison report into indented JSON.
func ComparisonJSON(e *compare.Engine) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("export: nil engine")
	}
	return json.MarshalIndent(e.Full(), "", "  ")
}

// NodeMetricsCSV writes one row per node with a reported actual time,
// ordered by exclusive time descending.
func NodeMetricsCSV(w io.Writer, x *metrics.Extractor) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"node_type", "relation", "index", "exclusive_time_ms", "rows", "cost", "loops"}); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, m := range x.ExpensiveOperations(x.NodeCount()) {
		record := []string{
			m.NodeType,
			m.Relation,
			m.Index,
			formatFloat(m.TotalTimeMs),
			formatFloat(m.Rows),
			formatFloat(m.Cost),
			formatFloat(m.Loops),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DeltasCSV writes every delta record of a comparison as CSV.
func DeltasCSV(w io.Writer, e *compare.Engine) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"group", "metric", "before", "after", "difference", "percent_change", "significant"}); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	groups := []struct {
		name   string
		deltas []compare.Delta
	}{
		{"timing", e.Timing()},
		{"cost", e.Cost()},
		{"buffers", e.Buffers()},
		{"io", e.IO()},
	}
	for _, group := range groups {
		for _, d := range group.deltas {
			record := []string{
				group.name,
				d.Metric,
				formatFloat(d.Before),
				formatFloat(d.After),
				formatFloat(d.Difference),
				formatFloat(d.PercentChange),
				strconv.FormatBool(d.Significant),
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("export: write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
