package summary

import (
	"fmt"

	"github.com/mickamy/plandiff/internal/model"
)

// Summary exposes the top-level scalar metrics of a plan document: the
// header timings plus the root node's cost and row figures.
type Summary struct {
	PlanningTimeMs  float64 `json:"planning_time_ms"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	TotalTimeMs     float64 `json:"total_time_ms"`
	TotalCost       float64 `json:"total_cost"`
	StartupCost     float64 `json:"startup_cost"`
	ActualRows      float64 `json:"actual_rows"`
	PlanRows        float64 `json:"plan_rows"`
	ActualLoops     float64 `json:"actual_loops"`
}

// IOTiming carries the document-level I/O wait times.
type IOTiming struct {
	ReadMs  float64 `json:"read_ms"`
	WriteMs float64 `json:"write_ms"`
}

// FromDocument extracts the summary metrics. The document must already be
// validated: a missing root plan is a caller error.
func FromDocument(doc *model.Document) (Summary, error) {
	if doc == nil || doc.Plan == nil {
		return Summary{}, fmt.Errorf("summary: missing plan root")
	}
	root := doc.Plan
	return Summary{
		PlanningTimeMs:  doc.PlanningTime,
		ExecutionTimeMs: doc.ExecutionTime,
		TotalTimeMs:     doc.PlanningTime + doc.ExecutionTime,
		TotalCost:       root.TotalCost,
		StartupCost:     root.StartupCost,
		ActualRows:      root.RowsOrZero(),
		PlanRows:        root.PlanRowsOrZero(),
		ActualLoops:     root.Loops(),
	}, nil
}

// IO returns the document's I/O timing, zero when the source reported none.
func IO(doc *model.Document) IOTiming {
	if doc == nil {
		return IOTiming{}
	}
	return IOTiming{ReadMs: doc.IOReadTime, WriteMs: doc.IOWriteTime}
}
