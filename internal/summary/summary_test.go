package summary_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plandiff/internal/model"
	"github.com/mickamy/plandiff/internal/summary"
)

func f(v float64) *float64 { return &v }

func TestFromDocument(t *testing.T) {
	doc := &model.Document{
		PlanningTime:  1.5,
		ExecutionTime: 98.5,
		Plan: &model.PlanNode{
			NodeType:    "Sort",
			TotalCost:   1234.56,
			StartupCost: 1000.0,
			PlanRows:    f(500),
			ActualRows:  f(480),
			ActualLoops: 1,
		},
	}

	sum, err := summary.FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 1.5, sum.PlanningTimeMs)
	assert.Equal(t, 98.5, sum.ExecutionTimeMs)
	assert.Equal(t, 100.0, sum.TotalTimeMs)
	assert.Equal(t, 1234.56, sum.TotalCost)
	assert.Equal(t, 1000.0, sum.StartupCost)
	assert.Equal(t, 480.0, sum.ActualRows)
	assert.Equal(t, 500.0, sum.PlanRows)
	assert.Equal(t, 1.0, sum.ActualLoops)
}

func TestFromDocumentDefaults(t *testing.T) {
	// Absent header fields and row counts resolve to zero, loops to one.
	sum, err := summary.FromDocument(&model.Document{Plan: &model.PlanNode{NodeType: "Result"}})
	require.NoError(t, err)
	assert.Zero(t, sum.TotalTimeMs)
	assert.Zero(t, sum.ActualRows)
	assert.Zero(t, sum.PlanRows)
	assert.Equal(t, 1.0, sum.ActualLoops)
}

func TestFromDocumentMissingRoot(t *testing.T) {
	_, err := summary.FromDocument(nil)
	assert.Error(t, err)
	_, err = summary.FromDocument(&model.Document{})
	assert.Error(t, err)
}

func TestIO(t *testing.T) {
	io := summary.IO(&model.Document{IOReadTime: 12.5, IOWriteTime: 3.25})
	assert.Equal(t, 12.5, io.ReadMs)
	assert.Equal(t, 3.25, io.WriteMs)

	assert.Zero(t, summary.IO(nil))
	assert.Zero(t, summary.IO(&model.Document{}))
}
