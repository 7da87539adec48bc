package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plandiff/internal/compare"
	"github.com/mickamy/plandiff/internal/render/export"
	"github.com/mickamy/plandiff/test"
)

func TestAnalysisJSON(t *testing.T) {
	doc, x := test.LoadExtractor(t, "before.json")

	payload, err := export.AnalysisJSON(doc, x)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Contains(t, decoded, "summary")
	assert.Contains(t, decoded, "buffers")
	assert.Contains(t, decoded, "estimation_accuracy")
	assert.Contains(t, decoded, "expensive_operations")

	sum, ok := decoded["summary"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 2550.23, sum["total_time_ms"].(float64), 0.001)
}

func TestComparisonJSON(t *testing.T) {
	before := test.LoadDocument(t, "before.json")
	after := test.LoadDocument(t, "after.json")
	e, err := compare.NewEngine(before, after)
	require.NoError(t, err)

	payload, err := export.ComparisonJSON(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	verdict, ok := decoded["verdict"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "improved", verdict["status"])
	assert.Contains(t, decoded, "key_changes")
	assert.Contains(t, decoded, "node_types")
}

func TestComparisonJSONNilEngine(t *testing.T) {
	_, err := export.ComparisonJSON(nil)
	assert.Error(t, err)
}

func TestNodeMetricsCSV(t *testing.T) {
	_, x := test.LoadExtractor(t, "before.json")

	var buf bytes.Buffer
	require.NoError(t, export.NodeMetricsCSV(&buf, x))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// Header plus one row per timed node; every fixture node reports a time.
	require.Len(t, records, 1+x.NodeCount())
	assert.Equal(t, []string{"node_type", "relation", "index", "exclusive_time_ms", "rows", "cost", "loops"}, records[0])
	// Rows are ordered by exclusive time descending.
	assert.Equal(t, "Seq Scan", records[1][0])
	assert.Equal(t, "orders", records[1][1])
}

func TestDeltasCSV(t *testing.T) {
	before := test.LoadDocument(t, "before.json")
	after := test.LoadDocument(t, "after.json")
	e, err := compare.NewEngine(before, after)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.DeltasCSV(&buf, e))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	// Header + 3 timing + 2 cost + 8 buffers + 2 io.
	require.Len(t, records, 1+3+2+8+2)
	assert.Equal(t, "timing", records[1][0])
	assert.Equal(t, "planning_time", records[1][1])
}
