package parser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plandiff/internal/parser"
)

const samplePlan = `[
  {
    "Plan": {
      "Node Type": "Sort",
      "Startup Cost": 10.5,
      "Total Cost": 12.75,
      "Plan Rows": 100,
      "Actual Rows": 95,
      "Actual Loops": 1,
      "Actual Total Time": 4.2,
      "Sort Method": "quicksort",
      "Sort Space Type": "Memory",
      "Sort Key": ["users.name"],
      "Shared Hit Blocks": 40,
      "Shared Read Blocks": 10,
      "I/O Read Time": 1.5,
      "I/O Write Time": 0.25,
      "Plans": [
        {
          "Node Type": "Index Scan",
          "Relation Name": "users",
          "Index Name": "users_pkey",
          "Total Cost": 8.0,
          "Actual Total Time": 3.1,
          "Actual Loops": 2
        }
      ]
    },
    "Planning Time": 0.2,
    "Execution Time": 4.5
  }
]`

func TestParseJSON(t *testing.T) {
	doc, err := parser.ParseJSON(strings.NewReader(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, 0.2, doc.PlanningTime)
	assert.Equal(t, 4.5, doc.ExecutionTime)
	assert.Equal(t, 1.5, doc.IOReadTime)
	assert.Equal(t, 0.25, doc.IOWriteTime)

	root := doc.Plan
	require.NotNil(t, root)
	assert.Equal(t, "Sort", root.NodeType)
	assert.Equal(t, "quicksort", root.SortMethod)
	assert.Equal(t, "Memory", root.SortSpaceType)
	assert.Equal(t, 12.75, root.TotalCost)
	require.NotNil(t, root.PlanRows)
	assert.Equal(t, 100.0, *root.PlanRows)
	require.NotNil(t, root.ActualRows)
	assert.Equal(t, 95.0, *root.ActualRows)
	assert.Equal(t, int64(40), root.Buffers.SharedHit)
	assert.Equal(t, int64(10), root.Buffers.SharedRead)

	// Uninterpreted keys land in Extra rather than being dropped.
	assert.Contains(t, root.Extra, "Sort Key")

	require.Len(t, root.Children, 1)
	child := root.Children[0]
	assert.Equal(t, "Index Scan", child.NodeType)
	assert.Equal(t, "users", child.RelationName)
	assert.Equal(t, "users_pkey", child.IndexName)
	assert.Equal(t, 2.0, child.ActualLoops)
	require.NotNil(t, child.ActualTotalTime)
	assert.Equal(t, 3.1, *child.ActualTotalTime)

	// Absent optional fields stay absent instead of defaulting to zero.
	assert.Nil(t, child.PlanRows)
	assert.Nil(t, child.ActualRows)
}

func TestParseJSONTopLevelObject(t *testing.T) {
	doc, err := parser.ParseJSON(strings.NewReader(`{"Plan": {"Node Type": "Result"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Result", doc.Plan.NodeType)
	assert.Zero(t, doc.PlanningTime)
	assert.Nil(t, doc.Plan.ActualTotalTime)
}

func TestParseJSONErrors(t *testing.T) {
	_, err := parser.ParseJSON(strings.NewReader(`not json`))
	assert.Error(t, err)

	_, err = parser.ParseJSON(strings.NewReader(`[]`))
	assert.Error(t, err)

	_, err = parser.ParseJSON(strings.NewReader(`[{"Planning Time": 1.0}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing Plan root")

	_, err = parser.ParseJSON(strings.NewReader(`[{"Plan": 42}]`))
	assert.Error(t, err)
}

func TestParseJSONCoercesNumericStrings(t *testing.T) {
	doc, err := parser.ParseJSON(strings.NewReader(
		`{"Plan": {"Node Type": "Seq Scan", "Total Cost": "12.5", "Shared Hit Blocks": "7"}}`))
	require.NoError(t, err)
	assert.Equal(t, 12.5, doc.Plan.TotalCost)
	assert.Equal(t, int64(7), doc.Plan.Buffers.SharedHit)
}
