package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/model"
)

func f(v float64) *float64 { return &v }

func doc(root *model.PlanNode) *model.Document {
	return &model.Document{Plan: root}
}

func extractor(t *testing.T, root *model.PlanNode) *metrics.Extractor {
	t.Helper()
	x, err := metrics.NewExtractor(doc(root))
	require.NoError(t, err)
	return x
}

func countNodes(n *model.PlanNode) int {
	total := 1
	for _, child := range n.Children {
		total += countNodes(child)
	}
	return total
}

func TestNewExtractorRequiresPlan(t *testing.T) {
	_, err := metrics.NewExtractor(nil)
	assert.Error(t, err)
	_, err = metrics.NewExtractor(&model.Document{})
	assert.Error(t, err)
}

func TestAllNodesPreOrder(t *testing.T) {
	leftLeaf := &model.PlanNode{NodeType: "Seq Scan"}
	left := &model.PlanNode{NodeType: "Hash", Children: []*model.PlanNode{leftLeaf}}
	right := &model.PlanNode{NodeType: "Index Scan"}
	root := &model.PlanNode{NodeType: "Hash Join", Children: []*model.PlanNode{left, right}}

	x := extractor(t, root)
	nodes := x.AllNodes()

	require.Len(t, nodes, countNodes(root))
	assert.Same(t, root, nodes[0])
	assert.Same(t, left, nodes[1])
	assert.Same(t, leftLeaf, nodes[2])
	assert.Same(t, right, nodes[3])
}

func TestNodeTypeCounts(t *testing.T) {
	root := &model.PlanNode{NodeType: "Append", Children: []*model.PlanNode{
		{NodeType: "Seq Scan"},
		{NodeType: "Seq Scan"},
		{NodeType: "Index Scan"},
	}}
	x := extractor(t, root)
	counts := x.NodeTypeCounts()
	assert.Equal(t, 1, counts["Append"])
	assert.Equal(t, 2, counts["Seq Scan"])
	assert.Equal(t, 1, counts["Index Scan"])
}

func TestExclusiveTime(t *testing.T) {
	child := &model.PlanNode{NodeType: "Seq Scan", ActualTotalTime: f(40), ActualLoops: 2}
	root := &model.PlanNode{NodeType: "Sort", ActualTotalTime: f(100), ActualLoops: 1,
		Children: []*model.PlanNode{child}}

	// child inclusive = 40 * 2 = 80
	assert.InDelta(t, 80, metrics.InclusiveTime(child), 1e-9)
	assert.InDelta(t, 20, metrics.ExclusiveTime(root), 1e-9)
	assert.InDelta(t, 80, metrics.ExclusiveTime(child), 1e-9)
}

func TestExclusiveTimeFloorsAtZero(t *testing.T) {
	// Rounding in the source can make children report more time than the parent.
	child := &model.PlanNode{NodeType: "Seq Scan", ActualTotalTime: f(100.01)}
	root := &model.PlanNode{NodeType: "Limit", ActualTotalTime: f(100),
		Children: []*model.PlanNode{child}}
	assert.Equal(t, 0.0, metrics.ExclusiveTime(root))
}

func TestExclusiveTimeSumsToRootInclusive(t *testing.T) {
	grandchild := &model.PlanNode{NodeType: "Seq Scan", ActualTotalTime: f(30)}
	child := &model.PlanNode{NodeType: "Hash", ActualTotalTime: f(70),
		Children: []*model.PlanNode{grandchild}}
	root := &model.PlanNode{NodeType: "Hash Join", ActualTotalTime: f(100),
		Children: []*model.PlanNode{child}}

	x := extractor(t, root)
	var sum float64
	for _, n := range x.AllNodes() {
		sum += metrics.ExclusiveTime(n)
	}
	assert.InDelta(t, metrics.InclusiveTime(root), sum, 1e-9)
}

func TestExpensiveOperations(t *testing.T) {
	timed := func(typ, rel string, ms float64) *model.PlanNode {
		return &model.PlanNode{NodeType: typ, RelationName: rel, ActualTotalTime: f(ms)}
	}
	untimed := &model.PlanNode{NodeType: "Materialize"}
	root := &model.PlanNode{NodeType: "Append", ActualTotalTime: f(1000), Children: []*model.PlanNode{
		timed("Seq Scan", "a", 400),
		untimed,
		timed("Seq Scan", "b", 300),
		timed("Index Scan", "c", 200),
	}}

	x := extractor(t, root)
	ops := x.ExpensiveOperations(3)
	require.Len(t, ops, 3)
	// Root exclusive time is 1000 - 900 = 100, below the three children.
	assert.Equal(t, "a", ops[0].Relation)
	assert.Equal(t, "b", ops[1].Relation)
	assert.Equal(t, "c", ops[2].Relation)
	assert.InDelta(t, 400, ops[0].TotalTimeMs, 1e-9)

	// Nodes without a reported actual time never participate.
	all := x.ExpensiveOperations(10)
	for _, op := range all {
		assert.NotEqual(t, "Materialize", op.NodeType)
	}
}

func TestExpensiveOperationsStableTies(t *testing.T) {
	root := &model.PlanNode{NodeType: "Append", Children: []*model.PlanNode{
		{NodeType: "Seq Scan", RelationName: "first", ActualTotalTime: f(50)},
		{NodeType: "Seq Scan", RelationName: "second", ActualTotalTime: f(50)},
	}}
	x := extractor(t, root)
	ops := x.ExpensiveOperations(5)
	require.Len(t, ops, 2)
	// Equal times keep traversal order.
	assert.Equal(t, "first", ops[0].Relation)
	assert.Equal(t, "second", ops[1].Relation)
}

func TestTypeFilters(t *testing.T) {
	root := &model.PlanNode{NodeType: "Hash Join", Children: []*model.PlanNode{
		{NodeType: "Seq Scan", RelationName: "users"},
		{NodeType: "Index Scan", RelationName: "orders", IndexName: "orders_pkey"},
		{NodeType: "Index Only Scan", RelationName: "items"},
		{NodeType: "Bitmap Index Scan", IndexName: "idx_items"},
		{NodeType: "Sort", SortMethod: "quicksort", SortSpaceType: "Memory"},
		{NodeType: "Merge Join"},
	}}
	x := extractor(t, root)

	assert.Len(t, x.SequentialScans(), 1)
	assert.Len(t, x.IndexScans(), 3)
	assert.Len(t, x.Sorts(), 1)
	assert.Len(t, x.Joins(), 2) // Hash Join + Merge Join

	sorts := x.Sorts()
	assert.Equal(t, "quicksort", sorts[0].SortMethod)
	assert.Equal(t, "Memory", sorts[0].SortSpace)
}

func TestTotalBufferStatsRootOnly(t *testing.T) {
	// Child counters are already included in the root's cumulative counters;
	// stats must never sum across nodes.
	child := &model.PlanNode{NodeType: "Seq Scan",
		Buffers: model.Buffers{SharedHit: 500, SharedRead: 500}}
	root := &model.PlanNode{NodeType: "Limit",
		Buffers: model.Buffers{SharedHit: 750, SharedRead: 250, SharedWritten: 10, TempRead: 20, TempWritten: 30},
		Children: []*model.PlanNode{child}}

	x := extractor(t, root)
	stats := x.TotalBufferStats()
	assert.Equal(t, int64(750), stats.SharedHit)
	assert.Equal(t, int64(250), stats.SharedRead)
	assert.InDelta(t, 75.0, stats.HitRatio, 1e-9)
	assert.Equal(t, int64(250+10+20+30), stats.TotalIOBlocks)
}

func TestTotalBufferStatsEmptyHitRatio(t *testing.T) {
	x := extractor(t, &model.PlanNode{NodeType: "Result"})
	assert.Equal(t, 100.0, x.TotalBufferStats().HitRatio)
}

func TestPlanDepth(t *testing.T) {
	single := extractor(t, &model.PlanNode{NodeType: "Result"})
	assert.Equal(t, 0, single.PlanDepth())

	oneLevel := extractor(t, &model.PlanNode{NodeType: "Limit",
		Children: []*model.PlanNode{{NodeType: "Seq Scan"}}})
	assert.Equal(t, 1, oneLevel.PlanDepth())

	nested := extractor(t, &model.PlanNode{NodeType: "Limit",
		Children: []*model.PlanNode{
			{NodeType: "Seq Scan"},
			{NodeType: "Sort", Children: []*model.PlanNode{
				{NodeType: "Hash", Children: []*model.PlanNode{{NodeType: "Seq Scan"}}},
			}},
		}})
	assert.Equal(t, 3, nested.PlanDepth())
}

func TestEstimationAccuracy(t *testing.T) {
	root := &model.PlanNode{NodeType: "Hash Join", PlanRows: f(100), ActualRows: f(100),
		Children: []*model.PlanNode{
			{NodeType: "Seq Scan", PlanRows: f(10), ActualRows: f(100)},  // ratio 10, inaccurate
			{NodeType: "Index Scan", PlanRows: f(80), ActualRows: f(40)}, // ratio 2, accurate
			{NodeType: "Sort"}, // no rows reported, excluded
		}}
	x := extractor(t, root)
	acc := x.EstimationAccuracy()

	assert.Equal(t, 2, acc.Accurate)
	assert.Equal(t, 1, acc.Inaccurate)
	// mean(1, 10, 2) = 4.33
	assert.InDelta(t, 4.33, acc.AvgRatio, 1e-9)
	require.NotEmpty(t, acc.WorstNodes)
	assert.Equal(t, "Seq Scan", acc.WorstNodes[0].NodeType)
	assert.InDelta(t, 10, acc.WorstNodes[0].Ratio, 1e-9)
}

func TestEstimationAccuracyRatioIsSymmetric(t *testing.T) {
	over := extractor(t, &model.PlanNode{NodeType: "Seq Scan", PlanRows: f(10), ActualRows: f(100)})
	under := extractor(t, &model.PlanNode{NodeType: "Seq Scan", PlanRows: f(100), ActualRows: f(10)})
	assert.Equal(t, over.EstimationAccuracy().AvgRatio, under.EstimationAccuracy().AvgRatio)
}

func TestEstimationAccuracyZeroGuards(t *testing.T) {
	// One side zero is maximal inaccuracy, both zero is an exact match.
	oneZero := extractor(t, &model.PlanNode{NodeType: "Seq Scan", PlanRows: f(0), ActualRows: f(5)})
	acc := oneZero.EstimationAccuracy()
	assert.Equal(t, 1, acc.Inaccurate)
	assert.Equal(t, 0.0, acc.AvgRatio)

	bothZero := extractor(t, &model.PlanNode{NodeType: "Seq Scan", PlanRows: f(0), ActualRows: f(0)})
	acc = bothZero.EstimationAccuracy()
	assert.Equal(t, 1, acc.Accurate)
	assert.InDelta(t, 1.0, acc.AvgRatio, 1e-9)
}

func TestEstimationAccuracyEmpty(t *testing.T) {
	x := extractor(t, &model.PlanNode{NodeType: "Result"})
	acc := x.EstimationAccuracy()
	assert.Equal(t, 0, acc.Accurate)
	assert.Equal(t, 0, acc.Inaccurate)
	assert.Equal(t, 0.0, acc.AvgRatio)
	assert.Empty(t, acc.WorstNodes)
}

func TestExtractionIsIdempotent(t *testing.T) {
	root := &model.PlanNode{NodeType: "Sort", ActualTotalTime: f(100), PlanRows: f(10), ActualRows: f(20),
		Children: []*model.PlanNode{
			{NodeType: "Seq Scan", ActualTotalTime: f(60), PlanRows: f(10), ActualRows: f(20)},
		}}
	x := extractor(t, root)

	assert.Equal(t, x.ExpensiveOperations(0), x.ExpensiveOperations(0))
	assert.Equal(t, x.EstimationAccuracy(), x.EstimationAccuracy())
	assert.Equal(t, x.TotalBufferStats(), x.TotalBufferStats())
	assert.Equal(t, x.NodeTypeCounts(), x.NodeTypeCounts())
}
