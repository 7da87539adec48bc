package model

// Document represents one parsed EXPLAIN (FORMAT JSON) result.
// It is immutable after parsing; the analysis packages only read it.
type Document struct {
	Plan          *PlanNode
	PlanningTime  float64
	ExecutionTime float64
	IOReadTime    float64
	IOWriteTime   float64
	// Extra carries additional top-level fields that we do not interpret yet.
	Extra map[string]any
}

// PlanNode captures one node in the execution plan tree.
//
// PlanRows, ActualRows and ActualTotalTime are pointers because several
// derived metrics depend on whether the planner reported them at all, not
// just on their value. The remaining numeric fields default to zero when
// the source document omits them.
type PlanNode struct {
	NodeType        string
	RelationName    string
	IndexName       string
	JoinType        string
	SortMethod      string
	SortSpaceType   string
	StartupCost     float64
	TotalCost       float64
	PlanRows        *float64
	ActualRows      *float64
	ActualLoops     float64
	ActualTotalTime *float64
	Buffers         Buffers
	Extra           map[string]any
	Children        []*PlanNode
}

// Buffers holds the block counters reported for a node. Counters are
// cumulative over the node's subtree, matching the source convention.
type Buffers struct {
	SharedHit     int64
	SharedRead    int64
	SharedDirtied int64
	SharedWritten int64
	TempRead      int64
	TempWritten   int64
	LocalHit      int64
	LocalRead     int64
}

// Loops returns the node's loop count, defaulting to 1 when unreported.
func (n *PlanNode) Loops() float64 {
	if n.ActualLoops <= 0 {
		return 1
	}
	return n.ActualLoops
}

// RowsOrZero returns the actual row count, or 0 when unreported.
func (n *PlanNode) RowsOrZero() float64 {
	if n.ActualRows == nil {
		return 0
	}
	return *n.ActualRows
}

// PlanRowsOrZero returns the planner's row estimate, or 0 when unreported.
func (n *PlanNode) PlanRowsOrZero() float64 {
	if n.PlanRows == nil {
		return 0
	}
	return *n.PlanRows
}
