package metrics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mickamy/plandiff/internal/config"
	"github.com/mickamy/plandiff/internal/model"
)

// Extractor derives per-node and aggregate metrics from a plan tree. All
// query methods are pure over the input document; the node list is computed
// once at construction, so a single Extractor is safe to share across
// goroutines.
type Extractor struct {
	doc   *model.Document
	nodes []*model.PlanNode
}

// NodeMetric is one row of extracted per-node facts used for ranking and
// filtering. TotalTimeMs carries the node's exclusive time.
type NodeMetric struct {
	NodeType    string  `json:"node_type"`
	Relation    string  `json:"relation,omitempty"`
	Index       string  `json:"index,omitempty"`
	TotalTimeMs float64 `json:"total_time_ms"`
	Rows        float64 `json:"rows"`
	Cost        float64 `json:"cost"`
	Loops       float64 `json:"loops"`
	SortMethod  string  `json:"sort_method,omitempty"`
	SortSpace   string  `json:"sort_space,omitempty"`
}

// BufferStats aggregates the buffer counters of a plan. Counters are read
// from the root node only: plan-tree buffer counters are cumulative, so a
// parent's reported blocks already include every descendant's blocks and
// summing across nodes would overcount.
type BufferStats struct {
	SharedHit     int64   `json:"shared_hit"`
	SharedRead    int64   `json:"shared_read"`
	SharedDirtied int64   `json:"shared_dirtied"`
	SharedWritten int64   `json:"shared_written"`
	TempRead      int64   `json:"temp_read"`
	TempWritten   int64   `json:"temp_written"`
	LocalHit      int64   `json:"local_hit"`
	LocalRead     int64   `json:"local_read"`
	HitRatio      float64 `json:"hit_ratio"`
	TotalIOBlocks int64   `json:"total_io_blocks"`
}

// EstimationAccuracy scores how well the planner's row estimates matched
// the actual row counts.
type EstimationAccuracy struct {
	Accurate   int             `json:"accurate"`
	Inaccurate int             `json:"inaccurate"`
	AvgRatio   float64         `json:"avg_ratio"`
	WorstNodes []EstimateDrift `json:"worst_nodes,omitempty"`
}

// EstimateDrift identifies one node whose estimate diverged, with the
// symmetric "how many times off" ratio.
type EstimateDrift struct {
	NodeType   string  `json:"node_type"`
	Relation   string  `json:"relation,omitempty"`
	PlanRows   float64 `json:"plan_rows"`
	ActualRows float64 `json:"actual_rows"`
	Ratio      float64 `json:"ratio"`
}

// NewExtractor builds an extractor for the document. The caller retains
// ownership of the document; it is never mutated.
func NewExtractor(doc *model.Document) (*Extractor, error) {
	if doc == nil || doc.Plan == nil {
		return nil, fmt.Errorf("metrics: missing plan root")
	}
	e := &Extractor{doc: doc}
	e.nodes = flatten(doc.Plan)
	return e, nil
}

// AllNodes returns every node in pre-order depth-first traversal order.
// Callers must not modify the returned slice.
func (e *Extractor) AllNodes() []*model.PlanNode {
	return e.nodes
}

// NodeCount returns the number of nodes in the plan.
func (e *Extractor) NodeCount() int {
	return len(e.nodes)
}

// NodeTypeCounts maps each node type to its occurrence count.
func (e *Extractor) NodeTypeCounts() map[string]int {
	counts := make(map[string]int, len(e.nodes))
	for _, n := range e.nodes {
		counts[n.NodeType]++
	}
	return counts
}

// InclusiveTime returns the node's reported elapsed time multiplied by its
// loop count. The source convention reports each node's time as cumulative
// over its subtree.
func InclusiveTime(n *model.PlanNode) float64 {
	if n == nil || n.ActualTotalTime == nil {
		return 0
	}
	return *n.ActualTotalTime * n.Loops()
}

// ExclusiveTime returns the node's own elapsed time, excluding time already
// attributed to its children. Floored at zero to absorb rounding noise in
// the source timings.
func ExclusiveTime(n *model.PlanNode) float64 {
	if n == nil {
		return 0
	}
	own := InclusiveTime(n)
	for _, child := range n.Children {
		own -= InclusiveTime(child)
	}
	if own < 0 {
		return 0
	}
	return own
}

// ExpensiveOperations returns the top nodes by exclusive time. Only nodes
// with a reported actual time participate. A non-positive limit falls back
// to the configured default. Ties keep traversal order.
func (e *Extractor) ExpensiveOperations(limit int) []NodeMetric {
	if limit <= 0 {
		limit = config.Active().Extract.ExpensiveLimit
	}
	var out []NodeMetric
	for _, n := range e.nodes {
		if n.ActualTotalTime == nil {
			continue
		}
		out = append(out, metricFor(n))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalTimeMs > out[j].TotalTimeMs
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SequentialScans returns every Seq Scan node with its exclusive time.
func (e *Extractor) SequentialScans() []NodeMetric {
	return e.filtered(func(t string) bool { return t == "Seq Scan" })
}

// IndexScans returns index scan nodes (Index Scan, Index Only Scan,
// Bitmap Index Scan) with their exclusive time.
func (e *Extractor) IndexScans() []NodeMetric {
	return e.filtered(func(t string) bool {
		return strings.Contains(t, "Index") && strings.Contains(t, "Scan")
	})
}

// Sorts returns every Sort node with its exclusive time and sort method.
func (e *Extractor) Sorts() []NodeMetric {
	return e.filtered(func(t string) bool { return t == "Sort" })
}

// Joins returns every node whose type contains "Join".
func (e *Extractor) Joins() []NodeMetric {
	return e.filtered(func(t string) bool { return strings.Contains(t, "Join") })
}

func (e *Extractor) filtered(match func(string) bool) []NodeMetric {
	var out []NodeMetric
	for _, n := range e.nodes {
		if match(n.NodeType) {
			out = append(out, metricFor(n))
		}
	}
	return out
}

// TotalBufferStats reads the plan's buffer counters from the root node and
// derives the cache hit ratio and total I/O block count.
func (e *Extractor) TotalBufferStats() BufferStats {
	b := e.doc.Plan.Buffers
	stats := BufferStats{
		SharedHit:     b.SharedHit,
		SharedRead:    b.SharedRead,
		SharedDirtied: b.SharedDirtied,
		SharedWritten: b.SharedWritten,
		TempRead:      b.TempRead,
		TempWritten:   b.TempWritten,
		LocalHit:      b.LocalHit,
		LocalRead:     b.LocalRead,
		TotalIOBlocks: b.SharedRead + b.SharedWritten + b.TempRead + b.TempWritten,
	}
	denom := b.SharedHit + b.SharedRead
	if denom == 0 {
		stats.HitRatio = 100.0
	} else {
		stats.HitRatio = round2(100 * float64(b.SharedHit) / float64(denom))
	}
	return stats
}

// PlanDepth returns the maximum root-to-leaf edge count. A single-node plan
// has depth 0.
func (e *Extractor) PlanDepth() int {
	return depth(e.doc.Plan)
}

// EstimationAccuracy scores every node where both the estimate and the
// actual row count are present. A node is accurate when its ratio stays
// within the configured band.
func (e *Extractor) EstimationAccuracy() EstimationAccuracy {
	cfg := config.Active().Extract
	var (
		result EstimationAccuracy
		drifts []EstimateDrift
		sum    float64
	)
	for _, n := range e.nodes {
		if n.PlanRows == nil || n.ActualRows == nil {
			continue
		}
		r := estimateRatio(*n.PlanRows, *n.ActualRows)
		if r >= cfg.AccurateLow && r <= cfg.AccurateHigh {
			result.Accurate++
		} else {
			result.Inaccurate++
		}
		sum += r
		drifts = append(drifts, EstimateDrift{
			NodeType:   n.NodeType,
			Relation:   n.RelationName,
			PlanRows:   *n.PlanRows,
			ActualRows: *n.ActualRows,
			Ratio:      round2(r),
		})
	}
	scored := result.Accurate + result.Inaccurate
	if scored == 0 {
		return result
	}
	result.AvgRatio = round2(sum / float64(scored))

	sort.SliceStable(drifts, func(i, j int) bool {
		return drifts[i].Ratio > drifts[j].Ratio
	})
	limit := cfg.WorstEstimates
	if len(drifts) > limit {
		drifts = drifts[:limit]
	}
	result.WorstNodes = drifts
	return result
}

// estimateRatio is the symmetric "how many times off" measure: 1.0 for an
// exact match, 0.0 when exactly one side is zero, otherwise always >= 1.
func estimateRatio(planned, actual float64) float64 {
	if planned == actual {
		return 1.0
	}
	if planned == 0 || actual == 0 {
		return 0.0
	}
	if actual > planned {
		return actual / planned
	}
	return planned / actual
}

func metricFor(n *model.PlanNode) NodeMetric {
	return NodeMetric{
		NodeType:    n.NodeType,
		Relation:    n.RelationName,
		Index:       n.IndexName,
		TotalTimeMs: ExclusiveTime(n),
		Rows:        n.RowsOrZero(),
		Cost:        n.TotalCost,
		Loops:       n.Loops(),
		SortMethod:  n.SortMethod,
		SortSpace:   n.SortSpaceType,
	}
}

func flatten(root *model.PlanNode) []*model.PlanNode {
	var out []*model.PlanNode
	var walk func(*model.PlanNode)
	walk = func(n *model.PlanNode) {
		out = append(out, n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return out
}

func depth(n *model.PlanNode) int {
	deepest := 0
	for _, child := range n.Children {
		if d := depth(child) + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
