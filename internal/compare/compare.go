package compare

import (
	"fmt"
	"math"
	"sort"

	"github.com/mickamy/plandiff/internal/config"
	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/model"
	"github.com/mickamy/plandiff/internal/summary"
)

// Engine compares two plan documents. It owns one extractor per side and
// only reads the documents; results are recomputed on each call, so two
// invocations over the same documents yield identical structures.
type Engine struct {
	before, after *model.Document
	bx, ax        *metrics.Extractor
	bsum, asum    summary.Summary
}

// Delta is one paired-metric comparison record.
type Delta struct {
	Metric        string  `json:"metric"`
	Before        float64 `json:"before"`
	After         float64 `json:"after"`
	Difference    float64 `json:"difference"`
	PercentChange float64 `json:"percent_change"`
	Significant   bool    `json:"significant"`
}

// RowComparison carries row-count deltas plus estimation accuracy on both sides.
type RowComparison struct {
	ActualRows Delta                      `json:"actual_rows"`
	PlanRows   Delta                      `json:"plan_rows"`
	Before     metrics.EstimationAccuracy `json:"before"`
	After      metrics.EstimationAccuracy `json:"after"`
}

// SortComparison summarises sort activity changes between the two plans.
type SortComparison struct {
	Count        Delta   `json:"count"`
	DiskSorts    Delta   `json:"disk_sorts"`
	BeforeTimeMs float64 `json:"before_time_ms"`
	AfterTimeMs  float64 `json:"after_time_ms"`
}

// ComplexityComparison covers plan shape changes.
type ComplexityComparison struct {
	Depth     Delta `json:"depth"`
	NodeCount Delta `json:"node_count"`
}

// SeqScanSide aggregates sequential-scan activity on one side.
type SeqScanSide struct {
	Count  int     `json:"count"`
	TimeMs float64 `json:"time_ms"`
	Rows   float64 `json:"rows"`
}

// SeqScanComparison is a simple before/after pair, not a delta record.
type SeqScanComparison struct {
	Before SeqScanSide `json:"before"`
	After  SeqScanSide `json:"after"`
}

// NodeTypeDelta reports the occurrence change of one node type.
type NodeTypeDelta struct {
	Type          string  `json:"type"`
	Before        int     `json:"before"`
	After         int     `json:"after"`
	Change        int     `json:"change"`
	PercentChange float64 `json:"percent_change"`
}

// Status is the engine's three-way classification of a comparison.
type Status string

const (
	StatusImproved  Status = "improved"
	StatusRegressed Status = "regressed"
	StatusSimilar   Status = "similar"
)

// Verdict classifies the overall change. Magnitude is always reported as a
// positive number: the negated time/cost percentage for an improvement, the
// raw percentage for a regression.
type Verdict struct {
	Status      Status  `json:"status"`
	TimePercent float64 `json:"time_percent"`
	CostPercent float64 `json:"cost_percent"`
	Magnitude   float64 `json:"magnitude"`
}

// Impact tags whether a key change helped or hurt.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNegative Impact = "negative"
	ImpactNeutral  Impact = "neutral"
)

// KeyChange is one entry of the curated most-impactful-deltas list. Change
// is a relative percentage for time and I/O blocks, and a percentage-point
// delta for the buffer hit ratio.
type KeyChange struct {
	Metric string  `json:"metric"`
	Change float64 `json:"change"`
	Impact Impact  `json:"impact"`
}

// Report bundles every comparison the engine produces, for export.
type Report struct {
	Verdict    Verdict              `json:"verdict"`
	KeyChanges []KeyChange          `json:"key_changes"`
	Timing     []Delta              `json:"timing"`
	Cost       []Delta              `json:"cost"`
	Buffers    []Delta              `json:"buffers"`
	IO         []Delta              `json:"io"`
	Rows       RowComparison        `json:"rows"`
	Sorts      SortComparison       `json:"sorts"`
	Complexity ComplexityComparison `json:"complexity"`
	SeqScans   SeqScanComparison    `json:"seq_scans"`
	NodeTypes  []NodeTypeDelta      `json:"node_types"`
}

// NewEngine builds a comparison engine over a before/after document pair.
func NewEngine(before, after *model.Document) (*Engine, error) {
	bx, err := metrics.NewExtractor(before)
	if err != nil {
		return nil, fmt.Errorf("compare: before: %w", err)
	}
	ax, err := metrics.NewExtractor(after)
	if err != nil {
		return nil, fmt.Errorf("compare: after: %w", err)
	}
	bsum, err := summary.FromDocument(before)
	if err != nil {
		return nil, fmt.Errorf("compare: before: %w", err)
	}
	asum, err := summary.FromDocument(after)
	if err != nil {
		return nil, fmt.Errorf("compare: after: %w", err)
	}
	return &Engine{before: before, after: after, bx: bx, ax: ax, bsum: bsum, asum: asum}, nil
}

// Before returns the extractor for the baseline plan.
func (e *Engine) Before() *metrics.Extractor { return e.bx }

// After returns the extractor for the target plan.
func (e *Engine) After() *metrics.Extractor { return e.ax }

// PercentChange computes the relative change from before to after. Zero on
// either side is a meaningful state, not an error: a metric appearing from
// nothing reports +100, one disappearing entirely reports -100.
func PercentChange(before, after float64) float64 {
	switch {
	case before == after:
		return 0.0
	case before == 0 && after > 0:
		return 100.0
	case before > 0 && after == 0:
		return -100.0
	case before == 0 && after == 0:
		return 0.0
	default:
		return round2((after - before) / before * 100)
	}
}

func newDelta(metric string, before, after float64) Delta {
	pct := PercentChange(before, after)
	return Delta{
		Metric:        metric,
		Before:        before,
		After:         after,
		Difference:    after - before,
		PercentChange: pct,
		Significant:   math.Abs(pct) > config.Active().Compare.SignificantPercent,
	}
}

// Timing compares planning, execution and total time.
func (e *Engine) Timing() []Delta {
	return []Delta{
		newDelta("planning_time", e.bsum.PlanningTimeMs, e.asum.PlanningTimeMs),
		newDelta("execution_time", e.bsum.ExecutionTimeMs, e.asum.ExecutionTimeMs),
		newDelta("total_time", e.bsum.TotalTimeMs, e.asum.TotalTimeMs),
	}
}

// Cost compares the root node's planner cost estimates.
func (e *Engine) Cost() []Delta {
	return []Delta{
		newDelta("total_cost", e.bsum.TotalCost, e.asum.TotalCost),
		newDelta("startup_cost", e.bsum.StartupCost, e.asum.StartupCost),
	}
}

// Buffers compares all eight buffer counters.
func (e *Engine) Buffers() []Delta {
	b := e.bx.TotalBufferStats()
	a := e.ax.TotalBufferStats()
	return []Delta{
		newDelta("shared_hit_blocks", float64(b.SharedHit), float64(a.SharedHit)),
		newDelta("shared_read_blocks", float64(b.SharedRead), float64(a.SharedRead)),
		newDelta("shared_dirtied_blocks", float64(b.SharedDirtied), float64(a.SharedDirtied)),
		newDelta("shared_written_blocks", float64(b.SharedWritten), float64(a.SharedWritten)),
		newDelta("temp_read_blocks", float64(b.TempRead), float64(a.TempRead)),
		newDelta("temp_written_blocks", float64(b.TempWritten), float64(a.TempWritten)),
		newDelta("local_hit_blocks", float64(b.LocalHit), float64(a.LocalHit)),
		newDelta("local_read_blocks", float64(b.LocalRead), float64(a.LocalRead)),
	}
}

// IO compares the document-level I/O wait times.
func (e *Engine) IO() []Delta {
	b := summary.IO(e.before)
	a := summary.IO(e.after)
	return []Delta{
		newDelta("io_read_time", b.ReadMs, a.ReadMs),
		newDelta("io_write_time", b.WriteMs, a.WriteMs),
	}
}

// Rows compares actual and planned row counts plus estimation accuracy.
func (e *Engine) Rows() RowComparison {
	return RowComparison{
		ActualRows: newDelta("actual_rows", e.bsum.ActualRows, e.asum.ActualRows),
		PlanRows:   newDelta("plan_rows", e.bsum.PlanRows, e.asum.PlanRows),
		Before:     e.bx.EstimationAccuracy(),
		After:      e.ax.EstimationAccuracy(),
	}
}

// Sorts compares sort counts, disk sorts and summed sort time.
func (e *Engine) Sorts() SortComparison {
	b := e.bx.Sorts()
	a := e.ax.Sorts()
	return SortComparison{
		Count:        newDelta("sort_count", float64(len(b)), float64(len(a))),
		DiskSorts:    newDelta("disk_sorts", float64(countDiskSorts(b)), float64(countDiskSorts(a))),
		BeforeTimeMs: sumTime(b),
		AfterTimeMs:  sumTime(a),
	}
}

func countDiskSorts(sorts []metrics.NodeMetric) int {
	count := 0
	for _, s := range sorts {
		if s.SortSpace == "Disk" {
			count++
		}
	}
	return count
}

func sumTime(nodes []metrics.NodeMetric) float64 {
	var total float64
	for _, n := range nodes {
		total += n.TotalTimeMs
	}
	return total
}

// Complexity compares plan depth and node count.
func (e *Engine) Complexity() ComplexityComparison {
	return ComplexityComparison{
		Depth:     newDelta("plan_depth", float64(e.bx.PlanDepth()), float64(e.ax.PlanDepth())),
		NodeCount: newDelta("node_count", float64(e.bx.NodeCount()), float64(e.ax.NodeCount())),
	}
}

// SequentialScans aggregates sequential-scan activity on both sides.
func (e *Engine) SequentialScans() SeqScanComparison {
	return SeqScanComparison{
		Before: seqScanSide(e.bx.SequentialScans()),
		After:  seqScanSide(e.ax.SequentialScans()),
	}
}

func seqScanSide(scans []metrics.NodeMetric) SeqScanSide {
	side := SeqScanSide{Count: len(scans)}
	for _, s := range scans {
		side.TimeMs += s.TotalTimeMs
		side.Rows += s.Rows
	}
	return side
}

// NodeTypes compares node-type occurrence counts over the union of types
// seen on either side, largest structural shifts first.
func (e *Engine) NodeTypes() []NodeTypeDelta {
	before := e.bx.NodeTypeCounts()
	after := e.ax.NodeTypeCounts()

	seen := make(map[string]struct{}, len(before)+len(after))
	for t := range before {
		seen[t] = struct{}{}
	}
	for t := range after {
		seen[t] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)

	out := make([]NodeTypeDelta, 0, len(types))
	for _, t := range types {
		b, a := before[t], after[t]
		out = append(out, NodeTypeDelta{
			Type:          t,
			Before:        b,
			After:         a,
			Change:        a - b,
			PercentChange: PercentChange(float64(b), float64(a)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Change) > abs(out[j].Change)
	})
	return out
}

// Verdict classifies the comparison. Either metric crossing the threshold
// is sufficient; improvement wins when both cross in opposite directions.
func (e *Engine) Verdict() Verdict {
	threshold := config.Active().Compare.VerdictPercent
	timePct := PercentChange(e.bsum.TotalTimeMs, e.asum.TotalTimeMs)
	costPct := PercentChange(e.bsum.TotalCost, e.asum.TotalCost)

	v := Verdict{Status: StatusSimilar, TimePercent: timePct, CostPercent: costPct}
	switch {
	case timePct < -threshold || costPct < -threshold:
		v.Status = StatusImproved
		if timePct < -threshold {
			v.Magnitude = -timePct
		} else {
			v.Magnitude = -costPct
		}
	case timePct > threshold || costPct > threshold:
		v.Status = StatusRegressed
		if timePct > threshold {
			v.Magnitude = timePct
		} else {
			v.Magnitude = costPct
		}
	}
	return v
}

// KeyChanges builds the ranked list of the most impactful deltas. The list
// is a deliberate curation over three signals, not a full diff.
func (e *Engine) KeyChanges() []KeyChange {
	cfg := config.Active().Compare
	var out []KeyChange

	timePct := PercentChange(e.bsum.TotalTimeMs, e.asum.TotalTimeMs)
	if math.Abs(timePct) > cfg.VerdictPercent {
		out = append(out, KeyChange{
			Metric: "total_time",
			Change: timePct,
			Impact: classifyImpact(timePct),
		})
	}

	bStats := e.bx.TotalBufferStats()
	aStats := e.ax.TotalBufferStats()

	// Hit ratio is compared in percentage points, and its sign is inverted
	// before classification: a rising ratio is good.
	ratioDelta := round2(aStats.HitRatio - bStats.HitRatio)
	if math.Abs(ratioDelta) > cfg.HitRatioPoints {
		out = append(out, KeyChange{
			Metric: "buffer_hit_ratio",
			Change: ratioDelta,
			Impact: classifyImpact(-ratioDelta),
		})
	}

	ioPct := PercentChange(float64(bStats.TotalIOBlocks), float64(aStats.TotalIOBlocks))
	if math.Abs(ioPct) > cfg.IOBlocksPercent {
		out = append(out, KeyChange{
			Metric: "total_io_blocks",
			Change: ioPct,
			Impact: classifyImpact(ioPct),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Change) > math.Abs(out[j].Change)
	})
	return out
}

// classifyImpact treats increases as harmful, which holds for time and I/O.
func classifyImpact(pct float64) Impact {
	switch {
	case pct > 0:
		return ImpactNegative
	case pct < 0:
		return ImpactPositive
	default:
		return ImpactNeutral
	}
}

// Full assembles every comparison into a single report.
func (e *Engine) Full() *Report {
	return &Report{
		Verdict:    e.Verdict(),
		KeyChanges: e.KeyChanges(),
		Timing:     e.Timing(),
		Cost:       e.Cost(),
		Buffers:    e.Buffers(),
		IO:         e.IO(),
		Rows:       e.Rows(),
		Sorts:      e.Sorts(),
		Complexity: e.Complexity(),
		SeqScans:   e.SequentialScans(),
		NodeTypes:  e.NodeTypes(),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
