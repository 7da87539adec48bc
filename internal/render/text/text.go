package text

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/mickamy/plandiff/internal/compare"
	"github.com/mickamy/plandiff/internal/metrics"
	"github.com/mickamy/plandiff/internal/model"
	"github.com/mickamy/plandiff/internal/summary"
)

// Options controls the text renderer.
type Options struct {
	EnableColor bool
	MaxDepth    int
}

type palette struct {
	header  lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
	neutral lipgloss.Style
	dim     lipgloss.Style
}

func newPalette(enabled bool) palette {
	if !enabled {
		plain := lipgloss.NewStyle()
		return palette{header: plain, good: plain, bad: plain, neutral: plain, dim: plain}
	}
	return palette{
		header:  lipgloss.NewStyle().Bold(true),
		good:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		neutral: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// RenderAnalysis prints a single-plan report: summary, buffers, estimation
// accuracy, curated node lists and the annotated plan tree.
func RenderAnalysis(w io.Writer, doc *model.Document, x *metrics.Extractor, opts Options) error {
	if w == nil {
		return errors.New("text: writer is nil")
	}
	if doc == nil || x == nil {
		return errors.New("text: empty analysis")
	}
	p := newPalette(opts.EnableColor)

	sum, err := summary.FromDocument(doc)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, p.header.Render("Plan summary"))
	fmt.Fprintf(w, "  Total time     %.3f ms (planning %.3f ms, execution %.3f ms)\n",
		sum.TotalTimeMs, sum.PlanningTimeMs, sum.ExecutionTimeMs)
	fmt.Fprintf(w, "  Cost           %.2f (startup %.2f)\n", sum.TotalCost, sum.StartupCost)
	fmt.Fprintf(w, "  Rows           %.0f actual / %.0f planned\n", sum.ActualRows, sum.PlanRows)
	fmt.Fprintf(w, "  Nodes          %d (depth %d)\n", x.NodeCount(), x.PlanDepth())
	ioTiming := summary.IO(doc)
	if ioTiming.ReadMs > 0 || ioTiming.WriteMs > 0 {
		fmt.Fprintf(w, "  I/O time       read %.3f ms, write %.3f ms\n", ioTiming.ReadMs, ioTiming.WriteMs)
	}
	fmt.Fprintln(w)

	buffers := x.TotalBufferStats()
	fmt.Fprintln(w, p.header.Render("Buffers"))
	fmt.Fprintf(w, "  Hit ratio      %s\n", colorRatio(p, buffers.HitRatio))
	fmt.Fprintf(w, "  Shared         hit %d, read %d, dirtied %d, written %d\n",
		buffers.SharedHit, buffers.SharedRead, buffers.SharedDirtied, buffers.SharedWritten)
	fmt.Fprintf(w, "  Temp           read %d, written %d\n", buffers.TempRead, buffers.TempWritten)
	fmt.Fprintf(w, "  Total I/O      %d blocks\n\n", buffers.TotalIOBlocks)

	accuracy := x.EstimationAccuracy()
	fmt.Fprintln(w, p.header.Render("Estimation accuracy"))
	fmt.Fprintf(w, "  Accurate %d, inaccurate %d, avg ratio %.2f\n", accuracy.Accurate, accuracy.Inaccurate, accuracy.AvgRatio)
	for _, drift := range accuracy.WorstNodes {
		label := drift.NodeType
		if drift.Relation != "" {
			label += " on " + drift.Relation
		}
		fmt.Fprintf(w, "  %s expected %.0f got %.0f (x%.2f)\n", label, drift.PlanRows, drift.ActualRows, drift.Ratio)
	}
	fmt.Fprintln(w)

	renderNodeTable(w, p, "Most expensive operations", x.ExpensiveOperations(0))
	renderNodeTable(w, p, "Sequential scans", x.SequentialScans())
	renderNodeTable(w, p, "Sorts", x.Sorts())

	fmt.Fprintln(w, p.header.Render("Plan tree"))
	renderTree(w, p, doc.Plan, "", true, true, 0, opts.MaxDepth)
	return nil
}

func renderNodeTable(w io.Writer, p palette, title string, rows []metrics.NodeMetric) {
	fmt.Fprintln(w, p.header.Render(title))
	if len(rows) == 0 {
		fmt.Fprintln(w, p.dim.Render("  none"))
		fmt.Fprintln(w)
		return
	}
	for _, m := range rows {
		label := m.NodeType
		if m.Relation != "" {
			label += " on " + m.Relation
		}
		if m.Index != "" {
			label += " using " + m.Index
		}
		fmt.Fprintf(w, "  %-48s %10.2f ms  rows %.0f  cost %.2f\n", label, m.TotalTimeMs, m.Rows, m.Cost)
	}
	fmt.Fprintln(w)
}

func renderTree(w io.Writer, p palette, node *model.PlanNode, prefix string, isRoot, isLast bool, depth, maxDepth int) {
	line := nodeLine(node)
	if isRoot {
		fmt.Fprintf(w, "%s\n", line)
	} else {
		connector := "|-- "
		if isLast {
			connector = "`-- "
		}
		fmt.Fprintf(w, "%s%s%s\n", prefix, connector, line)
	}

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "|   "
		}
	}

	if maxDepth > 0 && depth >= maxDepth && len(node.Children) > 0 {
		fmt.Fprintf(w, "%s`-- %s\n", childPrefix, p.dim.Render(fmt.Sprintf("... (%d more nodes)", countDescendants(node))))
		return
	}

	for i, child := range node.Children {
		renderTree(w, p, child, childPrefix, false, i == len(node.Children)-1, depth+1, maxDepth)
	}
}

func nodeLine(node *model.PlanNode) string {
	label := node.NodeType
	if node.RelationName != "" {
		label += " on " + node.RelationName
	}
	if node.IndexName != "" {
		label += " using " + node.IndexName
	}
	return fmt.Sprintf("%s  self %.2f ms  rows %.0f", label, metrics.ExclusiveTime(node), node.RowsOrZero())
}

func countDescendants(node *model.PlanNode) int {
	count := 0
	for _, child := range node.Children {
		count += 1 + countDescendants(child)
	}
	return count
}

// RenderComparison prints a before/after report: verdict banner, key
// changes, metric-group tables and the node-type shift list.
func RenderComparison(w io.Writer, e *compare.Engine, opts Options) error {
	if w == nil {
		return errors.New("text: writer is nil")
	}
	if e == nil {
		return errors.New("text: empty comparison")
	}
	p := newPalette(opts.EnableColor)

	verdict := e.Verdict()
	banner := fmt.Sprintf("Verdict: %s (time %+.2f%%, cost %+.2f%%)", verdict.Status, verdict.TimePercent, verdict.CostPercent)
	switch verdict.Status {
	case compare.StatusImproved:
		fmt.Fprintln(w, p.good.Render(banner))
	case compare.StatusRegressed:
		fmt.Fprintln(w, p.bad.Render(banner))
	default:
		fmt.Fprintln(w, p.neutral.Render(banner))
	}
	fmt.Fprintln(w)

	changes := e.KeyChanges()
	fmt.Fprintln(w, p.header.Render("Key changes"))
	if len(changes) == 0 {
		fmt.Fprintln(w, p.dim.Render("  none above threshold"))
	}
	for _, change := range changes {
		line := fmt.Sprintf("  %-20s %+.2f (%s)", change.Metric, change.Change, change.Impact)
		switch change.Impact {
		case compare.ImpactPositive:
			fmt.Fprintln(w, p.good.Render(line))
		case compare.ImpactNegative:
			fmt.Fprintln(w, p.bad.Render(line))
		default:
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w)

	renderDeltas(w, p, "Timing (ms)", e.Timing())
	renderDeltas(w, p, "Cost", e.Cost())
	renderDeltas(w, p, "Buffers (blocks)", e.Buffers())
	renderDeltas(w, p, "I/O time (ms)", e.IO())

	rows := e.Rows()
	fmt.Fprintln(w, p.header.Render("Rows"))
	renderDelta(w, rows.ActualRows)
	renderDelta(w, rows.PlanRows)
	fmt.Fprintf(w, "  accuracy: %d/%d accurate -> %d/%d accurate\n\n",
		rows.Before.Accurate, rows.Before.Accurate+rows.Before.Inaccurate,
		rows.After.Accurate, rows.After.Accurate+rows.After.Inaccurate)

	sorts := e.Sorts()
	fmt.Fprintln(w, p.header.Render("Sorts"))
	renderDelta(w, sorts.Count)
	renderDelta(w, sorts.DiskSorts)
	fmt.Fprintf(w, "  sort time: %.2f ms -> %.2f ms\n\n", sorts.BeforeTimeMs, sorts.AfterTimeMs)

	complexity := e.Complexity()
	fmt.Fprintln(w, p.header.Render("Complexity"))
	renderDelta(w, complexity.Depth)
	renderDelta(w, complexity.NodeCount)
	fmt.Fprintln(w)

	scans := e.SequentialScans()
	fmt.Fprintln(w, p.header.Render("Sequential scans"))
	fmt.Fprintf(w, "  count %d -> %d, time %.2f ms -> %.2f ms, rows %.0f -> %.0f\n\n",
		scans.Before.Count, scans.After.Count,
		scans.Before.TimeMs, scans.After.TimeMs,
		scans.Before.Rows, scans.After.Rows)

	fmt.Fprintln(w, p.header.Render("Node types"))
	for _, d := range e.NodeTypes() {
		if d.Change == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-24s %d -> %d (%+d, %+.2f%%)\n", d.Type, d.Before, d.After, d.Change, d.PercentChange)
	}
	return nil
}

func renderDeltas(w io.Writer, p palette, title string, deltas []compare.Delta) {
	fmt.Fprintln(w, p.header.Render(title))
	for _, d := range deltas {
		renderDelta(w, d)
	}
	fmt.Fprintln(w)
}

func renderDelta(w io.Writer, d compare.Delta) {
	marker := " "
	if d.Significant {
		marker = "*"
	}
	fmt.Fprintf(w, "  %s %-22s %14.2f -> %14.2f (%+.2f, %+.2f%%)\n",
		marker, d.Metric, d.Before, d.After, d.Difference, d.PercentChange)
}

func colorRatio(p palette, ratio float64) string {
	text := fmt.Sprintf("%.2f%%", ratio)
	switch {
	case ratio >= 99:
		return p.good.Render(text)
	case ratio < 90:
		return p.bad.Render(text)
	default:
		return p.neutral.Render(text)
	}
}
