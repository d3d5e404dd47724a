package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rohankatakam/cigraph/internal/graph"
	"github.com/rohankatakam/cigraph/internal/ingestion"
	"github.com/rohankatakam/cigraph/internal/models"
	"github.com/rohankatakam/cigraph/internal/query"
	"github.com/rohankatakam/cigraph/internal/validation"
)

// TextFormatter writes a human-readable summary. Results it has no layout
// for fall back to YAML.
type TextFormatter struct{}

func (f *TextFormatter) Format(v interface{}, w io.Writer) error {
	switch r := v.(type) {
	case []string:
		return writeLines(w, r)
	case *ingestion.Result:
		return writeIngestResult(w, r)
	case *query.Neighborhood:
		return writeNeighborhood(w, r)
	case *query.FlowTrace:
		return writeFlowTrace(w, r)
	case *models.FlowGraph:
		return writeFlowGraph(w, r)
	case []*models.DependencyMismatch:
		return writeMismatches(w, r)
	case *graph.ExportResult:
		return writeExportResult(w, r)
	case []validation.ValidationResult:
		return writeConsistency(w, r)
	default:
		return (&YAMLFormatter{}).Format(v, w)
	}
}

func writeLines(w io.Writer, lines []string) error {
	if len(lines) == 0 {
		_, err := fmt.Fprintln(w, "(none)")
		return err
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeIngestResult(w io.Writer, r *ingestion.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Records:\t%d\n", r.Records)
	fmt.Fprintf(tw, "Nodes:\t%d\n", r.Nodes)
	fmt.Fprintf(tw, "Edges:\t%d\n", r.Edges)
	fmt.Fprintf(tw, "Occurrences:\t%d\n", r.Occurrences)
	fmt.Fprintf(tw, "Skipped:\t%d\n", r.Skipped)
	fmt.Fprintf(tw, "Batches:\t%d\n", r.Batches)
	fmt.Fprintf(tw, "Embedded:\t%d\n", r.Embedded)
	if r.DependencySignals {
		fmt.Fprintf(tw, "Mismatches:\t%d\n", r.Mismatches)
	}
	fmt.Fprintf(tw, "Duration:\t%s\n", r.Duration)
	return tw.Flush()
}

func writeNeighborhood(w io.Writer, n *query.Neighborhood) error {
	counts := make(map[string]int, len(n.EdgeOccurrenceCounts))
	for _, c := range n.EdgeOccurrenceCounts {
		counts[c.EdgeKey] = c.Occurrences
	}

	fmt.Fprintf(w, "Nodes (%d):\n", len(n.Nodes))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, node := range n.Nodes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", node.SymbolUID, node.NodeType, nodeLocation(node))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Edges (%d):\n", len(n.Edges))
	for _, e := range n.Edges {
		key := e.Key().String()
		fmt.Fprintf(w, "  %s  (%d occurrences)\n", key, counts[key])
	}
	return nil
}

func writeFlowTrace(w io.Writer, t *query.FlowTrace) error {
	if t.Entrypoint != nil {
		fmt.Fprintf(w, "Entrypoint: %s -> %s\n", t.Entrypoint.EntrypointKey, t.Entrypoint.SymbolUID)
	}
	fmt.Fprintf(w, "Depth: %d\n", t.Depth)
	fmt.Fprintf(w, "Nodes (%d):\n", len(t.Nodes))
	for _, node := range t.Nodes {
		fmt.Fprintf(w, "  %s %s\n", node.SymbolUID, nodeLocation(node))
	}
	fmt.Fprintf(w, "Edges (%d):\n", len(t.Edges))
	for _, e := range t.Edges {
		fmt.Fprintf(w, "  %s\n", e.Key().String())
	}
	return nil
}

func writeFlowGraph(w io.Writer, g *models.FlowGraph) error {
	fmt.Fprintf(w, "Flow graph: %s\n", g.FlowGraphKey)
	fmt.Fprintf(w, "Nodes: %d\n", len(g.NodeUIDs))
	fmt.Fprintf(w, "Edges: %d\n", len(g.EdgeKeys))
	return nil
}

func writeMismatches(w io.Writer, ms []*models.DependencyMismatch) error {
	if len(ms) == 0 {
		_, err := fmt.Fprintln(w, "No dependency mismatches")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPACKAGE\tMANIFEST\tDECLARED\tOBSERVED")
	for _, m := range ms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			m.Kind, m.PackageKey, dash(m.ManifestPath), dash(m.DeclaredVersionSpec), dash(m.ObservedVersion))
	}
	return tw.Flush()
}

func writeExportResult(w io.Writer, r *graph.ExportResult) error {
	fmt.Fprintf(w, "Exported %s: %d nodes, %d edges", r.Scope, r.Nodes, r.Edges)
	if r.SkippedEdges > 0 {
		fmt.Fprintf(w, " (%d skipped)", r.SkippedEdges)
	}
	fmt.Fprintf(w, " in %s\n", r.Duration)
	return nil
}

func writeConsistency(w io.Writer, results []validation.ValidationResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tSTORE\tMIRROR\tSYNC\tSTATUS")
	for _, r := range results {
		status := "ok"
		if !r.PassedThreshold {
			status = "needs sync"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%s\n", r.EntityType, r.StoreCount, r.MirrorCount, r.VariancePercent, status)
	}
	return tw.Flush()
}

func nodeLocation(n *models.Node) string {
	if n.FilePath == "" {
		return ""
	}
	if n.LineStart > 0 {
		return fmt.Sprintf("%s:%d", n.FilePath, n.LineStart)
	}
	return n.FilePath
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
