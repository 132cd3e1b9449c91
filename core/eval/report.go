package eval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/siherrmann/converse/model"
)

// RenderMarkdown formats an evaluation report as a markdown document. Pure
// presentation, every number comes straight from the report.
func RenderMarkdown(report *model.EvaluationReport) string {
	var b strings.Builder

	b.WriteString("# Retrieval Evaluation Report\n")
	fmt.Fprintf(&b, "Date: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("## Summary\n")
	if report.Best != nil {
		fmt.Fprintf(
			&b,
			"Best Configuration: **%s** chunking with **%s** similarity\n",
			report.Best.ChunkingMethod, report.Best.Metric,
		)
		fmt.Fprintf(&b, "Best F1 Score: **%.4f**\n", report.Best.F1)
	}
	fmt.Fprintf(&b, "Evaluated %d queries against %d documents.\n\n", report.NumQueries, report.NumDocs)

	b.WriteString("## Detailed Results\n")
	b.WriteString("| Chunking Method | Similarity Metric | Accuracy | Precision | Recall | F1 Score | Latency (ms) |\n")
	b.WriteString("|-----------------|-------------------|----------|-----------|--------|----------|--------------|\n")

	sorted := make([]model.EvaluationResult, len(report.Results))
	copy(sorted, report.Results)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].F1 > sorted[j].F1 })
	for _, result := range sorted {
		fmt.Fprintf(
			&b,
			"| %s | %s | %.4f | %.4f | %.4f | %.4f | %.2f |\n",
			result.ChunkingMethod, result.Metric,
			result.Accuracy, result.Precision, result.Recall, result.F1, result.LatencyMS,
		)
	}
	b.WriteString("\n")

	b.WriteString("## Analysis\n")
	b.WriteString("### Chunking Methods Comparison\n")
	for _, average := range report.ChunkingAverages {
		fmt.Fprintf(&b, "- **%s**: Average F1: %.4f, Average Latency: %.2f ms\n", average.Group, average.AvgF1, average.AvgLatency)
	}
	b.WriteString("\n### Similarity Metrics Comparison\n")
	for _, average := range report.MetricAverages {
		fmt.Fprintf(&b, "- **%s**: Average F1: %.4f, Average Latency: %.2f ms\n", average.Group, average.AvgF1, average.AvgLatency)
	}

	return b.String()
}
