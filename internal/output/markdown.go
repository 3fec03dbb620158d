package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// Format renders report as a GitHub-flavored Markdown table.
func (f *MarkdownFormatter) Format(report *Report) (string, error) {
	var sb strings.Builder
	if report.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(report.Title)))
	}

	sb.WriteString("|")
	for _, column := range report.Columns {
		sb.WriteString(" " + escapeMarkdownCell(column) + " |")
	}
	sb.WriteString("\n|")
	for range report.Columns {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")

	for _, row := range report.Rows {
		sb.WriteString("|")
		for _, cell := range row {
			sb.WriteString(" " + escapeMarkdownCell(cell) + " |")
		}
		sb.WriteString("\n")
	}

	if len(report.Rows) == 0 && report.Empty != "" {
		sb.WriteString(fmt.Sprintf("\n_%s_\n", report.Empty))
	}
	if report.Summary != "" {
		sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", report.Summary))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
