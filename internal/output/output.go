// Package output renders CLI reports as tables, JSON or Markdown.
package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Report is one tabular CLI result. Data, when set, is what JSON output
// encodes; otherwise the rows are encoded as objects keyed by column.
type Report struct {
	Title   string
	Columns []string
	Rows    [][]string
	Summary string
	Empty   string
	Data    any
}

// AddRow appends a row, formatting each cell with %v.
func (r *Report) AddRow(cells ...any) {
	row := make([]string, len(cells))
	for i, cell := range cells {
		row[i] = fmt.Sprint(cell)
	}
	r.Rows = append(r.Rows, row)
}

// Formatter renders reports.
type Formatter interface {
	Format(report *Report) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Render formats report in format.
func Render(format Format, report *Report) (string, error) {
	if report == nil {
		return "", nil
	}
	return NewFormatter(format).Format(report)
}
