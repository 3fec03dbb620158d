package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// Format renders report with rounded borders and an optional footer.
func (f *TableFormatter) Format(report *Report) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if report.Title != "" {
		t.SetTitle(report.Title)
	}

	header := make(table.Row, len(report.Columns))
	for i, column := range report.Columns {
		header[i] = column
	}
	t.AppendHeader(header)

	if len(report.Rows) == 0 && report.Empty != "" {
		row := make(table.Row, len(report.Columns))
		row[0] = report.Empty
		t.AppendRow(row)
	}
	for _, cells := range report.Rows {
		row := make(table.Row, len(cells))
		for i, cell := range cells {
			row[i] = cell
		}
		t.AppendRow(row)
	}

	if report.Summary != "" {
		footer := make(table.Row, len(report.Columns))
		footer[len(footer)-1] = report.Summary
		t.AppendFooter(footer)
	}

	return t.Render(), nil
}
