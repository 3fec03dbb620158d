package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := &Report{
		Title:   "Admission decisions",
		Columns: []string{"call", "path", "allowed"},
		Summary: "2/3 admitted",
	}
	r.AddRow(1, "fallback", true)
	r.AddRow(2, "cached", true)
	r.AddRow(3, "cached", false)
	return r
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	rendered, err := Render(FormatTable, sampleReport())
	require.NoError(t, err)
	// go-pretty upper-cases headers and footers by default.
	lower := strings.ToLower(rendered)
	require.Contains(t, lower, "admission decisions")
	require.Contains(t, lower, "allowed")
	require.Contains(t, lower, "fallback")
	require.Contains(t, lower, "2/3 admitted")
}

func TestTableFormatterEmpty(t *testing.T) {
	rendered, err := Render(FormatTable, &Report{
		Columns: []string{"token", "identity"},
		Empty:   "(no tokens)",
	})
	require.NoError(t, err)
	require.Contains(t, rendered, "(no tokens)")
}

func TestJSONFormatterRowsKeyedByColumn(t *testing.T) {
	rendered, err := Render(FormatJSON, sampleReport())
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(rendered), &rows))
	require.Len(t, rows, 3)
	require.Equal(t, "cached", rows[1]["path"])
	require.Equal(t, "false", rows[2]["allowed"])
}

func TestJSONFormatterPrefersData(t *testing.T) {
	report := sampleReport()
	report.Data = map[string]int{"user1": 5}

	rendered, err := (&JSONFormatter{}).Format(report)
	require.NoError(t, err)
	require.Equal(t, `{"user1":5}`, rendered)
}

func TestMarkdownFormatterEscapesPipes(t *testing.T) {
	report := &Report{Title: "Tokens", Columns: []string{"token", "note"}}
	report.AddRow("token11", "ops|primary")

	rendered, err := Render(FormatMarkdown, report)
	require.NoError(t, err)
	require.Contains(t, rendered, "## Tokens")
	require.Contains(t, rendered, "| token | note |")
	require.Contains(t, rendered, `ops\|primary`)
}

func TestRenderNilReport(t *testing.T) {
	rendered, err := Render(FormatTable, nil)
	require.NoError(t, err)
	require.Empty(t, rendered)
}
