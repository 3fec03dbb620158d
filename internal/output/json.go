package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format encodes report.Data, or the rows keyed by column name.
func (f *JSONFormatter) Format(report *Report) (string, error) {
	payload := report.Data
	if payload == nil {
		rows := make([]map[string]string, 0, len(report.Rows))
		for _, row := range report.Rows {
			obj := make(map[string]string, len(report.Columns))
			for i, column := range report.Columns {
				if i < len(row) {
					obj[column] = row[i]
				}
			}
			rows = append(rows, obj)
		}
		payload = rows
	}

	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(payload, "", "  ")
	} else {
		data, err = json.Marshal(payload)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
