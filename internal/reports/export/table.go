package export

import (
	"strconv"
	"time"

	"admissions-portal/portal-backend/internal/reports/builder"
)

// Table is a shaped report flattened to rows of display strings
type Table struct {
	Title       string
	Headers     []string
	Rows        [][]string
	GeneratedAt time.Time
}

// FromResult flattens a shaped report. Chart series become Name/Value rows,
// with a Percentage column for pie charts.
func FromResult(title string, result *builder.Result) *Table {
	t := &Table{Title: title, GeneratedAt: time.Now()}
	if result == nil {
		return t
	}

	if !result.Type.IsChart() {
		t.Headers = make([]string, len(result.Columns))
		for i, col := range result.Columns {
			t.Headers[i] = col.Label
		}
		t.Rows = result.Rows
		return t
	}

	pie := result.Type == builder.VisualizationPie
	t.Headers = []string{"Name", "Value"}
	if pie {
		t.Headers = append(t.Headers, "Percentage")
	}
	t.Rows = make([][]string, len(result.Series))
	for i, p := range result.Series {
		row := []string{p.Name, strconv.FormatFloat(p.Value, 'f', -1, 64)}
		if pie {
			pct := builder.NullCell
			if p.Percentage != nil {
				pct = strconv.FormatFloat(*p.Percentage, 'f', 1, 64) + "%"
			}
			row = append(row, pct)
		}
		t.Rows[i] = row
	}
	return t
}
