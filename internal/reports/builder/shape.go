package builder

import (
	"strconv"

	"admissions-portal/portal-backend/internal/datasource"
)

// NullCell is how missing values render in tables
const NullCell = "-"

// DateLayout is the month/day/year form used for date cells
const DateLayout = "1/2/2006"

// Column is one table column
type Column struct {
	Field string    `json:"field"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// Point is one chart entry
type Point struct {
	Name       string   `json:"name"`
	Value      float64  `json:"value"`
	Percentage *float64 `json:"percentage,omitempty"`
}

// Result is report output ready for rendering
type Result struct {
	Type     VisualizationType `json:"type"`
	Columns  []Column          `json:"columns,omitempty"`
	Rows     [][]string        `json:"rows,omitempty"`
	Series   []Point           `json:"series,omitempty"`
	Total    float64           `json:"total,omitempty"`
	RowCount int               `json:"row_count"`
}

// Shape turns raw rows into the structure cfg's visualization renders
func Shape(catalog *Catalog, cfg *ReportConfig, rows []datasource.Row) (*Result, error) {
	if err := Validate(catalog, cfg); err != nil {
		return nil, err
	}
	schema, _ := catalog.GetDataSource(cfg.DataSource)

	switch view := cfg.View().(type) {
	case ChartView:
		return shapeChart(schema, view, rows), nil
	default:
		return shapeTable(schema, cfg.SelectedFields, rows), nil
	}
}

func shapeTable(schema *DataSourceSchema, fields []string, rows []datasource.Row) *Result {
	result := &Result{
		Type:     VisualizationTable,
		Columns:  make([]Column, len(fields)),
		Rows:     make([][]string, len(rows)),
		RowCount: len(rows),
	}
	for i, name := range fields {
		f, _ := schema.Field(name)
		result.Columns[i] = Column{Field: f.Name, Label: f.Label, Type: f.Type}
	}
	for i, r := range rows {
		cells := make([]string, len(fields))
		for j, col := range result.Columns {
			cells[j] = FormatCell(r[col.Field], col.Type)
		}
		result.Rows[i] = cells
	}
	return result
}

// group accumulates one chart bucket
type group struct {
	name  string
	count int
	n     int
	sum   float64
	min   float64
	max   float64
}

func (g *group) add(v float64) {
	if g.n == 0 || v < g.min {
		g.min = v
	}
	if g.n == 0 || v > g.max {
		g.max = v
	}
	g.sum += v
	g.n++
}

func (g *group) value(agg Aggregation) float64 {
	switch agg {
	case AggregationSum:
		return g.sum
	case AggregationAvg:
		if g.n == 0 {
			return 0
		}
		return g.sum / float64(g.n)
	case AggregationMin:
		return g.min
	case AggregationMax:
		return g.max
	default:
		return float64(g.count)
	}
}

func shapeChart(schema *DataSourceSchema, chart ChartView, rows []datasource.Row) *Result {
	groupField, _ := schema.Field(chart.GroupBy)

	var order []*group
	groups := make(map[string]*group)
	for _, r := range rows {
		raw, ok := r[chart.GroupBy]
		if !ok || raw == nil || raw == "" {
			continue
		}
		name := FormatCell(raw, groupField.Type)
		g, ok := groups[name]
		if !ok {
			g = &group{name: name}
			groups[name] = g
			order = append(order, g)
		}
		g.count++
		if chart.Aggregation != AggregationCount {
			if v, ok := datasource.ToFloat(r[chart.AggregationField]); ok {
				g.add(v)
			}
		}
	}

	result := &Result{
		Type:     chart.Kind,
		Series:   make([]Point, len(order)),
		RowCount: len(rows),
	}
	for i, g := range order {
		result.Series[i] = Point{Name: g.name, Value: g.value(chart.Aggregation)}
		result.Total += result.Series[i].Value
	}

	if chart.Kind == VisualizationPie {
		for i := range result.Series {
			share := 0.0
			if result.Total != 0 {
				share = result.Series[i].Value / result.Total * 100
			}
			result.Series[i].Percentage = &share
		}
	}
	return result
}

// FormatCell renders a value for display: booleans as Yes/No, dates as M/D/YYYY,
// missing values as "-"
func FormatCell(v any, t FieldType) string {
	if v == nil {
		return NullCell
	}
	switch t {
	case FieldBoolean:
		if b, ok := datasource.ToBool(v); ok {
			if b {
				return "Yes"
			}
			return "No"
		}
	case FieldDate:
		if tm, ok := datasource.ToTime(v); ok {
			return tm.Format(DateLayout)
		}
	case FieldNumber:
		if f, ok := datasource.ToFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return datasource.Stringify(v)
}
