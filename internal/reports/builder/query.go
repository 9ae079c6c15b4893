package builder

import (
	"admissions-portal/portal-backend/internal/datasource"
)

// BuildQuery validates cfg and turns it into a query against its data source.
//
// Columns are the selected fields in order; chart configurations also fetch their
// group-by and aggregation fields. Filters fold left to right, so
// [A, B(AND), C(OR)] selects ((A AND B) OR C).
func BuildQuery(catalog *Catalog, cfg *ReportConfig) (datasource.Query, error) {
	if err := Validate(catalog, cfg); err != nil {
		return datasource.Query{}, err
	}
	schema, _ := catalog.GetDataSource(cfg.DataSource)

	columns := append([]string(nil), cfg.SelectedFields...)
	if chart, ok := cfg.View().(ChartView); ok {
		columns = appendMissing(columns, chart.GroupBy)
		if chart.Aggregation != AggregationCount {
			columns = appendMissing(columns, chart.AggregationField)
		}
	}

	links := make([]datasource.Link, len(cfg.Filters))
	for i, f := range cfg.Filters {
		field, _ := schema.Field(f.Field)
		links[i] = datasource.Link{
			Logic: f.Logic,
			Pred: datasource.Comparison{
				Field: f.Field,
				Op:    f.Operator,
				Value: coerceValue(f.Value, field.Type),
			},
		}
	}

	return datasource.Query{
		Table:   schema.Table,
		Columns: columns,
		Where:   datasource.Chain(links...),
		OrderBy: cfg.OrderBy,
		Limit:   cfg.Limit,
	}, nil
}

func appendMissing(columns []string, name string) []string {
	if name == "" {
		return columns
	}
	for _, c := range columns {
		if c == name {
			return columns
		}
	}
	return append(columns, name)
}

// coerceValue converts numeric strings for number fields so stores compare numerically
func coerceValue(v any, t FieldType) any {
	if t != FieldNumber {
		return v
	}
	switch val := v.(type) {
	case string:
		if f, ok := datasource.ToFloat(val); ok {
			return f
		}
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = coerceValue(item, t)
		}
		return out
	}
	return v
}
