package builder

import (
	"encoding/json"

	"admissions-portal/portal-backend/internal/datasource"
)

// VisualizationType selects how report rows are rendered
type VisualizationType string

const (
	VisualizationTable VisualizationType = "table"
	VisualizationBar   VisualizationType = "bar"
	VisualizationLine  VisualizationType = "line"
	VisualizationPie   VisualizationType = "pie"
	VisualizationArea  VisualizationType = "area"
)

// IsChart reports whether the type renders grouped series
func (t VisualizationType) IsChart() bool {
	switch t {
	case VisualizationBar, VisualizationLine, VisualizationPie, VisualizationArea:
		return true
	}
	return false
}

// Aggregation combines the rows of one chart group
type Aggregation string

const (
	AggregationCount Aggregation = "count"
	AggregationSum   Aggregation = "sum"
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
)

func (a Aggregation) valid() bool {
	switch a {
	case AggregationCount, AggregationSum, AggregationAvg, AggregationMin, AggregationMax:
		return true
	}
	return false
}

// Visualization is either a TableView or a ChartView
type Visualization interface {
	Type() VisualizationType
}

// TableView renders the selected fields as formatted rows
type TableView struct{}

// ChartView renders rows grouped by one field and aggregated
type ChartView struct {
	Kind             VisualizationType `json:"-"`
	GroupBy          string            `json:"group_by"`
	Aggregation      Aggregation       `json:"aggregation"`
	AggregationField string            `json:"aggregation_field,omitempty"`
	ShowLegend       bool              `json:"show_legend"`
	ShowGrid         bool              `json:"show_grid"`
}

func (TableView) Type() VisualizationType   { return VisualizationTable }
func (v ChartView) Type() VisualizationType { return v.Kind }

// FilterCondition is one link in a report's flat filter chain.
// Logic joins it to everything before it and is ignored on the first condition.
type FilterCondition struct {
	ID       string              `json:"id,omitempty"`
	Field    string              `json:"field"`
	Operator datasource.Operator `json:"operator"`
	Value    any                 `json:"value,omitempty"`
	Logic    datasource.Logic    `json:"logic,omitempty"`
}

// ReportConfig is the declarative description of a report
type ReportConfig struct {
	DataSource     string
	SelectedFields []string
	Filters        []FilterCondition
	Visualization  Visualization
	OrderBy        []datasource.Order
	Limit          int
}

// View returns the visualization, defaulting to a table
func (c *ReportConfig) View() Visualization {
	if c.Visualization == nil {
		return TableView{}
	}
	return c.Visualization
}

type reportConfigJSON struct {
	DataSource        string             `json:"data_source"`
	SelectedFields    []string           `json:"selected_fields"`
	Filters           []FilterCondition  `json:"filters,omitempty"`
	VisualizationType VisualizationType  `json:"visualization_type"`
	ChartConfig       *ChartView         `json:"chart_config,omitempty"`
	OrderBy           []datasource.Order `json:"order_by,omitempty"`
	Limit             int                `json:"limit,omitempty"`
}

func (c ReportConfig) MarshalJSON() ([]byte, error) {
	wire := reportConfigJSON{
		DataSource:        c.DataSource,
		SelectedFields:    c.SelectedFields,
		Filters:           c.Filters,
		VisualizationType: c.View().Type(),
		OrderBy:           c.OrderBy,
		Limit:             c.Limit,
	}
	if chart, ok := c.Visualization.(ChartView); ok {
		wire.ChartConfig = &chart
	}
	return json.Marshal(wire)
}

func (c *ReportConfig) UnmarshalJSON(data []byte) error {
	var wire reportConfigJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = ReportConfig{
		DataSource:     wire.DataSource,
		SelectedFields: wire.SelectedFields,
		Filters:        wire.Filters,
		OrderBy:        wire.OrderBy,
		Limit:          wire.Limit,
	}

	switch {
	case wire.VisualizationType == "" || wire.VisualizationType == VisualizationTable:
		c.Visualization = TableView{}
	case wire.VisualizationType.IsChart():
		chart := ChartView{}
		if wire.ChartConfig != nil {
			chart = *wire.ChartConfig
		}
		chart.Kind = wire.VisualizationType
		c.Visualization = chart
	default:
		return &ConfigError{
			Field:   "visualization_type",
			Code:    "invalid",
			Message: "unknown visualization type: " + string(wire.VisualizationType),
		}
	}
	return nil
}
