package builder

import (
	"errors"
	"fmt"
	"reflect"

	"admissions-portal/portal-backend/internal/datasource"
)

// ErrInvalidConfig is matched by every *ConfigError
var ErrInvalidConfig = errors.New("invalid report configuration")

// ConfigError names the first constraint a report configuration violates
type ConfigError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid report configuration: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ValidationError represents a validation error
type ValidationError = ConfigError

// ValidationResult contains the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

func (r *ValidationResult) addError(field, code, message string) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Code: code, Message: message})
}

// Validate returns the first violated constraint of cfg as a *ConfigError, or nil
func Validate(catalog *Catalog, cfg *ReportConfig) error {
	var first *ConfigError
	check(catalog, cfg, func(field, code, message string) bool {
		first = &ConfigError{Field: field, Code: code, Message: message}
		return false
	})
	if first != nil {
		return first
	}
	return nil
}

// ValidateAll reports every violated constraint of cfg
func ValidateAll(catalog *Catalog, cfg *ReportConfig) *ValidationResult {
	result := &ValidationResult{IsValid: true}
	check(catalog, cfg, func(field, code, message string) bool {
		result.addError(field, code, message)
		return true
	})
	return result
}

// check walks every rule in order, reporting violations until report returns false
func check(catalog *Catalog, cfg *ReportConfig, report func(field, code, message string) bool) {
	if cfg == nil {
		report("config", "required", "Report configuration is required")
		return
	}

	if cfg.DataSource == "" {
		report("data_source", "required", "Data source is required")
		return
	}
	schema, err := catalog.GetDataSource(cfg.DataSource)
	if err != nil {
		report("data_source", "invalid", fmt.Sprintf("Invalid data source: %s", cfg.DataSource))
		return
	}

	if len(cfg.SelectedFields) == 0 {
		if !report("selected_fields", "required", "At least one field must be selected") {
			return
		}
	}
	for i, name := range cfg.SelectedFields {
		if _, ok := schema.Field(name); !ok {
			if !report(fmt.Sprintf("selected_fields[%d]", i), "unknown_field",
				fmt.Sprintf("Field '%s' not found in data source '%s'", name, schema.Name)) {
				return
			}
		}
	}

	for i, f := range cfg.Filters {
		if !checkFilter(schema, f, i, report) {
			return
		}
	}

	if chart, ok := cfg.View().(ChartView); ok {
		if !checkChart(schema, chart, report) {
			return
		}
	}

	for i, o := range cfg.OrderBy {
		if _, ok := schema.Field(o.Field); !ok {
			if !report(fmt.Sprintf("order_by[%d].field", i), "unknown_field",
				fmt.Sprintf("Field '%s' not found in data source '%s'", o.Field, schema.Name)) {
				return
			}
		}
	}

	if cfg.Limit < 0 {
		report("limit", "invalid", "Limit must not be negative")
	}
}

func checkFilter(schema *DataSourceSchema, f FilterCondition, index int, report func(field, code, message string) bool) bool {
	path := fmt.Sprintf("filters[%d]", index)

	field, ok := schema.Field(f.Field)
	if !ok {
		return report(path+".field", "unknown_field",
			fmt.Sprintf("Field '%s' not found in data source '%s'", f.Field, schema.Name))
	}

	if !IsOperatorSupported(field.Type, f.Operator) {
		if !report(path+".operator", "invalid_operator",
			fmt.Sprintf("Operator '%s' is not supported for %s field '%s'", f.Operator, field.Type, field.Name)) {
			return false
		}
	} else if f.Operator.TakesValue() {
		if err := checkFilterValue(f); err != "" {
			if !report(path+".value", "invalid_value", err) {
				return false
			}
		}
	}

	if index > 0 && f.Logic != "" && f.Logic != datasource.LogicAnd && f.Logic != datasource.LogicOr {
		return report(path+".logic", "invalid", fmt.Sprintf("Logic must be AND or OR, got '%s'", f.Logic))
	}
	return true
}

func checkFilterValue(f FilterCondition) string {
	if isEmptyValue(f.Value) {
		return fmt.Sprintf("Operator '%s' requires a value", f.Operator)
	}
	switch f.Operator {
	case datasource.OpBetween:
		if len(datasource.Values(f.Value)) != 2 {
			return "Between operator requires exactly two values"
		}
	case datasource.OpIn, datasource.OpNotIn:
		if len(datasource.Values(f.Value)) == 0 {
			return fmt.Sprintf("Operator '%s' requires at least one value", f.Operator)
		}
	}
	return ""
}

func checkChart(schema *DataSourceSchema, chart ChartView, report func(field, code, message string) bool) bool {
	if !chart.Kind.IsChart() {
		return report("visualization_type", "invalid", fmt.Sprintf("Unknown chart type '%s'", chart.Kind))
	}

	if chart.GroupBy == "" {
		if !report("chart_config.group_by", "required", "Charts require a group-by field") {
			return false
		}
	} else if _, ok := schema.Field(chart.GroupBy); !ok {
		if !report("chart_config.group_by", "unknown_field",
			fmt.Sprintf("Field '%s' not found in data source '%s'", chart.GroupBy, schema.Name)) {
			return false
		}
	}

	if !chart.Aggregation.valid() {
		return report("chart_config.aggregation", "invalid",
			fmt.Sprintf("Unknown aggregation '%s'", chart.Aggregation))
	}
	if chart.Aggregation == AggregationCount {
		return true
	}

	if chart.AggregationField == "" {
		return report("chart_config.aggregation_field", "required",
			fmt.Sprintf("Aggregation '%s' requires an aggregation field", chart.Aggregation))
	}
	field, ok := schema.Field(chart.AggregationField)
	if !ok {
		return report("chart_config.aggregation_field", "unknown_field",
			fmt.Sprintf("Field '%s' not found in data source '%s'", chart.AggregationField, schema.Name))
	}
	if field.Type != FieldNumber {
		return report("chart_config.aggregation_field", "invalid_type",
			fmt.Sprintf("Aggregation '%s' requires a numeric field, '%s' is %s", chart.Aggregation, field.Name, field.Type))
	}
	return true
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv.Len() == 0
	}
	return false
}
