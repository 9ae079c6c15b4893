package datasource

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Operator is a comparison applied to a single field
type Operator string

const (
	OpEquals      Operator = "eq"
	OpNotEquals   Operator = "neq"
	OpGreaterThan Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLessThan    Operator = "lt"
	OpLessEq      Operator = "lte"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpBetween     Operator = "between"
	OpIsNull      Operator = "is_null"
	OpIsNotNull   Operator = "is_not_null"
)

// TakesValue reports whether the operator needs a comparison value
func (o Operator) TakesValue() bool {
	return o != OpIsNull && o != OpIsNotNull
}

// Logic joins two predicates
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Predicate is a boolean expression over a row: a Comparison or a Junction
type Predicate interface {
	predicate()
}

// Comparison tests one field against a value
type Comparison struct {
	Field string
	Op    Operator
	Value any
}

// Junction joins two predicates with AND or OR
type Junction struct {
	Logic Logic
	Left  Predicate
	Right Predicate
}

func (Comparison) predicate() {}
func (Junction) predicate()   {}

// Link is one element of a flat filter chain. The Logic of the first link is ignored.
type Link struct {
	Logic Logic
	Pred  Predicate
}

// Chain folds links left to right: [A, B(AND), C(OR)] becomes ((A AND B) OR C).
// An empty chain yields nil, meaning no filtering.
func Chain(links ...Link) Predicate {
	var acc Predicate
	for i, l := range links {
		if i == 0 {
			acc = l.Pred
			continue
		}
		logic := l.Logic
		if logic != LogicOr {
			logic = LogicAnd
		}
		acc = Junction{Logic: logic, Left: acc, Right: l.Pred}
	}
	return acc
}

// Values flattens a list-valued filter operand. Strings are split on commas.
func Values(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case string:
		parts := strings.Split(t, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}

// ToFloat converts numeric values and numeric strings
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToTime converts time values and ISO-8601 strings
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// ToBool converts booleans and their common string forms
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

// Stringify renders a scalar the way it is compared and grouped
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
