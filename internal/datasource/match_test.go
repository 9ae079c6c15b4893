package datasource

import "strings"

// match evaluates p against row in memory. A nil predicate matches every row.
func match(p Predicate, row Row) bool {
	switch v := p.(type) {
	case nil:
		return true
	case Junction:
		if v.Logic == LogicOr {
			return match(v.Left, row) || match(v.Right, row)
		}
		return match(v.Left, row) && match(v.Right, row)
	case Comparison:
		return v.matches(row[v.Field])
	default:
		return false
	}
}

func (c Comparison) matches(actual any) bool {
	switch c.Op {
	case OpIsNull:
		return actual == nil
	case OpIsNotNull:
		return actual != nil
	}
	if actual == nil {
		return false
	}

	switch c.Op {
	case OpEquals:
		return compare(actual, c.Value) == 0
	case OpNotEquals:
		return compare(actual, c.Value) != 0
	case OpGreaterThan:
		return compare(actual, c.Value) > 0
	case OpGreaterEq:
		return compare(actual, c.Value) >= 0
	case OpLessThan:
		return compare(actual, c.Value) < 0
	case OpLessEq:
		return compare(actual, c.Value) <= 0
	case OpContains:
		return strings.Contains(strings.ToLower(Stringify(actual)), strings.ToLower(Stringify(c.Value)))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(Stringify(actual)), strings.ToLower(Stringify(c.Value)))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(Stringify(actual)), strings.ToLower(Stringify(c.Value)))
	case OpIn, OpNotIn:
		found := false
		for _, candidate := range Values(c.Value) {
			if compare(actual, candidate) == 0 {
				found = true
				break
			}
		}
		return found == (c.Op == OpIn)
	case OpBetween:
		bounds := Values(c.Value)
		if len(bounds) != 2 {
			return false
		}
		return compare(actual, bounds[0]) >= 0 && compare(actual, bounds[1]) <= 0
	}
	return false
}

// compare orders a and b numerically, chronologically, or lexically, whichever both support
func compare(a, b any) int {
	if af, ok := ToFloat(a); ok {
		if bf, ok := ToFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := ToTime(a); ok {
		if bt, ok := ToTime(b); ok {
			return at.Compare(bt)
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := ToBool(b); ok {
			if ab == bb {
				return 0
			}
			if !ab {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(Stringify(a), Stringify(b))
}
