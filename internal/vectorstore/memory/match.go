package memory

import (
	"fmt"
	"strconv"

	"ragkit/internal/vectorstore"
)

// Match evaluates validated filters against node metadata. A missing key
// never matches, except for != and nin.
func Match(filters *vectorstore.MetadataFilters, meta map[string]any) bool {
	if filters == nil || len(filters.Filters) == 0 {
		return true
	}
	for _, f := range filters.Filters {
		ok := matchOne(f, meta)
		if filters.Condition == vectorstore.CondOr && ok {
			return true
		}
		if filters.Condition != vectorstore.CondOr && !ok {
			return false
		}
	}
	return filters.Condition != vectorstore.CondOr
}

func matchOne(f vectorstore.MetadataFilter, meta map[string]any) bool {
	actual, present := meta[f.Key]
	switch f.Operator {
	case vectorstore.OpEQ:
		return present && compare(actual, f.Value) == 0
	case vectorstore.OpNE:
		return !present || compare(actual, f.Value) != 0
	case vectorstore.OpGT:
		return present && compare(actual, f.Value) > 0
	case vectorstore.OpLT:
		return present && compare(actual, f.Value) < 0
	case vectorstore.OpGTE:
		return present && compare(actual, f.Value) >= 0
	case vectorstore.OpLTE:
		return present && compare(actual, f.Value) <= 0
	case vectorstore.OpIn, vectorstore.OpNIn:
		vals, _ := vectorstore.ValueList(f.Value)
		found := false
		for _, v := range vals {
			if present && compare(actual, v) == 0 {
				found = true
				break
			}
		}
		return found == (f.Operator == vectorstore.OpIn)
	}
	return false
}

// compare orders numbers numerically and everything else by string form.
func compare(a, b any) int {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
