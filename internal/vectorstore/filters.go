package vectorstore

import (
	"fmt"
	"strings"

	ragerrors "ragkit/pkg/errors"
)

type FilterOperator string

const (
	OpEQ  FilterOperator = "=="
	OpNE  FilterOperator = "!="
	OpGT  FilterOperator = ">"
	OpLT  FilterOperator = "<"
	OpGTE FilterOperator = ">="
	OpLTE FilterOperator = "<="
	OpIn  FilterOperator = "in"
	OpNIn FilterOperator = "nin"
)

type FilterCondition string

const (
	CondAnd FilterCondition = "and"
	CondOr  FilterCondition = "or"
)

// MetadataFilter compares one metadata key. Value is a scalar, or a list for
// the in and nin operators.
type MetadataFilter struct {
	Key      string         `json:"key" binding:"required"`
	Value    any            `json:"value"`
	Operator FilterOperator `json:"operator,omitempty"`
}

// MetadataFilters combines filters with a single condition.
type MetadataFilters struct {
	Filters   []MetadataFilter `json:"filters"`
	Condition FilterCondition  `json:"condition,omitempty"`
}

// Validate normalizes operators and conditions in place.
func (f *MetadataFilters) Validate() error {
	if f == nil {
		return nil
	}
	switch FilterCondition(strings.ToLower(string(f.Condition))) {
	case "", CondAnd:
		f.Condition = CondAnd
	case CondOr:
		f.Condition = CondOr
	default:
		return ragerrors.Validation("filters.condition", fmt.Sprintf("unsupported condition %q", f.Condition))
	}
	for i := range f.Filters {
		mf := &f.Filters[i]
		if mf.Key == "" {
			return ragerrors.Validation("filters.key", "required")
		}
		op := FilterOperator(strings.ToLower(string(mf.Operator)))
		switch op {
		case "":
			op = OpEQ
		case OpEQ, OpNE, OpGT, OpLT, OpGTE, OpLTE:
			if _, isList := mf.Value.([]any); isList {
				return ragerrors.Validation("filters.value", fmt.Sprintf("operator %s expects a scalar", op))
			}
		case OpIn, OpNIn:
			if _, err := ValueList(mf.Value); err != nil {
				return err
			}
		default:
			return ragerrors.Validation("filters.operator", fmt.Sprintf("unsupported operator %q", mf.Operator))
		}
		mf.Operator = op
	}
	return nil
}

// ValueList returns the operands of an in or nin filter.
func ValueList(v any) ([]any, error) {
	switch vals := v.(type) {
	case []any:
		return vals, nil
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, nil
	default:
		return nil, ragerrors.Validation("filters.value", "in and nin expect a list")
	}
}

// ParseFilter reads "key=value" style CLI filters. Supported separators are
// ==, !=, >=, <=, >, < and =. The leftmost separator splits key from value,
// so the value may itself contain operator characters.
func ParseFilter(s string) (MetadataFilter, error) {
	for i := 0; i < len(s); i++ {
		for _, op := range []string{"==", "!=", ">=", "<=", ">", "<", "="} {
			if !strings.HasPrefix(s[i:], op) {
				continue
			}
			key := strings.TrimSpace(s[:i])
			if key == "" {
				return MetadataFilter{}, ragerrors.Validation("filter", fmt.Sprintf("missing key in %q", s))
			}
			val := strings.TrimSpace(s[i+len(op):])
			if op == "=" {
				op = "=="
			}
			return MetadataFilter{Key: key, Value: val, Operator: FilterOperator(op)}, nil
		}
	}
	return MetadataFilter{}, ragerrors.Validation("filter", fmt.Sprintf("cannot parse %q", s))
}
