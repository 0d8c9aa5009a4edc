package azuresearch

import (
	"fmt"
	"strconv"
	"strings"

	"ragkit/internal/vectorstore"
	ragerrors "ragkit/pkg/errors"
)

// MetadataField is a metadata key exposed as a filterable index field.
type MetadataField struct {
	Field string
	Type  string
}

// Index field types of filterable metadata.
const (
	FieldString     = "string"
	FieldCollection = "collection"
	FieldInt32      = "int32"
	FieldInt64      = "int64"
	FieldDouble     = "double"
	FieldBoolean    = "boolean"
)

func edmType(t string) string {
	switch t {
	case FieldCollection:
		return "Collection(Edm.String)"
	case FieldInt32:
		return "Edm.Int32"
	case FieldInt64:
		return "Edm.Int64"
	case FieldDouble:
		return "Edm.Double"
	case FieldBoolean:
		return "Edm.Boolean"
	default:
		return "Edm.String"
	}
}

var odataOps = map[vectorstore.FilterOperator]string{
	vectorstore.OpEQ:  "eq",
	vectorstore.OpNE:  "ne",
	vectorstore.OpGT:  "gt",
	vectorstore.OpLT:  "lt",
	vectorstore.OpGTE: "ge",
	vectorstore.OpLTE: "le",
}

// BuildFilter renders validated filters as an OData expression over the
// mapped index fields. Keys without a filterable field are rejected.
func BuildFilter(filters *vectorstore.MetadataFilters, fields map[string]MetadataField) (string, error) {
	if filters == nil || len(filters.Filters) == 0 {
		return "", nil
	}
	if err := filters.Validate(); err != nil {
		return "", err
	}

	parts := make([]string, 0, len(filters.Filters))
	for _, f := range filters.Filters {
		field, ok := fields[f.Key]
		if !ok {
			return "", ragerrors.Validation("filters.key", fmt.Sprintf("%q is not a filterable metadata field", f.Key))
		}
		expr, err := renderFilter(f, field)
		if err != nil {
			return "", err
		}
		parts = append(parts, expr)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, ") "+string(filters.Condition)+" (") + ")", nil
}

func renderFilter(f vectorstore.MetadataFilter, field MetadataField) (string, error) {
	switch f.Operator {
	case vectorstore.OpIn, vectorstore.OpNIn:
		vals, err := vectorstore.ValueList(f.Value)
		if err != nil {
			return "", err
		}
		if len(vals) == 0 {
			return "", ragerrors.Validation("filters.value", "in and nin need at least one value")
		}
		if field.Type != FieldString && field.Type != FieldCollection {
			terms := make([]string, len(vals))
			for i, v := range vals {
				lit, err := literal(v, field.Type)
				if err != nil {
					return "", err
				}
				terms[i] = fmt.Sprintf("%s eq %s", field.Field, lit)
			}
			expr := "(" + strings.Join(terms, " or ") + ")"
			if f.Operator == vectorstore.OpNIn {
				expr = "not " + expr
			}
			return expr, nil
		}
		strs := make([]string, len(vals))
		for i, v := range vals {
			strs[i] = strings.ReplaceAll(fmt.Sprint(v), "|", "")
		}
		list := escape(strings.Join(strs, "|"))
		var expr string
		if field.Type == FieldCollection {
			expr = fmt.Sprintf("%s/any(t: search.in(t, '%s', '|'))", field.Field, list)
		} else {
			expr = fmt.Sprintf("search.in(%s, '%s', '|')", field.Field, list)
		}
		if f.Operator == vectorstore.OpNIn {
			expr = "not " + expr
		}
		return expr, nil
	default:
		lit, err := literal(f.Value, field.Type)
		if err != nil {
			return "", err
		}
		op := odataOps[f.Operator]
		if field.Type == FieldCollection {
			return fmt.Sprintf("%s/any(t: t %s %s)", field.Field, op, lit), nil
		}
		return fmt.Sprintf("%s %s %s", field.Field, op, lit), nil
	}
}

func literal(v any, fieldType string) (string, error) {
	switch fieldType {
	case FieldInt32, FieldInt64, FieldDouble:
		switch n := v.(type) {
		case int, int32, int64, float32, float64:
			return fmt.Sprint(n), nil
		case string:
			if _, err := strconv.ParseFloat(n, 64); err == nil {
				return n, nil
			}
		}
		return "", ragerrors.Validation("filters.value", fmt.Sprintf("%v is not numeric", v))
	case FieldBoolean:
		switch b := v.(type) {
		case bool:
			return strconv.FormatBool(b), nil
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return strconv.FormatBool(parsed), nil
			}
		}
		return "", ragerrors.Validation("filters.value", fmt.Sprintf("%v is not a boolean", v))
	default:
		return "'" + escape(fmt.Sprint(v)) + "'", nil
	}
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
