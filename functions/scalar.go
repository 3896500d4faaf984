package functions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rediwo/redi-collection/sqlbuilder"
)

// ScalarFunc builds a row-level predicate fragment comparing a column
// against a value
type ScalarFunc func(column string, value any) sqlbuilder.Fragment

func registerDefaultScalars(r *Registry) {
	r.RegisterScalar("=", func(column string, value any) sqlbuilder.Fragment {
		if value == nil {
			return sqlbuilder.Fragment{SQL: column + " IS NULL"}
		}
		return sqlbuilder.Fragment{SQL: column + " = ?", Args: []any{value}}
	})
	r.RegisterScalar("!=", func(column string, value any) sqlbuilder.Fragment {
		if value == nil {
			return sqlbuilder.Fragment{SQL: column + " IS NOT NULL"}
		}
		return sqlbuilder.Fragment{SQL: column + " != ?", Args: []any{value}}
	})
	r.RegisterScalar(">", comparison(">"))
	r.RegisterScalar(">=", comparison(">="))
	r.RegisterScalar("<", comparison("<"))
	r.RegisterScalar("<=", comparison("<="))
	r.RegisterScalar("like", func(column string, value any) sqlbuilder.Fragment {
		return sqlbuilder.Fragment{SQL: column + " LIKE ?", Args: []any{value}}
	})
	r.RegisterScalar("isNull", func(column string, value any) sqlbuilder.Fragment {
		return sqlbuilder.Fragment{SQL: column + " IS NULL"}
	})
	r.RegisterScalar("isNotNull", func(column string, value any) sqlbuilder.Fragment {
		return sqlbuilder.Fragment{SQL: column + " IS NOT NULL"}
	})
	r.RegisterScalar("in", func(column string, value any) sqlbuilder.Fragment {
		values := expandSlice(value)
		if len(values) == 0 {
			// Matches nothing
			return sqlbuilder.Fragment{SQL: "1 = 0"}
		}
		return sqlbuilder.Fragment{
			SQL:  fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))),
			Args: values,
		}
	})
	r.RegisterScalar("notIn", func(column string, value any) sqlbuilder.Fragment {
		values := expandSlice(value)
		if len(values) == 0 {
			// Matches everything
			return sqlbuilder.Fragment{SQL: "1 = 1"}
		}
		return sqlbuilder.Fragment{
			SQL:  fmt.Sprintf("%s NOT IN (%s)", column, placeholders(len(values))),
			Args: values,
		}
	})
}

func comparison(op string) ScalarFunc {
	return func(column string, value any) sqlbuilder.Fragment {
		return sqlbuilder.Fragment{SQL: fmt.Sprintf("%s %s ?", column, op), Args: []any{value}}
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func expandSlice(value any) []any {
	if values, ok := value.([]any); ok {
		return values
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	values := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		values[i] = rv.Index(i).Interface()
	}
	return values
}
