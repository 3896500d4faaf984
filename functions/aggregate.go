package functions

import (
	"fmt"
)

// Aggregate carries the two interchangeable evaluation strategies of an
// aggregate function: Keyword is forwarded into generated SQL, Reduce folds
// an in-memory sequence of values. Both strategies agree: the numeric
// aggregates return nil for an empty (or all-NULL) input, matching the
// database engine's NULL-on-empty-set behavior; COUNT returns 0.
type Aggregate struct {
	Keyword string
	Reduce  func(values []any) any
}

func registerDefaultAggregates(r *Registry) {
	r.RegisterAggregate("count", &Aggregate{
		Keyword: "COUNT",
		Reduce: func(values []any) any {
			n := int64(0)
			for _, v := range values {
				if v != nil {
					n++
				}
			}
			return n
		},
	})
	r.RegisterAggregate("sum", &Aggregate{
		Keyword: "SUM",
		Reduce: func(values []any) any {
			sum := 0.0
			seen := false
			for _, v := range values {
				if f, ok := toFloat(v); ok {
					sum += f
					seen = true
				}
			}
			if !seen {
				return nil
			}
			return sum
		},
	})
	r.RegisterAggregate("avg", &Aggregate{
		Keyword: "AVG",
		Reduce: func(values []any) any {
			sum := 0.0
			n := 0
			for _, v := range values {
				if f, ok := toFloat(v); ok {
					sum += f
					n++
				}
			}
			if n == 0 {
				return nil
			}
			return sum / float64(n)
		},
	})
	r.RegisterAggregate("min", &Aggregate{
		Keyword: "MIN",
		Reduce:  extremum(func(candidate, best float64) bool { return candidate < best }),
	})
	r.RegisterAggregate("max", &Aggregate{
		Keyword: "MAX",
		Reduce:  extremum(func(candidate, best float64) bool { return candidate > best }),
	})
}

func extremum(better func(candidate, best float64) bool) func(values []any) any {
	return func(values []any) any {
		var best float64
		seen := false
		for _, v := range values {
			f, ok := toFloat(v)
			if !ok {
				continue
			}
			if !seen || better(f, best) {
				best = f
				seen = true
			}
		}
		if !seen {
			return nil
		}
		return best
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
	case nil:
		return 0, false
	default:
		return 0, false
	}
}

// FormatCall renders the SQL-side strategy of the aggregate over an
// expression, e.g. COUNT(tags_any.id)
func (a *Aggregate) FormatCall(expr string) string {
	return fmt.Sprintf("%s(%s)", a.Keyword, expr)
}
