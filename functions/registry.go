package functions

import (
	"fmt"
)

// Registry holds the named functions the expression compiler dispatches to.
// Scalar functions produce row-level predicate fragments; aggregate
// functions carry both an in-memory reducer and a native SQL keyword.
// Registering a new function requires no compiler changes.
type Registry struct {
	scalars    map[string]ScalarFunc
	aggregates map[string]*Aggregate
}

// NewRegistry creates a registry populated with the default comparison
// operators and the MIN/MAX/SUM/AVG/COUNT aggregates
func NewRegistry() *Registry {
	r := &Registry{
		scalars:    make(map[string]ScalarFunc),
		aggregates: make(map[string]*Aggregate),
	}
	registerDefaultScalars(r)
	registerDefaultAggregates(r)
	return r
}

// RegisterScalar registers or replaces a scalar function
func (r *Registry) RegisterScalar(name string, fn ScalarFunc) {
	r.scalars[name] = fn
}

// Scalar looks up a scalar function by operator name
func (r *Registry) Scalar(name string) (ScalarFunc, error) {
	fn, exists := r.scalars[name]
	if !exists {
		return nil, fmt.Errorf("unknown operator '%s'", name)
	}
	return fn, nil
}

// RegisterAggregate registers or replaces an aggregate function
func (r *Registry) RegisterAggregate(name string, agg *Aggregate) {
	r.aggregates[name] = agg
}

// Aggregate looks up an aggregate function by name
func (r *Registry) Aggregate(name string) (*Aggregate, error) {
	agg, exists := r.aggregates[name]
	if !exists {
		return nil, fmt.Errorf("unknown aggregate function '%s'", name)
	}
	return agg, nil
}

// HasAggregate reports whether name denotes a registered aggregate
func (r *Registry) HasAggregate(name string) bool {
	_, exists := r.aggregates[name]
	return exists
}
