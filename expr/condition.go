package expr

import (
	"github.com/rediwo/redi-collection/functions"
	"github.com/rediwo/redi-collection/sqlbuilder"
)

// Condition is a declarative filter expression: a relationship path with an
// operator and value, or a boolean combination of such expressions.
type Condition interface {
	compile(c *Compiler, b *sqlbuilder.Builder) (functions.Predicate, error)
}

// CompareCondition is a leaf condition on a (possibly relationship-crossing)
// path
type CompareCondition struct {
	Path     string
	Operator string
	Value    any
}

// Compare creates a leaf condition
func Compare(path, operator string, value any) *CompareCondition {
	return &CompareCondition{Path: path, Operator: operator, Value: value}
}

// Equals is shorthand for Compare(path, "=", value)
func Equals(path string, value any) *CompareCondition {
	return Compare(path, "=", value)
}

func (cc *CompareCondition) compile(c *Compiler, b *sqlbuilder.Builder) (functions.Predicate, error) {
	return c.compileLeaf(cc.Path, cc.Operator, cc.Value, b)
}

// AndCondition combines conditions conjunctively
type AndCondition struct {
	Conditions []Condition
}

// And creates a conjunction
func And(conditions ...Condition) *AndCondition {
	return &AndCondition{Conditions: conditions}
}

func (ac *AndCondition) compile(c *Compiler, b *sqlbuilder.Builder) (functions.Predicate, error) {
	preds, err := compileAll(ac.Conditions, c, b)
	if err != nil {
		return functions.Predicate{}, err
	}
	return functions.And(preds...), nil
}

// OrCondition combines conditions disjunctively
type OrCondition struct {
	Conditions []Condition
}

// Or creates a disjunction
func Or(conditions ...Condition) *OrCondition {
	return &OrCondition{Conditions: conditions}
}

func (oc *OrCondition) compile(c *Compiler, b *sqlbuilder.Builder) (functions.Predicate, error) {
	preds, err := compileAll(oc.Conditions, c, b)
	if err != nil {
		return functions.Predicate{}, err
	}
	return functions.Or(preds...), nil
}

// NotCondition negates a condition
type NotCondition struct {
	Condition Condition
}

// Not creates a negation
func Not(condition Condition) *NotCondition {
	return &NotCondition{Condition: condition}
}

func (nc *NotCondition) compile(c *Compiler, b *sqlbuilder.Builder) (functions.Predicate, error) {
	pred, err := nc.Condition.compile(c, b)
	if err != nil {
		return functions.Predicate{}, err
	}
	return functions.Not(pred), nil
}

func compileAll(conditions []Condition, c *Compiler, b *sqlbuilder.Builder) ([]functions.Predicate, error) {
	preds := make([]functions.Predicate, 0, len(conditions))
	for _, cond := range conditions {
		pred, err := cond.compile(c, b)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}
