package functions

import (
	"strings"

	"github.com/rediwo/redi-collection/sqlbuilder"
)

// Predicate is a compiled condition split into its WHERE and HAVING parts.
// Conditions on plain columns compile to a WHERE fragment; conditions that
// crossed a to-many relationship compile to a HAVING fragment over the
// grouped result. Combinators keep the two planes separate so fragments
// from independent to-many paths are never silently merged.
type Predicate struct {
	Where  sqlbuilder.Fragment
	Having sqlbuilder.Fragment
}

// HasWhere reports whether the predicate carries a WHERE part
func (p Predicate) HasWhere() bool {
	return p.Where.SQL != ""
}

// HasHaving reports whether the predicate carries a HAVING part
func (p Predicate) HasHaving() bool {
	return p.Having.SQL != ""
}

// And combines predicates conjunctively. WHERE parts and HAVING parts are
// joined independently, which preserves each part's plane.
func And(preds ...Predicate) Predicate {
	var wheres, havings []sqlbuilder.Fragment
	for _, p := range preds {
		if p.HasWhere() {
			wheres = append(wheres, p.Where)
		}
		if p.HasHaving() {
			havings = append(havings, p.Having)
		}
	}
	return Predicate{
		Where:  joinFragments(wheres, " AND "),
		Having: joinFragments(havings, " AND "),
	}
}

// Or combines predicates disjunctively. When any operand carries a HAVING
// part the whole disjunction is evaluated in the HAVING clause: plain
// fragments reference root columns, which are functionally dependent on the
// grouped primary key.
func Or(preds ...Predicate) Predicate {
	anyHaving := false
	for _, p := range preds {
		if p.HasHaving() {
			anyHaving = true
			break
		}
	}

	var fragments []sqlbuilder.Fragment
	for _, p := range preds {
		fragments = append(fragments, operandFragments(p, anyHaving)...)
	}

	combined := joinFragments(fragments, " OR ")
	if anyHaving {
		return Predicate{Having: combined}
	}
	return Predicate{Where: combined}
}

// Not negates a predicate part-wise
func Not(p Predicate) Predicate {
	out := Predicate{}
	if p.HasWhere() {
		out.Where = sqlbuilder.Fragment{SQL: "NOT (" + p.Where.SQL + ")", Args: p.Where.Args}
	}
	if p.HasHaving() {
		out.Having = sqlbuilder.Fragment{SQL: "NOT (" + p.Having.SQL + ")", Args: p.Having.Args}
	}
	return out
}

func operandFragments(p Predicate, toHaving bool) []sqlbuilder.Fragment {
	var out []sqlbuilder.Fragment
	if toHaving {
		// Both parts of one operand stay together in the disjunction
		if p.HasWhere() && p.HasHaving() {
			out = append(out, joinFragments([]sqlbuilder.Fragment{p.Where, p.Having}, " AND "))
			return out
		}
	}
	if p.HasWhere() {
		out = append(out, p.Where)
	}
	if p.HasHaving() {
		out = append(out, p.Having)
	}
	return out
}

func joinFragments(fragments []sqlbuilder.Fragment, sep string) sqlbuilder.Fragment {
	switch len(fragments) {
	case 0:
		return sqlbuilder.Fragment{}
	case 1:
		return fragments[0]
	}

	parts := make([]string, len(fragments))
	var args []any
	for i, f := range fragments {
		parts[i] = "(" + f.SQL + ")"
		args = append(args, f.Args...)
	}
	return sqlbuilder.Fragment{SQL: strings.Join(parts, sep), Args: args}
}
