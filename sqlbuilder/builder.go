package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/rediwo/redi-collection/types"
)

// JoinType represents the type of SQL join
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
)

// Fragment is a piece of SQL text with its positional parameters
type Fragment struct {
	SQL  string
	Args []any
}

// JoinClause represents a single join operation
type JoinClause struct {
	Type      JoinType
	Table     string
	Alias     string
	Condition string
	Args      []any
}

// OrderClause represents one ORDER BY entry
type OrderClause struct {
	Expr      string
	Direction types.Order
}

// Builder accumulates the parts of a single SELECT statement. It also owns
// the query's join plan: the mapping from normalized join identity to the
// SQL alias allocated for it. Deriving a new query clones the builder, so
// derived snapshots never share mutable state with their parent.
type Builder struct {
	fromTable   string
	fromAlias   string
	selectParts []string
	joins       []JoinClause
	where       []Fragment
	having      []Fragment
	groupBy     []string
	orderBy     []OrderClause
	limit       *int
	offset      *int

	joinAliases map[string]string // join identity -> alias
	aliasTaken  map[string]bool
}

// New creates a builder selecting from the given table. The table name
// doubles as the root alias.
func New(table string) *Builder {
	return &Builder{
		fromTable:   table,
		fromAlias:   table,
		joinAliases: make(map[string]string),
		aliasTaken:  map[string]bool{table: true},
	}
}

// Clone returns a deep copy sharing no mutable state with the receiver
func (b *Builder) Clone() *Builder {
	clone := &Builder{
		fromTable:   b.fromTable,
		fromAlias:   b.fromAlias,
		selectParts: append([]string{}, b.selectParts...),
		joins:       make([]JoinClause, len(b.joins)),
		where:       cloneFragments(b.where),
		having:      cloneFragments(b.having),
		groupBy:     append([]string{}, b.groupBy...),
		orderBy:     append([]OrderClause{}, b.orderBy...),
		joinAliases: make(map[string]string, len(b.joinAliases)),
		aliasTaken:  make(map[string]bool, len(b.aliasTaken)),
	}

	for i, join := range b.joins {
		join.Args = append([]any{}, join.Args...)
		clone.joins[i] = join
	}
	for k, v := range b.joinAliases {
		clone.joinAliases[k] = v
	}
	for k, v := range b.aliasTaken {
		clone.aliasTaken[k] = v
	}

	if b.limit != nil {
		limit := *b.limit
		clone.limit = &limit
	}
	if b.offset != nil {
		offset := *b.offset
		clone.offset = &offset
	}

	return clone
}

func cloneFragments(src []Fragment) []Fragment {
	out := make([]Fragment, len(src))
	for i, f := range src {
		out[i] = Fragment{SQL: f.SQL, Args: append([]any{}, f.Args...)}
	}
	return out
}

// GetFromAlias returns the root table alias
func (b *Builder) GetFromAlias() string {
	return b.fromAlias
}

// Select replaces the select list
func (b *Builder) Select(exprs ...string) {
	b.selectParts = exprs
}

// JoinAlias returns the alias already allocated for a join identity
func (b *Builder) JoinAlias(key string) (string, bool) {
	alias, ok := b.joinAliases[key]
	return alias, ok
}

// AllocateAlias reserves a deterministic alias derived from base. When base
// is taken by a join with different semantics a positional counter is
// appended.
func (b *Builder) AllocateAlias(base string) string {
	if !b.aliasTaken[base] {
		b.aliasTaken[base] = true
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !b.aliasTaken[candidate] {
			b.aliasTaken[candidate] = true
			return candidate
		}
	}
}

// AddJoin appends a join and records its identity in the join plan
func (b *Builder) AddJoin(key string, join JoinClause) {
	b.joinAliases[key] = join.Alias
	b.joins = append(b.joins, join)
}

// AppendJoinCondition extends the ON clause of the join using the given alias
func (b *Builder) AppendJoinCondition(alias, condition string, args ...any) {
	for i := range b.joins {
		if b.joins[i].Alias == alias {
			b.joins[i].Condition = fmt.Sprintf("%s AND %s", b.joins[i].Condition, condition)
			b.joins[i].Args = append(b.joins[i].Args, args...)
			return
		}
	}
}

// HasJoins reports whether any join was added
func (b *Builder) HasJoins() bool {
	return len(b.joins) > 0
}

// AndWhere adds a WHERE fragment, ANDed with the existing ones
func (b *Builder) AndWhere(sql string, args ...any) {
	b.where = append(b.where, Fragment{SQL: sql, Args: args})
}

// AndHaving adds a HAVING fragment, ANDed with the existing ones
func (b *Builder) AndHaving(sql string, args ...any) {
	b.having = append(b.having, Fragment{SQL: sql, Args: args})
}

// HasHaving reports whether any HAVING fragment was added
func (b *Builder) HasHaving() bool {
	return len(b.having) > 0
}

// AddGroupBy appends a GROUP BY column, ignoring duplicates so multiple
// to-many paths share a single GROUP BY
func (b *Builder) AddGroupBy(column string) {
	for _, existing := range b.groupBy {
		if existing == column {
			return
		}
	}
	b.groupBy = append(b.groupBy, column)
}

// HasGroupBy reports whether a GROUP BY was added
func (b *Builder) HasGroupBy() bool {
	return len(b.groupBy) > 0
}

// AddOrderBy appends an ORDER BY entry
func (b *Builder) AddOrderBy(expr string, direction types.Order) {
	b.orderBy = append(b.orderBy, OrderClause{Expr: expr, Direction: direction})
}

// ResetOrderBy drops all ORDER BY entries
func (b *Builder) ResetOrderBy() {
	b.orderBy = nil
}

// LimitBy sets LIMIT and optionally OFFSET
func (b *Builder) LimitBy(limit int, offset *int) {
	b.limit = &limit
	if offset != nil {
		o := *offset
		b.offset = &o
	} else {
		b.offset = nil
	}
}

// HasLimitOffsetClause reports whether a limit or offset is set
func (b *Builder) HasLimitOffsetClause() bool {
	return b.limit != nil || b.offset != nil
}

// GetSQL assembles the SELECT statement
func (b *Builder) GetSQL() string {
	var parts []string

	selectList := strings.Join(b.selectParts, ", ")
	if selectList == "" {
		selectList = b.fromAlias + ".*"
	}
	parts = append(parts, fmt.Sprintf("SELECT %s", selectList))
	parts = append(parts, fmt.Sprintf("FROM %s", b.fromClause()))

	for _, join := range b.joins {
		parts = append(parts, fmt.Sprintf("%s %s AS %s ON %s", join.Type, join.Table, join.Alias, join.Condition))
	}

	if clause := combineFragments(b.where); clause != "" {
		parts = append(parts, "WHERE "+clause)
	}
	if len(b.groupBy) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(b.groupBy, ", "))
	}
	if clause := combineFragments(b.having); clause != "" {
		parts = append(parts, "HAVING "+clause)
	}
	if len(b.orderBy) > 0 {
		orderParts := make([]string, len(b.orderBy))
		for i, order := range b.orderBy {
			orderParts[i] = fmt.Sprintf("%s %s", order.Expr, order.Direction)
		}
		parts = append(parts, "ORDER BY "+strings.Join(orderParts, ", "))
	}
	if b.limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *b.limit))
	}
	if b.offset != nil {
		parts = append(parts, fmt.Sprintf("OFFSET %d", *b.offset))
	}

	return strings.Join(parts, " ")
}

// GetParameters returns the positional parameters in clause order:
// join ON arguments first, then WHERE, then HAVING
func (b *Builder) GetParameters() []any {
	var params []any
	for _, join := range b.joins {
		params = append(params, join.Args...)
	}
	for _, f := range b.where {
		params = append(params, f.Args...)
	}
	for _, f := range b.having {
		params = append(params, f.Args...)
	}
	return params
}

// GetCountSQL builds a row-count statement for the current query. Queries
// with joins or grouping are wrapped in COUNT(*) over a deduplicated
// subquery selecting countExpr (typically the root primary key), so fan-out
// from joins never inflates the count. A LIMIT/OFFSET window is emitted
// inside the subquery, keeping the count equal to the rows the query
// itself would yield.
func (b *Builder) GetCountSQL(countExpr string) string {
	if !b.HasJoins() && !b.HasGroupBy() && !b.HasHaving() && !b.HasLimitOffsetClause() {
		parts := []string{fmt.Sprintf("SELECT COUNT(*) FROM %s", b.fromClause())}
		if clause := combineFragments(b.where); clause != "" {
			parts = append(parts, "WHERE "+clause)
		}
		return strings.Join(parts, " ")
	}

	inner := countExpr
	if b.HasJoins() && !b.HasGroupBy() {
		inner = "DISTINCT " + countExpr
	}

	parts := []string{fmt.Sprintf("SELECT %s", inner), fmt.Sprintf("FROM %s", b.fromClause())}
	for _, join := range b.joins {
		parts = append(parts, fmt.Sprintf("%s %s AS %s ON %s", join.Type, join.Table, join.Alias, join.Condition))
	}
	if clause := combineFragments(b.where); clause != "" {
		parts = append(parts, "WHERE "+clause)
	}
	if len(b.groupBy) > 0 {
		parts = append(parts, "GROUP BY "+strings.Join(b.groupBy, ", "))
	}
	if clause := combineFragments(b.having); clause != "" {
		parts = append(parts, "HAVING "+clause)
	}
	if b.limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *b.limit))
	}
	if b.offset != nil {
		parts = append(parts, fmt.Sprintf("OFFSET %d", *b.offset))
	}

	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_source", strings.Join(parts, " "))
}

func (b *Builder) fromClause() string {
	if b.fromAlias == b.fromTable {
		return b.fromTable
	}
	return fmt.Sprintf("%s AS %s", b.fromTable, b.fromAlias)
}

func combineFragments(fragments []Fragment) string {
	switch len(fragments) {
	case 0:
		return ""
	case 1:
		return fragments[0].SQL
	}

	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = "(" + f.SQL + ")"
	}
	return strings.Join(parts, " AND ")
}
