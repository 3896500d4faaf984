package expr

import (
	"fmt"
	"strings"

	"github.com/rediwo/redi-collection/functions"
	"github.com/rediwo/redi-collection/schema"
	"github.com/rediwo/redi-collection/sqlbuilder"
	"github.com/rediwo/redi-collection/types"
)

// Compiler translates relationship-path expressions into joins and
// predicate fragments against a statement builder. The compiler itself is
// stateless: the per-query join plan (identity → alias) lives in the
// builder, so alias resolution is deterministic and shared by every
// expression compiled into the same query.
type Compiler struct {
	rootModel string
	metadata  types.MetadataProvider
	registry  *functions.Registry
}

// NewCompiler creates a compiler rooted at the given model
func NewCompiler(rootModel string, metadata types.MetadataProvider, registry *functions.Registry) *Compiler {
	return &Compiler{
		rootModel: rootModel,
		metadata:  metadata,
		registry:  registry,
	}
}

// RootModel returns the model the compiler resolves paths against
func (c *Compiler) RootModel() string {
	return c.rootModel
}

// Registry returns the function registry
func (c *Compiler) Registry() *functions.Registry {
	return c.registry
}

// Metadata returns the metadata provider
func (c *Compiler) Metadata() types.MetadataProvider {
	return c.metadata
}

// RootSchema returns the schema of the root model
func (c *Compiler) RootSchema() (*schema.Schema, error) {
	return c.metadata.GetModelSchema(c.rootModel)
}

// Compile compiles a condition tree, extending the builder with the joins
// the condition requires
func (c *Compiler) Compile(cond Condition, b *sqlbuilder.Builder) (functions.Predicate, error) {
	return cond.compile(c, b)
}

// CompileOrder compiles an order expression and appends it to the builder's
// ORDER BY list. Ordering across a to-many relationship requires an
// aggregate modifier (e.g. "tags.count").
func (c *Compiler) CompileOrder(path string, direction types.Order, b *sqlbuilder.Builder) error {
	rp, err := c.resolvePath(path)
	if err != nil {
		return err
	}
	if rp.toMany && rp.aggregate == "" {
		return fmt.Errorf("cannot order by '%s': ordering over a to-many relationship requires an aggregate modifier", path)
	}

	finalAlias, _, err := c.buildJoins(rp, "", b)
	if err != nil {
		return err
	}

	if rp.aggregate != "" {
		agg, err := c.registry.Aggregate(rp.aggregate)
		if err != nil {
			return err
		}
		argExpr, err := c.aggregateArg(rp, finalAlias)
		if err != nil {
			return err
		}
		if err := c.addRootGroupBy(b); err != nil {
			return err
		}
		b.AddOrderBy(agg.FormatCall(argExpr), direction)
		return nil
	}

	column, err := c.qualifiedTerminal(rp, finalAlias)
	if err != nil {
		return err
	}
	b.AddOrderBy(column, direction)
	return nil
}

// pathHop is one resolved relationship segment of a path
type pathHop struct {
	name     string
	relation schema.Relation
	owner    *schema.Schema
	target   *schema.Schema
	modifier string // "any", "all" or an aggregate name; to-many hops only
}

// resolvedPath is the outcome of resolving every segment of a path
// expression against the metadata model
type resolvedPath struct {
	hops      []pathHop
	column    string // terminal field name, empty for a bare aggregate
	aggregate string // aggregate modifier ("count", "sum", ...) or ""
	mode      string // existence mode: "any" (default) or "all"
	toMany    bool
}

func (rp *resolvedPath) finalSchema(root *schema.Schema) *schema.Schema {
	if len(rp.hops) == 0 {
		return root
	}
	return rp.hops[len(rp.hops)-1].target
}

func (c *Compiler) resolvePath(path string) (*resolvedPath, error) {
	root, err := c.RootSchema()
	if err != nil {
		return nil, err
	}

	segments := strings.Split(path, ".")
	rp := &resolvedPath{mode: "any"}
	current := root

	i := 0
	for i < len(segments) {
		seg := segments[i]

		if current.HasRelation(seg) {
			relation, _ := current.GetRelation(seg)
			target, err := c.metadata.GetModelSchema(relation.Model)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve relation '%s' in path '%s': %w", seg, path, err)
			}
			hop := pathHop{name: seg, relation: relation, owner: current, target: target}
			i++

			if relation.Type.IsToMany() {
				rp.toMany = true
				if i < len(segments) {
					switch next := segments[i]; {
					case next == "any" || next == "all":
						hop.modifier = next
						rp.mode = next
						i++
					case c.registry.HasAggregate(next):
						hop.modifier = next
						rp.aggregate = next
						i++
					}
				}
			}

			rp.hops = append(rp.hops, hop)
			current = target
			continue
		}

		// Not a relation: only a terminal field segment is acceptable. A
		// column after an aggregate modifier aggregates that column; count
		// without one falls back to the target primary key.
		if i == len(segments)-1 && current.HasField(seg) {
			rp.column = seg
			i++
			continue
		}

		return nil, types.NewUnresolvablePathError(current.Name, seg, path)
	}

	if rp.aggregate != "" && rp.aggregate != "count" && rp.column == "" {
		return nil, types.NewUnresolvablePathError(current.Name, rp.aggregate, path)
	}
	if rp.aggregate == "" && rp.column == "" {
		return nil, types.NewUnresolvablePathError(current.Name, segments[len(segments)-1], path)
	}

	return rp, nil
}

// compileLeaf compiles a single path/operator/value condition
func (c *Compiler) compileLeaf(path, operator string, value any, b *sqlbuilder.Builder) (functions.Predicate, error) {
	rp, err := c.resolvePath(path)
	if err != nil {
		return functions.Predicate{}, err
	}
	scalar, err := c.registry.Scalar(operator)
	if err != nil {
		return functions.Predicate{}, err
	}

	// The discriminator makes the join identity of an existence filter
	// include its terminal condition: identical sub-conditions reuse one
	// alias, different sub-conditions get independent aliases.
	discriminator := fmt.Sprintf("%s:%s:%v", rp.mode, operator, value)

	finalAlias, finalCreated, err := c.buildJoins(rp, discriminator, b)
	if err != nil {
		return functions.Predicate{}, err
	}

	if !rp.toMany {
		column, err := c.qualifiedTerminal(rp, finalAlias)
		if err != nil {
			return functions.Predicate{}, err
		}
		return functions.Predicate{Where: scalar(column, value)}, nil
	}

	// Any to-many traversal groups the query by the root primary key so
	// join fan-out is absorbed before the HAVING filter applies.
	if err := c.addRootGroupBy(b); err != nil {
		return functions.Predicate{}, err
	}

	countAgg, err := c.registry.Aggregate("count")
	if err != nil {
		return functions.Predicate{}, err
	}

	if rp.aggregate != "" {
		agg, err := c.registry.Aggregate(rp.aggregate)
		if err != nil {
			return functions.Predicate{}, err
		}
		argExpr, err := c.aggregateArg(rp, finalAlias)
		if err != nil {
			return functions.Predicate{}, err
		}
		return functions.Predicate{Having: scalar(agg.FormatCall(argExpr), value)}, nil
	}

	// Existence filter: the terminal condition restricts which joined rows
	// contribute to the count, so it belongs to the join's ON clause, not
	// the WHERE clause.
	column, err := c.qualifiedTerminal(rp, finalAlias)
	if err != nil {
		return functions.Predicate{}, err
	}
	frag := scalar(column, value)

	root, err := c.RootSchema()
	if err != nil {
		return functions.Predicate{}, err
	}
	pk, err := rp.finalSchema(root).PrimaryKeyField()
	if err != nil {
		return functions.Predicate{}, err
	}
	countExpr := countAgg.FormatCall(finalAlias + "." + pk.GetColumnName())

	if rp.mode == "all" {
		// Canonical "all" encoding: count related rows violating the
		// condition and require zero of them.
		if finalCreated {
			b.AppendJoinCondition(finalAlias, "NOT ("+frag.SQL+")", frag.Args...)
		}
		return functions.Predicate{Having: sqlbuilder.Fragment{SQL: countExpr + " = 0"}}, nil
	}

	if finalCreated {
		b.AppendJoinCondition(finalAlias, frag.SQL, frag.Args...)
	}
	return functions.Predicate{Having: sqlbuilder.Fragment{SQL: countExpr + " > 0"}}, nil
}

// buildJoins walks the path's relationship hops, reusing aliases recorded in
// the builder's join plan and emitting LEFT JOINs for hops not yet joined.
// It returns the alias owning the terminal segment and whether the final
// join was created by this call (as opposed to reused).
func (c *Compiler) buildJoins(rp *resolvedPath, discriminator string, b *sqlbuilder.Builder) (string, bool, error) {
	currentAlias := b.GetFromAlias()
	created := false

	var aliasParts []string
	discriminated := false

	for _, hop := range rp.hops {
		aliasParts = append(aliasParts, hop.name)
		if hop.modifier == "any" || hop.modifier == "all" {
			aliasParts = append(aliasParts, hop.modifier)
		}
		if hop.relation.Type.IsToMany() && rp.aggregate == "" {
			discriminated = true
		}

		key := strings.Join(aliasParts, ".")
		if discriminated {
			key += "|" + discriminator
		}

		if alias, ok := b.JoinAlias(key); ok {
			currentAlias = alias
			created = false
			continue
		}

		alias := b.AllocateAlias(strings.Join(aliasParts, "_"))
		if err := c.addJoin(b, key, hop, currentAlias, alias); err != nil {
			return "", false, err
		}
		currentAlias = alias
		created = true
	}

	return currentAlias, created, nil
}

// addJoin emits the LEFT JOIN (plus junction join for many-to-many) for one
// relationship hop
func (c *Compiler) addJoin(b *sqlbuilder.Builder, key string, hop pathHop, fromAlias, toAlias string) error {
	relation := hop.relation

	switch relation.Type {
	case schema.RelationManyToOne:
		fromCol, err := hop.owner.GetColumnNameByFieldName(relation.ForeignKey)
		if err != nil {
			return err
		}
		toCol, err := referencedColumn(hop.target, relation.References)
		if err != nil {
			return err
		}
		b.AddJoin(key, sqlbuilder.JoinClause{
			Type:      sqlbuilder.LeftJoin,
			Table:     hop.target.GetTableName(),
			Alias:     toAlias,
			Condition: fmt.Sprintf("%s.%s = %s.%s", fromAlias, fromCol, toAlias, toCol),
		})

	case schema.RelationOneToMany:
		toCol, err := hop.target.GetColumnNameByFieldName(relation.ForeignKey)
		if err != nil {
			return err
		}
		fromCol, err := referencedColumn(hop.owner, relation.References)
		if err != nil {
			return err
		}
		b.AddJoin(key, sqlbuilder.JoinClause{
			Type:      sqlbuilder.LeftJoin,
			Table:     hop.target.GetTableName(),
			Alias:     toAlias,
			Condition: fmt.Sprintf("%s.%s = %s.%s", toAlias, toCol, fromAlias, fromCol),
		})

	case schema.RelationOneToOne:
		if hop.owner.HasField(relation.ForeignKey) {
			fromCol, err := hop.owner.GetColumnNameByFieldName(relation.ForeignKey)
			if err != nil {
				return err
			}
			toCol, err := referencedColumn(hop.target, relation.References)
			if err != nil {
				return err
			}
			b.AddJoin(key, sqlbuilder.JoinClause{
				Type:      sqlbuilder.LeftJoin,
				Table:     hop.target.GetTableName(),
				Alias:     toAlias,
				Condition: fmt.Sprintf("%s.%s = %s.%s", fromAlias, fromCol, toAlias, toCol),
			})
			return nil
		}
		toCol, err := hop.target.GetColumnNameByFieldName(relation.ForeignKey)
		if err != nil {
			return err
		}
		fromCol, err := referencedColumn(hop.owner, relation.References)
		if err != nil {
			return err
		}
		b.AddJoin(key, sqlbuilder.JoinClause{
			Type:      sqlbuilder.LeftJoin,
			Table:     hop.target.GetTableName(),
			Alias:     toAlias,
			Condition: fmt.Sprintf("%s.%s = %s.%s", toAlias, toCol, fromAlias, fromCol),
		})

	case schema.RelationManyToMany:
		ownerPK, err := referencedColumn(hop.owner, "")
		if err != nil {
			return err
		}
		targetPK, err := referencedColumn(hop.target, relation.References)
		if err != nil {
			return err
		}

		junctionTable := schema.GetJunctionTableName(hop.owner.Name, relation.Model)
		junctionAlias := b.AllocateAlias(toAlias + "_x")

		b.AddJoin(key+"#x", sqlbuilder.JoinClause{
			Type:      sqlbuilder.LeftJoin,
			Table:     junctionTable,
			Alias:     junctionAlias,
			Condition: fmt.Sprintf("%s.%s = %s.%s", fromAlias, ownerPK, junctionAlias, schema.JunctionColumn(hop.owner.Name)),
		})
		b.AddJoin(key, sqlbuilder.JoinClause{
			Type:      sqlbuilder.LeftJoin,
			Table:     hop.target.GetTableName(),
			Alias:     toAlias,
			Condition: fmt.Sprintf("%s.%s = %s.%s", junctionAlias, schema.JunctionColumn(relation.Model), toAlias, targetPK),
		})

	default:
		return fmt.Errorf("unknown relation type: %s", relation.Type)
	}

	return nil
}

// addRootGroupBy groups the query by the root primary key. The builder
// ignores duplicate columns, so multiple to-many paths share one GROUP BY.
func (c *Compiler) addRootGroupBy(b *sqlbuilder.Builder) error {
	root, err := c.RootSchema()
	if err != nil {
		return err
	}
	columns := root.PrimaryKeyColumns()
	if len(columns) == 0 {
		return fmt.Errorf("model %s has no primary key to group by", root.Name)
	}
	for _, column := range columns {
		b.AddGroupBy(b.GetFromAlias() + "." + column)
	}
	return nil
}

func (c *Compiler) qualifiedTerminal(rp *resolvedPath, alias string) (string, error) {
	root, err := c.RootSchema()
	if err != nil {
		return "", err
	}
	column, err := rp.finalSchema(root).GetColumnNameByFieldName(rp.column)
	if err != nil {
		return "", err
	}
	return alias + "." + column, nil
}

// aggregateArg returns the SQL expression the aggregate applies to: the
// terminal column, or the target primary key for a bare count
func (c *Compiler) aggregateArg(rp *resolvedPath, alias string) (string, error) {
	root, err := c.RootSchema()
	if err != nil {
		return "", err
	}
	final := rp.finalSchema(root)
	if rp.column == "" {
		pk, err := final.PrimaryKeyField()
		if err != nil {
			return "", err
		}
		return alias + "." + pk.GetColumnName(), nil
	}
	column, err := final.GetColumnNameByFieldName(rp.column)
	if err != nil {
		return "", err
	}
	return alias + "." + column, nil
}

func referencedColumn(s *schema.Schema, ref string) (string, error) {
	if ref == "" {
		ref = "id"
	}
	return s.GetColumnNameByFieldName(ref)
}
