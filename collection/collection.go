package collection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rediwo/redi-collection/expr"
	"github.com/rediwo/redi-collection/functions"
	"github.com/rediwo/redi-collection/logger"
	"github.com/rediwo/redi-collection/schema"
	"github.com/rediwo/redi-collection/sqlbuilder"
	"github.com/rediwo/redi-collection/types"
	"github.com/rediwo/redi-collection/utils"
)

// RelationshipMapper is the alternate iteration path used when a collection
// is bound to an owning entity and relationship. The variant (has-many,
// many-to-many, belongs-to) is selected once at bind time.
type RelationshipMapper interface {
	Iterate(ctx context.Context, parent types.Entity, coll *Collection) ([]types.Entity, error)
	Count(ctx context.Context, parent types.Entity, coll *Collection) (int, error)
}

// executionState tracks a snapshot's materialization status
type executionState int

const (
	stateNotExecuted executionState = iota
	stateExecuting
	stateCached
)

// OrderExpr pairs an order path expression with its direction
type OrderExpr struct {
	Path      string
	Direction types.Order
}

// Collection is an immutable-style, lazily executed query over entities of
// one model. Every mutating-looking operation clones the underlying
// statement builder and returns a new, independent snapshot with its result
// cache reset; the receiver is never changed. The first fetch, iteration or
// count on a snapshot executes the query once and caches rows and count for
// the snapshot's lifetime.
type Collection struct {
	modelName string
	schema    *schema.Schema
	builder   *sqlbuilder.Builder
	compiler  *expr.Compiler
	conn      types.Connection
	hydrator  types.Hydrator
	log       logger.Logger

	state      executionState
	entities   []types.Entity
	fetchIndex int

	onFetch    []func([]types.Entity)
	hooksFired bool

	relMapper RelationshipMapper
	relParent types.Entity
}

// New creates a collection over the given model. The default hydrator maps
// column names back to schema field names; replace it with WithHydrator.
func New(modelName string, metadata types.MetadataProvider, conn types.Connection) (*Collection, error) {
	s, err := metadata.GetModelSchema(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	return &Collection{
		modelName: modelName,
		schema:    s,
		builder:   sqlbuilder.New(s.GetTableName()),
		compiler:  expr.NewCompiler(modelName, metadata, functions.NewRegistry()),
		conn:      conn,
		hydrator:  &schemaHydrator{schema: s},
		log:       logger.NewNullLogger(),
	}, nil
}

// WithHydrator derives a collection using the given hydrator
func (c *Collection) WithHydrator(h types.Hydrator) *Collection {
	nc := c.clone()
	nc.hydrator = h
	return nc
}

// WithLogger derives a collection using the given logger
func (c *Collection) WithLogger(l logger.Logger) *Collection {
	nc := c.clone()
	nc.log = l
	return nc
}

// WithRegistry derives a collection whose compiler dispatches to the given
// function registry
func (c *Collection) WithRegistry(r *functions.Registry) *Collection {
	nc := c.clone()
	nc.compiler = expr.NewCompiler(c.modelName, c.compiler.Metadata(), r)
	return nc
}

// ModelName returns the model this collection yields
func (c *Collection) ModelName() string {
	return c.modelName
}

// Schema returns the model's schema
func (c *Collection) Schema() *schema.Schema {
	return c.schema
}

// Connection returns the underlying connection
func (c *Collection) Connection() types.Connection {
	return c.conn
}

// Hydrator returns the entity hydrator
func (c *Collection) Hydrator() types.Hydrator {
	return c.hydrator
}

// GetSQL returns the SQL the snapshot would execute
func (c *Collection) GetSQL() string {
	return c.builder.GetSQL()
}

// GetParameters returns the positional parameters of GetSQL
func (c *Collection) GetParameters() []any {
	return c.builder.GetParameters()
}

// Filter derives a collection restricted by the given conditions. Multiple
// conditions in one call combine with AND. Compilation errors (unresolvable
// paths, unknown operators) surface here, before any SQL is sent.
func (c *Collection) Filter(conditions ...expr.Condition) (*Collection, error) {
	nc := c.clone()
	for _, cond := range conditions {
		pred, err := nc.compiler.Compile(cond, nc.builder)
		if err != nil {
			return nil, err
		}
		if pred.HasWhere() {
			nc.builder.AndWhere(pred.Where.SQL, pred.Where.Args...)
		}
		if pred.HasHaving() {
			nc.builder.AndHaving(pred.Having.SQL, pred.Having.Args...)
		}
	}
	return nc, nil
}

// OrderBy derives a collection ordered by the given path expression
func (c *Collection) OrderBy(path string, direction types.Order) (*Collection, error) {
	return c.OrderByMany([]OrderExpr{{Path: path, Direction: direction}})
}

// OrderByMany derives a collection ordered by several expressions, compiled
// independently and appended in call order
func (c *Collection) OrderByMany(orders []OrderExpr) (*Collection, error) {
	nc := c.clone()
	for _, order := range orders {
		if err := nc.compiler.CompileOrder(order.Path, order.Direction, nc.builder); err != nil {
			return nil, err
		}
	}
	return nc, nil
}

// ResetOrderBy derives a collection with all ordering dropped
func (c *Collection) ResetOrderBy() *Collection {
	nc := c.clone()
	nc.builder.ResetOrderBy()
	return nc
}

// LimitBy derives a collection limited to limit rows, optionally starting
// at an offset
func (c *Collection) LimitBy(limit int, offset ...int) *Collection {
	nc := c.clone()
	if len(offset) > 0 {
		nc.builder.LimitBy(limit, &offset[0])
	} else {
		nc.builder.LimitBy(limit, nil)
	}
	return nc
}

// BindRelationship derives a collection whose iteration delegates entirely
// to the given fetch strategy for the children of parent
func (c *Collection) BindRelationship(mapper RelationshipMapper, parent types.Entity) *Collection {
	nc := c.clone()
	nc.relMapper = mapper
	nc.relParent = parent
	return nc
}

// Unbound derives a collection detached from any relationship binding,
// executing its own statement builder again
func (c *Collection) Unbound() *Collection {
	nc := c.clone()
	nc.relMapper = nil
	nc.relParent = nil
	return nc
}

// SubscribeOnFetch registers a hook invoked exactly once per snapshot with
// the full entity sequence, after materialization and before the first
// entity is yielded. Repeated iteration of the same snapshot does not
// re-invoke hooks.
func (c *Collection) SubscribeOnFetch(hook func([]types.Entity)) {
	c.onFetch = append(c.onFetch, hook)
}

// Fetch returns the next entity of the snapshot's single shared cursor, or
// nil when drained. Restart iteration by re-fetching on a derived snapshot.
func (c *Collection) Fetch(ctx context.Context) (types.Entity, error) {
	if err := c.materialize(ctx); err != nil {
		return nil, err
	}
	if c.fetchIndex >= len(c.entities) {
		return nil, nil
	}
	entity := c.entities[c.fetchIndex]
	c.fetchIndex++
	return entity, nil
}

// FetchAll materializes the snapshot and returns all entities. Repeated
// calls replay the cached result without re-querying.
func (c *Collection) FetchAll(ctx context.Context) ([]types.Entity, error) {
	if err := c.materialize(ctx); err != nil {
		return nil, err
	}
	return c.entities, nil
}

// FetchOne applies the optional conditions and returns the first matching
// entity, or nil when nothing matches
func (c *Collection) FetchOne(ctx context.Context, conditions ...expr.Condition) (types.Entity, error) {
	derived := c
	if len(conditions) > 0 {
		var err error
		derived, err = c.Filter(conditions...)
		if err != nil {
			return nil, err
		}
	}
	if derived.relMapper == nil && !derived.builder.HasLimitOffsetClause() {
		derived = derived.LimitBy(1)
	}

	entities, err := derived.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FetchOneOrFail is FetchOne failing with ErrNotFound when no row matches
func (c *Collection) FetchOneOrFail(ctx context.Context, conditions ...expr.Condition) (types.Entity, error) {
	entity, err := c.FetchOne(ctx, conditions...)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%s: %w", c.modelName, types.ErrNotFound)
	}
	return entity, nil
}

// FetchPairs builds a mapping from the iterated entities. An empty keyField
// defaults to the model's primary key; an empty valueField maps to the
// whole entity.
func (c *Collection) FetchPairs(ctx context.Context, keyField, valueField string) (map[any]any, error) {
	entities, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	if keyField == "" {
		pk, err := c.schema.PrimaryKeyField()
		if err != nil {
			return nil, err
		}
		keyField = pk.Name
	}

	pairs := make(map[any]any, len(entities))
	for _, entity := range entities {
		key, ok := entity[keyField]
		if !ok {
			return nil, fmt.Errorf("entity of %s has no value for pair key '%s'", c.modelName, keyField)
		}
		if valueField == "" {
			pairs[key] = entity
		} else {
			pairs[key] = entity[valueField]
		}
	}
	return pairs, nil
}

// Count returns the number of iterated entities, after materialization and
// fetch hooks. Cached per snapshot.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.materialize(ctx); err != nil {
		return 0, err
	}
	return len(c.entities), nil
}

// CountStored counts matching rows directly on the database, bypassing
// entity hydration. Queries with joins or grouping are counted over a
// deduplicated subquery. Relationship-bound collections delegate to the
// fetch strategy's own count.
func (c *Collection) CountStored(ctx context.Context) (int, error) {
	if c.relMapper != nil {
		return c.relMapper.Count(ctx, c.relParent, c)
	}

	columns := c.schema.PrimaryKeyColumns()
	if len(columns) == 0 {
		return 0, fmt.Errorf("model %s has no primary key", c.modelName)
	}
	qualified := make([]string, len(columns))
	for i, column := range columns {
		qualified[i] = c.builder.GetFromAlias() + "." + column
	}

	sqlText := c.builder.GetCountSQL(strings.Join(qualified, ", "))
	params := c.builder.GetParameters()

	start := time.Now()
	rows, err := c.conn.Query(ctx, sqlText, params...)
	if err != nil {
		return 0, err
	}
	c.log.Debug("count (%v): %s %v", time.Since(start), sqlText, params)

	return utils.ScanScalarInt(rows)
}

// Aggregate folds the named aggregate over the field values of the
// materialized entities. It is the in-memory counterpart of the SQL
// aggregate keyword and agrees with it: nil on an empty input for the
// numeric aggregates, 0 for count.
func (c *Collection) Aggregate(ctx context.Context, name, field string) (any, error) {
	agg, err := c.compiler.Registry().Aggregate(name)
	if err != nil {
		return nil, err
	}
	entities, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(entities))
	for i, entity := range entities {
		values[i] = entity[field]
	}
	return agg.Reduce(values), nil
}

// Call dispatches a collection operation by name, the entry point used by
// dynamic ORM surfaces. Unknown names fail with a MemberAccessError.
func (c *Collection) Call(ctx context.Context, name string, args ...any) (any, error) {
	switch name {
	case "fetch":
		return c.Fetch(ctx)
	case "fetchAll":
		return c.FetchAll(ctx)
	case "fetchOne":
		return c.FetchOne(ctx)
	case "fetchOneOrFail":
		return c.FetchOneOrFail(ctx)
	case "fetchPairs":
		keyField, _ := stringArg(args, 0)
		valueField, _ := stringArg(args, 1)
		return c.FetchPairs(ctx, keyField, valueField)
	case "count":
		return c.Count(ctx)
	case "countStored":
		return c.CountStored(ctx)
	case "resetOrderBy":
		return c.ResetOrderBy(), nil
	case "limitBy":
		limit, ok := intArg(args, 0)
		if !ok {
			return nil, fmt.Errorf("limitBy: missing or invalid limit argument")
		}
		if offset, ok := intArg(args, 1); ok {
			return c.LimitBy(limit, offset), nil
		}
		return c.LimitBy(limit), nil
	case "min", "max", "sum", "avg":
		field, ok := stringArg(args, 0)
		if !ok {
			return nil, fmt.Errorf("%s: missing or invalid field argument", name)
		}
		return c.Aggregate(ctx, name, field)
	default:
		return nil, types.NewMemberAccessError(name)
	}
}

func intArg(args []any, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	n, ok := args[i].(int)
	return n, ok
}

func stringArg(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

// materialize executes the snapshot's query (or delegates to the bound
// relationship mapper), hydrates entities and fires fetch hooks. It runs at
// most once per snapshot.
func (c *Collection) materialize(ctx context.Context) error {
	switch c.state {
	case stateCached:
		return nil
	case stateExecuting:
		return fmt.Errorf("re-entrant materialization of %s collection", c.modelName)
	}
	c.state = stateExecuting

	var entities []types.Entity
	var err error
	if c.relMapper != nil {
		entities, err = c.relMapper.Iterate(ctx, c.relParent, c)
	} else {
		entities, err = c.queryEntities(ctx)
	}
	if err != nil {
		c.state = stateNotExecuted
		return err
	}

	c.entities = entities
	c.state = stateCached

	if !c.hooksFired {
		c.hooksFired = true
		for _, hook := range c.onFetch {
			hook(c.entities)
		}
	}
	return nil
}

func (c *Collection) queryEntities(ctx context.Context) ([]types.Entity, error) {
	sqlText := c.builder.GetSQL()
	params := c.builder.GetParameters()

	start := time.Now()
	rows, err := c.conn.Query(ctx, sqlText, params...)
	if err != nil {
		// Backend errors propagate unmodified
		return nil, err
	}
	defer rows.Close()
	c.log.Debug("query (%v): %s %v", time.Since(start), sqlText, params)

	rawRows, err := utils.ScanRowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	entities := make([]types.Entity, 0, len(rawRows))
	for _, row := range rawRows {
		entity, err := c.hydrator.Hydrate(row)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate %s row: %w", c.modelName, err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// clone derives an independent snapshot: cloned builder state, caches reset
// to unset, hooks carried over but re-armed
func (c *Collection) clone() *Collection {
	return &Collection{
		modelName: c.modelName,
		schema:    c.schema,
		builder:   c.builder.Clone(),
		compiler:  c.compiler,
		conn:      c.conn,
		hydrator:  c.hydrator,
		log:       c.log,
		onFetch:   append([]func([]types.Entity){}, c.onFetch...),
		relMapper: c.relMapper,
		relParent: c.relParent,
	}
}
