package collection

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rediwo/redi-collection/database"
	_ "github.com/rediwo/redi-collection/drivers/sqlite"
	"github.com/rediwo/redi-collection/expr"
	"github.com/rediwo/redi-collection/schema"
	"github.com/rediwo/redi-collection/types"
)

// countingConnection counts executed queries so tests can observe laziness
// and caching
type countingConnection struct {
	inner   types.Connection
	queries int
}

func (c *countingConnection) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries++
	return c.inner.Query(ctx, query, args...)
}

func bookMetadata() *types.SchemaRegistry {
	author := schema.New("Author").
		AddField(schema.Field{Name: "id", Type: schema.FieldTypeInt, PrimaryKey: true}).
		AddField(schema.Field{Name: "name", Type: schema.FieldTypeString}).
		AddRelation("books", schema.Relation{Type: schema.RelationOneToMany, Model: "Book", ForeignKey: "authorId"})

	tag := schema.New("Tag").
		AddField(schema.Field{Name: "id", Type: schema.FieldTypeInt, PrimaryKey: true}).
		AddField(schema.Field{Name: "name", Type: schema.FieldTypeString})

	book := schema.New("Book").
		AddField(schema.Field{Name: "id", Type: schema.FieldTypeInt, PrimaryKey: true}).
		AddField(schema.Field{Name: "title", Type: schema.FieldTypeString}).
		AddField(schema.Field{Name: "price", Type: schema.FieldTypeFloat}).
		AddField(schema.Field{Name: "authorId", Type: schema.FieldTypeInt}).
		AddField(schema.Field{Name: "nextPartId", Type: schema.FieldTypeInt, Nullable: true}).
		AddRelation("author", schema.Relation{Type: schema.RelationManyToOne, Model: "Author", ForeignKey: "authorId"}).
		AddRelation("nextPart", schema.Relation{Type: schema.RelationManyToOne, Model: "Book", ForeignKey: "nextPartId"}).
		AddRelation("tags", schema.Relation{Type: schema.RelationManyToMany, Model: "Tag"})

	return types.NewSchemaRegistry().Register(author).Register(tag).Register(book)
}

func setupBookDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewFromURI("sqlite://:memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	statements := []string{
		`CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE books (id INTEGER PRIMARY KEY, title TEXT, price REAL, author_id INTEGER, next_part_id INTEGER)`,
		`CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE book_tags (book_id INTEGER, tag_id INTEGER)`,

		`INSERT INTO authors (id, name) VALUES (1, 'Herbert')`,
		`INSERT INTO books (id, title, price, author_id, next_part_id) VALUES
			(1, 'First', 10, 1, 2),
			(2, 'Second', 20, 1, NULL),
			(3, 'Third', 30, 1, NULL),
			(4, 'Fourth', 40, 1, 2)`,
		`INSERT INTO tags (id, name) VALUES (1, 'Tag 1'), (3, 'Tag 3'), (5, 'Tag 5')`,
		`INSERT INTO book_tags (book_id, tag_id) VALUES (1, 1), (2, 3), (3, 5)`,
	}
	for _, statement := range statements {
		_, err := db.Exec(ctx, statement)
		require.NoError(t, err)
	}
	return db
}

func newBookCollection(t *testing.T) (*Collection, *countingConnection) {
	t.Helper()

	probe := &countingConnection{inner: setupBookDB(t)}
	coll, err := New("Book", bookMetadata(), probe)
	require.NoError(t, err)
	return coll, probe
}

func titles(entities []types.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e["title"].(string)
	}
	return out
}

func TestDerivingDoesNotExecute(t *testing.T) {
	coll, probe := newBookCollection(t)

	filtered, err := coll.Filter(expr.Equals("title", "First"))
	require.NoError(t, err)
	ordered, err := filtered.OrderBy("title", types.ASC)
	require.NoError(t, err)
	_ = ordered.LimitBy(10)

	assert.Equal(t, 0, probe.queries)
}

func TestFetchAllExecutesOnceAndCaches(t *testing.T) {
	coll, probe := newBookCollection(t)
	ctx := context.Background()

	first, err := coll.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 4)
	assert.Equal(t, 1, probe.queries)

	second, err := coll.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, probe.queries)

	count, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 1, probe.queries)
}

func TestDerivedSnapshotsAreIndependent(t *testing.T) {
	coll, probe := newBookCollection(t)
	ctx := context.Background()

	all, err := coll.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	filtered, err := coll.Filter(expr.Equals("title", "First"))
	require.NoError(t, err)
	subset, err := filtered.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, titles(subset))

	// The parent snapshot keeps its own cached result
	all, err = coll.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 2, probe.queries)
}

func TestFetchCursor(t *testing.T) {
	coll, probe := newBookCollection(t)
	ctx := context.Background()

	var seen []string
	for {
		entity, err := coll.Fetch(ctx)
		require.NoError(t, err)
		if entity == nil {
			break
		}
		seen = append(seen, entity["title"].(string))
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 1, probe.queries)

	// Drained cursor stays drained, the cached result is still available
	entity, err := coll.Fetch(ctx)
	require.NoError(t, err)
	assert.Nil(t, entity)

	all, err := coll.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, 1, probe.queries)
}

func TestFetchOne(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	entity, err := coll.FetchOne(ctx, expr.Equals("title", "Second"))
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "Second", entity["title"])
	assert.Equal(t, int64(2), entity["id"])

	missing, err := coll.FetchOne(ctx, expr.Equals("title", "Nope"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFetchOneOrFail(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	_, err := coll.FetchOneOrFail(ctx, expr.Equals("title", "Nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestFetchPairs(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	// Default key is the primary key, default value the whole entity
	pairs, err := coll.FetchPairs(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, pairs, 4)
	entity, ok := pairs[int64(1)].(types.Entity)
	require.True(t, ok)
	assert.Equal(t, "First", entity["title"])

	byTitle, err := coll.FetchPairs(ctx, "title", "price")
	require.NoError(t, err)
	assert.Equal(t, 20.0, byTitle["Second"])
}

func TestCountStored(t *testing.T) {
	coll, probe := newBookCollection(t)
	ctx := context.Background()

	filtered, err := coll.Filter(expr.Compare("price", ">", 15.0))
	require.NoError(t, err)

	stored, err := filtered.CountStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stored)

	// Counting on the database does not materialize entities
	assert.Equal(t, 1, probe.queries)

	count, err := filtered.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 2, probe.queries)
}

func TestCountStoredRespectsLimit(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	limited := coll.LimitBy(2)
	entities, err := limited.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 2)

	stored, err := limited.CountStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)

	// A window past most of the result counts only what remains
	tail := coll.LimitBy(2, 3)
	entities, err = tail.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)

	stored, err = tail.CountStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestDisjunctionAcrossRelationships(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	// Books tagged 'Tag 1' or whose next part is tagged 'Tag 3'
	filtered, err := coll.Filter(expr.Or(
		expr.Equals("tags.any.name", "Tag 1"),
		expr.Equals("nextPart.tags.any.name", "Tag 3"),
	))
	require.NoError(t, err)

	entities, err := filtered.FetchAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"First", "Fourth"}, titles(entities))

	stored, err := filtered.CountStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
}

func TestCachedSnapshotIgnoresLaterWrites(t *testing.T) {
	probe := &countingConnection{inner: setupBookDB(t)}
	db := probe.inner.(*database.DB)
	coll, err := New("Book", bookMetadata(), probe)
	require.NoError(t, err)
	ctx := context.Background()

	filtered, err := coll.Filter(expr.Equals("tags.any.name", "Tag 1"))
	require.NoError(t, err)
	entities, err := filtered.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, titles(entities))

	_, err = db.Exec(ctx, `INSERT INTO book_tags (book_id, tag_id) VALUES (3, 1)`)
	require.NoError(t, err)

	// The materialized snapshot is frozen
	entities, err = filtered.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, titles(entities))

	// A fresh derivation sees the write
	fresh, err := coll.Filter(expr.Equals("tags.any.name", "Tag 1"))
	require.NoError(t, err)
	entities, err = fresh.FetchAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"First", "Third"}, titles(entities))
}

func TestExistenceFilterYieldsDistinctRoots(t *testing.T) {
	probe := &countingConnection{inner: setupBookDB(t)}
	db := probe.inner.(*database.DB)
	coll, err := New("Book", bookMetadata(), probe)
	require.NoError(t, err)
	ctx := context.Background()

	// Two matching tag rows must not duplicate the root entity
	_, err = db.Exec(ctx, `INSERT INTO tags (id, name) VALUES (7, 'Tag 1')`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO book_tags (book_id, tag_id) VALUES (1, 7)`)
	require.NoError(t, err)

	filtered, err := coll.Filter(expr.Equals("tags.any.name", "Tag 1"))
	require.NoError(t, err)
	entities, err := filtered.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"First"}, titles(entities))

	stored, err := filtered.CountStored(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestAggregateFilter(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	filtered, err := coll.Filter(expr.Compare("tags.count", ">=", 1))
	require.NoError(t, err)
	entities, err := filtered.FetchAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"First", "Second", "Third"}, titles(entities))
}

func TestOrderByAndLimit(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	ordered, err := coll.OrderBy("title", types.DESC)
	require.NoError(t, err)
	page := ordered.LimitBy(2, 1)

	entities, err := page.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Second", "Fourth"}, titles(entities))
}

func TestOrderByAggregate(t *testing.T) {
	probe := &countingConnection{inner: setupBookDB(t)}
	db := probe.inner.(*database.DB)
	coll, err := New("Book", bookMetadata(), probe)
	require.NoError(t, err)
	ctx := context.Background()

	// Give the first book a second tag so tag counts discriminate
	_, err = db.Exec(ctx, `INSERT INTO book_tags (book_id, tag_id) VALUES (1, 3)`)
	require.NoError(t, err)

	ordered, err := coll.OrderBy("tags.count", types.DESC)
	require.NoError(t, err)
	entities, err := ordered.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 4)
	assert.Equal(t, "First", entities[0]["title"])
	assert.Equal(t, "Fourth", entities[3]["title"])
}

func TestOrderByOverToManyWithoutAggregateFails(t *testing.T) {
	coll, _ := newBookCollection(t)

	_, err := coll.OrderBy("tags.name", types.ASC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aggregate")
}

func TestResetOrderBy(t *testing.T) {
	coll, _ := newBookCollection(t)

	ordered, err := coll.OrderBy("title", types.DESC)
	require.NoError(t, err)
	assert.Contains(t, ordered.GetSQL(), "ORDER BY")
	assert.NotContains(t, ordered.ResetOrderBy().GetSQL(), "ORDER BY")
}

func TestOnFetchHookFiresOncePerSnapshot(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	fired := 0
	coll.SubscribeOnFetch(func(entities []types.Entity) {
		fired++
		assert.Len(t, entities, 4)
	})

	_, err := coll.FetchAll(ctx)
	require.NoError(t, err)
	_, err = coll.FetchAll(ctx)
	require.NoError(t, err)
	_, err = coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// Derived snapshots re-arm inherited hooks
	derived := coll.LimitBy(10)
	_, err = derived.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fired)
}

func TestFilterCompileErrorBeforeExecution(t *testing.T) {
	coll, probe := newBookCollection(t)

	_, err := coll.Filter(expr.Equals("publisher.name", "x"))
	require.Error(t, err)

	var pathErr *types.UnresolvablePathError
	assert.ErrorAs(t, err, &pathErr)
	assert.Equal(t, 0, probe.queries)
}

func TestCallDispatch(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	count, err := coll.Call(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	result, err := coll.Call(ctx, "limitBy", 2)
	require.NoError(t, err)
	limited, ok := result.(*Collection)
	require.True(t, ok)
	entities, err := limited.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
}

func TestCallFetchVariants(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	filtered, err := coll.Filter(expr.Equals("title", "Second"))
	require.NoError(t, err)

	result, err := filtered.Call(ctx, "fetchOne")
	require.NoError(t, err)
	entity, ok := result.(types.Entity)
	require.True(t, ok)
	assert.Equal(t, "Second", entity["title"])

	empty, err := coll.Filter(expr.Equals("title", "Nope"))
	require.NoError(t, err)
	_, err = empty.Call(ctx, "fetchOneOrFail")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	result, err = coll.Call(ctx, "fetchPairs", "title", "price")
	require.NoError(t, err)
	pairs, ok := result.(map[any]any)
	require.True(t, ok)
	assert.Equal(t, 20.0, pairs["Second"])
}

func TestCallAggregates(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	sum, err := coll.Call(ctx, "sum", "price")
	require.NoError(t, err)
	assert.Equal(t, 100.0, sum)

	_, err = coll.Call(ctx, "sum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field argument")
}

func TestAggregateOverMaterializedEntities(t *testing.T) {
	coll, probe := newBookCollection(t)
	ctx := context.Background()

	_, err := coll.FetchAll(ctx)
	require.NoError(t, err)

	// The reducer folds the cached snapshot without another query
	sum, err := coll.Aggregate(ctx, "sum", "price")
	require.NoError(t, err)
	assert.Equal(t, 100.0, sum)
	assert.Equal(t, 1, probe.queries)

	min, err := coll.Aggregate(ctx, "min", "price")
	require.NoError(t, err)
	assert.Equal(t, 10.0, min)

	avg, err := coll.Aggregate(ctx, "avg", "price")
	require.NoError(t, err)
	assert.Equal(t, 25.0, avg)

	_, err = coll.Aggregate(ctx, "median", "price")
	require.Error(t, err)
}

func TestAggregateEmptyCollectionYieldsNil(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	empty, err := coll.Filter(expr.Equals("title", "Nope"))
	require.NoError(t, err)

	sum, err := empty.Aggregate(ctx, "sum", "price")
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestCallUnknownMember(t *testing.T) {
	coll, _ := newBookCollection(t)

	_, err := coll.Call(context.Background(), "explode")
	require.Error(t, err)

	var memberErr *types.MemberAccessError
	require.ErrorAs(t, err, &memberErr)
	assert.Contains(t, err.Error(), "explode")
}

func TestHydratorMapsColumnsToFieldNames(t *testing.T) {
	coll, _ := newBookCollection(t)
	ctx := context.Background()

	entity, err := coll.FetchOne(ctx, expr.Equals("title", "First"))
	require.NoError(t, err)
	require.NotNil(t, entity)

	assert.Equal(t, int64(2), entity["nextPartId"])
	_, hasRaw := entity["next_part_id"]
	assert.False(t, hasRaw)
}
