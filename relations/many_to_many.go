package relations

import (
	"context"
	"fmt"

	"github.com/rediwo/redi-collection/collection"
	"github.com/rediwo/redi-collection/schema"
	"github.com/rediwo/redi-collection/sqlbuilder"
	"github.com/rediwo/redi-collection/types"
	"github.com/rediwo/redi-collection/utils"
)

// ManyToMany fetches the targets linked to the parent through the junction
// table. The junction never surfaces as an entity, it only scopes the query.
type ManyToMany struct {
	Owner    *schema.Schema
	Relation schema.Relation
}

func (m *ManyToMany) Iterate(ctx context.Context, parent types.Entity, coll *collection.Collection) ([]types.Entity, error) {
	b, err := m.scope(parent, coll)
	if err != nil {
		return nil, err
	}

	rows, err := coll.Connection().Query(ctx, b.GetSQL(), b.GetParameters()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rawRows, err := utils.ScanRowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	entities := make([]types.Entity, 0, len(rawRows))
	for _, row := range rawRows {
		entity, err := coll.Hydrator().Hydrate(row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (m *ManyToMany) Count(ctx context.Context, parent types.Entity, coll *collection.Collection) (int, error) {
	b, err := m.scope(parent, coll)
	if err != nil {
		return 0, err
	}

	target := coll.Schema()
	targetPK, err := target.PrimaryKeyField()
	if err != nil {
		return 0, err
	}
	countExpr := target.GetTableName() + "." + targetPK.GetColumnName()

	rows, err := coll.Connection().Query(ctx, b.GetCountSQL(countExpr), b.GetParameters()...)
	if err != nil {
		return 0, err
	}
	return utils.ScanScalarInt(rows)
}

func (m *ManyToMany) scope(parent types.Entity, coll *collection.Collection) (*sqlbuilder.Builder, error) {
	target := coll.Schema()
	targetPK, err := target.PrimaryKeyField()
	if err != nil {
		return nil, err
	}

	ownerRef := referencesOrPK(m.Relation.References)
	parentKey, ok := parent[ownerRef]
	if !ok {
		return nil, fmt.Errorf("parent entity has no value for '%s'", ownerRef)
	}

	junction := schema.GetJunctionTableName(m.Owner.Name, m.Relation.Model)
	targetTable := target.GetTableName()

	b := sqlbuilder.New(targetTable)
	b.AddJoin(junction, sqlbuilder.JoinClause{
		Type:  sqlbuilder.InnerJoin,
		Table: junction,
		Alias: "jt",
		Condition: fmt.Sprintf("jt.%s = %s.%s",
			schema.JunctionColumn(m.Relation.Model), targetTable, targetPK.GetColumnName()),
	})
	b.AndWhere(fmt.Sprintf("jt.%s = ?", schema.JunctionColumn(m.Owner.Name)), parentKey)
	return b, nil
}
