package relations

import (
	"context"
	"fmt"

	"github.com/rediwo/redi-collection/collection"
	"github.com/rediwo/redi-collection/expr"
	"github.com/rediwo/redi-collection/schema"
	"github.com/rediwo/redi-collection/types"
)

// ForRelation selects the fetch strategy for a relation once, at bind time.
// The returned mapper drives all iteration and counting of the bound
// collection.
func ForRelation(owner *schema.Schema, relation schema.Relation) (collection.RelationshipMapper, error) {
	switch relation.Type {
	case schema.RelationOneToMany:
		return &HasMany{
			ForeignKey: relation.ForeignKey,
			References: referencesOrPK(relation.References),
		}, nil
	case schema.RelationManyToMany:
		return &ManyToMany{Owner: owner, Relation: relation}, nil
	case schema.RelationManyToOne, schema.RelationOneToOne:
		return &BelongsTo{
			ForeignKey: relation.ForeignKey,
			References: referencesOrPK(relation.References),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported relation type '%s'", relation.Type)
	}
}

func referencesOrPK(references string) string {
	if references == "" {
		return "id"
	}
	return references
}

// HasMany fetches children whose foreign key points at the parent. It runs
// through the collection's own pipeline, so filters, ordering and limits
// stacked on the bound collection still apply.
type HasMany struct {
	// ForeignKey is the child field holding the parent reference
	ForeignKey string
	// References is the parent field the foreign key points at
	References string
}

func (m *HasMany) Iterate(ctx context.Context, parent types.Entity, coll *collection.Collection) ([]types.Entity, error) {
	derived, err := m.scope(parent, coll)
	if err != nil {
		return nil, err
	}
	return derived.FetchAll(ctx)
}

func (m *HasMany) Count(ctx context.Context, parent types.Entity, coll *collection.Collection) (int, error) {
	derived, err := m.scope(parent, coll)
	if err != nil {
		return 0, err
	}
	return derived.CountStored(ctx)
}

func (m *HasMany) scope(parent types.Entity, coll *collection.Collection) (*collection.Collection, error) {
	value, ok := parent[m.References]
	if !ok {
		return nil, fmt.Errorf("parent entity has no value for '%s'", m.References)
	}
	return coll.Unbound().Filter(expr.Equals(m.ForeignKey, value))
}

// BelongsTo fetches the single owner the parent's foreign key points at. A
// NULL foreign key yields an empty sequence.
type BelongsTo struct {
	// ForeignKey is the field on the binding side holding the reference
	ForeignKey string
	// References is the target field being referenced
	References string
}

func (m *BelongsTo) Iterate(ctx context.Context, parent types.Entity, coll *collection.Collection) ([]types.Entity, error) {
	value, ok := parent[m.ForeignKey]
	if !ok || value == nil {
		return nil, nil
	}
	derived, err := coll.Unbound().Filter(expr.Equals(m.References, value))
	if err != nil {
		return nil, err
	}
	return derived.LimitBy(1).FetchAll(ctx)
}

func (m *BelongsTo) Count(ctx context.Context, parent types.Entity, coll *collection.Collection) (int, error) {
	entities, err := m.Iterate(ctx, parent, coll)
	if err != nil {
		return 0, err
	}
	return len(entities), nil
}
