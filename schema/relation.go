package schema

import (
	"fmt"
	"strings"

	"github.com/rediwo/redi-collection/utils"
)

type RelationType string

const (
	RelationOneToOne   RelationType = "oneToOne"
	RelationOneToMany  RelationType = "oneToMany"
	RelationManyToOne  RelationType = "manyToOne"
	RelationManyToMany RelationType = "manyToMany"
)

// IsToMany reports whether traversing the relation can fan out to multiple
// rows of the target model
func (t RelationType) IsToMany() bool {
	return t == RelationOneToMany || t == RelationManyToMany
}

type Relation struct {
	Type       RelationType
	Model      string // Target model name
	ForeignKey string // Field holding the foreign key (side depends on Type)
	References string // Referenced field in the target model, "id" when empty
}

// GetJunctionTableName generates a junction table name for many-to-many
// relations. Model names are ordered alphabetically so both sides of the
// relation agree on the name.
func GetJunctionTableName(modelA, modelB string) string {
	if modelA == modelB {
		tableA := ModelNameToTableName(modelA)
		return utils.Singularize(tableA) + "_" + tableA
	}

	first, second := modelA, modelB
	if strings.ToLower(modelA) > strings.ToLower(modelB) {
		first, second = modelB, modelA
	}

	return utils.Singularize(ModelNameToTableName(first)) + "_" + ModelNameToTableName(second)
}

// JunctionColumn returns the junction-table column referencing the given
// model (e.g. Book -> book_id)
func JunctionColumn(modelName string) string {
	return utils.ToSnakeCase(modelName) + "_id"
}

// ValidateRelation checks a relation definition against both schemas
func ValidateRelation(relation *Relation, currentModel, relatedModel *Schema) error {
	if relatedModel == nil {
		return fmt.Errorf("related model %s not found", relation.Model)
	}

	switch relation.Type {
	case RelationManyToOne:
		if _, err := currentModel.GetField(relation.ForeignKey); err != nil {
			return fmt.Errorf("foreign key field %s not found in model %s", relation.ForeignKey, currentModel.Name)
		}

	case RelationOneToMany:
		if _, err := relatedModel.GetField(relation.ForeignKey); err != nil {
			return fmt.Errorf("foreign key field %s not found in model %s", relation.ForeignKey, relatedModel.Name)
		}

	case RelationOneToOne:
		_, errCurrent := currentModel.GetField(relation.ForeignKey)
		_, errRelated := relatedModel.GetField(relation.ForeignKey)
		if errCurrent != nil && errRelated != nil {
			return fmt.Errorf("foreign key field %s not found in either model", relation.ForeignKey)
		}

	case RelationManyToMany:
		// No direct foreign key, traversal goes through the junction table

	default:
		return fmt.Errorf("unknown relation type: %s", relation.Type)
	}

	if relation.References != "" {
		if _, err := relatedModel.GetField(relation.References); err != nil {
			return fmt.Errorf("references field %s not found in model %s", relation.References, relatedModel.Name)
		}
	}

	return nil
}
