package collection

import (
	"github.com/rediwo/redi-collection/schema"
	"github.com/rediwo/redi-collection/types"
)

// schemaHydrator is the default hydrator: raw column names map back to the
// schema's field names, columns without a schema field pass through as-is
type schemaHydrator struct {
	schema *schema.Schema
}

func (h *schemaHydrator) Hydrate(row map[string]any) (types.Entity, error) {
	entity := make(types.Entity, len(row))
	for column, value := range row {
		fieldName, err := h.schema.GetFieldNameByColumnName(column)
		if err != nil {
			entity[column] = value
			continue
		}
		entity[fieldName] = value
	}
	return entity, nil
}
