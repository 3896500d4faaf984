package types

import (
	"fmt"

	"github.com/rediwo/redi-collection/schema"
)

// MetadataProvider resolves model names to their schemas. The expression
// compiler consults it for relationship and column resolution.
type MetadataProvider interface {
	GetModelSchema(modelName string) (*schema.Schema, error)
}

// SchemaRegistry is an in-memory MetadataProvider
type SchemaRegistry struct {
	schemas map[string]*schema.Schema
}

// NewSchemaRegistry creates an empty schema registry
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*schema.Schema)}
}

// Register registers a schema under its model name
func (r *SchemaRegistry) Register(s *schema.Schema) *SchemaRegistry {
	r.schemas[s.Name] = s
	return r
}

// GetModelSchema returns a registered schema
func (r *SchemaRegistry) GetModelSchema(modelName string) (*schema.Schema, error) {
	s, exists := r.schemas[modelName]
	if !exists {
		return nil, fmt.Errorf("schema for model '%s' not registered", modelName)
	}
	return s, nil
}

// Models returns the registered model names
func (r *SchemaRegistry) Models() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	return names
}
