package schema

import (
	"fmt"

	"github.com/rediwo/redi-collection/utils"
)

type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInt      FieldType = "int"
	FieldTypeInt64    FieldType = "int64"
	FieldTypeFloat    FieldType = "float"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDateTime FieldType = "datetime"
	FieldTypeDecimal  FieldType = "decimal"
)

type Field struct {
	Name       string
	Type       FieldType
	PrimaryKey bool
	Nullable   bool
	Unique     bool
	Default    any
	Map        string // Column name mapping, overrides the naming convention
}

// GetColumnName returns the actual database column name for this field
func (f Field) GetColumnName() string {
	if f.Map != "" {
		return f.Map
	}
	return utils.ToSnakeCase(f.Name)
}

type Schema struct {
	Name      string
	TableName string
	Fields    []Field
	Relations map[string]Relation
}

func New(name string) *Schema {
	return &Schema{
		Name:      name,
		TableName: ModelNameToTableName(name),
		Fields:    []Field{},
		Relations: make(map[string]Relation),
	}
}

// ModelNameToTableName converts a model name to its default table name
// (pluralized, snake_case)
func ModelNameToTableName(modelName string) string {
	return utils.Pluralize(utils.ToSnakeCase(modelName))
}

func (s *Schema) WithTableName(name string) *Schema {
	s.TableName = name
	return s
}

func (s *Schema) AddField(field Field) *Schema {
	s.Fields = append(s.Fields, field)
	return s
}

func (s *Schema) AddRelation(name string, relation Relation) *Schema {
	s.Relations[name] = relation
	return s
}

// GetTableName returns the storage table name
func (s *Schema) GetTableName() string {
	return s.TableName
}

// GetField looks up a field by its schema name
func (s *Schema) GetField(fieldName string) (*Field, error) {
	for i := range s.Fields {
		if s.Fields[i].Name == fieldName {
			return &s.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("field %s not found in model %s", fieldName, s.Name)
}

// HasField reports whether the schema declares the given field
func (s *Schema) HasField(fieldName string) bool {
	_, err := s.GetField(fieldName)
	return err == nil
}

// GetRelation looks up a relation by name
func (s *Schema) GetRelation(name string) (Relation, error) {
	relation, exists := s.Relations[name]
	if !exists {
		return Relation{}, fmt.Errorf("relation %s not found in model %s", name, s.Name)
	}
	return relation, nil
}

// HasRelation reports whether the schema declares the given relation
func (s *Schema) HasRelation(name string) bool {
	_, exists := s.Relations[name]
	return exists
}

// GetColumnNameByFieldName maps a schema field name to its column name
func (s *Schema) GetColumnNameByFieldName(fieldName string) (string, error) {
	field, err := s.GetField(fieldName)
	if err != nil {
		return "", err
	}
	return field.GetColumnName(), nil
}

// GetFieldNameByColumnName maps a column name back to its schema field name
func (s *Schema) GetFieldNameByColumnName(columnName string) (string, error) {
	for _, field := range s.Fields {
		if field.GetColumnName() == columnName {
			return field.Name, nil
		}
	}
	return "", fmt.Errorf("column %s not found in model %s", columnName, s.Name)
}

// PrimaryKeyFields returns the primary key fields in declaration order
func (s *Schema) PrimaryKeyFields() []Field {
	var pks []Field
	for _, field := range s.Fields {
		if field.PrimaryKey {
			pks = append(pks, field)
		}
	}
	return pks
}

// PrimaryKeyColumns returns the storage column names of the primary key
func (s *Schema) PrimaryKeyColumns() []string {
	fields := s.PrimaryKeyFields()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.GetColumnName()
	}
	return columns
}

// PrimaryKeyField returns the single primary key field, or an error when the
// schema has none or a composite key
func (s *Schema) PrimaryKeyField() (*Field, error) {
	pks := s.PrimaryKeyFields()
	if len(pks) != 1 {
		return nil, fmt.Errorf("model %s has %d primary key fields, expected 1", s.Name, len(pks))
	}
	return &pks[0], nil
}
