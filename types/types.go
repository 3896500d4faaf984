package types

import (
	"context"
	"database/sql"
)

// Order represents sort direction
type Order string

const (
	ASC  Order = "ASC"
	DESC Order = "DESC"
)

// Entity is a hydrated record keyed by schema field name
type Entity map[string]any

// Connection executes SQL against the backing database. Errors returned by
// the connection are propagated to callers unmodified.
type Connection interface {
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Hydrator constructs an entity from a raw column-name → value row
type Hydrator interface {
	Hydrate(row map[string]any) (Entity, error)
}

// DriverType identifies a supported database backend
type DriverType string

const (
	DriverSQLite     DriverType = "sqlite"
	DriverMySQL      DriverType = "mysql"
	DriverPostgreSQL DriverType = "postgresql"
)

// DriverCapabilities captures the dialect-specific conventions owned by a
// driver: quoting, placeholders and boolean literals.
type DriverCapabilities interface {
	QuoteIdentifier(name string) string
	GetPlaceholder(index int) string
	GetBooleanLiteral(value bool) string
	RequiresLimitForOffset() bool
	GetDriverType() DriverType
	GetSupportedSchemes() []string
}
