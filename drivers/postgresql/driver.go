package postgresql

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/rediwo/redi-collection/registry"
	"github.com/rediwo/redi-collection/types"
)

func init() {
	registry.Register(open, Capabilities{})
}

func open(dsn string) (*sql.DB, error) {
	// lib/pq accepts full postgres:// URIs, restore the scheme prefix
	db, err := sql.Open("postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Capabilities describes the PostgreSQL dialect
type Capabilities struct{}

func (Capabilities) QuoteIdentifier(name string) string {
	return fmt.Sprintf(`"%s"`, name)
}

func (Capabilities) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (Capabilities) GetBooleanLiteral(value bool) string {
	if value {
		return "TRUE"
	}
	return "FALSE"
}

func (Capabilities) RequiresLimitForOffset() bool {
	return false
}

func (Capabilities) GetDriverType() types.DriverType {
	return types.DriverPostgreSQL
}

func (Capabilities) GetSupportedSchemes() []string {
	return []string{"postgresql", "postgres"}
}
