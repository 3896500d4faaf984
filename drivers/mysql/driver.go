package mysql

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rediwo/redi-collection/registry"
	"github.com/rediwo/redi-collection/types"
)

func init() {
	registry.Register(open, Capabilities{})
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Capabilities describes the MySQL dialect
type Capabilities struct{}

func (Capabilities) QuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", name)
}

func (Capabilities) GetPlaceholder(index int) string {
	return "?"
}

func (Capabilities) GetBooleanLiteral(value bool) string {
	if value {
		return "TRUE"
	}
	return "FALSE"
}

func (Capabilities) RequiresLimitForOffset() bool {
	return true
}

func (Capabilities) GetDriverType() types.DriverType {
	return types.DriverMySQL
}

func (Capabilities) GetSupportedSchemes() []string {
	return []string{"mysql"}
}
