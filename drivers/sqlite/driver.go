package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rediwo/redi-collection/registry"
	"github.com/rediwo/redi-collection/types"
)

func init() {
	registry.Register(open, Capabilities{})
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Capabilities describes the SQLite dialect
type Capabilities struct{}

func (Capabilities) QuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", name)
}

func (Capabilities) GetPlaceholder(index int) string {
	return "?"
}

func (Capabilities) GetBooleanLiteral(value bool) string {
	if value {
		return "1"
	}
	return "0"
}

func (Capabilities) RequiresLimitForOffset() bool {
	return true
}

func (Capabilities) GetDriverType() types.DriverType {
	return types.DriverSQLite
}

func (Capabilities) GetSupportedSchemes() []string {
	return []string{"sqlite", "sqlite3"}
}
