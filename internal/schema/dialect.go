package schema

import (
	"fmt"
	"strings"

	"github.com/redcapp/redcapp/internal/codec"
)

// Dialect selects the SQL flavour a migration script is written in
type Dialect string

const (
	// DialectGeneric writes storage kind names verbatim
	DialectGeneric Dialect = "generic"
	// DialectPostgres writes PostgreSQL column types
	DialectPostgres Dialect = "postgres"
	// DialectSQLite writes SQLite column types. SQLite has no schemas and no
	// zero-column tables, so each table gets a surrogate row id column.
	DialectSQLite Dialect = "sqlite"
)

// sqliteRowID is the surrogate key every SQLite table is created with
const sqliteRowID = "_row_id"

// Dialects lists every supported dialect
var Dialects = []Dialect{DialectGeneric, DialectPostgres, DialectSQLite}

var postgresTypes = map[codec.StorageKind]string{
	codec.KindText:     "TEXT",
	codec.KindDate:     "DATE",
	codec.KindDateTime: "TIMESTAMP",
	codec.KindTime:     "TIME",
	codec.KindInt:      "BIGINT",
	codec.KindFloat:    "NUMERIC",
}

var sqliteTypes = map[codec.StorageKind]string{
	codec.KindText:     "TEXT",
	codec.KindDate:     "TEXT",
	codec.KindDateTime: "TEXT",
	codec.KindTime:     "TEXT",
	codec.KindInt:      "INTEGER",
	codec.KindFloat:    "NUMERIC",
}

// ParseDialect validates a dialect name. Empty selects DialectGeneric.
func ParseDialect(name string) (Dialect, error) {
	if name == "" {
		return DialectGeneric, nil
	}
	d := Dialect(strings.ToLower(name))
	for _, known := range Dialects {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dialect %q (expected generic, postgres or sqlite)", name)
}

// ColumnType maps a storage kind to the dialect's column type
func (d Dialect) ColumnType(kind codec.StorageKind) string {
	switch d {
	case DialectPostgres:
		return postgresTypes[kind]
	case DialectSQLite:
		return sqliteTypes[kind]
	default:
		return kind.String()
	}
}

// SupportsSchemas reports whether tables can be qualified by a schema name
func (d Dialect) SupportsSchemas() bool {
	return d != DialectSQLite
}

func (d Dialect) createSchema(schema string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", QuoteIdentifier(schema))
}

func (d Dialect) createTable(table string) string {
	if d == DialectSQLite {
		return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY);", table, QuoteIdentifier(sqliteRowID))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s();", table)
}

func (d Dialect) addColumn(table, column, columnType string) string {
	if d == DialectSQLite {
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, QuoteIdentifier(column), columnType)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s;", table, QuoteIdentifier(column), columnType)
}

// QuoteIdentifier quotes a SQL identifier, doubling embedded quotes
func QuoteIdentifier(identifier string) string {
	escaped := strings.ReplaceAll(identifier, `"`, `""`)
	return fmt.Sprintf(`"%s"`, escaped)
}
