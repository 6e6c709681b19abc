package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database/sql driver names
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Placeholder is a bind-parameter style
type Placeholder int

const (
	// Dollar numbers parameters: $1, $2
	Dollar Placeholder = iota
	// Question uses ? for every parameter
	Question
)

// Arg returns the placeholder for the n-th (1-based) parameter
func (p Placeholder) Arg(n int) string {
	if p == Question {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// PlaceholderFor returns the bind style of a driver
func PlaceholderFor(driver string) Placeholder {
	if driver == DriverSQLite {
		return Question
	}
	return Dollar
}

// Open opens and pings a database with one of the supported drivers
func Open(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverPgx, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q (expected pgx, postgres or sqlite3)", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// in-memory databases exist per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// DescribeError renders driver errors with their SQLSTATE or result code
func DescribeError(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Sprintf("%s (SQLSTATE %s)", pqErr.Message, pqErr.Code)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return fmt.Sprintf("%s (sqlite code %d)", liteErr.Error(), int(liteErr.Code))
	}

	return err.Error()
}
