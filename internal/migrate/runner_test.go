package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testScript = `CREATE TABLE IF NOT EXISTS "text" ("_row_id" INTEGER PRIMARY KEY);
ALTER TABLE "text" ADD COLUMN "dob" TEXT;
ALTER TABLE "text" ADD COLUMN "visits" INTEGER;
`

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunner_ApplyRecordsMigration(t *testing.T) {
	ctx := context.Background()
	db := setupSQLite(t)
	runner := NewRunner(db, Question, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, runner.Initialize(ctx))

	m := NewMigration("schema.sql", testScript)
	applied, err := runner.Apply(ctx, m)
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = db.Exec(`INSERT INTO "text" ("dob", "visits") VALUES ('2020-02-01', 3)`)
	require.NoError(t, err)

	history, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, m.ID, history[0].ID)
	assert.Equal(t, "schema.sql", history[0].Name)
	assert.Equal(t, m.Checksum, history[0].Checksum)
	assert.False(t, history[0].AppliedAt.IsZero())
}

func TestRunner_ApplySkipsKnownChecksum(t *testing.T) {
	ctx := context.Background()
	db := setupSQLite(t)
	runner := NewRunner(db, Question)
	require.NoError(t, runner.Initialize(ctx))

	applied, err := runner.Apply(ctx, NewMigration("first.sql", testScript))
	require.NoError(t, err)
	assert.True(t, applied)

	// the sqlite script is not re-runnable, so a second execution would fail
	applied, err = runner.Apply(ctx, NewMigration("renamed.sql", testScript))
	require.NoError(t, err)
	assert.False(t, applied)

	history, err := runner.Applied(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRunner_FailedScriptIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	db := setupSQLite(t)
	runner := NewRunner(db, Question)
	require.NoError(t, runner.Initialize(ctx))

	_, err := runner.Apply(ctx, NewMigration("bad.sql", "ALTER TABLE missing ADD COLUMN x TEXT;"))
	require.Error(t, err)
	assert.Contains(t, DescribeError(err), "sqlite code")

	history, err := runner.Applied(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = runner.Apply(ctx, NewMigration("empty.sql", ""))
	assert.Error(t, err)
}

func TestRunner_ApplyFile(t *testing.T) {
	ctx := context.Background()
	db := setupSQLite(t)
	runner := NewRunner(db, Question)
	require.NoError(t, runner.Initialize(ctx))

	path := filepath.Join(t.TempDir(), "2024_schema.sql")
	require.NoError(t, os.WriteFile(path, []byte(testScript), 0o644))

	applied, err := runner.ApplyFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, applied)

	history, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "2024_schema.sql", history[0].Name)

	_, err = runner.ApplyFile(ctx, filepath.Join(t.TempDir(), "missing.sql"))
	assert.Error(t, err)
}

func TestRunner_RollsBackOnExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewMigration("schema.sql", "CREATE TABLE a();")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM redcapp_migrations WHERE checksum = $1")).
		WithArgs(m.Checksum).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a();")).
		WillReturnError(&pq.Error{Code: "42P07", Message: `relation "a" already exists`})
	mock.ExpectRollback()

	runner := NewRunner(db, Dollar)
	applied, err := runner.Apply(context.Background(), m)
	require.Error(t, err)
	assert.False(t, applied)
	assert.Equal(t, `relation "a" already exists (SQLSTATE 42P07)`, DescribeError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_RollsBackOnRecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewMigration("schema.sql", "CREATE TABLE a();")
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a();")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO redcapp_migrations (id, name, checksum, applied_at) VALUES ($1, $2, $3, $4)")).
		WithArgs(m.ID.String(), "schema.sql", m.Checksum, sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	runner := NewRunner(db, Dollar)
	_, err = runner.Apply(context.Background(), m)
	require.Error(t, err)
	assert.Equal(t, "duplicate key value (SQLSTATE 23505)", DescribeError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_CommitError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := NewMigration("schema.sql", "CREATE TABLE a();")
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO redcapp_migrations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	runner := NewRunner(db, Dollar)
	_, err = runner.Apply(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.Equal(t, err.Error(), DescribeError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_StatusQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("no such table"))

	runner := NewRunner(db, Dollar)
	_, err = runner.Apply(context.Background(), NewMigration("x.sql", "SELECT 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check migration status")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewMigrationChecksum(t *testing.T) {
	a := NewMigration("a.sql", "SELECT 1;")
	b := NewMigration("b.sql", "SELECT 1;")
	c := NewMigration("a.sql", "SELECT 2;")

	assert.Equal(t, a.Checksum, b.Checksum)
	assert.NotEqual(t, a.Checksum, c.Checksum)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.Checksum, 64)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3", Dollar.Arg(3))
	assert.Equal(t, "?", Question.Arg(3))
	assert.Equal(t, Question, PlaceholderFor(DriverSQLite))
	assert.Equal(t, Dollar, PlaceholderFor(DriverPgx))
	assert.Equal(t, Dollar, PlaceholderFor(DriverPostgres))

	_, err := Open("mysql", "")
	assert.Error(t, err)
}
