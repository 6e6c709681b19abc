package schema

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redcapp/redcapp/internal/codec"
	"github.com/redcapp/redcapp/internal/metadata"
)

func testIndex(t *testing.T, extra ...metadata.Metadatum) *metadata.Index {
	t.Helper()
	rows := []metadata.Metadatum{
		{FieldName: "record_id", FormName: "enrolment", FieldType: "text"},
		{FieldName: "dob", FormName: "enrolment", FieldType: "text", ValidationType: "date_ymd"},
		{FieldName: "sex", FormName: "enrolment", FieldType: "radio", SelectChoices: "1, F | 2, M"},
		{FieldName: "weight", FormName: "vitals", FieldType: "text", ValidationType: "number_2dp",
			BranchingLogic: "[sex] = '1' and [dob] <> ''"},
		{FieldName: "visits", FormName: "vitals", FieldType: "text", ValidationType: "integer",
			BranchingLogic: "[consent(2)] >= 1"},
		{FieldName: "seen_at", FormName: "vitals", FieldType: "text", ValidationType: "datetime_seconds_dmy"},
		{FieldName: "consent", FormName: "", FieldType: "checkbox", SelectChoices: "1, A | 2, B"},
	}
	rows = append(rows, extra...)

	var names []metadata.FieldName
	for _, r := range rows {
		names = append(names, metadata.FieldName{ExportFieldName: r.FieldName, OriginalFieldName: r.FieldName})
	}

	idx, err := metadata.New(rows, names)
	require.NoError(t, err)
	return idx
}

func TestMigrationGroupedByFieldType(t *testing.T) {
	idx := testIndex(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, idx, TargetSchemaMigration, Options{}))

	expected := `-- redcapp schema migration
-- grouped by field_type, dialect generic

CREATE TABLE IF NOT EXISTS "checkbox"();
ALTER TABLE "checkbox" ADD COLUMN IF NOT EXISTS "consent" TEXT;

CREATE TABLE IF NOT EXISTS "radio"();
ALTER TABLE "radio" ADD COLUMN IF NOT EXISTS "sex" TEXT;

CREATE TABLE IF NOT EXISTS "text"();
ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "record_id" TEXT;
ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "dob" DATE;
ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "weight" FLOAT;
ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "visits" INT;
ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "seen_at" DATETIME;
`
	assert.Equal(t, expected, buf.String())
}

func TestMigrationIsDeterministic(t *testing.T) {
	idx := testIndex(t)
	opts := Options{SchemaName: "study", GroupBy: "form_name", Dialect: DialectPostgres}

	var first, second bytes.Buffer
	require.NoError(t, Write(&first, idx, TargetSchemaMigration, opts))

	// resolving fields between runs must not change the output
	_, err := idx.Get("weight")
	require.NoError(t, err)

	require.NoError(t, Write(&second, idx, TargetSchemaMigration, opts))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestMigrationSchemaAndGroupBy(t *testing.T) {
	idx := testIndex(t)

	var buf bytes.Buffer
	err := Write(&buf, idx, TargetSchemaMigration, Options{
		SchemaName: "study",
		GroupBy:    "form_name",
		Dialect:    DialectPostgres,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `CREATE SCHEMA IF NOT EXISTS "study";`)
	assert.Contains(t, out, `CREATE TABLE IF NOT EXISTS "study"."enrolment"();`)
	assert.Contains(t, out, `ALTER TABLE "study"."vitals" ADD COLUMN IF NOT EXISTS "seen_at" TIMESTAMP;`)
	assert.Contains(t, out, `ALTER TABLE "study"."vitals" ADD COLUMN IF NOT EXISTS "visits" BIGINT;`)
	assert.Contains(t, out, `ALTER TABLE "study"."_ungrouped" ADD COLUMN IF NOT EXISTS "consent" TEXT;`)

	// groups sort by key, and the blank key sorts first
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"_ungrouped"();`)), bytes.Index(buf.Bytes(), []byte(`"enrolment"();`)))
	assert.Less(t, bytes.Index(buf.Bytes(), []byte(`"enrolment"();`)), bytes.Index(buf.Bytes(), []byte(`"vitals"();`)))
}

func TestMigrationSQLiteDialect(t *testing.T) {
	idx := testIndex(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, idx, TargetSchemaMigration, Options{Dialect: DialectSQLite}))
	assert.Contains(t, buf.String(), `CREATE TABLE IF NOT EXISTS "text" ("_row_id" INTEGER PRIMARY KEY);`)
	assert.Contains(t, buf.String(), `ALTER TABLE "text" ADD COLUMN "visits" INTEGER;`)

	err := Write(&buf, idx, TargetSchemaMigration, Options{Dialect: DialectSQLite, SchemaName: "study"})
	assert.True(t, errors.Is(err, ErrSchemaUnsupported))
}

func TestMigrationInvalidOptions(t *testing.T) {
	idx := testIndex(t)

	var buf bytes.Buffer
	err := Write(&buf, idx, TargetSchemaMigration, Options{GroupBy: "not_a_column"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_a_column")

	err = Write(&buf, idx, TargetSchemaMigration, Options{Dialect: "oracle"})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestMigrationUnknownValidationType(t *testing.T) {
	idx := testIndex(t,
		metadata.Metadatum{FieldName: "odd", FieldType: "text", ValidationType: "time_hh_mm_ss"},
		metadata.Metadatum{FieldName: "mrn", FieldType: "text", ValidationType: "mrn_10d"},
	)

	var buf bytes.Buffer
	err := Write(&buf, idx, TargetSchemaMigration, Options{Dialect: DialectPostgres})
	require.Error(t, err)
	assert.True(t, IsFieldErrors(err))
	assert.True(t, codec.IsUnknownValidationType(err))

	var errs metadata.CastErrors
	require.True(t, errors.As(err, &errs))
	assert.Equal(t, []string{"mrn", "odd"}, errs.Fields())

	// the rest of the script is still written, unknown types as TEXT
	out := buf.String()
	assert.Contains(t, out, `ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "dob" DATE;`)
	assert.Contains(t, out, `ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "seen_at" TIMESTAMP;`)
	assert.Contains(t, out, `ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "odd" TEXT;`)
	assert.Contains(t, out, `ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "mrn" TEXT;`)
	assert.Contains(t, out, `ALTER TABLE "radio" ADD COLUMN IF NOT EXISTS "sex" TEXT;`)
}

func TestMigrationRejectsUngroupedCollision(t *testing.T) {
	idx := testIndex(t, metadata.Metadatum{FieldName: "odd", FormName: UngroupedTable, FieldType: "text"})

	var buf bytes.Buffer
	err := Write(&buf, idx, TargetSchemaMigration, Options{GroupBy: "form_name"})
	require.Error(t, err)
	assert.False(t, IsFieldErrors(err))
	assert.Contains(t, err.Error(), "reserved")

	// without blank keys the name is an ordinary group
	buf.Reset()
	err = Write(&buf, testIndex(t), TargetSchemaMigration, Options{GroupBy: "field_type"})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), UngroupedTable)
}

func TestFlatExportDumpsLogicWithoutMutatingIndex(t *testing.T) {
	idx := testIndex(t)

	resolved, err := idx.Get("weight")
	require.NoError(t, err)
	hostForm := resolved.BranchingLogic

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, idx, TargetFlatExport, Options{}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 8)
	assert.Equal(t, metadata.Columns, records[0])

	logicCol := 11
	assert.Equal(t, "branching_logic", records[0][logicCol])
	assert.Equal(t, "[sex] = '1' and [dob] <> ''", records[4][logicCol])
	assert.Equal(t, "[consent(2)] >= 1", records[5][logicCol])
	assert.Equal(t, "number_2dp", records[4][7])

	again, err := idx.Get("weight")
	require.NoError(t, err)
	assert.Same(t, resolved, again)
	assert.Equal(t, hostForm, again.BranchingLogic)
	assert.True(t, idx.Rows()[3].Translated)
	assert.False(t, idx.Rows()[4].Translated)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	idx := testIndex(t)

	path := filepath.Join(dir, "schema.sql")
	require.NoError(t, WriteFile(path, idx, TargetSchemaMigration, Options{}))

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, idx, TargetSchemaMigration, Options{}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), data)
}

func TestWriteFileRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	bad := testIndex(t, metadata.Metadatum{FieldName: "odd", FormName: UngroupedTable, FieldType: "text"})

	path := filepath.Join(dir, "schema.sql")
	err := WriteFile(path, bad, TargetSchemaMigration, Options{GroupBy: "form_name"})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	err = WriteFile(filepath.Join(dir, "missing", "x.csv"), bad, TargetFlatExport, Options{})
	assert.Error(t, err)
}

func TestWriteFileKeepsScriptWithFieldErrors(t *testing.T) {
	idx := testIndex(t, metadata.Metadatum{FieldName: "odd", FieldType: "text", ValidationType: "bogus"})

	path := filepath.Join(t.TempDir(), "schema.sql")
	err := WriteFile(path, idx, TargetSchemaMigration, Options{})
	require.Error(t, err)
	assert.True(t, IsFieldErrors(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ALTER TABLE "text" ADD COLUMN IF NOT EXISTS "odd" TEXT;`)
}

func TestParseTargetAndDialect(t *testing.T) {
	target, err := ParseTarget("flat")
	require.NoError(t, err)
	assert.Equal(t, TargetFlatExport, target)

	target, err = ParseTarget("SQL")
	require.NoError(t, err)
	assert.Equal(t, TargetSchemaMigration, target)
	assert.Equal(t, "migration", target.String())

	_, err = ParseTarget("xml")
	assert.Error(t, err)

	d, err := ParseDialect("")
	require.NoError(t, err)
	assert.Equal(t, DialectGeneric, d)

	d, err = ParseDialect("Postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)

	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}
