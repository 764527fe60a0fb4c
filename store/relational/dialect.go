// Package relational implements the relational Store driver (§4.5.1):
// database/sql against sqlite/postgres/mysql, using translate/relational's
// Condition tree for WHERE clauses and compile's CompiledModel for table
// shape.
//
// Grounded in the teacher's drivers/sqlite, drivers/postgresql,
// drivers/mysql packages (driver.go + capabilities.go + migrator.go each),
// generalized into one driver type parameterized by a Dialect rather than
// three near-duplicate driver structs, since the only real divergence
// between them (column types, RETURNING vs last-insert-id, regex syntax)
// is exactly what Dialect exists to isolate.
package relational

import (
	"fmt"

	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/translate/relational"
)

// Dialect isolates the handful of places sqlite/postgres/mysql SQL
// actually diverges, grounded in the teacher's drivers/*/capabilities.go
// (DriverCapabilities) and drivers/*/driver.go's CreateTable/fieldTypeToSQL.
type Dialect interface {
	Name() string
	DriverName() string // database/sql driver name, e.g. "sqlite3"
	Placeholder(argIndex int) string
	ColumnType(ft schema.FieldType) string
	SupportsReturning() bool
	SupportsRegexpFunction() bool
	TranslateDialect() relational.Dialect
}

// SQLite is the default dialect (§6.4's embedded-SQLite target).
// translate/relational emits regexp_match(...) calls for this dialect; this
// package registers no such function with the sqlite3 driver, so a regex
// predicate runs only on a connection that already provides it.
type SQLite struct{}

func (SQLite) Name() string                               { return "sqlite" }
func (SQLite) DriverName() string                          { return "sqlite3" }
func (SQLite) Placeholder(int) string                      { return "?" }
func (SQLite) SupportsReturning() bool                     { return true }
func (SQLite) SupportsRegexpFunction() bool                { return true }
func (SQLite) TranslateDialect() relational.Dialect        { return relational.DialectSQLite }
func (SQLite) ColumnType(ft schema.FieldType) string       { return sqlColumnType(ft, sqliteTypes) }

// Postgres targets lib/pq. Placeholders are positional ($1, $2, ...);
// RETURNING is native; regex uses the `~`/`~*` operators emitted directly
// by translate/relational, not a registered function.
type Postgres struct{}

func (Postgres) Name() string                        { return "postgres" }
func (Postgres) DriverName() string                  { return "postgres" }
func (Postgres) Placeholder(i int) string            { return fmt.Sprintf("$%d", i) }
func (Postgres) SupportsReturning() bool             { return true }
func (Postgres) SupportsRegexpFunction() bool        { return false }
func (Postgres) TranslateDialect() relational.Dialect { return relational.DialectPostgres }
func (Postgres) ColumnType(ft schema.FieldType) string { return sqlColumnType(ft, postgresTypes) }

// MySQL targets go-sql-driver/mysql. No RETURNING clause (MySQL lacks
// it), so Insert falls back to LAST_INSERT_ID()+refetch (§4.5.1 step 2's
// "falling back to a vendor IGNORE hint"); `REGEXP` is a native operator.
type MySQL struct{}

func (MySQL) Name() string                        { return "mysql" }
func (MySQL) DriverName() string                  { return "mysql" }
func (MySQL) Placeholder(int) string              { return "?" }
func (MySQL) SupportsReturning() bool             { return false }
func (MySQL) SupportsRegexpFunction() bool        { return false }
func (MySQL) TranslateDialect() relational.Dialect { return relational.DialectMySQL }
func (MySQL) ColumnType(ft schema.FieldType) string { return sqlColumnType(ft, mysqlTypes) }

var sqliteTypes = map[schema.FieldType]string{
	schema.TypeInt:       "INTEGER",
	schema.TypeFloat:     "REAL",
	schema.TypeString:    "TEXT",
	schema.TypeBool:      "BOOLEAN",
	schema.TypeTimestamp: "DATETIME",
	schema.TypeBytes:     "BLOB",
	schema.TypeJSON:      "TEXT",
	schema.TypeReference: "INTEGER",
}

var postgresTypes = map[schema.FieldType]string{
	schema.TypeInt:       "BIGINT",
	schema.TypeFloat:     "DOUBLE PRECISION",
	schema.TypeString:    "TEXT",
	schema.TypeBool:      "BOOLEAN",
	schema.TypeTimestamp: "TIMESTAMPTZ",
	schema.TypeBytes:     "BYTEA",
	schema.TypeJSON:      "JSONB",
	schema.TypeReference: "BIGINT",
}

var mysqlTypes = map[schema.FieldType]string{
	schema.TypeInt:       "BIGINT",
	schema.TypeFloat:     "DOUBLE",
	schema.TypeString:    "VARCHAR(255)",
	schema.TypeBool:      "TINYINT(1)",
	schema.TypeTimestamp: "DATETIME",
	schema.TypeBytes:     "BLOB",
	schema.TypeJSON:      "JSON",
	schema.TypeReference: "BIGINT",
}

func sqlColumnType(ft schema.FieldType, table map[schema.FieldType]string) string {
	if t, ok := table[ft]; ok {
		return t
	}
	return "TEXT"
}
