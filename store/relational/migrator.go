package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
)

// ensureTable runs a create-if-absent CREATE TABLE for model, grounded on
// the teacher's drivers/sqlite/driver.go CreateTable (column-by-column SQL
// assembly) generalized across dialects via Dialect.ColumnType. Foreign
// keys are declared inline with their ON DELETE action per §6.4; indexes
// follow in a second pass so a self-referencing or forward-referencing FK
// never blocks the CREATE TABLE itself.
func ensureTable(ctx context.Context, db *sql.DB, dialect Dialect, model *schema.CompiledModel) error {
	var cols []string
	for _, f := range model.Fields {
		col := fmt.Sprintf("%s %s", f.ColumnName, dialect.ColumnType(f.Type))
		if f.PrimaryKey || f.Name == model.PrimaryKeyName {
			col += " PRIMARY KEY"
			if model.PrimaryKeyType == schema.PKInt64 && dialect.Name() != "mysql" {
				col += " AUTOINCREMENT"
			} else if model.PrimaryKeyType == schema.PKInt64 && dialect.Name() == "mysql" {
				col += " AUTO_INCREMENT"
			}
		} else if !f.Nullable {
			col += " NOT NULL"
		}
		if f.Unique {
			col += " UNIQUE"
		}
		if f.ForeignKey != "" {
			col += fmt.Sprintf(" REFERENCES %s", strings.Replace(f.ForeignKey, ".", "(", 1)+")")
			if f.OnDelete != "" {
				col += " ON DELETE " + onDeleteSQL(f.OnDelete)
			}
		}
		cols = append(cols, col)
	}

	for name, rel := range model.Relations {
		if rel.Cardinality != schema.One || rel.IsManyToMany() {
			continue
		}
		fkCol := rel.TargetColumn
		if fkCol == "" {
			fkCol = schema.CamelToSnakeCase(name) + "_id"
		}
		col := fkCol + " " + dialect.ColumnType(schema.TypeReference)
		switch {
		case rel.CascadeDelete:
			col += fmt.Sprintf(" REFERENCES %s ON DELETE CASCADE", rel.Target)
		case rel.PassiveDeletes:
			// no FK-level action: the application is trusted to clean up
			// children itself (§4.1 passiveDeletes).
			col += fmt.Sprintf(" REFERENCES %s", rel.Target)
		default:
			col += fmt.Sprintf(" REFERENCES %s ON DELETE RESTRICT", rel.Target)
		}
		cols = append(cols, col)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", model.TableName, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return errs.BackendUnavailable("relational", err)
	}
	return ensureIndexes(ctx, db, model)
}

func ensureIndexes(ctx context.Context, db *sql.DB, model *schema.CompiledModel) error {
	for _, f := range model.Fields {
		if !f.Indexed {
			continue
		}
		idxName := fmt.Sprintf("idx_%s_%s", model.TableName, f.ColumnName)
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idxName, model.TableName, f.ColumnName)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errs.BackendUnavailable("relational", err)
		}
	}
	return nil
}

func onDeleteSQL(a schema.OnDeleteAction) string {
	switch a {
	case schema.OnDeleteCascade:
		return "CASCADE"
	case schema.OnDeleteSetNull:
		return "SET NULL"
	default:
		return "RESTRICT"
	}
}
