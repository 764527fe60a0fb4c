package relational

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
)

type fakeResolver map[string]*schema.CompiledModel

func (r fakeResolver) Compiled(name string) (*schema.CompiledModel, error) {
	m, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("model %q not registered", name)
	}
	return m, nil
}

func user() *schema.CompiledModel {
	return &schema.CompiledModel{
		Backend:        schema.Relational,
		Name:           "User",
		TableName:      "users",
		PrimaryKeyName: "id",
		PrimaryKeyType: schema.PKInt64,
		Fields: []schema.CompiledField{
			{FieldSpec: schema.FieldSpec{Name: "id", Type: schema.TypeInt, PrimaryKey: true}, ColumnName: "id"},
			{FieldSpec: schema.FieldSpec{Name: "firstName", Type: schema.TypeString}, ColumnName: "first_name"},
			{FieldSpec: schema.FieldSpec{Name: "age", Type: schema.TypeInt}, ColumnName: "age"},
		},
		Relations: map[string]schema.CompiledRelation{
			"org": {RelationSpec: schema.RelationSpec{Target: "Org", Cardinality: schema.One}, TargetColumn: ""},
		},
	}
}

func org() *schema.CompiledModel {
	return &schema.CompiledModel{
		Backend:        schema.Relational,
		Name:           "Org",
		TableName:      "orgs",
		PrimaryKeyName: "id",
		PrimaryKeyType: schema.PKInt64,
		Fields: []schema.CompiledField{
			{FieldSpec: schema.FieldSpec{Name: "id", Type: schema.TypeInt, PrimaryKey: true}, ColumnName: "id"},
			{FieldSpec: schema.FieldSpec{Name: "name", Type: schema.TypeString}, ColumnName: "name"},
		},
	}
}

func resolver() fakeResolver {
	return fakeResolver{"User": user(), "Org": org()}
}

func TestTranslateEqEmitsPlaceholder(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"firstName": "Ada"})
	require.NoError(t, err)

	f, warnings, err := Translate(user(), resolver(), sel)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	sql, args := f.ToSQL()
	assert.Contains(t, sql, "first_name = ?")
	require.Len(t, args, 1)
	assert.Equal(t, "Ada", args[0])
}

func TestTranslateEqNullEmitsIsNull(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"firstName": nil})
	require.NoError(t, err)

	f, _, err := Translate(user(), resolver(), sel)
	require.NoError(t, err)

	sql, args := f.ToSQL()
	assert.Contains(t, sql, "IS NULL")
	assert.Empty(t, args)
}

func TestTranslateNorBecomesNotOr(t *testing.T) {
	sel, err := selector.Parse(map[string]any{
		"$nor": []any{
			map[string]any{"age": map[string]any{"$lt": 18}},
			map[string]any{"age": map[string]any{"$gt": 65}},
		},
	})
	require.NoError(t, err)

	f, _, err := Translate(user(), resolver(), sel)
	require.NoError(t, err)

	sql, _ := f.ToSQL()
	assert.Regexp(t, `^\(NOT \(`, sql, "expected NOT-wrapped OR inside the root's grouping parenthesis")
	assert.Contains(t, sql, " OR ")
}

func TestTranslateRelationHopRecordedOnce(t *testing.T) {
	sel, err := selector.Parse(map[string]any{
		"$and": []any{
			map[string]any{"org.name": "Acme"},
			map[string]any{"org.name": map[string]any{"$ne": "Globex"}},
		},
	})
	require.NoError(t, err)

	f, _, err := Translate(user(), resolver(), sel)
	require.NoError(t, err)

	require.Len(t, f.Hops, 1, "expected exactly one deduplicated hop")
	assert.Equal(t, "org", f.Hops[0].Relation)
	assert.Equal(t, "orgs", f.Hops[0].TargetTable)
}

func TestTranslateUnknownFieldIsTranslationError(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"nope": "x"})
	require.NoError(t, err)

	_, _, err = Translate(user(), resolver(), sel)
	require.Error(t, err)
}

func TestTranslateDialectRegex(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"firstName": map[string]any{"$regex": "^A", "$options": "i"}})
	require.NoError(t, err)

	cases := []struct {
		dialect Dialect
		want    string
	}{
		{DialectSQLite, "regexp_match("},
		{DialectPostgres, "~*"},
		{DialectMySQL, "REGEXP"},
	}
	for _, tc := range cases {
		t.Run(string(tc.dialect), func(t *testing.T) {
			f, _, err := TranslateDialect(user(), resolver(), sel, tc.dialect)
			require.NoError(t, err)

			sql, _ := f.ToSQL()
			assert.Contains(t, sql, tc.want)
		})
	}
}

func TestTranslateBackendOnlyOperatorWarns(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"firstName": map[string]any{"$exists": true}})
	require.NoError(t, err)

	f, warnings, err := Translate(user(), resolver(), sel)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	sql, _ := f.ToSQL()
	assert.Empty(t, sql, "expected no SQL emitted for backend-only operator")
}
