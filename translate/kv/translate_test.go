package kv

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

func book() *schema.CompiledModel {
	return &schema.CompiledModel{
		Backend:   schema.Kv,
		Name:      "Book",
		TableName: "books",
		Fields: []schema.CompiledField{
			{FieldSpec: schema.FieldSpec{Name: "id", Type: schema.TypeString, PrimaryKey: true}, ColumnName: "id"},
			{FieldSpec: schema.FieldSpec{Name: "title", Type: schema.TypeString, Indexed: true}, ColumnName: "title"},
			{FieldSpec: schema.FieldSpec{Name: "year", Type: schema.TypeInt, Indexed: true}, ColumnName: "year"},
			{FieldSpec: schema.FieldSpec{Name: "summary", Type: schema.TypeString}, ColumnName: "summary"},
			{FieldSpec: schema.FieldSpec{Name: "authorId", Type: schema.TypeReference, Indexed: true}, ColumnName: "authorId"},
		},
		Relations: map[string]schema.CompiledRelation{
			"author": {RelationSpec: schema.RelationSpec{Target: "Author", Cardinality: schema.One}},
			"tags":   {RelationSpec: schema.RelationSpec{Target: "Tag", Cardinality: schema.Many}},
		},
	}
}

func author() *schema.CompiledModel {
	return &schema.CompiledModel{
		Backend:   schema.Kv,
		Name:      "Author",
		TableName: "authors",
		Fields: []schema.CompiledField{
			{FieldSpec: schema.FieldSpec{Name: "id", Type: schema.TypeString, PrimaryKey: true}, ColumnName: "id"},
			{FieldSpec: schema.FieldSpec{Name: "name", Type: schema.TypeString, Indexed: true}, ColumnName: "name"},
		},
	}
}

func tag() *schema.CompiledModel {
	return &schema.CompiledModel{
		Backend:   schema.Kv,
		Name:      "Tag",
		TableName: "tags",
		Fields: []schema.CompiledField{
			{FieldSpec: schema.FieldSpec{Name: "id", Type: schema.TypeString, PrimaryKey: true}, ColumnName: "id"},
			{FieldSpec: schema.FieldSpec{Name: "label", Type: schema.TypeString, Indexed: true}, ColumnName: "label"},
		},
	}
}

func resolver() fakeResolver {
	return fakeResolver{"Book": book(), "Author": author(), "Tag": tag()}
}

func TestTranslateEqOnIndexedField(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"year": 2020})
	require.NoError(t, err)

	f, warnings, err := Translate(book(), resolver(), sel)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.NotNil(t, f.Expr)
	require.Equal(t, ExprAnd, f.Expr.Kind)
	require.Len(t, f.Expr.Children, 1)

	cmp := f.Expr.Children[0]
	assert.Equal(t, ExprCmp, cmp.Kind)
	assert.Equal(t, "year", cmp.Field)
	assert.Equal(t, CmpEq, cmp.Op)
	assert.Equal(t, 2020, cmp.Value)
}

func TestTranslateRejectsUnindexedField(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"summary": "foo"})
	require.NoError(t, err)

	_, _, err = Translate(book(), resolver(), sel)
	require.Error(t, err)
}

func TestTranslateRegexUnsupported(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"title": map[string]any{"$regex": "^a"}})
	require.NoError(t, err)

	_, _, err = Translate(book(), resolver(), sel)
	require.Error(t, err)
}

func TestTranslateNullOnNonReferenceFieldRejected(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"title": nil})
	require.NoError(t, err)

	_, _, err = Translate(book(), resolver(), sel)
	require.Error(t, err, "expected translation error for $eq:null on non-reference field")
}

func TestTranslateNullOnReferenceFieldAllowed(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"authorId": nil})
	require.NoError(t, err)

	_, _, err = Translate(book(), resolver(), sel)
	require.NoError(t, err, "expected $eq:null on reference field to translate cleanly")
}

func TestTranslateCollectionRelationRejectsNonIn(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"tags.label": "golang"})
	require.NoError(t, err)

	_, _, err = Translate(book(), resolver(), sel)
	require.Error(t, err, "expected translation error crossing a Many relation with $eq")
}

func TestTranslateCollectionRelationAllowsIn(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"tags.label": map[string]any{"$in": []any{"golang", "redis"}}})
	require.NoError(t, err)

	f, _, err := Translate(book(), resolver(), sel)
	require.NoError(t, err, "expected $in across a Many relation to translate cleanly")

	cmp := f.Expr.Children[0]
	assert.Equal(t, CmpIn, cmp.Op)
	assert.Len(t, cmp.List, 2)
}

func TestTranslateOneToOneRelationEq(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"author.name": "Achebe"})
	require.NoError(t, err)

	_, _, err = Translate(book(), resolver(), sel)
	require.NoError(t, err, "expected eq across a One relation to translate cleanly")
}

func TestTranslateLogicalOr(t *testing.T) {
	sel, err := selector.Parse(map[string]any{
		"$or": []any{
			map[string]any{"year": 2020},
			map[string]any{"year": 2021},
		},
	})
	require.NoError(t, err)

	f, _, err := Translate(book(), resolver(), sel)
	require.NoError(t, err)

	or := f.Expr.Children[0]
	assert.Equal(t, ExprOr, or.Kind)
	assert.Len(t, or.Children, 2)
}

func TestTranslateBackendOnlyOperatorWarns(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"title": map[string]any{"$exists": true}})
	require.NoError(t, err)

	f, warnings, err := Translate(book(), resolver(), sel)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Empty(t, f.Expr.Children, "expected no filter emitted for backend-only operator")
}
