package document

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

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

func post() *schema.CompiledModel {
	return &schema.CompiledModel{
		Backend:        schema.Document,
		Name:           "Post",
		PrimaryKeyName: "id",
		PrimaryKeyType: schema.PKObjectID,
		Fields: []schema.CompiledField{
			{FieldSpec: schema.FieldSpec{Name: "id", Type: schema.TypeString, PrimaryKey: true}, ColumnName: "id"},
			{FieldSpec: schema.FieldSpec{Name: "title", Type: schema.TypeString}, ColumnName: "title"},
			{FieldSpec: schema.FieldSpec{Name: "views", Type: schema.TypeInt}, ColumnName: "views"},
		},
		Relations: map[string]schema.CompiledRelation{
			"author": {RelationSpec: schema.RelationSpec{Target: "Author", Cardinality: schema.One}},
		},
	}
}

func resolver() fakeResolver {
	return fakeResolver{"Post": post()}
}

func TestTranslateScalarEqCollapsesToShorthand(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"title": "Hello"})
	require.NoError(t, err)

	f, _, err := Translate(post(), resolver(), sel)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"title": "Hello"}, f.Query)
}

func TestTranslateComparisonOperator(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"views": map[string]any{"$gte": 100}})
	require.NoError(t, err)

	f, _, err := Translate(post(), resolver(), sel)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"views": bson.M{"$gte": 100}}, f.Query)
}

func TestTranslateRegexWithOptions(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"title": map[string]any{"$regex": "^h", "$options": "i"}})
	require.NoError(t, err)

	f, _, err := Translate(post(), resolver(), sel)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"title": bson.M{"$regex": "^h", "$options": "i"}}, f.Query)
}

func TestTranslateNorPassesThroughNatively(t *testing.T) {
	sel, err := selector.Parse(map[string]any{
		"$nor": []any{
			map[string]any{"views": map[string]any{"$lt": 10}},
			map[string]any{"views": map[string]any{"$gt": 1000}},
		},
	})
	require.NoError(t, err)

	f, _, err := Translate(post(), resolver(), sel)
	require.NoError(t, err)

	nor, ok := f.Query["$nor"].(bson.A)
	require.True(t, ok, "expected $nor key holding bson.A")
	assert.Len(t, nor, 2)
}

func TestTranslateDocumentOnlyOperatorPassesThroughNoWarning(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"title": map[string]any{"$exists": true}})
	require.NoError(t, err)

	f, warnings, err := Translate(post(), resolver(), sel)
	require.NoError(t, err)
	assert.Empty(t, warnings, "expected no warnings for a document-native operator")
	assert.Equal(t, bson.M{"title": bson.M{"$exists": true}}, f.Query)
}

func TestTranslateUnknownFieldIsTranslationError(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"nope": "x"})
	require.NoError(t, err)

	_, _, err = Translate(post(), resolver(), sel)
	require.Error(t, err)
}

func TestTranslateEmbeddedRelationFirstSegmentValidated(t *testing.T) {
	sel, err := selector.Parse(map[string]any{"author.name": "Ada"})
	require.NoError(t, err)

	_, _, err = Translate(post(), resolver(), sel)
	require.NoError(t, err, "expected a relation-rooted path to validate against its first segment")
}
