package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelNameToTableName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Library", "libraries"},
		{"Book", "books"},
		{"Address", "addresses"},
		{"Box", "boxes"},
		{"Bus", "buses"},
		{"Knife", "knives"},
		{"XMLHttpRequest", "xml_http_requests"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModelNameToTableName(tt.name))
		})
	}
}

func TestModelSpecValidate(t *testing.T) {
	m := New("Library")
	require.Error(t, m.Validate(), "expected error for model with no fields")

	m.AddField(Field("name", TypeString, Indexed()))
	require.NoError(t, m.Validate())

	m.AddField(Field("id", TypeInt, PrimaryKey()))
	m.AddField(Field("otherID", TypeInt, PrimaryKey()))
	require.Error(t, m.Validate(), "expected error for two explicit primary keys")
}

func TestModelSpecRelationValidation(t *testing.T) {
	m := New("Library")
	m.AddField(Field("name", TypeString))
	m.AddRelation("books", Relation("Book", Many))
	require.NoError(t, m.Validate(), "plain one-to-many relation should validate")

	m2 := New("Library")
	m2.AddField(Field("name", TypeString))
	m2.AddRelation("tags", Relation("Tag", Many))
	require.NoError(t, m2.Validate())

	rel, ok := m2.GetRelation("tags")
	require.True(t, ok)
	assert.False(t, rel.IsManyToMany(), "relation without an explicit LinkModel must not be treated as many-to-many")

	m2.AddRelation("authors", Relation("Author", Many, LinkModel("LibraryAuthor")))
	rel, ok = m2.GetRelation("authors")
	require.True(t, ok)
	assert.True(t, rel.IsManyToMany(), "relation with a LinkModel must be treated as many-to-many")
}

func TestFieldDisabledOn(t *testing.T) {
	f := Field("secret", TypeString, DisableOnKv(), DisableOnDocument())
	assert.True(t, f.IsDisabledOn(Kv))
	assert.True(t, f.IsDisabledOn(Document))
	assert.False(t, f.IsDisabledOn(Relational))
}
