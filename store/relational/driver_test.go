package relational

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/store"
)

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	author := schema.New("Author")
	author.AddField(schema.Field("id", schema.TypeInt, schema.PrimaryKey()))
	author.AddField(schema.Field("name", schema.TypeString, schema.Indexed()))
	must(reg.Add(author))

	book := schema.New("Book")
	book.AddField(schema.Field("id", schema.TypeInt, schema.PrimaryKey()))
	book.AddField(schema.Field("title", schema.TypeString, schema.Indexed()))
	book.AddField(schema.Field("year", schema.TypeInt))
	book.AddRelation("author", schema.Relation("Author", schema.One, schema.CascadeDelete()))
	must(reg.Add(book))

	return reg
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(SQLite{}, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Register(context.Background(), testRegistry()))
	return s
}

func TestRegisterCreatesTables(t *testing.T) {
	s := openTestStore(t)
	var name string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='books'").Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "books", name)
}

func TestInsertThenFindByEq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	authors, err := s.Insert(ctx, "Author", []store.Record{{"name": "Achebe"}}, store.InsertOptions{})
	require.NoError(t, err)
	require.Len(t, authors, 1)

	_, err = s.Insert(ctx, "Book", []store.Record{
		{"title": "Things Fall Apart", "year": 1958, "author": authors[0]["id"]},
	}, store.InsertOptions{})
	require.NoError(t, err)

	sel, err := selector.Parse(map[string]any{"title": "Things Fall Apart"})
	require.NoError(t, err)

	found, err := s.Find(ctx, "Book", nil, sel, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Things Fall Apart", found[0]["title"])
}

func TestUpdateScalarField(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.Insert(ctx, "Book", []store.Record{{"title": "Old Title", "year": 2000}}, store.InsertOptions{})
	require.NoError(t, err)

	sel, err := selector.Parse(map[string]any{"title": "Old Title"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "Book", nil, sel, store.Record{"title": "New Title"}, store.UpdateOptions{})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, "New Title", updated[0]["title"])
	require.Equal(t, inserted[0]["id"], updated[0]["id"])
}

func TestDeleteReturnsPreImage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Book", []store.Record{{"title": "Doomed", "year": 1999}}, store.InsertOptions{})
	require.NoError(t, err)

	sel, err := selector.Parse(map[string]any{"title": "Doomed"})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "Book", nil, sel, store.DeleteOptions{})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, "Doomed", deleted[0]["title"])

	remaining, err := s.Find(ctx, "Book", nil, sel, store.FindOptions{})
	require.NoError(t, err)
	require.Empty(t, remaining)
}
