package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/store"
)

func testMongoURI() string {
	return "mongodb://localhost:27017"
}

func testRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	post := schema.New("Post")
	post.AddField(schema.Field("id", schema.TypeString, schema.PrimaryKey()))
	post.AddField(schema.Field("title", schema.TypeString, schema.Indexed()))
	post.AddField(schema.Field("views", schema.TypeInt))
	must(reg.Add(post))

	return reg
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping document store test in short mode")
	}

	ctx := context.Background()
	s, err := Open(ctx, testMongoURI(), "nqlstore_driver_test")
	if err != nil {
		t.Skipf("mongodb not available: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Register(ctx, testRegistry()))
	return s
}

func TestInsertThenFindByEq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	inserted, err := s.Insert(ctx, "Post", []store.Record{{"title": "Hello", "views": 1}}, store.InsertOptions{})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	require.NotEmpty(t, inserted[0]["id"])

	sel, err := selector.Parse(map[string]any{"title": "Hello"})
	require.NoError(t, err)

	found, err := s.Find(ctx, "Post", nil, sel, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Hello", found[0]["title"])
}

func TestUpdateWrapsScalarsInSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Post", []store.Record{{"title": "Old", "views": 0}}, store.InsertOptions{})
	require.NoError(t, err)

	sel, err := selector.Parse(map[string]any{"title": "Old"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "Post", nil, sel, store.Record{"views": 5}, store.UpdateOptions{})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, int32(5), updated[0]["views"])
}

func TestUpdateRejectsMixedOperatorAndScalar(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Post", []store.Record{{"title": "Mixed", "views": 0}}, store.InsertOptions{})
	require.NoError(t, err)

	sel, err := selector.Parse(map[string]any{"title": "Mixed"})
	require.NoError(t, err)

	_, err = s.Update(ctx, "Post", nil, sel, store.Record{"$inc": map[string]any{"views": 1}, "title": "x"}, store.UpdateOptions{})
	require.Error(t, err)
}

func TestDeleteReturnsPreImage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "Post", []store.Record{{"title": "Doomed", "views": 0}}, store.InsertOptions{})
	require.NoError(t, err)

	sel, err := selector.Parse(map[string]any{"title": "Doomed"})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, "Post", nil, sel, store.DeleteOptions{})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	require.Equal(t, "Doomed", deleted[0]["title"])

	remaining, err := s.Find(ctx, "Post", nil, sel, store.FindOptions{})
	require.NoError(t, err)
	require.Empty(t, remaining)
}
