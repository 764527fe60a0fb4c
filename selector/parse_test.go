package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalarRewriteToEq(t *testing.T) {
	root, err := Parse(map[string]any{"name": "Hoima"})
	require.NoError(t, err)
	require.Len(t, root.Children, 1)

	field := root.Children[0]
	assert.Equal(t, KindField, field.Kind)
	assert.Equal(t, "name", field.Path)

	require.Len(t, field.Operators, 1, "expected scalar rewritten to a single $eq operator")
	assert.Equal(t, OpEq, field.Operators[0].Kind)
	assert.Equal(t, "Hoima", field.Operators[0].Value)
}

func TestParseOperatorMap(t *testing.T) {
	root, err := Parse(map[string]any{
		"name": map[string]any{"$regex": "^bu.*", "$options": "i"},
	})
	require.NoError(t, err)

	field := root.Children[0]
	require.Len(t, field.Operators, 1, "expected $options to be folded into the $regex operator")

	op := field.Operators[0]
	assert.Equal(t, OpRegex, op.Kind)
	assert.Equal(t, "^bu.*", op.Pattern)
	assert.Equal(t, "i", op.Options)
}

func TestParseLogical(t *testing.T) {
	root, err := Parse(map[string]any{
		"$and": []any{
			map[string]any{"name": map[string]any{"$lt": "Hoima, Uganda"}},
			map[string]any{"$or": []any{
				map[string]any{"address": "Bar"},
				map[string]any{"name": map[string]any{"$gt": "Buliisa"}},
			}},
		},
	})
	require.NoError(t, err)

	and := root.Children[0]
	assert.Equal(t, KindLogical, and.Kind)
	assert.Equal(t, LogicalAnd, and.LogicalOp)
	assert.Len(t, and.Children, 2)
}

func TestParseNotRequiresOperatorMap(t *testing.T) {
	_, err := Parse(map[string]any{
		"name": map[string]any{"$not": []any{map[string]any{"$eq": "x"}}},
	})
	require.Error(t, err, "$not must take an operator-map, not a logical list")
}

func TestParseNot(t *testing.T) {
	root, err := Parse(map[string]any{
		"age": map[string]any{"$not": map[string]any{"$gt": 5}},
	})
	require.NoError(t, err)

	op := root.Children[0].Operators[0]
	require.Equal(t, OpNot, op.Kind)
	require.Len(t, op.Not, 1)
	assert.Equal(t, OpGt, op.Not[0].Kind)
}

func TestParseUnknownOperatorIsError(t *testing.T) {
	_, err := Parse(map[string]any{"name": map[string]any{"$bogus": 1}})
	require.Error(t, err)
}

func TestParseDocumentOnlyOperatorBecomesBackendOnly(t *testing.T) {
	root, err := Parse(map[string]any{"tags": map[string]any{"$exists": true}})
	require.NoError(t, err)

	op := root.Children[0].Operators[0]
	require.Equal(t, OpBackendOnly, op.Kind)
	assert.True(t, op.Backends["document"])
}

func TestParseInRequiresList(t *testing.T) {
	_, err := Parse(map[string]any{"id": map[string]any{"$in": 5}})
	require.Error(t, err, "$in requires a list payload")
}
