// Package selector implements the portable query selector (§3.1, §4.3,
// §6.1): a MongoDB-style tree of logical operators, field paths, and
// operator-value leaves, parsed from an inbound map[string]any into a
// closed tagged union (SelectorNode) that the translate package then walks.
//
// Grounded in original_source/nqlstore/query/selectors.py (the selector
// shape) and query/parsers.py (the recursive-descent parse it performs
// before dispatching to per-backend predicate methods) — reworked here
// from a class-per-operator hierarchy into a single closed Go sum type,
// per the teacher's general preference (schema.Schema, types.Condition)
// for flat structs over deep inheritance.
package selector

import "fmt"

// NodeKind tags which variant of SelectorNode is populated.
type NodeKind string

const (
	KindRoot    NodeKind = "root"
	KindField   NodeKind = "field"
	KindLogical NodeKind = "logical" // $and/$or/$nor
)

// LogicalOp distinguishes the three multi-child logical operators.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "$and"
	LogicalOr  LogicalOp = "$or"
	LogicalNor LogicalOp = "$nor"
)

// SelectorNode is the closed tagged representation of one node in the
// parsed selector tree (§3.1 SelectorNode).
type SelectorNode struct {
	Kind NodeKind

	// KindRoot / KindLogical
	LogicalOp LogicalOp
	Children  []*SelectorNode

	// KindField
	Path       string
	Operators  []*OperatorNode
}

// OperatorKind tags which operator variant an OperatorNode holds.
type OperatorKind string

const (
	OpEq          OperatorKind = "$eq"
	OpNe          OperatorKind = "$ne"
	OpGt          OperatorKind = "$gt"
	OpGte         OperatorKind = "$gte"
	OpLt          OperatorKind = "$lt"
	OpLte         OperatorKind = "$lte"
	OpIn          OperatorKind = "$in"
	OpNin         OperatorKind = "$nin"
	OpRegex       OperatorKind = "$regex"
	OpNot         OperatorKind = "$not"
	OpBackendOnly OperatorKind = "__backend_only__"
)

// documentOnlyOperators lists §6.1's "recognized-but-document-only" set:
// these parse successfully (never a parse error) but translate to
// BackendOnly for relational/kv.
var documentOnlyOperators = map[string]bool{
	"$exists": true, "$type": true, "$jsonSchema": true, "$expr": true,
	"$text": true, "$where": true, "$geoIntersects": true, "$geoWithin": true,
	"$near": true, "$nearSphere": true, "$all": true, "$elemMatch": true,
	"$size": true, "$mod": true, "$bitsAllClear": true, "$bitsAllSet": true,
	"$bitsAnyClear": true, "$bitsAnySet": true, "$": true, "$meta": true,
	"$slice": true, "$rand": true, "$natural": true,
}

// OperatorNode is one `$op: value` leaf under a Field node.
type OperatorNode struct {
	Kind OperatorKind

	// Scalar payload for $eq/$ne/$gt/$gte/$lt/$lte.
	Value any

	// Sequence payload for $in/$nin.
	List []any

	// $regex payload.
	Pattern string
	Options string

	// $not payload: another operator-map, not a logical list (§3.2 inv. 2).
	Not []*OperatorNode

	// BackendOnly payload: the raw `$op: value` the caller supplied,
	// and which backends it is recognized for.
	RawKey      string
	RawValue    any
	Backends    map[string]bool
}

func fieldErr(path, format string, args ...any) error {
	return fmt.Errorf("selector: field %q: %s", path, fmt.Sprintf(format, args...))
}
