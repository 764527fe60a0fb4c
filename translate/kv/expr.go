// Package kv implements the key/value backend's emission of the Query
// Translator (§4.4): selector trees compile into a small boolean
// expression tree over indexed fields, which the Redis-backed store
// driver (store/kv) evaluates against the secondary-index Sets it
// maintains per indexed field.
//
// Grounded in original_source/nqlstore/query/parsers.py's to_redis()
// predicate methods (redis-om's own expression combinators, e.g.
// field == value, field > value, _redis_and/_redis_or/~expr) and
// original_source/nqlstore/_redis.py, which is what exposed that the kv
// backend is concretely Redis rather than a generic in-memory map.
package kv

// ExprKind tags which variant of Expr is populated.
type ExprKind string

const (
	ExprAnd ExprKind = "and"
	ExprOr  ExprKind = "or"
	ExprNot ExprKind = "not"
	ExprCmp ExprKind = "cmp"
)

// CmpOp is a single-field comparison against an indexed field's secondary
// index.
type CmpOp string

const (
	CmpEq  CmpOp = "eq"
	CmpNe  CmpOp = "ne"
	CmpGt  CmpOp = "gt"
	CmpGte CmpOp = "gte"
	CmpLt  CmpOp = "lt"
	CmpLte CmpOp = "lte"
	CmpIn  CmpOp = "in"
	CmpNin CmpOp = "nin"
)

// Expr is one node of the kv filter tree.
type Expr struct {
	Kind     ExprKind
	Children []*Expr // And/Or

	Child *Expr // Not

	// Cmp payload.
	Field string
	Op    CmpOp
	Value any
	List  []any
}

// Filter is the kv backend's native filter: a boolean Expr tree over
// indexed fields.
type Filter struct {
	Expr *Expr
}
