// Package relational implements the relational backend's emission of the
// Query Translator (§4.4): selector trees compile into a tree of
// Condition values — SQL fragments with positional args — plus the set of
// relation hops any predicate touched, so the store driver can decide
// which INNER JOINs a query needs (§4.4, §4.5.1.2).
//
// The Condition tree shape (And/Or/Not/Base, each with ToSQL() (string,
// []any)) is adapted directly from the teacher's types/conditions.go: there
// the fluent FieldCondition builder is the API client code writes against;
// here it is the *target* the translator emits into.
package relational

import (
	"fmt"
	"strings"
)

// Condition is a node of the relational filter tree.
type Condition interface {
	ToSQL() (string, []any)
}

// Base is a single column comparison, e.g. "u.first_name = ?".
type Base struct {
	SQL  string
	Args []any
}

func (c Base) ToSQL() (string, []any) { return c.SQL, c.Args }

// And is the conjunction of its children; empty children yields "".
type And struct{ Children []Condition }

func (c And) ToSQL() (string, []any) { return joinConditions(c.Children, " AND ") }

// Or is the disjunction of its children.
type Or struct{ Children []Condition }

func (c Or) ToSQL() (string, []any) { return joinConditions(c.Children, " OR ") }

// Not negates its single child.
type Not struct{ Child Condition }

func (c Not) ToSQL() (string, []any) {
	sql, args := c.Child.ToSQL()
	if sql == "" {
		return "", nil
	}
	return fmt.Sprintf("NOT (%s)", sql), args
}

func joinConditions(children []Condition, sep string) (string, []any) {
	var parts []string
	var args []any
	for _, c := range children {
		sql, condArgs := c.ToSQL()
		if sql == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("(%s)", sql))
		args = append(args, condArgs...)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, sep), args
}
