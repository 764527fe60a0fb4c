// Package document implements the document backend's emission of the Query
// Translator (§4.4): selector trees compile into a bson.M filter document,
// matching MongoDB's own query operator shapes almost one-for-one since
// the selector language was modeled on them in the first place.
//
// Grounded in the teacher's drivers/mongodb/sql_translator.go, whose
// translateSelect method performs the analogous SQL-AST-to-bson.M
// conversion; here the source tree is the portable selector.SelectorNode
// instead of a SQL AST.
package document

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/translate/warn"
)

// Resolver looks up a CompiledModel by name. Embedded relations on the
// document backend are nested subdocuments, so a dotted path is checked
// only at its first segment, against the model itself; Translate accepts a
// Resolver for the same signature as the other backends but does not call
// it.
type Resolver interface {
	Compiled(modelName string) (*schema.CompiledModel, error)
}

// Filter is the document backend's native filter: a MongoDB-shaped filter
// document.
type Filter struct {
	Query bson.M
}

type translator struct {
	resolver Resolver
	warnings []warn.Warning
}

// Translate compiles sel against model for the document backend.
func Translate(model *schema.CompiledModel, resolver Resolver, sel *selector.SelectorNode) (*Filter, []warn.Warning, error) {
	t := &translator{resolver: resolver}
	q, err := t.node(model, sel)
	if err != nil {
		return nil, nil, err
	}
	return &Filter{Query: q}, t.warnings, nil
}

func (t *translator) node(model *schema.CompiledModel, n *selector.SelectorNode) (bson.M, error) {
	switch n.Kind {
	case selector.KindRoot:
		merged := bson.M{}
		for _, c := range n.Children {
			cc, err := t.node(model, c)
			if err != nil {
				return nil, err
			}
			for k, v := range cc {
				merged[k] = v
			}
		}
		return merged, nil

	case selector.KindLogical:
		var list bson.A
		for _, c := range n.Children {
			cc, err := t.node(model, c)
			if err != nil {
				return nil, err
			}
			list = append(list, cc)
		}
		switch n.LogicalOp {
		case selector.LogicalAnd:
			return bson.M{"$and": list}, nil
		case selector.LogicalOr:
			return bson.M{"$or": list}, nil
		case selector.LogicalNor:
			return bson.M{"$nor": list}, nil
		}
		return nil, fmt.Errorf("document: unknown logical operator %q", n.LogicalOp)

	case selector.KindField:
		return t.field(model, n)
	}
	return nil, fmt.Errorf("document: unknown node kind %q", n.Kind)
}

func (t *translator) field(model *schema.CompiledModel, n *selector.SelectorNode) (bson.M, error) {
	if err := t.validatePath(model, n.Path); err != nil {
		return nil, err
	}

	ops := bson.M{}
	for _, op := range n.Operators {
		if op.Kind == selector.OpRegex {
			ops["$regex"] = op.Pattern
			if op.Options != "" {
				ops["$options"] = op.Options
			}
			continue
		}
		key, value, err := t.operator(n.Path, op)
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		ops[key] = value
	}

	// A lone $eq collapses to the bare value, matching MongoDB's own
	// shorthand ({field: value} rather than {field: {$eq: value}}).
	if v, ok := ops["$eq"]; ok && len(ops) == 1 {
		return bson.M{n.Path: v}, nil
	}
	return bson.M{n.Path: ops}, nil
}

// validatePath only needs to confirm the first segment resolves to a
// visible field or relation; embedded relations live in the same document
// so deeper segments are opaque to us and left to the driver/BSON path
// syntax (§3.2 inv. 4 is still enforced at the first segment).
func (t *translator) validatePath(model *schema.CompiledModel, path string) error {
	seg := path
	for i, r := range path {
		if r == '.' {
			seg = path[:i]
			break
		}
	}
	if model.HasField(seg) || model.HasRelation(seg) {
		return nil
	}
	return errs.Translation("document", "field %q not found on model %s (or disabled for this backend)", seg, model.Name)
}

func (t *translator) operator(path string, op *selector.OperatorNode) (string, any, error) {
	switch op.Kind {
	case selector.OpEq:
		return "$eq", op.Value, nil
	case selector.OpNe:
		return "$ne", op.Value, nil
	case selector.OpGt:
		return "$gt", op.Value, nil
	case selector.OpGte:
		return "$gte", op.Value, nil
	case selector.OpLt:
		return "$lt", op.Value, nil
	case selector.OpLte:
		return "$lte", op.Value, nil
	case selector.OpIn:
		return "$in", op.List, nil
	case selector.OpNin:
		return "$nin", op.List, nil
	case selector.OpRegex:
		// handled in field() so $options can be merged in as a sibling key
		return "$regex", op.Pattern, nil
	case selector.OpNot:
		inner := bson.M{}
		for _, sub := range op.Not {
			key, value, err := t.operator(path, sub)
			if err != nil {
				return "", nil, err
			}
			inner[key] = value
		}
		return "$not", inner, nil
	case selector.OpBackendOnly:
		// document-native: pass the raw operator/value straight through.
		return op.RawKey, op.RawValue, nil
	default:
		return "", nil, errs.Translation("document", "unsupported operator %q", op.Kind)
	}
}
