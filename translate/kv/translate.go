package kv

import (
	"strings"

	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/translate/warn"
)

// Resolver looks up a CompiledModel by name to validate a dotted path that
// crosses an embedded relation.
type Resolver interface {
	Compiled(modelName string) (*schema.CompiledModel, error)
}

type translator struct {
	resolver Resolver
	warnings []warn.Warning
}

// Translate compiles sel against model for the kv backend. A dotted path
// that crosses a Many-cardinality relation is only legal here when it
// terminates on an $in comparison against an indexed field (§3.2 inv. 3);
// crossing a One relation allows any operator — the kv index
// cannot express arbitrary nested-array membership any more richly than
// that.
func Translate(model *schema.CompiledModel, resolver Resolver, sel *selector.SelectorNode) (*Filter, []warn.Warning, error) {
	t := &translator{resolver: resolver}
	e, err := t.node(model, sel)
	if err != nil {
		return nil, nil, err
	}
	return &Filter{Expr: e}, t.warnings, nil
}

func (t *translator) node(model *schema.CompiledModel, n *selector.SelectorNode) (*Expr, error) {
	switch n.Kind {
	case selector.KindRoot:
		children, err := t.children(model, n.Children)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprAnd, Children: children}, nil

	case selector.KindLogical:
		children, err := t.children(model, n.Children)
		if err != nil {
			return nil, err
		}
		switch n.LogicalOp {
		case selector.LogicalAnd:
			return &Expr{Kind: ExprAnd, Children: children}, nil
		case selector.LogicalOr:
			return &Expr{Kind: ExprOr, Children: children}, nil
		case selector.LogicalNor:
			// Redis has no native NOR combinator (unlike Mongo's $nor), so
			// this stays NOT(OR(...)) same as the relational backend.
			return &Expr{Kind: ExprNot, Child: &Expr{Kind: ExprOr, Children: children}}, nil
		}
		return nil, errs.Translation("kv", "unknown logical operator %q", n.LogicalOp)

	case selector.KindField:
		return t.field(model, n)
	}
	return nil, errs.Translation("kv", "unknown node kind %q", n.Kind)
}

func (t *translator) children(model *schema.CompiledModel, nodes []*selector.SelectorNode) ([]*Expr, error) {
	out := make([]*Expr, 0, len(nodes))
	for _, c := range nodes {
		e, err := t.node(model, c)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *translator) field(model *schema.CompiledModel, n *selector.SelectorNode) (*Expr, error) {
	field, crossesCollection, err := t.resolveField(model, n.Path)
	if err != nil {
		return nil, err
	}

	var parts []*Expr
	for _, op := range n.Operators {
		if crossesCollection && op.Kind != selector.OpIn {
			return nil, errs.Translation("kv", "path %q crosses a collection relation; only $in over an indexed field is supported there", n.Path)
		}
		e, err := t.operator(n.Path, field, op)
		if err != nil {
			return nil, err
		}
		if e != nil {
			parts = append(parts, e)
		}
	}
	switch len(parts) {
	case 0:
		// every operator was backend-only: no kv filter for this field.
		return nil, nil
	case 1:
		return parts[0], nil
	}
	return &Expr{Kind: ExprAnd, Children: parts}, nil
}

// resolveField walks path against model, requiring every field it names be
// `indexed` (predicate filtering on kv only works against the secondary
// indexes the store maintains for indexed fields — §3.2). It reports
// whether any intermediate segment crossed a Many-cardinality relation.
func (t *translator) resolveField(model *schema.CompiledModel, path string) (*schema.CompiledField, bool, error) {
	segments := strings.Split(path, ".")
	cur := model
	crossesCollection := false

	for i, seg := range segments {
		isLast := i == len(segments)-1
		if isLast {
			field, ok := cur.GetField(seg)
			if !ok {
				return nil, false, errs.Translation("kv", "field %q not found on model %s (or disabled for this backend)", seg, cur.Name)
			}
			if !field.Indexed {
				return nil, false, errs.Translation("kv", "field %q is not indexed; kv filtering requires an index", seg)
			}
			return field, crossesCollection, nil
		}

		rel, ok := cur.Relations[seg]
		if !ok {
			return nil, false, errs.Translation("kv", "relation %q not found on model %s (or disabled for this backend)", seg, cur.Name)
		}
		if rel.Cardinality == schema.Many {
			crossesCollection = true
		}
		target, err := t.resolver.Compiled(rel.Target)
		if err != nil {
			return nil, false, errs.Translation("kv", "relation %q targets unresolvable model %s: %v", seg, rel.Target, err)
		}
		cur = target
	}
	return nil, crossesCollection, errs.Translation("kv", "path %q does not resolve to a field", path)
}

func (t *translator) operator(path string, field *schema.CompiledField, op *selector.OperatorNode) (*Expr, error) {
	switch op.Kind {
	case selector.OpEq:
		if op.Value == nil {
			// §4.4 "Numeric and null semantics": null on an indexed field
			// only matches when the field is of reference type.
			if field.Type != schema.TypeReference {
				return nil, errs.Translation("kv", "field %q: $eq:null only matches on reference-typed fields", path)
			}
		}
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpEq, Value: op.Value}, nil
	case selector.OpNe:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpNe, Value: op.Value}, nil
	case selector.OpGt:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpGt, Value: op.Value}, nil
	case selector.OpGte:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpGte, Value: op.Value}, nil
	case selector.OpLt:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpLt, Value: op.Value}, nil
	case selector.OpLte:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpLte, Value: op.Value}, nil
	case selector.OpIn:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpIn, List: op.List}, nil
	case selector.OpNin:
		return &Expr{Kind: ExprCmp, Field: path, Op: CmpNin, List: op.List}, nil
	case selector.OpRegex:
		// redis-om's RegexPredicate.to_redis raises NotImplementedError:
		// "redis text search is too inexpressive for regex" — same call
		// here, just typed as our own TranslationError.
		return nil, errs.Translation("kv", "field %q: regex is not supported on the kv backend", path)
	case selector.OpNot:
		var children []*Expr
		for _, sub := range op.Not {
			c, err := t.operator(path, field, sub)
			if err != nil {
				return nil, err
			}
			if c != nil {
				children = append(children, c)
			}
		}
		return &Expr{Kind: ExprNot, Child: &Expr{Kind: ExprAnd, Children: children}}, nil
	case selector.OpBackendOnly:
		t.warnings = append(t.warnings, warn.Warning{
			Path:     path,
			Operator: op.RawKey,
			Message:  "operator is document-only; no kv filter emitted",
		})
		return nil, nil
	default:
		return nil, errs.Translation("kv", "unsupported operator %q", op.Kind)
	}
}
