package relational

import (
	"fmt"
	"strings"

	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/translate/warn"
)

// Resolver looks up a CompiledModel by name to follow a dotted path across
// a relation (translate.Resolver, narrowed to this package's own type so
// this package doesn't need to import the top-level translate package).
type Resolver interface {
	Compiled(modelName string) (*schema.CompiledModel, error)
}

// Dialect distinguishes the three relational SQL dialects for the one
// place their syntax actually diverges inside the translator: regex
// emission (§4.4).
type Dialect string

const (
	DialectSQLite     Dialect = "sqlite"
	DialectPostgres   Dialect = "postgres"
	DialectMySQL      Dialect = "mysql"
)

// Hop is one relation crossed while resolving a dotted field path: the
// store driver turns each Hop into an INNER JOIN.
type Hop struct {
	Relation    string // relation name on the model that owns it
	FromAlias   string
	TargetModel string
	TargetTable string
	TargetAlias string
	FromColumn  string // FK column, on the "many" side for one-to-many/many-to-one
	ToColumn    string // referenced column, usually the target's primary key
}

// Filter is the relational backend's native filter: a Condition tree plus
// every relation Hop any predicate in the tree touched.
type Filter struct {
	Condition Condition
	Hops      []Hop
}

// ToSQL renders the WHERE-clause fragment and its positional args.
func (f *Filter) ToSQL() (string, []any) {
	if f == nil || f.Condition == nil {
		return "", nil
	}
	return f.Condition.ToSQL()
}

type translator struct {
	resolver Resolver
	dialect  Dialect
	warnings []warn.Warning
	hops     []Hop
	hopSeen  map[string]bool
}

// Translate compiles sel against model for the relational backend.
func Translate(model *schema.CompiledModel, resolver Resolver, sel *selector.SelectorNode) (*Filter, []warn.Warning, error) {
	return TranslateDialect(model, resolver, sel, DialectSQLite)
}

// TranslateDialect is Translate with an explicit dialect, used where the
// regex emission must vary (§4.4).
func TranslateDialect(model *schema.CompiledModel, resolver Resolver, sel *selector.SelectorNode, dialect Dialect) (*Filter, []warn.Warning, error) {
	t := &translator{resolver: resolver, dialect: dialect, hopSeen: map[string]bool{}}
	cond, err := t.node(model, model.TableName, sel)
	if err != nil {
		return nil, nil, err
	}
	return &Filter{Condition: cond, Hops: t.hops}, t.warnings, nil
}

func (t *translator) node(model *schema.CompiledModel, alias string, n *selector.SelectorNode) (Condition, error) {
	switch n.Kind {
	case selector.KindRoot:
		var children []Condition
		for _, c := range n.Children {
			cc, err := t.node(model, alias, c)
			if err != nil {
				return nil, err
			}
			children = append(children, cc)
		}
		return And{Children: children}, nil

	case selector.KindLogical:
		var children []Condition
		for _, c := range n.Children {
			cc, err := t.node(model, alias, c)
			if err != nil {
				return nil, err
			}
			children = append(children, cc)
		}
		switch n.LogicalOp {
		case selector.LogicalAnd:
			return And{Children: children}, nil
		case selector.LogicalOr:
			return Or{Children: children}, nil
		case selector.LogicalNor:
			// De Morgan: NOR(S...) == NOT(OR(S...)) — §9 P3.
			return Not{Child: Or{Children: children}}, nil
		}
		return nil, fmt.Errorf("relational: unknown logical operator %q", n.LogicalOp)

	case selector.KindField:
		return t.field(model, alias, n)
	}
	return nil, fmt.Errorf("relational: unknown node kind %q", n.Kind)
}

func (t *translator) field(model *schema.CompiledModel, alias string, n *selector.SelectorNode) (Condition, error) {
	targetModel, targetAlias, column, err := t.resolvePath(model, alias, n.Path)
	if err != nil {
		return nil, err
	}
	_ = targetModel

	var parts []Condition
	for _, op := range n.Operators {
		c, err := t.operator(targetAlias, column, n.Path, op)
		if err != nil {
			return nil, err
		}
		if c != nil {
			parts = append(parts, c)
		}
	}
	return And{Children: parts}, nil
}

// resolvePath walks a dotted path segment by segment against model,
// crossing relations (recording Hops) until the final segment resolves to
// a scalar field (§3.2 inv. 1, §4.4).
func (t *translator) resolvePath(model *schema.CompiledModel, alias string, path string) (*schema.CompiledModel, string, string, error) {
	segments := strings.Split(path, ".")
	cur := model
	curAlias := alias

	for i, seg := range segments {
		isLast := i == len(segments)-1
		if isLast {
			field, ok := cur.GetField(seg)
			if !ok {
				return nil, "", "", errs.Translation("relational", "field %q not found on model %s (or disabled for this backend)", seg, cur.Name)
			}
			return cur, curAlias, field.ColumnName, nil
		}

		rel, ok := cur.Relations[seg]
		if !ok {
			return nil, "", "", errs.Translation("relational", "relation %q not found on model %s (or disabled for this backend)", seg, cur.Name)
		}
		targetModel, err := t.resolver.Compiled(rel.Target)
		if err != nil {
			return nil, "", "", errs.Translation("relational", "relation %q targets unresolvable model %s: %v", seg, rel.Target, err)
		}

		targetAlias := fmt.Sprintf("%s_%s", curAlias, seg)
		hopKey := curAlias + ">" + seg
		if !t.hopSeen[hopKey] {
			t.hopSeen[hopKey] = true
			hop := Hop{
				Relation:    seg,
				FromAlias:   curAlias,
				TargetModel: rel.Target,
				TargetTable: targetModel.TableName,
				TargetAlias: targetAlias,
				FromColumn:  rel.TargetColumn,
				ToColumn:    targetModel.PrimaryKeyName,
			}
			if rel.Cardinality == schema.One && rel.TargetColumn == "" {
				// many-to-one from the child's perspective: the FK lives on
				// cur, not on the target. compile.Compile fills TargetColumn
				// for every non-many-to-many relational relation; a model
				// built without it falls back to the conventional name.
				hop.FromColumn = schema.CamelToSnakeCase(seg) + "_id"
			}
			t.hops = append(t.hops, hop)
		}

		cur = targetModel
		curAlias = targetAlias
	}
	return cur, curAlias, "", nil
}

func qualify(alias, column string) string {
	if alias == "" {
		return column
	}
	return alias + "." + column
}

func (t *translator) operator(alias, column, path string, op *selector.OperatorNode) (Condition, error) {
	qc := qualify(alias, column)
	switch op.Kind {
	case selector.OpEq:
		if op.Value == nil {
			return Base{SQL: qc + " IS NULL"}, nil
		}
		return Base{SQL: qc + " = ?", Args: []any{op.Value}}, nil
	case selector.OpNe:
		if op.Value == nil {
			return Base{SQL: qc + " IS NOT NULL"}, nil
		}
		return Base{SQL: qc + " != ?", Args: []any{op.Value}}, nil
	case selector.OpGt:
		return Base{SQL: qc + " > ?", Args: []any{op.Value}}, nil
	case selector.OpGte:
		return Base{SQL: qc + " >= ?", Args: []any{op.Value}}, nil
	case selector.OpLt:
		return Base{SQL: qc + " < ?", Args: []any{op.Value}}, nil
	case selector.OpLte:
		return Base{SQL: qc + " <= ?", Args: []any{op.Value}}, nil
	case selector.OpIn:
		if len(op.List) == 0 {
			return Base{SQL: "1 = 0"}, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(op.List)), ",")
		return Base{SQL: fmt.Sprintf("%s IN (%s)", qc, placeholders), Args: op.List}, nil
	case selector.OpNin:
		if len(op.List) == 0 {
			return Base{SQL: "1 = 1"}, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(op.List)), ",")
		return Base{SQL: fmt.Sprintf("%s NOT IN (%s)", qc, placeholders), Args: op.List}, nil
	case selector.OpRegex:
		return t.regex(qc, op)
	case selector.OpNot:
		var children []Condition
		for _, sub := range op.Not {
			c, err := t.operator(alias, column, path, sub)
			if err != nil {
				return nil, err
			}
			if c != nil {
				children = append(children, c)
			}
		}
		return Not{Child: And{Children: children}}, nil
	case selector.OpBackendOnly:
		t.warnings = append(t.warnings, warn.Warning{
			Path:     path,
			Operator: op.RawKey,
			Message:  fmt.Sprintf("operator %q is document-only; no relational filter emitted", op.RawKey),
		})
		return nil, nil
	default:
		return nil, errs.Translation("relational", "unsupported operator %q", op.Kind)
	}
}

func (t *translator) regex(qc string, op *selector.OperatorNode) (Condition, error) {
	pattern := op.Pattern
	switch t.dialect {
	case DialectSQLite:
		if op.Options != "" {
			pattern = fmt.Sprintf("(?%s)%s", op.Options, op.Pattern)
		}
		return Base{SQL: fmt.Sprintf("regexp_match(%s, ?, ?)", qc), Args: []any{pattern, op.Options}}, nil
	case DialectPostgres:
		operator := "~"
		if strings.Contains(op.Options, "i") {
			operator = "~*"
		}
		return Base{SQL: fmt.Sprintf("%s %s ?", qc, operator), Args: []any{op.Pattern}}, nil
	case DialectMySQL:
		pat := op.Pattern
		if strings.Contains(op.Options, "i") {
			pat = "(?i)" + pat
		}
		return Base{SQL: fmt.Sprintf("%s REGEXP ?", qc), Args: []any{pat}}, nil
	default:
		return nil, fmt.Errorf("relational: unknown dialect %q", t.dialect)
	}
}
