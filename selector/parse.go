package selector

import (
	"fmt"
	"strings"
)

// Parse builds a SelectorNode tree from an inbound map, the wire shape of
// §6.1. The returned node is always KindRoot; multiple top-level keys are
// implicitly AND'ed, matching MongoDB's top-level-object semantics.
func Parse(raw map[string]any) (*SelectorNode, error) {
	root := &SelectorNode{Kind: KindRoot}
	for key, value := range raw {
		child, err := parseTopLevelEntry(key, value)
		if err != nil {
			return nil, err
		}
		root.Children = append(root.Children, child)
	}
	return root, nil
}

func parseTopLevelEntry(key string, value any) (*SelectorNode, error) {
	if strings.HasPrefix(key, "$") {
		return parseLogicalEntry(key, value)
	}
	return parseFieldEntry(key, value)
}

func parseLogicalEntry(key string, value any) (*SelectorNode, error) {
	var op LogicalOp
	switch key {
	case "$and":
		op = LogicalAnd
	case "$or":
		op = LogicalOr
	case "$nor":
		op = LogicalNor
	default:
		return nil, fmt.Errorf("selector: unknown logical operator %q", key)
	}

	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("selector: %q requires a list payload, got %T", key, value)
	}

	node := &SelectorNode{Kind: KindLogical, LogicalOp: op}
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("selector: %q[%d] must be an object, got %T", key, i, item)
		}
		child, err := Parse(m)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func parseFieldEntry(path string, value any) (*SelectorNode, error) {
	node := &SelectorNode{Kind: KindField, Path: path}

	if m, ok := value.(map[string]any); ok && isOperatorMap(m) {
		for opKey, opVal := range m {
			op, err := parseOperator(path, opKey, opVal, m)
			if err != nil {
				return nil, err
			}
			if op == nil {
				continue
			}
			node.Operators = append(node.Operators, op)
		}
		return node, nil
	}

	// scalar value rewritten to {$eq: value} per §4.3.
	node.Operators = []*OperatorNode{{Kind: OpEq, Value: value}}
	return node, nil
}

// isOperatorMap reports whether every key of m starts with "$", the
// discriminator between "this is an operator map" and "this is a literal
// scalar/object value to $eq against" (§4.3).
func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func parseOperator(path, opKey string, opVal any, siblingMap map[string]any) (*OperatorNode, error) {
	switch opKey {
	case "$eq":
		return &OperatorNode{Kind: OpEq, Value: opVal}, nil
	case "$ne":
		return &OperatorNode{Kind: OpNe, Value: opVal}, nil
	case "$gt":
		return &OperatorNode{Kind: OpGt, Value: opVal}, nil
	case "$gte":
		return &OperatorNode{Kind: OpGte, Value: opVal}, nil
	case "$lt":
		return &OperatorNode{Kind: OpLt, Value: opVal}, nil
	case "$lte":
		return &OperatorNode{Kind: OpLte, Value: opVal}, nil
	case "$in":
		list, ok := opVal.([]any)
		if !ok {
			return nil, fieldErr(path, "$in requires a list payload, got %T", opVal)
		}
		return &OperatorNode{Kind: OpIn, List: list}, nil
	case "$nin":
		list, ok := opVal.([]any)
		if !ok {
			return nil, fieldErr(path, "$nin requires a list payload, got %T", opVal)
		}
		return &OperatorNode{Kind: OpNin, List: list}, nil
	case "$regex":
		pattern, ok := opVal.(string)
		if !ok {
			return nil, fieldErr(path, "$regex requires a string pattern, got %T", opVal)
		}
		options, _ := siblingMap["$options"].(string)
		return &OperatorNode{Kind: OpRegex, Pattern: pattern, Options: options}, nil
	case "$options":
		// consumed alongside $regex above; a bare $options with no $regex
		// sibling is meaningless but not an error, matching the teacher's
		// tolerant TypedDict shape (selectors.py marks $options optional).
		return nil, nil
	case "$not":
		m, ok := opVal.(map[string]any)
		if !ok {
			return nil, fieldErr(path, "$not requires an operator-map payload, not a logical list (got %T)", opVal)
		}
		if !isOperatorMap(m) {
			return nil, fieldErr(path, "$not requires an operator-map payload")
		}
		var children []*OperatorNode
		for k, v := range m {
			child, err := parseOperator(path, k, v, m)
			if err != nil {
				return nil, err
			}
			if child == nil {
				continue
			}
			children = append(children, child)
		}
		return &OperatorNode{Kind: OpNot, Not: children}, nil
	default:
		if documentOnlyOperators[opKey] {
			return &OperatorNode{
				Kind:     OpBackendOnly,
				RawKey:   opKey,
				RawValue: opVal,
				Backends: map[string]bool{"document": true},
			}, nil
		}
		return nil, fieldErr(path, "unknown operator %q", opKey)
	}
}
