package schema

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Settings carries per-model knobs that don't belong to any one field or
// relation (table/collection name override, etc).
type Settings struct {
	// TableName overrides the default pluralized-snake-case derivation.
	TableName string
}

// ModelSpec is the single logical schema a caller declares; the model
// compiler (package compile) projects it into one CompiledModel per
// enabled backend.
type ModelSpec struct {
	Name      string
	Fields    []FieldSpec
	Relations map[string]RelationSpec
	Settings  Settings
}

// New starts a ModelSpec declaration. Every model implicitly gets a
// primary-key field resolved per-backend by the compiler (auto-increment
// int for relational, 12-byte id for document, string for kv) unless the
// caller declares an explicit PrimaryKey() field.
func New(name string) *ModelSpec {
	return &ModelSpec{
		Name:      name,
		Relations: make(map[string]RelationSpec),
	}
}

func (m *ModelSpec) AddField(f FieldSpec) *ModelSpec {
	m.Fields = append(m.Fields, f)
	return m
}

func (m *ModelSpec) AddRelation(name string, r RelationSpec) *ModelSpec {
	r.Name = name
	m.Relations[name] = r
	return m
}

func (m *ModelSpec) WithTableName(name string) *ModelSpec {
	m.Settings.TableName = name
	return m
}

// TableName returns the relational table / document collection / kv
// namespace name for this model.
func (m *ModelSpec) TableName() string {
	if m.Settings.TableName != "" {
		return m.Settings.TableName
	}
	return ModelNameToTableName(m.Name)
}

// GetField finds a field by name.
func (m *ModelSpec) GetField(name string) (*FieldSpec, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// GetRelation finds a relation by name.
func (m *ModelSpec) GetRelation(name string) (*RelationSpec, bool) {
	r, ok := m.Relations[name]
	if !ok {
		return nil, false
	}
	return &r, true
}

// HasExplicitPrimaryKey reports whether the caller declared a field with
// PrimaryKey(); if false, the compiler adds an implicit one.
func (m *ModelSpec) HasExplicitPrimaryKey() bool {
	for _, f := range m.Fields {
		if f.PrimaryKey {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of §3.2: a non-empty model
// name, at least one field, no duplicate field names, at most one
// single-field primary key, and a non-empty target on every relation.
// Foreign-key settings and clashes between field and relation names are
// not checked.
func (m *ModelSpec) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("model %s must have at least one field", m.Name)
	}

	seen := map[string]bool{}
	pkCount := 0
	for _, f := range m.Fields {
		if seen[f.Name] {
			return fmt.Errorf("model %s: duplicate field %s", m.Name, f.Name)
		}
		seen[f.Name] = true
		if f.PrimaryKey {
			pkCount++
		}
	}
	if pkCount > 1 {
		return fmt.Errorf("model %s: at most one explicit primary-key field is supported", m.Name)
	}

	for name, r := range m.Relations {
		if r.Target == "" {
			return fmt.Errorf("model %s: relation %s has no target", m.Name, name)
		}
	}

	return nil
}

// --- naming helpers, grounded in the teacher's schema.go derivation rules ---

// ModelNameToTableName converts a model name to its default table/
// collection/namespace name (pluralized, snake_case).
func ModelNameToTableName(modelName string) string {
	return Pluralize(CamelToSnakeCase(modelName))
}

var (
	snakeRe1 = regexp.MustCompile("([a-z0-9])([A-Z])")
	snakeRe2 = regexp.MustCompile("([A-Z])([A-Z][a-z])")
)

// CamelToSnakeCase converts camelCase/PascalCase to snake_case.
func CamelToSnakeCase(input string) string {
	if input == "" {
		return ""
	}
	result := snakeRe1.ReplaceAllString(input, "${1}_${2}")
	result = snakeRe2.ReplaceAllString(result, "${1}_${2}")
	return strings.ToLower(result)
}

// Pluralize applies simple English pluralization rules.
func Pluralize(word string) string {
	if word == "" {
		return word
	}
	word = strings.ToLower(word)

	switch {
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"), strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "fe"):
		return word[:len(word)-2] + "ves"
	case strings.HasSuffix(word, "f"):
		return word[:len(word)-1] + "ves"
	default:
		return word + "s"
	}
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	default:
		return false
	}
}
