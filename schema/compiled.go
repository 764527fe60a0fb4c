package schema

// PrimaryKeyType is the backend-appropriate substitution for a model's
// primary key, per §4.2 step 3: relational → int, document → 12-byte id,
// kv → string assigned on insert.
type PrimaryKeyType string

const (
	PKInt64      PrimaryKeyType = "int64"
	PKObjectID   PrimaryKeyType = "object_id" // 12-byte id
	PKString     PrimaryKeyType = "string"
)

// CompiledField is a FieldSpec projected for one backend: disabled fields
// never become CompiledFields.
type CompiledField struct {
	FieldSpec
	ColumnName string // relational column / document key / kv attribute name
}

// CompiledRelation is a RelationSpec projected for one backend.
type CompiledRelation struct {
	RelationSpec
	// TargetColumn is the non-empty relational foreign-key column for
	// one-to-many/many-to-one relations ("<relation name in snake_case>_id"
	// by default).
	TargetColumn string
}

// CompiledModel is the concrete, backend-specific record shape produced by
// the model compiler: disabled fields/relations removed, primary-key type
// substituted. Immutable once built, safely shared across goroutines.
type CompiledModel struct {
	Backend        Backend
	Name           string
	TableName      string
	PrimaryKeyName string
	PrimaryKeyType PrimaryKeyType
	Fields         []CompiledField
	Relations      map[string]CompiledRelation
}

// GetField finds a compiled field by its logical name.
func (c *CompiledModel) GetField(name string) (*CompiledField, bool) {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			return &c.Fields[i], true
		}
	}
	return nil, false
}

// GetRelation finds a compiled relation by name.
func (c *CompiledModel) GetRelation(name string) (*CompiledRelation, bool) {
	r, ok := c.Relations[name]
	if !ok {
		return nil, false
	}
	return &r, true
}

// HasField reports whether name resolves to a compiled (i.e. not
// disabled-for-this-backend) scalar field.
func (c *CompiledModel) HasField(name string) bool {
	_, ok := c.GetField(name)
	return ok
}

// HasRelation reports whether name resolves to a compiled relation.
func (c *CompiledModel) HasRelation(name string) bool {
	_, ok := c.Relations[name]
	return ok
}
