package schema

// Cardinality is the "one" or "many" side of a RelationSpec.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// RelationSpec is the declarative metadata for one relation of a ModelSpec.
// Built via Relation(target, cardinality, options...).
type RelationSpec struct {
	Name            string
	Cardinality     Cardinality
	Target          string
	BackPopulates   string
	CascadeDelete   bool
	PassiveDeletes  bool
	LinkModel       string // non-empty for many-to-many, names the join model
	DisabledOn      map[Backend]bool
}

// RelationOption mutates a RelationSpec under construction.
type RelationOption func(*RelationSpec)

// Relation builds a RelationSpec targeting the named model. The Name field
// is filled in by ModelSpec.AddRelation from the map key the caller uses,
// mirroring the teacher's Schema.Relations map[string]Relation.
func Relation(target string, cardinality Cardinality, opts ...RelationOption) RelationSpec {
	r := RelationSpec{
		Target:      target,
		Cardinality: cardinality,
		DisabledOn:  map[Backend]bool{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func BackPopulates(name string) RelationOption {
	return func(r *RelationSpec) { r.BackPopulates = name }
}

func CascadeDelete() RelationOption {
	return func(r *RelationSpec) { r.CascadeDelete = true }
}

func PassiveDeletes() RelationOption {
	return func(r *RelationSpec) { r.PassiveDeletes = true }
}

func LinkModel(name string) RelationOption {
	return func(r *RelationSpec) { r.LinkModel = name }
}

func RelationDisableOnRelational() RelationOption {
	return func(r *RelationSpec) { r.DisabledOn[Relational] = true }
}

func RelationDisableOnDocument() RelationOption {
	return func(r *RelationSpec) { r.DisabledOn[Document] = true }
}

func RelationDisableOnKv() RelationOption {
	return func(r *RelationSpec) { r.DisabledOn[Kv] = true }
}

// IsDisabledOn reports whether this relation is compiled out of the given
// backend's CompiledModel.
func (r RelationSpec) IsDisabledOn(b Backend) bool {
	return r.DisabledOn[b]
}

// IsManyToMany reports whether this relation is realized through a link
// model rather than a direct foreign key.
func (r RelationSpec) IsManyToMany() bool {
	return r.LinkModel != ""
}
