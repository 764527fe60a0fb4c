package schema

// FieldType is the semantic type of a field, independent of any backend's
// native column/BSON/value type.
type FieldType string

const (
	TypeInt       FieldType = "int"
	TypeFloat     FieldType = "float"
	TypeString    FieldType = "string"
	TypeBool      FieldType = "bool"
	TypeTimestamp FieldType = "timestamp"
	TypeBytes     FieldType = "bytes"
	TypeJSON      FieldType = "json"
	TypeReference FieldType = "reference"
)

// OnDeleteAction is relational-only: the FK action to take when the
// referenced row is removed.
type OnDeleteAction string

const (
	OnDeleteCascade  OnDeleteAction = "cascade"
	OnDeleteSetNull  OnDeleteAction = "set_null"
	OnDeleteRestrict OnDeleteAction = "restrict"
)

// VectorOptions configures the kv backend's vector index for a field.
type VectorOptions struct {
	Dimensions int
	Distance   string // e.g. "cosine", "l2", "ip"
}

// FieldSpec is the declarative metadata for one field of a ModelSpec.
// Built via Field(name, type, options...); immutable once attached to a
// ModelSpec.
type FieldSpec struct {
	Name           string
	Type           FieldType
	Default        any
	DefaultFactory func() any
	Nullable       bool
	Indexed        bool
	FullTextSearch bool
	Unique         bool
	PrimaryKey     bool
	Sortable       bool
	CaseSensitive  bool

	ForeignKey string // relational-only, "table.column"
	OnDelete   OnDeleteAction

	DisabledOn map[Backend]bool

	VectorOptions *VectorOptions
}

// FieldOption mutates a FieldSpec under construction.
type FieldOption func(*FieldSpec)

// Field builds a FieldSpec. Options are applied in order, so later options
// override earlier ones on conflicting settings.
func Field(name string, typ FieldType, opts ...FieldOption) FieldSpec {
	f := FieldSpec{
		Name:       name,
		Type:       typ,
		DisabledOn: map[Backend]bool{},
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

func WithDefault(v any) FieldOption {
	return func(f *FieldSpec) { f.Default = v }
}

func WithDefaultFactory(fn func() any) FieldOption {
	return func(f *FieldSpec) { f.DefaultFactory = fn }
}

func Nullable() FieldOption {
	return func(f *FieldSpec) { f.Nullable = true }
}

func Indexed() FieldOption {
	return func(f *FieldSpec) { f.Indexed = true }
}

func FullTextSearch() FieldOption {
	return func(f *FieldSpec) { f.FullTextSearch = true }
}

func Unique() FieldOption {
	return func(f *FieldSpec) { f.Unique = true }
}

func PrimaryKey() FieldOption {
	return func(f *FieldSpec) { f.PrimaryKey = true }
}

func Sortable() FieldOption {
	return func(f *FieldSpec) { f.Sortable = true }
}

func CaseSensitive() FieldOption {
	return func(f *FieldSpec) { f.CaseSensitive = true }
}

func ForeignKey(ref string) FieldOption {
	return func(f *FieldSpec) { f.ForeignKey = ref }
}

func OnDelete(action OnDeleteAction) FieldOption {
	return func(f *FieldSpec) { f.OnDelete = action }
}

func DisableOnRelational() FieldOption {
	return func(f *FieldSpec) { f.DisabledOn[Relational] = true }
}

func DisableOnDocument() FieldOption {
	return func(f *FieldSpec) { f.DisabledOn[Document] = true }
}

func DisableOnKv() FieldOption {
	return func(f *FieldSpec) { f.DisabledOn[Kv] = true }
}

func WithVectorOptions(v VectorOptions) FieldOption {
	return func(f *FieldSpec) { f.VectorOptions = &v }
}

// IsDisabledOn reports whether this field is compiled out of the given
// backend's CompiledModel.
func (f FieldSpec) IsDisabledOn(b Backend) bool {
	return f.DisabledOn[b]
}
