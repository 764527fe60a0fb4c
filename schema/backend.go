package schema

// Backend identifies one of the three store kinds the translator and model
// compiler target.
type Backend string

const (
	Relational Backend = "relational"
	Document   Backend = "document"
	Kv         Backend = "kv"
)

// All lists every recognized backend, in a stable order, useful for
// iterating all compiled variants of a model.
func All() []Backend {
	return []Backend{Relational, Document, Kv}
}
