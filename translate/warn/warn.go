// Package warn defines the Warning shape shared by all three backend
// translators, kept in its own package so relational/document/kv don't
// need to import each other or the top-level translate package.
package warn

// Warning is emitted for a backend-only operator that the selector named
// but the target backend does not support (§4.4, §7): no filter is added
// for it.
type Warning struct {
	Path     string
	Operator string
	Message  string
}
