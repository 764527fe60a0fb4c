// Package translate implements the Query Translator (§4.4): a pure
// function of (backend, model, selector) that walks the selector AST and
// emits one of three native filter representations. It performs no I/O and
// carries no mutable state other than the tree being walked (§3.2 inv. 5).
package translate

import (
	"fmt"

	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/translate/document"
	"github.com/sopherapps/nqlstore/translate/kv"
	"github.com/sopherapps/nqlstore/translate/relational"
	"github.com/sopherapps/nqlstore/translate/warn"
)

// Resolver looks up a CompiledModel by name so the translator can follow a
// dotted path across a relation into the target model. Implemented by
// whichever store owns the registry + backend in question.
type Resolver interface {
	Compiled(modelName string) (*schema.CompiledModel, error)
}

// Warning is emitted for a backend-only operator that the selector named
// but the target backend does not support (§4.4, §7): no filter is added
// for it, and it propagates to the caller instead of being thrown away
// silently.
type Warning struct {
	Path     string
	Operator string
	Backend  schema.Backend
	Message  string
}

// Result is the backend-tagged outcome of Translate. Exactly one of the
// three filter fields is set, matching the requested backend.
type Result struct {
	Backend    schema.Backend
	Relational *relational.Filter
	Document   *document.Filter
	Kv         *kv.Filter
	Warnings   []Warning
}

// Translate compiles sel into the native filter representation for
// backend, resolving relation-crossing dotted paths against model via
// resolver.
func Translate(backend schema.Backend, model *schema.CompiledModel, resolver Resolver, sel *selector.SelectorNode) (*Result, error) {
	switch backend {
	case schema.Relational:
		f, warnings, err := relational.Translate(model, relationalResolver{resolver}, sel)
		if err != nil {
			return nil, err
		}
		return &Result{Backend: backend, Relational: f, Warnings: lift(backend, warnings)}, nil
	case schema.Document:
		f, warnings, err := document.Translate(model, documentResolver{resolver}, sel)
		if err != nil {
			return nil, err
		}
		return &Result{Backend: backend, Document: f, Warnings: lift(backend, warnings)}, nil
	case schema.Kv:
		f, warnings, err := kv.Translate(model, kvResolver{resolver}, sel)
		if err != nil {
			return nil, err
		}
		return &Result{Backend: backend, Kv: f, Warnings: lift(backend, warnings)}, nil
	default:
		return nil, fmt.Errorf("translate: unknown backend %q", backend)
	}
}

func lift(backend schema.Backend, in []warn.Warning) []Warning {
	out := make([]Warning, 0, len(in))
	for _, w := range in {
		out = append(out, Warning{Path: w.Path, Operator: w.Operator, Backend: backend, Message: w.Message})
	}
	return out
}

type relationalResolver struct{ Resolver }

func (r relationalResolver) Compiled(name string) (*schema.CompiledModel, error) {
	return r.Resolver.Compiled(name)
}

type documentResolver struct{ Resolver }

func (r documentResolver) Compiled(name string) (*schema.CompiledModel, error) {
	return r.Resolver.Compiled(name)
}

type kvResolver struct{ Resolver }

func (r kvResolver) Compiled(name string) (*schema.CompiledModel, error) {
	return r.Resolver.Compiled(name)
}
