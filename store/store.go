// Package store defines the Store contract (§6.3) implemented by the three
// backend drivers (store/relational, store/document, store/kv) and the
// shared record/option shapes they all take and return.
//
// Grounded in the teacher's types.Database interface (database/database.go,
// types/database.go): one interface, three drivers behind it, each method
// taking a context.Context first arg for cancellation (§5) the same way the
// teacher's Connect/Close/CreateTable/etc. do.
package store

import (
	"context"

	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
)

// Record is a single row/document/hash, keyed by logical field name (not
// the backend's physical column/BSON-key/hash-field name — that mapping is
// each driver's own concern).
type Record map[string]any

// SortField is one ORDER BY / sort key.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions controls paging, ordering, and relation loading for Find.
type FindOptions struct {
	Skip      int
	Limit     int // 0 means unlimited
	Sort      []SortField
	EagerLoad []string // relation names to eager-load even if no filter touches them (relational only)
}

// InsertOptions controls Insert's conflict policy. The zero value is
// "on conflict do nothing", matching §4.5.1 step 2's default.
type InsertOptions struct{}

// UpdateOptions controls Update, notably the upsert flag (§6.3).
type UpdateOptions struct {
	Upsert bool
}

// DeleteOptions is currently featureless; kept for symmetry and so the
// Store interface can grow options without breaking callers.
type DeleteOptions struct{}

// NativeFilter is whatever translate.Result carries for the target
// backend (*relational.Filter, *document.Filter, or *kv.Filter), passed
// alongside or instead of a portable selector per §6.3's
// `nativeFilters*, query?: selector` signature.
type NativeFilter any

// Store is the five-method contract every backend driver satisfies
// (§3.3, §6.3, §9 "duck-typed backend interfaces -> explicit Store
// interface"). Register must run before any other method is called for a
// model name.
type Store interface {
	// Register compiles and persists (create-table/collection/index)
	// every named model against reg for this store's backend.
	Register(ctx context.Context, reg *schema.Registry, modelNames ...string) error

	// Insert validates and writes items, returning the post-image
	// (including server-computed defaults such as an auto-increment id
	// or document _id).
	Insert(ctx context.Context, model string, items []Record, opts InsertOptions) ([]Record, error)

	// Find combines native and sel (ANDed together when both given) and
	// returns matching records. The document driver returns embedded
	// relation payloads as stored; the relational and kv drivers return the
	// model's own fields only, without relations.
	Find(ctx context.Context, model string, native NativeFilter, sel *selector.SelectorNode, opts FindOptions) ([]Record, error)

	// Update applies updates to every record matching native/sel and
	// returns the post-image.
	Update(ctx context.Context, model string, native NativeFilter, sel *selector.SelectorNode, updates Record, opts UpdateOptions) ([]Record, error)

	// Delete removes every record matching native/sel and returns the
	// pre-image (§4.5.1 step 1: "snapshots before deletion" — §5).
	Delete(ctx context.Context, model string, native NativeFilter, sel *selector.SelectorNode, opts DeleteOptions) ([]Record, error)

	// Close releases the underlying driver handle.
	Close() error
}

// Capabilities is the supplemented dialect-capability flag set (SPEC_FULL.md
// "Supplemented features"), grounded in the teacher's per-driver
// drivers/*/capabilities.go files: the relational store needs to know at
// the call site whether to use RETURNING or a last-insert-id refetch, and
// whether regex is a native operator or a user-registered function.
type Capabilities interface {
	SupportsReturning() bool
	SupportsRegexpFunction() bool
}
