// Package document implements the document Store driver (§4.5.2):
// go.mongodb.org/mongo-driver against MongoDB, using translate/document's
// bson.M Filter for WHERE-equivalent matching and compile's CompiledModel
// for collection shape.
//
// Grounded in the teacher's drivers/mongodb/driver.go (NewMongoDB,
// connection lifecycle) and drivers/mongodb/sql_translator.go for the
// filter-document shape the translator already emits into.
package document

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sopherapps/nqlstore/compile"
	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/store"
	doctranslate "github.com/sopherapps/nqlstore/translate/document"
)

// Store implements store.Store against a single Mongo database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	mu       sync.RWMutex
	compiled map[string]*schema.CompiledModel
}

// Open connects to uri and selects dbName, grounded in the teacher's
// NewMongoDB/Connect split (here collapsed into one call since the spec
// has no separate "declare, then connect later" lifecycle).
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	return &Store{client: client, db: client.Database(dbName), compiled: map[string]*schema.CompiledModel{}}, nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) Compiled(name string) (*schema.CompiledModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.compiled[name]
	if !ok {
		return nil, errs.Schema("model %q not registered", name)
	}
	return m, nil
}

// Register compiles every named model for the document backend and
// ensures an index exists for every field marked Indexed/Unique/
// FullTextSearch (§4.5.2, §6.4). Collections themselves need no
// create-if-absent step: Mongo creates them lazily on first insert.
func (s *Store) Register(ctx context.Context, reg *schema.Registry, modelNames ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := modelNames
	if len(names) == 0 {
		names = reg.All()
	}
	for _, name := range names {
		cm, err := compile.Compile(reg, name, schema.Document)
		if err != nil {
			return errs.Schema("compiling %s for document: %v", name, err)
		}
		s.compiled[name] = cm
		if err := ensureIndexes(ctx, s.db.Collection(cm.TableName), cm); err != nil {
			return err
		}
	}
	return nil
}

func ensureIndexes(ctx context.Context, coll *mongo.Collection, model *schema.CompiledModel) error {
	var models []mongo.IndexModel
	var textFields bson.D
	for _, f := range model.Fields {
		switch {
		case f.FullTextSearch:
			textFields = append(textFields, bson.E{Key: f.ColumnName, Value: "text"})
		case f.Unique:
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: f.ColumnName, Value: 1}},
				Options: options.Index().SetUnique(true),
			})
		case f.Indexed:
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f.ColumnName, Value: 1}}})
		}
	}
	if len(textFields) > 0 {
		models = append(models, mongo.IndexModel{Keys: textFields})
	}
	if len(models) == 0 {
		return nil
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return errs.BackendUnavailable("document", err)
	}
	return nil
}

// Insert writes items, then refetches by _id so server-computed defaults
// (a generated ObjectID primary key, in particular) come back in the
// post-image (§4.5.2 step 2).
func (s *Store) Insert(ctx context.Context, model string, items []store.Record, _ store.InsertOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	coll := s.db.Collection(cm.TableName)

	docs := make([]any, len(items))
	for i, item := range items {
		docs[i] = toBSON(cm, item)
	}
	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, errs.Conflict("document", "insert failed: %v", err)
	}
	return s.findByIDs(ctx, cm, res.InsertedIDs)
}

func toBSON(cm *schema.CompiledModel, item store.Record) bson.M {
	doc := bson.M{}
	for _, f := range cm.Fields {
		if v, ok := item[f.Name]; ok {
			doc[f.ColumnName] = v
			continue
		}
		if f.DefaultFactory != nil {
			doc[f.ColumnName] = f.DefaultFactory()
		} else if f.Default != nil {
			doc[f.ColumnName] = f.Default
		}
	}
	// embedded relation payloads nest verbatim as subdocuments.
	for name := range cm.Relations {
		if v, ok := item[name]; ok {
			doc[name] = v
		}
	}
	return doc
}

func (s *Store) findByIDs(ctx context.Context, cm *schema.CompiledModel, ids []any) ([]store.Record, error) {
	coll := s.db.Collection(cm.TableName)
	cur, err := coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur, cm)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor, cm *schema.CompiledModel) ([]store.Record, error) {
	var out []store.Record
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, errs.BackendUnavailable("document", err)
		}
		out = append(out, fromBSON(cm, raw))
	}
	return out, cur.Err()
}

func fromBSON(cm *schema.CompiledModel, raw bson.M) store.Record {
	rec := store.Record{cm.PrimaryKeyName: raw["_id"]}
	for _, f := range cm.Fields {
		if f.Name == cm.PrimaryKeyName {
			continue
		}
		if v, ok := raw[f.ColumnName]; ok {
			rec[f.Name] = v
		}
	}
	for name := range cm.Relations {
		if v, ok := raw[name]; ok {
			rec[name] = v
		}
	}
	return rec
}

func (s *Store) nativeFilter(cm *schema.CompiledModel, native store.NativeFilter, sel *selector.SelectorNode) (bson.M, error) {
	merged := bson.M{}
	var and bson.A

	if f, ok := native.(*doctranslate.Filter); ok && f != nil && len(f.Query) > 0 {
		and = append(and, f.Query)
	}
	if sel != nil {
		f, _, err := doctranslate.Translate(cm, resolverFunc(s.Compiled), sel)
		if err != nil {
			return nil, err
		}
		if len(f.Query) > 0 {
			and = append(and, f.Query)
		}
	}
	switch len(and) {
	case 0:
		return merged, nil
	case 1:
		return and[0].(bson.M), nil
	default:
		return bson.M{"$and": and}, nil
	}
}

type resolverFunc func(string) (*schema.CompiledModel, error)

func (f resolverFunc) Compiled(name string) (*schema.CompiledModel, error) { return f(name) }

// Find runs filter against the model's collection with paging/sort applied.
func (s *Store) Find(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, opts store.FindOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	filter, err := s.nativeFilter(cm, native, sel)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(int64(opts.Skip))
	}
	if len(opts.Sort) > 0 {
		sortDoc := bson.D{}
		for _, sf := range opts.Sort {
			dir := 1
			if sf.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: sf.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}

	cur, err := s.db.Collection(cm.TableName).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur, cm)
}

// Update implements §4.5.2's $set-wrapping: a caller's updates map is a
// plain field:value map (never a raw Mongo update document), so every
// update wraps in {$set: updates} except when the caller has already
// spelled an update operator key ($push, $pull, ...), which is rejected
// mixed with scalar keys per the resolved Open Question (§9): a payload
// mixing an operator key with a scalar key is a SchemaError, not silently
// merged.
func (s *Store) Update(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, updates store.Record, opts store.UpdateOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	filter, err := s.nativeFilter(cm, native, sel)
	if err != nil {
		return nil, err
	}

	update, err := wrapUpdate(cm, updates)
	if err != nil {
		return nil, err
	}

	coll := s.db.Collection(cm.TableName)
	_, err = coll.UpdateMany(ctx, filter, update, options.Update().SetUpsert(opts.Upsert))
	if err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}

	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	defer cur.Close(ctx)
	return decodeAll(ctx, cur, cm)
}

func wrapUpdate(cm *schema.CompiledModel, updates store.Record) (bson.M, error) {
	hasOperator := false
	hasScalar := false
	for k := range updates {
		if len(k) > 0 && k[0] == '$' {
			hasOperator = true
		} else {
			hasScalar = true
		}
	}
	if hasOperator && hasScalar {
		return nil, errs.Schema("update payload for %s mixes an update operator with a plain field — split into separate Update calls", cm.Name)
	}
	if hasOperator {
		return bson.M(updates), nil
	}
	set := bson.M{}
	for k, v := range updates {
		set[k] = v
	}
	return bson.M{"$set": set}, nil
}

// Delete snapshots matches before removing them (§4.5.1/§4.5.2 delete
// semantics, §5: returns the pre-image).
func (s *Store) Delete(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, _ store.DeleteOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	filter, err := s.nativeFilter(cm, native, sel)
	if err != nil {
		return nil, err
	}

	coll := s.db.Collection(cm.TableName)
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	pre, err := decodeAll(ctx, cur, cm)
	cur.Close(ctx)
	if err != nil {
		return nil, err
	}
	if len(pre) == 0 {
		return nil, nil
	}

	if _, err := coll.DeleteMany(ctx, filter); err != nil {
		return nil, errs.BackendUnavailable("document", err)
	}
	return pre, nil
}
