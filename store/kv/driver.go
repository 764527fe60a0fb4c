// Package kv implements the kv Store driver (§4.5.3): redis/go-redis/v9
// against Redis, modeling each record as a Hash and each indexed field
// value as a Set of member ids, evaluated against translate/kv's boolean
// Expr tree.
//
// Grounded in original_source/nqlstore/_redis.py's RedisModel (hash +
// secondary-index-set layout) since the Go teacher carries no kv/Redis
// driver of its own; the Go shape (one Store struct wrapping *redis.Client,
// the same five-method contract as store/relational and store/document)
// follows the teacher's own driver-struct convention regardless.
package kv

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sopherapps/nqlstore/compile"
	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/store"
	kvtranslate "github.com/sopherapps/nqlstore/translate/kv"
)

// Store implements store.Store against one Redis client.
type Store struct {
	rdb *redis.Client

	mu       sync.RWMutex
	compiled map[string]*schema.CompiledModel
}

// Open connects to a Redis instance at addr.
func Open(addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errs.BackendUnavailable("kv", err)
	}
	return &Store{rdb: rdb, compiled: map[string]*schema.CompiledModel{}}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Compiled(name string) (*schema.CompiledModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.compiled[name]
	if !ok {
		return nil, errs.Schema("model %q not registered", name)
	}
	return m, nil
}

// Register compiles every named model for the kv backend. There is no
// schema to migrate in Redis; "migration" here (§4.5.3) is just recording
// which fields are indexed so Insert/Update know which Sets to maintain —
// idempotent by construction since it only updates in-process state.
func (s *Store) Register(_ context.Context, reg *schema.Registry, modelNames ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := modelNames
	if len(names) == 0 {
		names = reg.All()
	}
	for _, name := range names {
		cm, err := compile.Compile(reg, name, schema.Kv)
		if err != nil {
			return errs.Schema("compiling %s for kv: %v", name, err)
		}
		s.compiled[name] = cm
	}
	return nil
}

func recordKey(namespace, id string) string { return namespace + ":" + id }
func indexKey(namespace, field string, value any) string {
	return fmt.Sprintf("%s:idx:%s:%v", namespace, field, value)
}
func tokenIndexKey(namespace, field, token string) string {
	return fmt.Sprintf("%s:text:%s:%s", namespace, field, token)
}

// Insert writes each item as a Hash keyed by a generated id, maintaining a
// secondary-index Set per indexed field value and an inverted token Set
// per fullTextSearch field (§4.5.3 steps 2-3).
func (s *Store) Insert(ctx context.Context, model string, items []store.Record, _ store.InsertOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}

	var out []store.Record
	for _, item := range items {
		id := uuid.NewString()
		rec := store.Record{cm.PrimaryKeyName: id}
		for k, v := range item {
			rec[k] = v
		}

		pipe := s.rdb.TxPipeline()
		hashFields := map[string]any{}
		for _, f := range cm.Fields {
			v, ok := rec[f.Name]
			if !ok {
				if f.DefaultFactory != nil {
					v = f.DefaultFactory()
				} else if f.Default != nil {
					v = f.Default
				} else {
					continue
				}
				rec[f.Name] = v
			}
			hashFields[f.ColumnName] = toRedisValue(v)
			if f.Indexed {
				pipe.SAdd(ctx, indexKey(cm.TableName, f.ColumnName, v), id)
			}
			if f.FullTextSearch {
				for _, tok := range tokenize(fmt.Sprint(v)) {
					pipe.SAdd(ctx, tokenIndexKey(cm.TableName, f.ColumnName, tok), id)
				}
			}
		}
		pipe.HSet(ctx, recordKey(cm.TableName, id), hashFields)
		pipe.SAdd(ctx, cm.TableName+":ids", id)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func toRedisValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return v
	}
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func (s *Store) fetch(ctx context.Context, cm *schema.CompiledModel, ids []string) ([]store.Record, error) {
	var out []store.Record
	for _, id := range ids {
		vals, err := s.rdb.HGetAll(ctx, recordKey(cm.TableName, id)).Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		if len(vals) == 0 {
			continue
		}
		rec := store.Record{cm.PrimaryKeyName: id}
		for _, f := range cm.Fields {
			if f.Name == cm.PrimaryKeyName {
				continue
			}
			if v, ok := vals[f.ColumnName]; ok {
				rec[f.Name] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// matchIDs evaluates expr against the secondary-index Sets this model
// maintains, returning the member ids that satisfy it.
func (s *Store) matchIDs(ctx context.Context, cm *schema.CompiledModel, expr *kvtranslate.Expr) ([]string, error) {
	if expr == nil {
		return s.rdb.SMembers(ctx, cm.TableName+":ids").Result()
	}
	switch expr.Kind {
	case kvtranslate.ExprAnd:
		if len(expr.Children) == 0 {
			// an empty conjunction places no constraint.
			return s.rdb.SMembers(ctx, cm.TableName+":ids").Result()
		}
		return s.combine(ctx, cm, expr.Children, intersect)
	case kvtranslate.ExprOr:
		return s.combine(ctx, cm, expr.Children, union)
	case kvtranslate.ExprNot:
		all, err := s.rdb.SMembers(ctx, cm.TableName+":ids").Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		inner, err := s.matchIDs(ctx, cm, expr.Child)
		if err != nil {
			return nil, err
		}
		return diff(all, inner), nil
	case kvtranslate.ExprCmp:
		return s.matchCmp(ctx, cm, expr)
	}
	return nil, errs.Translation("kv", "unknown expr kind %q", expr.Kind)
}

// combine evaluates each child against its own index Set(s) and folds the
// results client side with merge (intersect for AND, union for OR), since
// the child sets named here are often derived (range scans, $in unions)
// rather than single Redis keys Redis's own SINTER/SUNION could combine
// server side.
func (s *Store) combine(ctx context.Context, cm *schema.CompiledModel, children []*kvtranslate.Expr, merge func(a, b []string) []string) ([]string, error) {
	sets := make([][]string, len(children))
	for i, c := range children {
		ids, err := s.matchIDs(ctx, cm, c)
		if err != nil {
			return nil, err
		}
		sets[i] = ids
	}
	if len(sets) == 0 {
		return nil, nil
	}
	result := sets[0]
	for _, s2 := range sets[1:] {
		result = merge(result, s2)
	}
	return result, nil
}

func (s *Store) matchCmp(ctx context.Context, cm *schema.CompiledModel, expr *kvtranslate.Expr) ([]string, error) {
	field, ok := cm.GetField(fieldName(expr.Field))
	if !ok {
		return nil, errs.Translation("kv", "field %q not found on model %s", expr.Field, cm.Name)
	}
	switch expr.Op {
	case kvtranslate.CmpEq:
		return s.rdb.SMembers(ctx, indexKey(cm.TableName, field.ColumnName, expr.Value)).Result()
	case kvtranslate.CmpNe:
		all, err := s.rdb.SMembers(ctx, cm.TableName+":ids").Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		eq, err := s.rdb.SMembers(ctx, indexKey(cm.TableName, field.ColumnName, expr.Value)).Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		return diff(all, eq), nil
	case kvtranslate.CmpIn:
		var keys []string
		for _, v := range expr.List {
			keys = append(keys, indexKey(cm.TableName, field.ColumnName, v))
		}
		ids, err := s.rdb.SUnion(ctx, keys...).Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		return ids, nil
	case kvtranslate.CmpNin:
		all, err := s.rdb.SMembers(ctx, cm.TableName+":ids").Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		var keys []string
		for _, v := range expr.List {
			keys = append(keys, indexKey(cm.TableName, field.ColumnName, v))
		}
		in, err := s.rdb.SUnion(ctx, keys...).Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		return diff(all, in), nil
	case kvtranslate.CmpGt, kvtranslate.CmpGte, kvtranslate.CmpLt, kvtranslate.CmpLte:
		return s.matchRange(ctx, cm, field, expr.Op, expr.Value)
	default:
		return nil, errs.Translation("kv", "unsupported kv comparison %q", expr.Op)
	}
}

// matchRange implements range comparisons by scanning this field's index
// keys, since a plain Redis Set index has no native ordering: acceptable
// at this model's scale (secondary indexes are small, enumerated client
// side) and mirrors the linear scan _redis.py's own range predicates fall
// back to once redis-om's numeric sorted-set index isn't available.
func (s *Store) matchRange(ctx context.Context, cm *schema.CompiledModel, field *schema.CompiledField, op kvtranslate.CmpOp, value any) ([]string, error) {
	pattern := indexKey(cm.TableName, field.ColumnName, "*")
	keys, err := s.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, errs.BackendUnavailable("kv", err)
	}
	prefix := indexKey(cm.TableName, field.ColumnName, "")
	var matched []string
	for _, k := range keys {
		raw := strings.TrimPrefix(k, prefix)
		if !compareNumeric(raw, op, value) {
			continue
		}
		ids, err := s.rdb.SMembers(ctx, k).Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		matched = append(matched, ids...)
	}
	return matched, nil
}

func compareNumeric(raw string, op kvtranslate.CmpOp, value any) bool {
	a, err1 := strconv.ParseFloat(raw, 64)
	b, err2 := toFloat(value)
	if err1 != nil || err2 != nil {
		return false
	}
	switch op {
	case kvtranslate.CmpGt:
		return a > b
	case kvtranslate.CmpGte:
		return a >= b
	case kvtranslate.CmpLt:
		return a < b
	case kvtranslate.CmpLte:
		return a <= b
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return strconv.ParseFloat(fmt.Sprint(v), 64)
	}
}

func fieldName(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	in := map[string]bool{}
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}

func diff(all, exclude []string) []string {
	ex := map[string]bool{}
	for _, s := range exclude {
		ex[s] = true
	}
	var out []string
	for _, s := range all {
		if !ex[s] {
			out = append(out, s)
		}
	}
	return out
}

func (s *Store) resolveIDs(ctx context.Context, cm *schema.CompiledModel, native store.NativeFilter, sel *selector.SelectorNode) ([]string, error) {
	var expr *kvtranslate.Expr
	if f, ok := native.(*kvtranslate.Filter); ok && f != nil {
		expr = f.Expr
	}
	if sel != nil {
		f, _, err := kvtranslate.Translate(cm, resolverFunc(s.Compiled), sel)
		if err != nil {
			return nil, err
		}
		if expr != nil {
			expr = &kvtranslate.Expr{Kind: kvtranslate.ExprAnd, Children: []*kvtranslate.Expr{expr, f.Expr}}
		} else {
			expr = f.Expr
		}
	}
	return s.matchIDs(ctx, cm, expr)
}

type resolverFunc func(string) (*schema.CompiledModel, error)

func (f resolverFunc) Compiled(name string) (*schema.CompiledModel, error) { return f(name) }

// Find resolves matching ids against the index Sets, then loads each
// record's Hash, applying Sort/Skip/Limit client side (§4.5.3).
func (s *Store) Find(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, opts store.FindOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	ids, err := s.resolveIDs(ctx, cm, native, sel)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	recs, err := s.fetch(ctx, cm, ids)
	if err != nil {
		return nil, err
	}
	recs = applySortSkipLimit(recs, opts)
	return recs, nil
}

func applySortSkipLimit(recs []store.Record, opts store.FindOptions) []store.Record {
	if len(opts.Sort) > 0 {
		sf := opts.Sort[0]
		sort.SliceStable(recs, func(i, j int) bool {
			less := fmt.Sprint(recs[i][sf.Field]) < fmt.Sprint(recs[j][sf.Field])
			if sf.Desc {
				return !less
			}
			return less
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(recs) {
			return nil
		}
		recs = recs[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(recs) {
		recs = recs[:opts.Limit]
	}
	return recs
}

// Update re-reads each matched record's old index memberships, applies
// updates to the Hash, and re-files Set membership for any changed
// indexed/fullTextSearch field (§4.5.3 "re-indexing on update").
func (s *Store) Update(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, updates store.Record, _ store.UpdateOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	ids, err := s.resolveIDs(ctx, cm, native, sel)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := s.updateOne(ctx, cm, id, updates); err != nil {
			return nil, err
		}
	}
	return s.fetch(ctx, cm, ids)
}

func (s *Store) updateOne(ctx context.Context, cm *schema.CompiledModel, id string, updates store.Record) error {
	old, err := s.rdb.HGetAll(ctx, recordKey(cm.TableName, id)).Result()
	if err != nil {
		return errs.BackendUnavailable("kv", err)
	}

	pipe := s.rdb.TxPipeline()
	hashFields := map[string]any{}
	for k, v := range updates {
		f, ok := cm.GetField(k)
		if !ok {
			return errs.Translation("kv", "update field %q not found on model %s", k, cm.Name)
		}
		hashFields[f.ColumnName] = toRedisValue(v)
		if f.Indexed {
			if oldVal, ok := old[f.ColumnName]; ok {
				pipe.SRem(ctx, indexKey(cm.TableName, f.ColumnName, oldVal), id)
			}
			pipe.SAdd(ctx, indexKey(cm.TableName, f.ColumnName, v), id)
		}
		if f.FullTextSearch {
			if oldVal, ok := old[f.ColumnName]; ok {
				for _, tok := range tokenize(oldVal) {
					pipe.SRem(ctx, tokenIndexKey(cm.TableName, f.ColumnName, tok), id)
				}
			}
			for _, tok := range tokenize(fmt.Sprint(v)) {
				pipe.SAdd(ctx, tokenIndexKey(cm.TableName, f.ColumnName, tok), id)
			}
		}
	}
	pipe.HSet(ctx, recordKey(cm.TableName, id), hashFields)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.BackendUnavailable("kv", err)
	}
	return nil
}

// Delete snapshots matched records, removes their Hash, index Set, and
// token Set memberships, then the id itself from the model's id Set.
func (s *Store) Delete(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, _ store.DeleteOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	ids, err := s.resolveIDs(ctx, cm, native, sel)
	if err != nil {
		return nil, err
	}
	pre, err := s.fetch(ctx, cm, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		old, err := s.rdb.HGetAll(ctx, recordKey(cm.TableName, id)).Result()
		if err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
		pipe := s.rdb.TxPipeline()
		for _, f := range cm.Fields {
			if f.Indexed {
				if v, ok := old[f.ColumnName]; ok {
					pipe.SRem(ctx, indexKey(cm.TableName, f.ColumnName, v), id)
				}
			}
			if f.FullTextSearch {
				if v, ok := old[f.ColumnName]; ok {
					for _, tok := range tokenize(v) {
						pipe.SRem(ctx, tokenIndexKey(cm.TableName, f.ColumnName, tok), id)
					}
				}
			}
		}
		pipe.Del(ctx, recordKey(cm.TableName, id))
		pipe.SRem(ctx, cm.TableName+":ids", id)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errs.BackendUnavailable("kv", err)
		}
	}
	return pre, nil
}
