package relational

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sopherapps/nqlstore/compile"
	"github.com/sopherapps/nqlstore/errs"
	"github.com/sopherapps/nqlstore/schema"
	"github.com/sopherapps/nqlstore/selector"
	"github.com/sopherapps/nqlstore/store"
	reltranslate "github.com/sopherapps/nqlstore/translate/relational"
)

// Store implements store.Store against database/sql, grounded in the
// teacher's drivers/sqlite + drivers/postgresql + drivers/mysql driver.go
// files collapsed behind the Dialect interface (dialect.go), and its
// query/insert_query.go, query/update_query.go, query/delete_query.go for
// the conflict-policy / replace-semantics / subquery-rewrite shapes.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu       sync.RWMutex
	reg      *schema.Registry
	compiled map[string]*schema.CompiledModel
}

// Open connects to the relational backend named by dsn using dialect.
func Open(dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	return &Store{db: db, dialect: dialect, compiled: map[string]*schema.CompiledModel{}}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Compiled(name string) (*schema.CompiledModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.compiled[name]
	if !ok {
		return nil, errs.Schema("model %q not registered", name)
	}
	return m, nil
}

// Register compiles every named model (and any many-to-many link model it
// names) against reg, and creates their tables/indexes if absent (§4.2
// step 4, §6.4).
func (s *Store) Register(ctx context.Context, reg *schema.Registry, modelNames ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg = reg

	names := modelNames
	if len(names) == 0 {
		names = reg.All()
	}

	seen := map[string]bool{}
	var queue []string
	queue = append(queue, names...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		cm, err := compile.Compile(reg, name, schema.Relational)
		if err != nil {
			return errs.Schema("compiling %s for relational: %v", name, err)
		}
		s.compiled[name] = cm

		for _, rel := range cm.Relations {
			if rel.IsManyToMany() {
				queue = append(queue, rel.LinkModel)
			}
		}
	}

	for _, name := range orderedKeys(s.compiled) {
		if err := ensureTable(ctx, s.db, s.dialect, s.compiled[name]); err != nil {
			return err
		}
	}
	return nil
}

func orderedKeys(m map[string]*schema.CompiledModel) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Insert implements §4.5.1 step 2-5: conflict-do-nothing insert of the
// parent row, then bulk insert of every embedded relation's payload into
// its child/link table, then a refetch by id. The refetched records carry
// the model's own columns only; relations are not loaded onto them.
func (s *Store) Insert(ctx context.Context, model string, items []store.Record, _ store.InsertOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}

	var inserted []store.Record
	for _, item := range items {
		id, err := s.insertOne(ctx, cm, item)
		if e, ok := err.(*errs.Error); ok && e.Cause == sql.ErrNoRows {
			// RETURNING yields no row when ON CONFLICT DO NOTHING skipped it.
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := s.insertEmbeddedRelations(ctx, cm, id, item); err != nil {
			return nil, err
		}
		inserted = append(inserted, id)
	}

	ids := make([]any, len(inserted))
	for i, r := range inserted {
		ids[i] = r[cm.PrimaryKeyName]
	}
	return s.findByIDs(ctx, cm, ids)
}

func (s *Store) insertOne(ctx context.Context, cm *schema.CompiledModel, item store.Record) (store.Record, error) {
	var cols []string
	var args []any
	for _, f := range cm.Fields {
		v, ok := item[f.Name]
		if !ok {
			if f.DefaultFactory != nil {
				v = f.DefaultFactory()
			} else if f.Default != nil {
				v = f.Default
			} else {
				continue
			}
		}
		cols = append(cols, f.ColumnName)
		args = append(args, v)
	}

	// A many-to-one relation key whose value is a bare id (not an embedded
	// record/list) sets its own FK column directly, e.g. {"author": 3}
	// rather than {"author": {...}} (which insertEmbeddedRelations handles).
	for name, rel := range cm.Relations {
		if rel.Cardinality != schema.One || rel.IsManyToMany() {
			continue
		}
		v, ok := item[name]
		if !ok {
			continue
		}
		if _, isRecord := v.(store.Record); isRecord {
			continue
		}
		fkCol := rel.TargetColumn
		if fkCol == "" {
			fkCol = schema.CamelToSnakeCase(name) + "_id"
		}
		cols = append(cols, fkCol)
		args = append(args, v)
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	conflictClause := "ON CONFLICT DO NOTHING"
	if s.dialect.Name() == "mysql" {
		conflictClause = "" // emulated via INSERT IGNORE prefix instead
	}
	insertVerb := "INSERT"
	if s.dialect.Name() == "mysql" {
		insertVerb = "INSERT IGNORE"
	}

	stmt := fmt.Sprintf("%s INTO %s (%s) VALUES (%s) %s",
		insertVerb, cm.TableName, strings.Join(cols, ", "), strings.Join(placeholders, ", "), conflictClause)

	if s.dialect.SupportsReturning() {
		stmt += fmt.Sprintf(" RETURNING %s", cm.PrimaryKeyName)
		var id any
		if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return nil, errs.BackendUnavailable("relational", err)
		}
		out := store.Record{cm.PrimaryKeyName: id}
		for k, v := range item {
			out[k] = v
		}
		return out, nil
	}

	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	out := store.Record{cm.PrimaryKeyName: id}
	for k, v := range item {
		out[k] = v
	}
	return out, nil
}

// insertEmbeddedRelations fans out, per relation present in item, into a
// bulk insert of the child/link rows (§4.5.1 step 3-4), one errgroup
// goroutine per relation so independent relations insert concurrently. The
// number of concurrent goroutines is not capped.
func (s *Store) insertEmbeddedRelations(ctx context.Context, cm *schema.CompiledModel, parent store.Record, item store.Record) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, rel := range cm.Relations {
		name, rel := name, rel
		payload, ok := item[name]
		if !ok {
			continue
		}
		if rel.Cardinality == schema.One && !rel.IsManyToMany() {
			// a bare scalar id here was already written as the FK column by
			// insertOne; only an embedded record/list needs a child insert.
			if _, isRecord := payload.(store.Record); !isRecord {
				if _, isList := payload.([]store.Record); !isList {
					continue
				}
			}
		}
		g.Go(func() error {
			return s.insertRelationPayload(ctx, cm, name, rel, parent, payload)
		})
	}
	return g.Wait()
}

func (s *Store) insertRelationPayload(ctx context.Context, parentModel *schema.CompiledModel, name string, rel schema.CompiledRelation, parent store.Record, payload any) error {
	children, ok := payload.([]store.Record)
	if !ok {
		if one, ok := payload.(store.Record); ok {
			children = []store.Record{one}
		} else {
			return errs.Schema("relation %q payload must be a record or list of records, got %T", name, payload)
		}
	}
	if len(children) == 0 {
		return nil
	}

	childModel, err := s.Compiled(rel.Target)
	if err != nil {
		return err
	}

	if rel.IsManyToMany() {
		return s.insertLinkRows(ctx, rel, parent[parentModel.PrimaryKeyName], children, childModel)
	}

	fkCol := rel.TargetColumn
	if fkCol == "" {
		fkCol = schema.CamelToSnakeCase(name) + "_id"
	}
	for _, child := range children {
		withFK := store.Record{}
		for k, v := range child {
			withFK[k] = v
		}
		withFK[fkCol] = parent[parentModel.PrimaryKeyName]
		if _, err := s.insertOne(ctx, childModel, withFK); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertLinkRows(ctx context.Context, rel schema.CompiledRelation, parentID any, children []store.Record, childModel *schema.CompiledModel) error {
	linkModel, err := s.Compiled(rel.LinkModel)
	if err != nil {
		return err
	}
	var nextID int64
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", linkModel.PrimaryKeyName, linkModel.TableName))
	_ = row.Scan(&nextID)

	for _, child := range children {
		childID, err := s.insertOne(ctx, childModel, child)
		if err != nil {
			return err
		}
		nextID++
		linkRow := store.Record{
			linkModel.PrimaryKeyName: nextID,
			"parentId":                parentID,
			"childId":                 childID[childModel.PrimaryKeyName],
		}
		if _, err := s.insertOne(ctx, linkModel, linkRow); err != nil {
			return err
		}
	}
	return nil
}

// filterSQL combines native and sel (ANDed) into a WHERE-clause fragment
// plus args, and returns the relation hops any predicate touched.
func (s *Store) filterSQL(cm *schema.CompiledModel, native store.NativeFilter, sel *selector.SelectorNode) (string, []any, []reltranslate.Hop, error) {
	var parts []string
	var args []any
	var hops []reltranslate.Hop

	if f, ok := native.(*reltranslate.Filter); ok && f != nil {
		sql, a := f.ToSQL()
		if sql != "" {
			parts = append(parts, sql)
			args = append(args, a...)
		}
		hops = append(hops, f.Hops...)
	}

	if sel != nil {
		filter, _, err := reltranslate.TranslateDialect(cm, resolverFunc(s.Compiled), sel, s.dialect.TranslateDialect())
		if err != nil {
			return "", nil, nil, err
		}
		sql, a := filter.ToSQL()
		if sql != "" {
			parts = append(parts, sql)
			args = append(args, a...)
		}
		hops = append(hops, filter.Hops...)
	}

	where := strings.Join(parts, " AND ")
	where = renumberPlaceholders(where, s.dialect)
	return where, args, hops, nil
}

// renumberPlaceholders rewrites the translator's dialect-agnostic "?"
// markers into this dialect's actual placeholder syntax (sqlite/mysql keep
// "?"; postgres needs sequential $N).
func renumberPlaceholders(sqlFrag string, d Dialect) string {
	if sqlFrag == "" || d.Placeholder(1) == "?" {
		return sqlFrag
	}
	var b strings.Builder
	n := 0
	for _, r := range sqlFrag {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type resolverFunc func(string) (*schema.CompiledModel, error)

func (f resolverFunc) Compiled(name string) (*schema.CompiledModel, error) { return f(name) }

// Find implements §4.5.1's Find: INNER JOIN every relation any predicate
// touched, LIMIT/OFFSET/ORDER BY. The returned records carry the model's
// own columns only; relations are not loaded onto them.
func (s *Store) Find(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, opts store.FindOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	where, args, hops, err := s.filterSQL(cm, native, sel)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", selectColumns(cm), cm.TableName)
	for _, h := range hops {
		query += fmt.Sprintf(" INNER JOIN %s AS %s ON %s.%s = %s",
			h.TargetTable, h.TargetAlias, cm.TableName, h.FromColumn, qualifyPK(h))
	}
	if where != "" {
		query += " WHERE " + where
	}
	if len(opts.Sort) > 0 {
		var order []string
		for _, sf := range opts.Sort {
			dir := "ASC"
			if sf.Desc {
				dir = "DESC"
			}
			order = append(order, sf.Field+" "+dir)
		}
		query += " ORDER BY " + strings.Join(order, ", ")
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", opts.Limit, opts.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	defer rows.Close()
	return scanRows(rows, cm)
}

func qualifyPK(h reltranslate.Hop) string {
	return h.TargetAlias + "." + h.ToColumn
}

func selectColumns(cm *schema.CompiledModel) string {
	cols := make([]string, len(cm.Fields))
	for i, f := range cm.Fields {
		cols[i] = cm.TableName + "." + f.ColumnName
	}
	return strings.Join(cols, ", ")
}

func scanRows(rows *sql.Rows, cm *schema.CompiledModel) ([]store.Record, error) {
	var out []store.Record
	for rows.Next() {
		dest := make([]any, len(cm.Fields))
		ptrs := make([]any, len(cm.Fields))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errs.BackendUnavailable("relational", err)
		}
		rec := store.Record{}
		for i, f := range cm.Fields {
			rec[f.Name] = dest[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) findByIDs(ctx context.Context, cm *schema.CompiledModel, ids []any) ([]store.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	for i := range ids {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		selectColumns(cm), cm.TableName, cm.PrimaryKeyName, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	defer rows.Close()
	return scanRows(rows, cm)
}

// Update implements §4.5.1's Update: scalar columns update in place;
// every relation key in updates replaces (deletes then reinserts) that
// relation's children for each affected parent (§8 P6).
func (s *Store) Update(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, updates store.Record, _ store.UpdateOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	where, args, hops, err := s.filterSQL(cm, native, sel)
	if err != nil {
		return nil, err
	}

	scalars := store.Record{}
	relational := store.Record{}
	for k, v := range updates {
		if _, ok := cm.Relations[k]; ok {
			relational[k] = v
		} else {
			scalars[k] = v
		}
	}

	affectedIDs, err := s.affectedIDs(ctx, cm, where, args, hops)
	if err != nil {
		return nil, err
	}
	if len(affectedIDs) == 0 {
		return nil, nil
	}

	if len(scalars) > 0 {
		if err := s.updateScalars(ctx, cm, affectedIDs, scalars); err != nil {
			return nil, err
		}
	}
	for name, payload := range relational {
		if err := s.replaceRelation(ctx, cm, name, affectedIDs, payload); err != nil {
			return nil, err
		}
	}

	return s.findByIDs(ctx, cm, affectedIDs)
}

func (s *Store) affectedIDs(ctx context.Context, cm *schema.CompiledModel, where string, args []any, hops []reltranslate.Hop) ([]any, error) {
	query := fmt.Sprintf("SELECT DISTINCT %s.%s FROM %s", cm.TableName, cm.PrimaryKeyName, cm.TableName)
	for _, h := range hops {
		query += fmt.Sprintf(" INNER JOIN %s AS %s ON %s.%s = %s",
			h.TargetTable, h.TargetAlias, cm.TableName, h.FromColumn, qualifyPK(h))
	}
	if where != "" {
		query += " WHERE " + where
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	defer rows.Close()
	var ids []any
	for rows.Next() {
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, errs.BackendUnavailable("relational", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) updateScalars(ctx context.Context, cm *schema.CompiledModel, ids []any, scalars store.Record) error {
	var sets []string
	var args []any
	i := 1
	for k, v := range scalars {
		f, ok := cm.GetField(k)
		if !ok {
			return errs.Translation("relational", "update field %q not found on model %s", k, cm.Name)
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.ColumnName, s.dialect.Placeholder(i)))
		args = append(args, v)
		i++
	}
	placeholders := make([]string, len(ids))
	for j := range ids {
		placeholders[j] = s.dialect.Placeholder(i)
		args = append(args, ids[j])
		i++
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		cm.TableName, strings.Join(sets, ", "), cm.PrimaryKeyName, strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errs.BackendUnavailable("relational", err)
	}
	return nil
}

// replaceRelation implements the replace-not-patch semantics of §4.5.1
// step 4 / §8 P6: delete every existing child/link row for the affected
// parents on this relation, then reinsert the supplied set.
func (s *Store) replaceRelation(ctx context.Context, cm *schema.CompiledModel, name string, parentIDs []any, payload any) error {
	rel, ok := cm.Relations[name]
	if !ok {
		return errs.Schema("relation %q not found on model %s", name, cm.Name)
	}
	childModel, err := s.Compiled(rel.Target)
	if err != nil {
		return err
	}

	if rel.IsManyToMany() {
		linkModel, err := s.Compiled(rel.LinkModel)
		if err != nil {
			return err
		}
		placeholders := placeholderList(s.dialect, len(parentIDs), 1)
		del := fmt.Sprintf("DELETE FROM %s WHERE parentId IN (%s)", linkModel.TableName, placeholders)
		if _, err := s.db.ExecContext(ctx, del, parentIDs...); err != nil {
			return errs.BackendUnavailable("relational", err)
		}
	} else {
		fkCol := rel.TargetColumn
		if fkCol == "" {
			fkCol = schema.CamelToSnakeCase(name) + "_id"
		}
		placeholders := placeholderList(s.dialect, len(parentIDs), 1)
		del := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", childModel.TableName, fkCol, placeholders)
		if _, err := s.db.ExecContext(ctx, del, parentIDs...); err != nil {
			return errs.BackendUnavailable("relational", err)
		}
	}

	children, _ := payload.([]store.Record)
	for i, parentID := range parentIDs {
		_ = i
		for _, child := range children {
			item := store.Record{}
			for k, v := range child {
				item[k] = v
			}
			if err := s.insertRelationPayload(ctx, cm, name, rel, store.Record{cm.PrimaryKeyName: parentID}, []store.Record{item}); err != nil {
				return err
			}
		}
	}
	return nil
}

func placeholderList(d Dialect, n, start int) string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = d.Placeholder(start + i)
	}
	return strings.Join(out, ", ")
}

// Delete implements §4.5.1's Delete: snapshot via Find (which joins any
// relation the filter crossed), then remove exactly the snapshot's rows by
// primary key.
func (s *Store) Delete(ctx context.Context, model string, native store.NativeFilter, sel *selector.SelectorNode, _ store.DeleteOptions) ([]store.Record, error) {
	cm, err := s.Compiled(model)
	if err != nil {
		return nil, err
	}
	pre, err := s.Find(ctx, model, native, sel, store.FindOptions{})
	if err != nil {
		return nil, err
	}
	if len(pre) == 0 {
		return nil, nil
	}

	ids := make([]any, len(pre))
	for i, r := range pre {
		ids[i] = r[cm.PrimaryKeyName]
	}
	placeholders := placeholderList(s.dialect, len(ids), 1)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)", cm.TableName, cm.PrimaryKeyName, placeholders)
	if _, err := s.db.ExecContext(ctx, stmt, ids...); err != nil {
		return nil, errs.BackendUnavailable("relational", err)
	}
	return pre, nil
}
