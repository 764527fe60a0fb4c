// Package compile implements the model compiler (§4.2): it projects one
// logical schema.ModelSpec into a backend-specific schema.CompiledModel,
// dropping fields and relations disabled for that backend and substituting
// the per-backend primary-key representation.
//
// Grounded in the teacher's two-pass RegisterSchema/GetSchema accumulation
// (drivers/base/base_driver.go): every ModelSpec in the registry must be
// addable before any of them are compiled, since a relation may name a
// forward-referenced target.
package compile

import (
	"fmt"

	"github.com/sopherapps/nqlstore/schema"
)

// Compile projects spec into a CompiledModel for backend, resolving
// relation targets against reg (so forward references are valid as long as
// the target has been registered by the time Compile runs — not necessarily
// before the referencing model was declared).
func Compile(reg *schema.Registry, modelName string, backend schema.Backend) (*schema.CompiledModel, error) {
	spec, err := reg.Get(modelName)
	if err != nil {
		return nil, err
	}

	cm := &schema.CompiledModel{
		Backend:   backend,
		Name:      spec.Name,
		TableName: spec.TableName(),
		Relations: make(map[string]schema.CompiledRelation),
	}

	pkName, pkType := primaryKey(spec, backend)
	cm.PrimaryKeyName = pkName
	cm.PrimaryKeyType = pkType

	for _, f := range spec.Fields {
		if f.IsDisabledOn(backend) {
			continue
		}
		cm.Fields = append(cm.Fields, schema.CompiledField{
			FieldSpec:  f,
			ColumnName: f.Name,
		})
	}

	for name, r := range spec.Relations {
		if r.IsDisabledOn(backend) {
			continue
		}
		if _, err := reg.Get(r.Target); err != nil {
			return nil, fmt.Errorf("model %s: relation %s targets unregistered model %s: %w", spec.Name, name, r.Target, err)
		}
		if r.IsManyToMany() {
			if _, err := reg.Get(r.LinkModel); err != nil {
				return nil, fmt.Errorf("model %s: relation %s names unregistered link model %s: %w", spec.Name, name, r.LinkModel, err)
			}
		}

		compiled := schema.CompiledRelation{RelationSpec: r}
		if backend == schema.Relational && !r.IsManyToMany() {
			compiled.TargetColumn = schema.CamelToSnakeCase(name) + "_id"
		}
		cm.Relations[name] = compiled
	}

	return cm, nil
}

// CompileAll compiles every registered model for backend, e.g. to build a
// store's full set of CompiledModels at Register time.
func CompileAll(reg *schema.Registry, backend schema.Backend) (map[string]*schema.CompiledModel, error) {
	out := make(map[string]*schema.CompiledModel)
	for _, name := range reg.All() {
		cm, err := Compile(reg, name, backend)
		if err != nil {
			return nil, err
		}
		out[name] = cm
	}
	return out, nil
}

func primaryKey(spec *schema.ModelSpec, backend schema.Backend) (string, schema.PrimaryKeyType) {
	for _, f := range spec.Fields {
		if f.PrimaryKey {
			return f.Name, explicitPKType(f, backend)
		}
	}
	// implicit primary key, per §3.1
	switch backend {
	case schema.Document:
		return "id", schema.PKObjectID
	case schema.Kv:
		return "id", schema.PKString
	default:
		return "id", schema.PKInt64
	}
}

func explicitPKType(f schema.FieldSpec, backend schema.Backend) schema.PrimaryKeyType {
	switch backend {
	case schema.Document:
		return schema.PKObjectID
	case schema.Kv:
		return schema.PKString
	default:
		if f.Type == schema.TypeString {
			return schema.PKString
		}
		return schema.PKInt64
	}
}
