package schema

import (
	"fmt"
	"sync"
)

// Registry accumulates ModelSpecs before compilation, so that relations can
// name a forward-referenced target and be resolved once every model in the
// graph has been declared. Grounded in the teacher's
// base.Driver.Schemas map[string]*schema.Schema accumulation pattern.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelSpec
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*ModelSpec)}
}

// Add registers a ModelSpec by name. Re-adding the same name overwrites the
// previous declaration (last declaration wins), matching the teacher's
// RegisterSchema semantics.
func (r *Registry) Add(m *ModelSpec) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[m.Name] = m
	return nil
}

// Get returns the ModelSpec registered under name.
func (r *Registry) Get(name string) (*ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("model %q not registered", name)
	}
	return m, nil
}

// All returns every registered ModelSpec name.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}
