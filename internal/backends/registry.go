package backends

import (
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
)

// Registry is the pure mapping from backend-type tag to adapter. Adapters
// are constructed once at wiring time and shared.
type Registry struct {
	adapters map[types.BackendType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[types.BackendType]Adapter{}}
}

func (r *Registry) Register(t types.BackendType, adapter Adapter) {
	r.adapters[t] = adapter
}

// ForType resolves the adapter for a backend type, failing loudly for
// anything unregistered.
func (r *Registry) ForType(t types.BackendType) (Adapter, error) {
	adapter, ok := r.adapters[t]
	if !ok {
		return nil, &UnsupportedBackendError{Type: t}
	}
	return adapter, nil
}

// ForProject resolves the adapter for a project's backend type.
func (r *Registry) ForProject(project *types.Project) (Adapter, error) {
	if project == nil {
		return nil, &UnsupportedBackendError{Type: ""}
	}
	return r.ForType(project.BackendType)
}
