package step

import (
	"fmt"
	"sort"
	"sync"

	"prepline/internal/domain"
)

type registryKey struct {
	modality domain.Modality
	kind     string
}

// Registry is the process-wide catalog mapping (modality, kind, version) to a
// step factory. Registration happens at process start and is append-only;
// after startup the catalog is read-mostly and safe for concurrent reads.
type Registry struct {
	mu        sync.RWMutex
	factories map[registryKey]map[int]Factory
	latest    map[registryKey]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[registryKey]map[int]Factory),
		latest:    make(map[registryKey]int),
	}
}

// Register adds a factory to the catalog. A duplicate (modality, kind,
// version) key fails with domain.ErrRegistryConflict.
func (r *Registry) Register(f Factory) error {
	if f.Kind == "" || f.New == nil {
		return fmt.Errorf("register step: kind and constructor are required")
	}
	if f.Version < 1 {
		return fmt.Errorf("register step %q: version must be >= 1", f.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{modality: f.Modality, kind: f.Kind}
	versions, ok := r.factories[key]
	if !ok {
		versions = make(map[int]Factory)
		r.factories[key] = versions
	}
	if _, exists := versions[f.Version]; exists {
		return &domain.ValidationError{
			Err:      domain.ErrRegistryConflict,
			StepKind: f.Kind,
			Detail:   fmt.Sprintf("modality %q version %d already registered", f.Modality, f.Version),
		}
	}
	versions[f.Version] = f
	if f.Version > r.latest[key] {
		r.latest[key] = f.Version
	}
	return nil
}

// Resolve looks up a factory. Version 0 selects the highest registered
// version for (modality, kind), so saved pipelines that pin a version keep
// working while unpinned ones pick up additive step evolution. Steps
// registered under domain.ModalityAny match every modality.
func (r *Registry) Resolve(modality domain.Modality, kind string, version int) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range []domain.Modality{modality, domain.ModalityAny} {
		key := registryKey{modality: m, kind: kind}
		versions, ok := r.factories[key]
		if !ok {
			continue
		}
		want := version
		if want == 0 {
			want = r.latest[key]
		}
		if f, ok := versions[want]; ok {
			return f, nil
		}
		return Factory{}, &domain.ValidationError{
			Err:      domain.ErrUnknownStep,
			StepKind: kind,
			Detail:   fmt.Sprintf("version %d not registered for modality %q", version, modality),
		}
	}
	return Factory{}, &domain.ValidationError{
		Err:      domain.ErrUnknownStep,
		StepKind: kind,
		Detail:   fmt.Sprintf("no step registered for modality %q", modality),
	}
}

// List returns every registered factory sorted by modality, kind, version.
// Used by the steps API and the CLI catalog listing.
func (r *Registry) List() []Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Factory
	for _, versions := range r.factories {
		for _, f := range versions {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Modality != out[j].Modality {
			return out[i].Modality < out[j].Modality
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Version < out[j].Version
	})
	return out
}
