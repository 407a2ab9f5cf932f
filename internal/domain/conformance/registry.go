// Package conformance serves the shared, public conformance resources:
// questionnaire definitions, StructureDefinitions (profiles), and
// ImplementationGuide metadata. These are process-wide, loaded once at
// startup, never session-scoped, and readable without authentication.
package conformance

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
)

// Registry holds one conformance resource type. Writes happen only during
// the startup load; the lock exists for safe publication, not contention.
type Registry struct {
	resourceType string
	mu           sync.RWMutex
	resources    map[string]fhir.Resource
	logger       zerolog.Logger
}

func NewRegistry(resourceType string, logger zerolog.Logger) *Registry {
	return &Registry{
		resourceType: resourceType,
		resources:    make(map[string]fhir.Resource),
		logger:       logger.With().Str("component", "registry").Str("type", resourceType).Logger(),
	}
}

// ResourceType returns the FHIR type this registry serves.
func (r *Registry) ResourceType() string { return r.resourceType }

// Store adds a resource. A resource without an id falls back to its name;
// one with neither is skipped.
func (r *Registry) Store(res fhir.Resource) {
	id := res.ID()
	if id == "" {
		id = res.GetString("name")
	}
	if id == "" {
		r.logger.Warn().Msg("resource has no id or name, skipping")
		return
	}
	stored := res.Clone()
	stored.SetID(id)

	r.mu.Lock()
	r.resources[id] = stored
	r.mu.Unlock()
	r.logger.Debug().Str("id", id).Str("url", res.GetString("url")).Msg("stored conformance resource")
}

// Get returns the resource by id, or nil.
func (r *Registry) Get(id string) fhir.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := r.resources[id]
	if res == nil {
		return nil
	}
	return res.Clone()
}

// All returns every stored resource.
func (r *Registry) All() []fhir.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]fhir.Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.Clone())
	}
	return out
}

// Len returns the number of stored resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}
