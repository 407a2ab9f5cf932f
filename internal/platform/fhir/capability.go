package fhir

import (
	"sort"
	"sync"
	"time"
)

// SearchParam describes a search parameter for the CapabilityBuilder.
type SearchParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CapabilityBuilder assembles a dynamic CapabilityStatement from the
// resource types registered at startup.
type CapabilityBuilder struct {
	mu         sync.RWMutex
	baseURL    string
	version    string
	serverName string
	resources  map[string]*resourceEntry
}

type resourceEntry struct {
	resourceType string
	interactions []string
	searchParams []SearchParam
}

func NewCapabilityBuilder(baseURL, serverName, version string) *CapabilityBuilder {
	return &CapabilityBuilder{
		baseURL:    baseURL,
		version:    version,
		serverName: serverName,
		resources:  make(map[string]*resourceEntry),
	}
}

// DefaultInteractions returns the interaction set for session-scoped
// resource types.
func DefaultInteractions() []string {
	return []string{"read", "vread", "create", "update", "delete", "search-type"}
}

// ReadOnlyInteractions returns the interaction set for conformance
// resource types.
func ReadOnlyInteractions() []string {
	return []string{"read", "search-type"}
}

// AddResource registers a resource type with its interactions and search
// parameters. Registering the same type again replaces the entry.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, params []SearchParam) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resources[resourceType] = &resourceEntry{
		resourceType: resourceType,
		interactions: interactions,
		searchParams: params,
	}
}

// ResourceCount returns the number of registered resource types.
func (b *CapabilityBuilder) ResourceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.resources)
}

// Build produces the CapabilityStatement document.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.resources))
	for t := range b.resources {
		types = append(types, t)
	}
	sort.Strings(types)

	resources := make([]map[string]interface{}, 0, len(types))
	for _, t := range types {
		entry := b.resources[t]
		interactions := make([]map[string]string, len(entry.interactions))
		for i, code := range entry.interactions {
			interactions[i] = map[string]string{"code": code}
		}
		res := map[string]interface{}{
			"type":        entry.resourceType,
			"interaction": interactions,
			"versioning":  "versioned",
		}
		if len(entry.searchParams) > 0 {
			res["searchParam"] = entry.searchParams
		}
		resources = append(resources, res)
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format(time.RFC3339),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"json"},
		"software": map[string]string{
			"name":    b.serverName,
			"version": b.version,
		},
		"implementation": map[string]string{
			"description": b.serverName,
			"url":         b.baseURL,
		},
		"rest": []map[string]interface{}{
			{
				"mode":     "server",
				"resource": resources,
			},
		},
	}
}
