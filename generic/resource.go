/*
resource.go - Resource type registration and lookup

PURPOSE:
  Domain packages register the resource types they own (offset_hours,
  sick_days, overtime_hours, ...). Records and accounts carry resource ids
  as plain strings; the registry turns an id back into its concrete domain
  type, falling back to a StringResource for ids no package owns (JSON
  policy files).

USAGE:
  // In timeoff/types.go
  func init() {
      generic.RegisterResource(ResourceOffset)
  }

  resourceType := generic.LookupResource("offset_hours")
  custom := generic.GetOrCreateResource("volunteer_hours", "benefits")

SEE ALSO:
  - policy.go: ResourcePolicy, the per-resource rules
  - timeoff/types.go, overtime/types.go: concrete resources
  - factory/policy.go: GetOrCreateResource for JSON-defined banks
*/
package generic

import (
	"sync"
)

// ResourceType identifies what kind of resource a request or account tracks.
// The generic package has NO knowledge of specific resource types.
type ResourceType interface {
	// ResourceID returns the unique identifier for this resource type.
	ResourceID() string

	// ResourceDomain returns which domain this resource belongs to.
	ResourceDomain() string
}

// =============================================================================
// RESOURCE REGISTRY
// =============================================================================

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
// Call this from domain package init() functions.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID.
// Returns nil if not found.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// =============================================================================
// STRING RESOURCE - For testing and fallback
// =============================================================================

// StringResource is a simple string-based resource type, used in tests and
// for banks defined only in policy files.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }

// GetOrCreateResource returns the registered type for id, or a StringResource
// in the given domain when no package registered it.
func GetOrCreateResource(id, domain string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: domain}
}
