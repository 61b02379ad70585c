// =============================================================================
// CAPCEE Ingestion - Column Mapping Registry
// =============================================================================
//
// The registry answers one question for the pipeline: which ordered, active
// column mappings apply to a (department code, file type) pair.
//
// IMPLEMENTATIONS:
//   - MemoryRegistry: built from the department mapping files (configs/*.yaml)
//     or from explicit mappings in tests
//   - CachedRegistry: an expiring LRU in front of any other registry, used in
//     front of the database-backed mapping table
//
// =============================================================================

package mapping

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/callrodry/capcee-proyecto/internal/config"
	"github.com/callrodry/capcee-proyecto/internal/types"
)

// Registry is the read path used by the pipeline.
type Registry interface {
	MappingsFor(ctx context.Context, departmentCode, fileType string) ([]types.ColumnMapping, error)
}

// key builds the normalized lookup key of a (department, file type) pair.
func key(departmentCode, fileType string) string {
	return strings.ToUpper(strings.TrimSpace(departmentCode)) + "|" + strings.ToUpper(strings.TrimSpace(fileType))
}

// =============================================================================
// IN-MEMORY REGISTRY
// =============================================================================

// MemoryRegistry holds mappings in memory. It is safe for concurrent use;
// Replace swaps the whole set atomically.
type MemoryRegistry struct {
	mu  sync.RWMutex
	set map[string][]types.ColumnMapping
}

// NewMemoryRegistry builds a registry from a flat list of mappings. Mappings
// of one pair keep their Position order, then input order.
func NewMemoryRegistry(mappings []types.ColumnMapping) *MemoryRegistry {
	r := &MemoryRegistry{}
	r.Replace(mappings)
	return r
}

// LoadDir builds a registry from the department mapping files in dir.
func LoadDir(dir string) (*MemoryRegistry, error) {
	configs, err := config.LoadDepartmentConfigs(dir)
	if err != nil {
		return nil, err
	}
	var all []types.ColumnMapping
	for _, d := range configs {
		all = append(all, d.ColumnMappings()...)
	}
	return NewMemoryRegistry(all), nil
}

// Replace swaps the registry contents.
func (r *MemoryRegistry) Replace(mappings []types.ColumnMapping) {
	set := make(map[string][]types.ColumnMapping)
	for _, m := range mappings {
		k := key(m.DepartmentCode, m.FileType)
		set[k] = append(set[k], m)
	}
	for _, list := range set {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Position < list[j].Position })
	}

	r.mu.Lock()
	r.set = set
	r.mu.Unlock()
}

// MappingsFor returns the active mappings of the pair in configured order.
// An unknown pair yields an empty list, not an error.
func (r *MemoryRegistry) MappingsFor(_ context.Context, departmentCode, fileType string) ([]types.ColumnMapping, error) {
	r.mu.RLock()
	list := r.set[key(departmentCode, fileType)]
	r.mu.RUnlock()

	return ActiveOnly(list), nil
}

// All returns every mapping, inactive ones included, ordered by department,
// file type and position.
func (r *MemoryRegistry) All() []types.ColumnMapping {
	r.mu.RLock()
	keys := make([]string, 0, len(r.set))
	for k := range r.set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []types.ColumnMapping
	for _, k := range keys {
		out = append(out, r.set[k]...)
	}
	r.mu.RUnlock()
	return out
}

// ActiveOnly returns a copy of list without inactive mappings.
func ActiveOnly(list []types.ColumnMapping) []types.ColumnMapping {
	out := make([]types.ColumnMapping, 0, len(list))
	for _, m := range list {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}
