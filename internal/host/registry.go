package host

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/modinfo"
)

var (
	_ helpers.Registry = (*ModRegistry)(nil)
	_ modinfo.ModInfo  = (*ModMetadata)(nil)
)

// ModRegistry tracks every loaded mod in registration order.
type ModRegistry struct {
	mu        sync.RWMutex
	mods      []*ModMetadata
	byID      map[string]*ModMetadata
	allLoaded bool
}

// NewModRegistry creates an empty registry.
func NewModRegistry() *ModRegistry {
	return &ModRegistry{byID: make(map[string]*ModMetadata)}
}

// Add registers a mod. Unique ids are compared case-insensitively.
func (r *ModRegistry) Add(meta *ModMetadata) error {
	if meta == nil || meta.Manifest() == nil {
		return fmt.Errorf("cannot register a mod without a manifest")
	}
	key := strings.ToLower(meta.ID())
	if key == "" {
		return fmt.Errorf("cannot register %s: unique id is empty", meta.DisplayName())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[key]; exists {
		return fmt.Errorf("%s: %w", meta.ID(), ErrDuplicateMod)
	}
	r.byID[key] = meta
	r.mods = append(r.mods, meta)
	return nil
}

// Metadata returns the record for a registered mod.
func (r *ModRegistry) Metadata(id string) (*ModMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.byID[strings.ToLower(id)]
	return meta, ok
}

// Get returns a registered mod.
func (r *ModRegistry) Get(id string) (modinfo.ModInfo, bool) {
	meta, ok := r.Metadata(id)
	if !ok {
		return nil, false
	}
	return meta, true
}

// Mods returns the registered records in registration order.
func (r *ModRegistry) Mods() []*ModMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ModMetadata, len(r.mods))
	copy(out, r.mods)
	return out
}

// All returns every registered mod in registration order.
func (r *ModRegistry) All() []modinfo.ModInfo {
	mods := r.Mods()
	out := make([]modinfo.ModInfo, len(mods))
	for i, meta := range mods {
		out[i] = meta
	}
	return out
}

// Count returns the number of registered mods.
func (r *ModRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mods)
}

// IsRegistered reports whether a mod with the id has been added.
func (r *ModRegistry) IsRegistered(id string) bool {
	_, ok := r.Metadata(id)
	return ok
}

// AreAllModsLoaded reports whether the load pass has finished.
func (r *ModRegistry) AreAllModsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allLoaded
}

func (r *ModRegistry) setAllModsLoaded(loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allLoaded = loaded
}

// API returns the API of a registered mod implementing APIProvider.
func (r *ModRegistry) API(id string) (any, bool) {
	meta, ok := r.Metadata(id)
	if !ok {
		return nil, false
	}
	provider, ok := meta.Mod().(APIProvider)
	if !ok {
		return nil, false
	}
	api := provider.API()
	return api, api != nil
}
