package helpers

import (
	"fmt"

	"github.com/sinz/selene/internal/modinfo"
)

// ModRegistryHelper queries the other loaded mods.
type ModRegistryHelper struct {
	base
}

// NewModRegistryHelper creates the registry helper for a mod.
func NewModRegistryHelper(modID string, registry Registry) *ModRegistryHelper {
	return &ModRegistryHelper{base: base{modID: modID, registry: registry}}
}

// IsLoaded reports whether a mod is registered.
func (r *ModRegistryHelper) IsLoaded(id string) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	return r.registry.IsRegistered(id), nil
}

// Get returns a registered mod, or nil.
func (r *ModRegistryHelper) Get(id string) (modinfo.ModInfo, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	info, ok := r.registry.Get(id)
	if !ok {
		return nil, nil
	}
	return modView{info}, nil
}

// GetAll returns every registered mod.
func (r *ModRegistryHelper) GetAll() ([]modinfo.ModInfo, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	all := r.registry.All()
	out := make([]modinfo.ModInfo, len(all))
	for i, info := range all {
		out[i] = modView{info}
	}
	return out, nil
}

// GetAPI returns the API another mod provides. APIs are only available
// once every mod has been loaded.
func (r *ModRegistryHelper) GetAPI(id string) (any, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if !r.registry.AreAllModsLoaded() {
		return nil, fmt.Errorf("%w: cannot get the API of %s yet", ErrModsStillLoading, id)
	}
	api, ok := r.registry.API(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAPI, id)
	}
	return api, nil
}

// modView exposes another mod without sharing its manifest; each call to
// Manifest returns a fresh copy.
type modView struct {
	info modinfo.ModInfo
}

func (v modView) Manifest() *modinfo.Manifest {
	if m := v.info.Manifest(); m != nil {
		return m.Clone()
	}
	return nil
}

func (v modView) DisplayName() string   { return v.info.DisplayName() }
func (v modView) DirectoryPath() string { return v.info.DirectoryPath() }
func (v modView) IsContentPack() bool   { return v.info.IsContentPack() }
