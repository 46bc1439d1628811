package helpers

import "github.com/sinz/selene/internal/host/services"

// ReflectionHelper gives a mod access to fields and methods by name.
type ReflectionHelper struct {
	base
	reflector *services.Reflector
}

// NewReflectionHelper creates the reflection helper for a mod.
func NewReflectionHelper(modID string, registry Registry, reflector *services.Reflector) *ReflectionHelper {
	return &ReflectionHelper{
		base:      base{modID: modID, registry: registry},
		reflector: reflector,
	}
}

// GetField returns a named field of obj, which must be a pointer to a struct.
func (r *ReflectionHelper) GetField(obj any, name string) (*services.Field, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.reflector.GetField(obj, name, true)
}

// GetMethod returns a named method of obj.
func (r *ReflectionHelper) GetMethod(obj any, name string) (*services.Method, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.reflector.GetMethod(obj, name, true)
}
