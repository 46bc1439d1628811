package script

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// TypeCatalog holds the host types and values scripts can reach by name
// through the clr object.
type TypeCatalog struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewTypeCatalog creates an empty catalog.
func NewTypeCatalog() *TypeCatalog {
	return &TypeCatalog{entries: make(map[string]any)}
}

// RegisterType makes the type of sample constructible by name.
// sample may be a value or a nil pointer of the type.
func (c *TypeCatalog) RegisterType(name string, sample any) error {
	t := reflect.TypeOf(sample)
	if t == nil {
		return fmt.Errorf("type %s: sample is nil", name)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return c.register(name, t)
}

// RegisterValue exposes a value (table, function, constant) by name.
func (c *TypeCatalog) RegisterValue(name string, v any) error {
	return c.register(name, v)
}

func (c *TypeCatalog) register(name string, v any) error {
	if name == "" {
		return fmt.Errorf("catalog name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("%s is already in the catalog", name)
	}
	c.entries[name] = v
	return nil
}

// Resolve returns the value for name. Types resolve to a constructor
// func() any returning a pointer to a new zero value.
func (c *TypeCatalog) Resolve(name string) (any, error) {
	if c == nil {
		return nil, fmt.Errorf("%s is not in the catalog", name)
	}
	c.mu.RLock()
	v, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s is not in the catalog", name)
	}
	if t, ok := v.(reflect.Type); ok {
		return func() any { return reflect.New(t).Interface() }, nil
	}
	return v, nil
}

// New constructs a registered type.
func (c *TypeCatalog) New(name string) (any, error) {
	v, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	ctor, ok := v.(func() any)
	if !ok {
		return nil, fmt.Errorf("%s is not a type", name)
	}
	return ctor(), nil
}

// Names returns the catalog names, sorted.
func (c *TypeCatalog) Names() []string {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
