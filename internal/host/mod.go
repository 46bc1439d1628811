package host

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/modinfo"
)

// Mod is the entry object of a loaded code mod.
type Mod interface {
	// Entry is called once after every mod has been loaded.
	Entry(helper *helpers.ModHelper) error

	// Base returns the fields the host assigns before Entry.
	Base() *BaseMod
}

// APIProvider is implemented by mods that expose an API to other mods.
type APIProvider interface {
	API() any
}

// BaseMod holds the identity, helper bundle and monitor of a mod.
// Embed it in a mod entry type.
type BaseMod struct {
	ModManifest *modinfo.Manifest
	Helper      *helpers.ModHelper
	Monitor     *services.Monitor
}

// Base returns b.
func (b *BaseMod) Base() *BaseMod { return b }

// EntryType is a constructible mod entry type inside an assembly.
type EntryType struct {
	Name string
	New  func() Mod
}

// Assembly is a named set of entry types, the unit a manifest's
// EntryAssembly refers to.
type Assembly struct {
	Name  string
	Types []EntryType
}

// AssemblyCatalog holds the assemblies compiled into the host process.
type AssemblyCatalog struct {
	mu         sync.RWMutex
	assemblies map[string]*Assembly
}

// NewAssemblyCatalog creates an empty catalog.
func NewAssemblyCatalog() *AssemblyCatalog {
	return &AssemblyCatalog{assemblies: make(map[string]*Assembly)}
}

// Register adds an assembly. Names are case-insensitive and must be unique.
func (c *AssemblyCatalog) Register(asm Assembly) error {
	if strings.TrimSpace(asm.Name) == "" {
		return fmt.Errorf("assembly name is required")
	}
	for _, t := range asm.Types {
		if t.New == nil {
			return fmt.Errorf("assembly %s: entry type %s has no constructor", asm.Name, t.Name)
		}
	}

	key := strings.ToLower(asm.Name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.assemblies[key]; exists {
		return fmt.Errorf("assembly %s is already registered", asm.Name)
	}
	c.assemblies[key] = &asm
	return nil
}

// Lookup returns an assembly by name.
func (c *AssemblyCatalog) Lookup(name string) (*Assembly, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	asm, ok := c.assemblies[strings.ToLower(name)]
	return asm, ok
}

// Names returns the registered assembly names, sorted.
func (c *AssemblyCatalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.assemblies))
	for _, asm := range c.assemblies {
		names = append(names, asm.Name)
	}
	sort.Strings(names)
	return names
}

// resolveEntryType applies the single-entry-type rule.
func resolveEntryType(asm *Assembly) (Mod, error) {
	switch len(asm.Types) {
	case 0:
		return nil, fmt.Errorf("%s: %w", asm.Name, ErrNoEntryType)
	case 1:
		mod := asm.Types[0].New()
		if mod == nil {
			return nil, fmt.Errorf("%s: entry type %s returned nil", asm.Name, asm.Types[0].Name)
		}
		return mod, nil
	default:
		names := make([]string, len(asm.Types))
		for i, t := range asm.Types {
			names[i] = t.Name
		}
		return nil, fmt.Errorf("%s (%s): %w", asm.Name, strings.Join(names, ", "), ErrMultipleEntryTypes)
	}
}
