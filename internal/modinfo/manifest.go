package modinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFileName is the name of the manifest file in every mod folder.
const ManifestFileName = "manifest.json"

// Manifest describes a mod's identity and requirements.
// A Manifest is treated as immutable once it has been handed to the host;
// use Clone to derive a modified copy.
type Manifest struct {
	// Identity
	Name        string `json:"Name" validate:"required"`
	Author      string `json:"Author"`
	Version     string `json:"Version" validate:"required,semver"`
	Description string `json:"Description"`
	UniqueID    string `json:"UniqueID" validate:"required,uniqueid"`

	// Entry point for code mods: name of an assembly in the host's catalog.
	EntryAssembly string `json:"EntryAssembly,omitempty"`

	// Set for content packs: the mod expected to interpret the pack.
	ContentPackFor *ContentPackFor `json:"ContentPackFor,omitempty"`

	// Requirements
	MinimumAPIVersion string       `json:"MinimumApiVersion,omitempty" validate:"omitempty,semver"`
	Dependencies      []Dependency `json:"Dependencies,omitempty" validate:"dive"`

	UpdateKeys []string `json:"UpdateKeys,omitempty"`

	// ExtraFields holds manifest keys the host does not know about.
	ExtraFields map[string]any `json:"-"`
}

// ContentPackFor names the mod a content pack belongs to.
type ContentPackFor struct {
	UniqueID       string `json:"UniqueID" validate:"required,uniqueid"`
	MinimumVersion string `json:"MinimumVersion,omitempty" validate:"omitempty,semver"`
}

// Dependency declares another mod this mod needs.
type Dependency struct {
	UniqueID       string `json:"UniqueID" validate:"required,uniqueid"`
	MinimumVersion string `json:"MinimumVersion,omitempty" validate:"omitempty,semver"`
	IsRequired     *bool  `json:"IsRequired,omitempty"`
}

// Required reports whether the dependency must be present. Defaults to true.
func (d Dependency) Required() bool {
	return d.IsRequired == nil || *d.IsRequired
}

// knownFields are the manifest keys decoded into struct fields.
var knownFields = map[string]bool{
	"name":              true,
	"author":            true,
	"version":           true,
	"description":       true,
	"uniqueid":          true,
	"entryassembly":     true,
	"contentpackfor":    true,
	"minimumapiversion": true,
	"dependencies":      true,
	"updatekeys":        true,
}

// ReadManifest loads and validates the manifest in a mod directory.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates manifest JSON.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// UnmarshalJSON decodes known fields and keeps everything else in ExtraFields.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type manifestAlias Manifest
	var alias manifestAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Manifest(alias)
	for key, value := range raw {
		if knownFields[strings.ToLower(key)] {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if m.ExtraFields == nil {
			m.ExtraFields = make(map[string]any)
		}
		m.ExtraFields[key] = v
	}
	return nil
}

// MarshalJSON encodes the manifest including its extra fields.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type manifestAlias Manifest
	data, err := json.Marshal((*manifestAlias)(m))
	if err != nil || len(m.ExtraFields) == 0 {
		return data, err
	}

	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.ExtraFields {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// IsContentPack returns true if the manifest declares a ContentPackFor target.
func (m *Manifest) IsContentPack() bool {
	return m.ContentPackFor != nil && m.ContentPackFor.UniqueID != ""
}

// Extra returns an extra field value, matched case-insensitively.
func (m *Manifest) Extra(key string) (any, bool) {
	if v, ok := m.ExtraFields[key]; ok {
		return v, true
	}
	for k, v := range m.ExtraFields {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// HasID reports whether the manifest's unique id matches, ignoring case.
func (m *Manifest) HasID(id string) bool {
	return strings.EqualFold(m.UniqueID, id)
}

// String returns "Name vVersion".
func (m *Manifest) String() string {
	name := m.Name
	if name == "" {
		name = m.UniqueID
	}
	return fmt.Sprintf("%s v%s", name, m.Version)
}

// Clone creates a deep copy of the manifest.
func (m *Manifest) Clone() *Manifest {
	clone := *m

	if m.ContentPackFor != nil {
		cpf := *m.ContentPackFor
		clone.ContentPackFor = &cpf
	}

	if m.Dependencies != nil {
		clone.Dependencies = make([]Dependency, len(m.Dependencies))
		for i, dep := range m.Dependencies {
			clone.Dependencies[i] = dep
			if dep.IsRequired != nil {
				required := *dep.IsRequired
				clone.Dependencies[i].IsRequired = &required
			}
		}
	}

	if m.UpdateKeys != nil {
		clone.UpdateKeys = make([]string, len(m.UpdateKeys))
		copy(clone.UpdateKeys, m.UpdateKeys)
	}

	if m.ExtraFields != nil {
		clone.ExtraFields = make(map[string]any, len(m.ExtraFields))
		for k, v := range m.ExtraFields {
			clone.ExtraFields[k] = v
		}
	}

	return &clone
}
