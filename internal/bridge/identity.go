package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/modinfo"
	"github.com/sinz/selene/internal/script"
)

// ScriptEngineField is the manifest key naming a pack's script engine.
const ScriptEngineField = "ScriptEngine"

// BuildIdentity derives the identity of a scripted mod from its pack
// manifest. The copy is independent of m, and ScriptEngine is always set.
func BuildIdentity(m *modinfo.Manifest) (*modinfo.Manifest, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is nil")
	}
	if strings.TrimSpace(m.UniqueID) == "" {
		return nil, fmt.Errorf("manifest has no UniqueID")
	}

	identity := m.Clone()
	if identity.ExtraFields == nil {
		identity.ExtraFields = make(map[string]any)
	}
	engine, err := engineName(m)
	if err != nil {
		return nil, err
	}
	for k := range identity.ExtraFields {
		if strings.EqualFold(k, ScriptEngineField) {
			delete(identity.ExtraFields, k)
		}
	}
	identity.ExtraFields[ScriptEngineField] = engine
	return identity, nil
}

// ScriptEngine returns the engine named by an identity, lua by default.
func ScriptEngine(identity *modinfo.Manifest) string {
	engine, err := engineName(identity)
	if err != nil {
		return script.EngineLua
	}
	return engine
}

func engineName(m *modinfo.Manifest) (string, error) {
	v, ok := m.Extra(ScriptEngineField)
	if !ok || v == nil {
		return script.EngineLua, nil
	}
	name, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", ScriptEngineField, v)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lua":
		return script.EngineLua, nil
	case "javascript", "js":
		return script.EngineJavaScript, nil
	default:
		return "", fmt.Errorf("%w: %q", script.ErrUnknownEngine, name)
	}
}

// BuildMetadataRecord creates the registry record for a scripted mod. The
// record has no entry and no translations yet.
func BuildMetadataRecord(identity *modinfo.Manifest, dir, root string) (*host.ModMetadata, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity is nil")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("mod folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mod folder %q is not a directory", dir)
	}
	return host.NewModMetadata(identity.Name, filepath.Clean(dir), root, identity, false), nil
}
