// Package helpers provides the per-mod capability bundle. Every helper is
// scoped to one mod's unique id and refuses to work until that mod is
// present in the host registry.
package helpers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sinz/selene/internal/modinfo"
)

// Helper errors.
var (
	// ErrModNotRegistered is returned by helper methods until the owning mod is registered.
	ErrModNotRegistered = errors.New("mod is not registered")

	// ErrModsStillLoading is returned by operations that need the full mod list
	// while the host's load pass is still running.
	ErrModsStillLoading = errors.New("mods are still loading")

	// ErrPathEscape is returned when a relative path leaves its root folder.
	ErrPathEscape = errors.New("path escapes the mod folder")

	// ErrNoAPI is returned when a mod does not provide an API.
	ErrNoAPI = errors.New("mod has no API")
)

// ConfigFileName is the per-mod configuration file.
const ConfigFileName = "config.json"

// Registry is the host registry as seen by helpers.
type Registry interface {
	// IsRegistered reports whether a mod with the id has been added.
	IsRegistered(id string) bool

	// Get returns a registered mod.
	Get(id string) (modinfo.ModInfo, bool)

	// All returns every registered mod in registration order.
	All() []modinfo.ModInfo

	// AreAllModsLoaded reports whether the load pass has finished.
	AreAllModsLoaded() bool

	// API returns the API object a mod exposes, if any.
	API(id string) (any, bool)
}

// base carries the owning mod id and registry shared by every helper.
type base struct {
	modID    string
	registry Registry
}

// ModID returns the unique id of the owning mod.
func (b base) ModID() string {
	return b.modID
}

// check fails until the owning mod is registered.
func (b base) check() error {
	if b.registry == nil || !b.registry.IsRegistered(b.modID) {
		return fmt.Errorf("%w: %s", ErrModNotRegistered, b.modID)
	}
	return nil
}

// ModHelper is the capability bundle handed to one mod.
type ModHelper struct {
	base

	DirectoryPath string

	Events       *ModEvents
	Commands     *CommandHelper
	GameContent  *GameContentHelper
	ModContent   *ModContentHelper
	ContentPacks *ContentPackHelper
	Data         *DataHelper
	Reflection   *ReflectionHelper
	ModRegistry  *ModRegistryHelper
	Multiplayer  *MultiplayerHelper
	Translation  *TranslationHelper
}

// NewModHelper assembles a bundle. All helpers must belong to the same mod.
func NewModHelper(
	modID, dir string,
	registry Registry,
	events *ModEvents,
	commands *CommandHelper,
	gameContent *GameContentHelper,
	modContent *ModContentHelper,
	contentPacks *ContentPackHelper,
	data *DataHelper,
	reflection *ReflectionHelper,
	modRegistry *ModRegistryHelper,
	multiplayer *MultiplayerHelper,
	translation *TranslationHelper,
) (*ModHelper, error) {
	if strings.TrimSpace(modID) == "" {
		return nil, fmt.Errorf("mod id is required")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("mod folder %q is not a directory", dir)
	}

	for name, owner := range map[string]string{
		"Events":       events.ModID(),
		"Commands":     commands.ModID(),
		"GameContent":  gameContent.ModID(),
		"ModContent":   modContent.ModID(),
		"ContentPacks": contentPacks.ModID(),
		"Data":         data.ModID(),
		"Reflection":   reflection.ModID(),
		"ModRegistry":  modRegistry.ModID(),
		"Multiplayer":  multiplayer.ModID(),
		"Translation":  translation.ModID(),
	} {
		if owner != modID {
			return nil, fmt.Errorf("%s helper belongs to %q, not %q", name, owner, modID)
		}
	}

	return &ModHelper{
		base:          base{modID: modID, registry: registry},
		DirectoryPath: dir,
		Events:        events,
		Commands:      commands,
		GameContent:   gameContent,
		ModContent:    modContent,
		ContentPacks:  contentPacks,
		Data:          data,
		Reflection:    reflection,
		ModRegistry:   modRegistry,
		Multiplayer:   multiplayer,
		Translation:   translation,
	}, nil
}

// resolveInside joins rel onto root and rejects results outside root.
func resolveInside(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is absolute", ErrPathEscape, rel)
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return full, nil
}
