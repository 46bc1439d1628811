package host

import (
	"path/filepath"
	"sync"

	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/modinfo"
)

// ModStatus is the load status of a mod.
type ModStatus int

const (
	// StatusFound means the mod was discovered and has not failed.
	StatusFound ModStatus = iota
	// StatusFailed means the mod was rejected and will not load.
	StatusFailed
)

// String returns the status name.
func (s ModStatus) String() string {
	if s == StatusFailed {
		return "failed"
	}
	return "found"
}

// FailReason explains why a mod failed to load.
type FailReason string

// Fail reasons.
const (
	FailInvalidManifest     FailReason = "invalid-manifest"
	FailMissingDependencies FailReason = "missing-dependencies"
	FailIncompatible        FailReason = "incompatible"
	FailLoadFailed          FailReason = "load-failed"
	FailDuplicate           FailReason = "duplicate"
)

// ModMetadata is the host's record for one mod folder: its manifest plus
// the mutable load state filled in while the mod loads.
type ModMetadata struct {
	displayName   string
	directoryPath string
	rootPath      string
	manifest      *modinfo.Manifest
	ignored       bool

	mu           sync.RWMutex
	status       ModStatus
	failReason   FailReason
	errorText    string
	mod          Mod
	contentPack  *helpers.ContentPack
	translations *helpers.TranslationHelper
	helper       *helpers.ModHelper
}

// NewModMetadata creates a record with no load state.
func NewModMetadata(displayName, dir, root string, manifest *modinfo.Manifest, ignored bool) *ModMetadata {
	return &ModMetadata{
		displayName:   displayName,
		directoryPath: dir,
		rootPath:      root,
		manifest:      manifest,
		ignored:       ignored,
	}
}

// Manifest returns the mod manifest, or nil if it could not be read.
func (m *ModMetadata) Manifest() *modinfo.Manifest { return m.manifest }

// DisplayName returns the name shown in logs.
func (m *ModMetadata) DisplayName() string { return m.displayName }

// DirectoryPath returns the mod folder.
func (m *ModMetadata) DirectoryPath() string { return m.directoryPath }

// RootPath returns the mods folder the mod was found in.
func (m *ModMetadata) RootPath() string { return m.rootPath }

// RelativeDirectoryPath returns the mod folder relative to the root path.
func (m *ModMetadata) RelativeDirectoryPath() string {
	rel, err := filepath.Rel(m.rootPath, m.directoryPath)
	if err != nil {
		return m.directoryPath
	}
	return rel
}

// IsIgnored reports whether the folder was marked as ignored.
func (m *ModMetadata) IsIgnored() bool { return m.ignored }

// ID returns the manifest unique id, or "" when there is no manifest.
func (m *ModMetadata) ID() string {
	if m.manifest == nil {
		return ""
	}
	return m.manifest.UniqueID
}

// HasID reports whether the mod has the given unique id.
func (m *ModMetadata) HasID(id string) bool {
	return m.manifest != nil && m.manifest.HasID(id)
}

// IsContentPack reports whether the mod is a content pack.
func (m *ModMetadata) IsContentPack() bool {
	return m.manifest != nil && m.manifest.IsContentPack()
}

// Status returns the load status.
func (m *ModMetadata) Status() ModStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// FailReason returns why the mod failed, or "".
func (m *ModMetadata) FailReason() FailReason {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failReason
}

// Error returns the failure message, or "".
func (m *ModMetadata) Error() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorText
}

// SetStatus updates the load status. Failed records keep the reason and message.
func (m *ModMetadata) SetStatus(status ModStatus, reason FailReason, errorText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.failReason = reason
	m.errorText = errorText
}

// SetMod assigns the loaded entry and its translations.
func (m *ModMetadata) SetMod(mod Mod, translations *helpers.TranslationHelper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mod = mod
	m.translations = translations
	if base := mod.Base(); base != nil && base.Helper != nil {
		m.helper = base.Helper
	}
}

// SetContentPack assigns the content pack view and its translations.
func (m *ModMetadata) SetContentPack(pack *helpers.ContentPack, translations *helpers.TranslationHelper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contentPack = pack
	m.translations = translations
}

// Mod returns the loaded entry, or nil.
func (m *ModMetadata) Mod() Mod {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mod
}

// ContentPack returns the content pack view, or nil.
func (m *ModMetadata) ContentPack() *helpers.ContentPack {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentPack
}

// Translations returns the mod translations, or nil.
func (m *ModMetadata) Translations() *helpers.TranslationHelper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.translations
}

// Helper returns the capability bundle given to the mod, or nil.
func (m *ModMetadata) Helper() *helpers.ModHelper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.helper
}
