// Package modinfo defines mod manifests and the read-only view of a mod
// shared by the host and the per-mod helpers.
package modinfo

import "errors"

// Manifest errors.
var (
	// ErrManifestNotFound is returned when a mod folder has no manifest.json.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrInvalidManifest is returned when a manifest fails to parse or validate.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// ModInfo is the read-only view of a mod known to the host.
type ModInfo interface {
	// Manifest returns the mod's manifest.
	Manifest() *Manifest

	// DisplayName returns the human-readable mod name.
	DisplayName() string

	// DirectoryPath returns the absolute path to the mod folder.
	DirectoryPath() string

	// IsContentPack returns true if the mod is a content pack.
	IsContentPack() bool
}
