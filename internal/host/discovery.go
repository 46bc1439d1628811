package host

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sinz/selene/internal/modinfo"
)

// DiscoverMods finds every mod folder under root. A folder is a mod when it
// holds a manifest.json; folders without one are searched one level deeper
// so mods can be grouped. Folders starting with "." are ignored. Mods with an
// unreadable manifest or a duplicate unique id come back failed.
func DiscoverMods(root string) ([]*ModMetadata, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var mods []*ModMetadata
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mods folder: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || isIgnoredFolder(entry.Name()) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if hasManifest(dir) {
			mods = append(mods, inspectMod(root, dir))
			continue
		}

		// Group folder.
		children, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, child := range children {
			if !child.IsDir() || isIgnoredFolder(child.Name()) {
				continue
			}
			childDir := filepath.Join(dir, child.Name())
			if hasManifest(childDir) {
				mods = append(mods, inspectMod(root, childDir))
			}
		}
	}

	markDuplicates(mods)
	return mods, nil
}

func isIgnoredFolder(name string) bool {
	return strings.HasPrefix(name, ".")
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, modinfo.ManifestFileName))
	return err == nil && !info.IsDir()
}

// inspectMod reads and validates the manifest of one mod folder.
func inspectMod(root, dir string) *ModMetadata {
	manifest, err := modinfo.ReadManifest(dir)
	if err != nil {
		meta := NewModMetadata(filepath.Base(dir), dir, root, nil, false)
		meta.SetStatus(StatusFailed, FailInvalidManifest, err.Error())
		return meta
	}

	name := manifest.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	return NewModMetadata(name, dir, root, manifest, false)
}

// markDuplicates fails every mod whose unique id is shared with another.
func markDuplicates(mods []*ModMetadata) {
	byID := make(map[string][]*ModMetadata)
	for _, meta := range mods {
		if meta.Status() == StatusFailed {
			continue
		}
		key := strings.ToLower(meta.ID())
		byID[key] = append(byID[key], meta)
	}

	for _, group := range byID {
		if len(group) < 2 {
			continue
		}
		folders := make([]string, len(group))
		for i, meta := range group {
			folders[i] = meta.RelativeDirectoryPath()
		}
		for _, meta := range group {
			meta.SetStatus(StatusFailed, FailDuplicate,
				fmt.Sprintf("you have multiple copies of this mod installed (%s)", strings.Join(folders, ", ")))
		}
	}
}
