package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/sinz/selene/internal/host/services"
)

// DataHelper reads and writes mod data files and global data.
type DataHelper struct {
	base
	dir    string
	global *services.GlobalData
}

// NewDataHelper creates a data helper for a mod folder.
func NewDataHelper(modID, dir string, registry Registry, global *services.GlobalData) *DataHelper {
	return &DataHelper{
		base:   base{modID: modID, registry: registry},
		dir:    dir,
		global: global,
	}
}

// ReadJSONFile decodes a JSON file relative to the mod folder.
// Returns false if the file does not exist.
func (h *DataHelper) ReadJSONFile(path string, out any) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	full, err := resolveInside(h.dir, path)
	if err != nil {
		return false, err
	}
	return readJSONFile(full, out)
}

// WriteJSONFile writes v as JSON relative to the mod folder.
// A nil value deletes the file.
func (h *DataHelper) WriteJSONFile(path string, v any) error {
	if err := h.check(); err != nil {
		return err
	}
	full, err := resolveInside(h.dir, path)
	if err != nil {
		return err
	}
	if v == nil {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return writeJSONFile(full, v)
}

// ReadGlobalData decodes a global value stored for this mod.
func (h *DataHelper) ReadGlobalData(key string, out any) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	if h.global == nil {
		return false, services.ErrStoreClosed
	}
	return h.global.Read(context.Background(), h.modID, key, out)
}

// WriteGlobalData stores a global value for this mod. A nil value deletes it.
func (h *DataHelper) WriteGlobalData(key string, v any) error {
	if err := h.check(); err != nil {
		return err
	}
	if h.global == nil {
		return services.ErrStoreClosed
	}
	return h.global.Write(context.Background(), h.modID, key, v)
}

func readJSONFile(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeRawFile(path, data)
}

// writeRawFile replaces a file atomically under an advisory lock.
func writeRawFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = lock.Unlock() }()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
