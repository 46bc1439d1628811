package helpers

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/sjson"
)

// ReadConfig decodes config.json into out. If the file does not exist, out
// keeps its current values and is written as the initial config.
func (h *ModHelper) ReadConfig(out any) error {
	if err := h.check(); err != nil {
		return err
	}

	path := filepath.Join(h.DirectoryPath, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return h.WriteConfig(out)
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	return nil
}

// Config returns config.json as a generic map. A missing file yields an empty map.
func (h *ModHelper) Config() (map[string]any, error) {
	cfg := map[string]any{}
	if err := h.check(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(h.DirectoryPath, ConfigFileName))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	return cfg, nil
}

// WriteConfig replaces config.json with v.
func (h *ModHelper) WriteConfig(v any) error {
	if err := h.check(); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(h.DirectoryPath, ConfigFileName), v)
}

// SetConfigValue updates a single value in config.json, addressed by a
// dotted path such as "Controls.ToggleKey". Other content is preserved.
func (h *ModHelper) SetConfigValue(path string, value any) error {
	if err := h.check(); err != nil {
		return err
	}

	file := filepath.Join(h.DirectoryPath, ConfigFileName)
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		data = []byte("{}")
	} else if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	updated, err := sjson.SetBytes(data, path, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", path, err)
	}
	return writeRawFile(file, updated)
}
