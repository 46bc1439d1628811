package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// asset is a cached file with its decoded value.
type asset struct {
	raw   []byte
	value any
}

// ContentManager loads and caches data assets from the game content folder
// and mod folders. Supported formats are .json, .yaml/.yml, .toml and .txt.
type ContentManager struct {
	mu       sync.RWMutex
	gameRoot string
	cache    map[string]*asset
	events   *EventManager
	logger   zerolog.Logger
	watcher  *AssetWatcher

	// invalidations seen by the watcher and not yet raised
	pending []string
}

// NewContentManager creates a content manager rooted at the game content folder.
func NewContentManager(gameRoot string, events *EventManager, logger zerolog.Logger) *ContentManager {
	if abs, err := filepath.Abs(gameRoot); err == nil {
		gameRoot = abs
	}
	return &ContentManager{
		gameRoot: gameRoot,
		cache:    make(map[string]*asset),
		events:   events,
		logger:   logger,
	}
}

// GameRoot returns the absolute game content folder.
func (c *ContentManager) GameRoot() string {
	return c.gameRoot
}

// Load returns the decoded asset at an absolute path.
// JSON, YAML and TOML decode to generic maps and slices, text to a string.
func (c *ContentManager) Load(path string) (any, error) {
	a, err := c.load(path)
	if err != nil {
		return nil, err
	}
	return a.value, nil
}

// LoadInto decodes the asset at path into out.
func (c *ContentManager) LoadInto(path string, out any) error {
	a, err := c.load(path)
	if err != nil {
		return err
	}
	return decode(path, a.raw, out)
}

// Query evaluates a gjson path against a JSON asset.
func (c *ContentManager) Query(path, expr string) (any, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("%w: query needs a .json asset, got %s", ErrUnsupportedAsset, filepath.Base(path))
	}
	a, err := c.load(path)
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(a.raw, expr)
	if !res.Exists() {
		return nil, nil
	}
	return res.Value(), nil
}

// IsCached reports whether an asset is in the cache.
func (c *ContentManager) IsCached(path string) bool {
	key := cacheKey(path)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cache[key]
	return ok
}

// Invalidate drops every cached asset whose path matches and raises
// AssetsInvalidated with the removed paths. Returns the removed paths.
func (c *ContentManager) Invalidate(match func(path string) bool) []string {
	removed := c.drop(match)
	if len(removed) > 0 && c.events != nil {
		c.events.Raise(EventAssetsInvalidated, AssetsInvalidatedEventArgs{Names: removed})
	}
	return removed
}

func (c *ContentManager) drop(match func(path string) bool) []string {
	c.mu.Lock()
	var removed []string
	for key := range c.cache {
		if match == nil || match(key) {
			delete(c.cache, key)
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	sort.Strings(removed)
	c.logger.Debug().Strs("assets", removed).Msg("Invalidated assets")
	return removed
}

// FlushInvalidations raises AssetsInvalidated for the assets the watcher
// dropped since the last flush. Event handlers run on the caller's
// goroutine, never on the watcher's.
func (c *ContentManager) FlushInvalidations() []string {
	c.mu.Lock()
	names := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	if c.events != nil {
		c.events.Raise(EventAssetsInvalidated, AssetsInvalidatedEventArgs{Names: names})
	}
	return names
}

// InvalidatePath drops a single asset from the cache.
func (c *ContentManager) InvalidatePath(path string) bool {
	key := cacheKey(path)
	return len(c.Invalidate(func(p string) bool { return p == key })) > 0
}

// Watch drops cached assets under dir when their files change. The matching
// AssetsInvalidated events are raised by FlushInvalidations.
func (c *ContentManager) Watch(dir string, debounce time.Duration) error {
	c.mu.Lock()
	if c.watcher == nil {
		w, err := NewAssetWatcher(debounce, c.logger, func(path string) {
			key := cacheKey(path)
			removed := c.drop(func(p string) bool { return p == key })
			if len(removed) == 0 {
				return
			}
			c.mu.Lock()
			c.pending = append(c.pending, removed...)
			c.mu.Unlock()
		})
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("start asset watcher: %w", err)
		}
		c.watcher = w
	}
	w := c.watcher
	c.mu.Unlock()

	return w.WatchRecursive(dir)
}

// Close stops file watching.
func (c *ContentManager) Close() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w != nil {
		return w.Close()
	}
	return nil
}

func (c *ContentManager) load(path string) (*asset, error) {
	key := cacheKey(path)

	c.mu.RLock()
	a, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}

	raw, err := os.ReadFile(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, path)
		}
		return nil, err
	}

	var value any
	if err := decode(key, raw, &value); err != nil {
		return nil, err
	}
	a = &asset{raw: raw, value: value}

	c.mu.Lock()
	c.cache[key] = a
	c.mu.Unlock()
	return a, nil
}

func cacheKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// decode parses raw data according to the file extension.
func decode(path string, raw []byte, out any) error {
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, out)
	case ".toml":
		err = toml.Unmarshal(raw, out)
	case ".txt":
		switch v := out.(type) {
		case *string:
			*v = string(raw)
		case *any:
			*v = string(raw)
		default:
			return fmt.Errorf("%w: text assets decode into strings only", ErrUnsupportedAsset)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAsset, filepath.Base(path))
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
