package helpers

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/modinfo"
)

// assetRoot loads assets relative to one folder through the content manager.
type assetRoot struct {
	root    string
	content *services.ContentManager
}

func (a assetRoot) resolve(name string) (string, error) {
	return resolveInside(a.root, name)
}

func (a assetRoot) load(name string) (any, error) {
	path, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	return a.content.Load(path)
}

func (a assetRoot) loadInto(name string, out any) error {
	path, err := a.resolve(name)
	if err != nil {
		return err
	}
	return a.content.LoadInto(path, out)
}

func (a assetRoot) query(name, expr string) (any, error) {
	path, err := a.resolve(name)
	if err != nil {
		return nil, err
	}
	return a.content.Query(path, expr)
}

// GameContentHelper reads assets from the game content folder.
type GameContentHelper struct {
	base
	assets assetRoot
	locale string
}

// NewGameContentHelper creates the game content helper for a mod.
func NewGameContentHelper(modID string, registry Registry, content *services.ContentManager, locale string) *GameContentHelper {
	return &GameContentHelper{
		base:   base{modID: modID, registry: registry},
		assets: assetRoot{root: content.GameRoot(), content: content},
		locale: locale,
	}
}

// CurrentLocale returns the game locale.
func (g *GameContentHelper) CurrentLocale() string {
	return g.locale
}

// Load returns a decoded game asset such as "Data/Objects.json".
func (g *GameContentHelper) Load(assetName string) (any, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	return g.assets.load(assetName)
}

// LoadInto decodes a game asset into out.
func (g *GameContentHelper) LoadInto(assetName string, out any) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.assets.loadInto(assetName, out)
}

// Query evaluates a gjson path against a JSON game asset.
func (g *GameContentHelper) Query(assetName, expr string) (any, error) {
	if err := g.check(); err != nil {
		return nil, err
	}
	return g.assets.query(assetName, expr)
}

// InvalidateCache drops a game asset from the cache.
func (g *GameContentHelper) InvalidateCache(assetName string) (bool, error) {
	if err := g.check(); err != nil {
		return false, err
	}
	path, err := g.assets.resolve(assetName)
	if err != nil {
		return false, err
	}
	return g.assets.content.InvalidatePath(path), nil
}

// ModContentHelper reads assets from the mod's own folder.
type ModContentHelper struct {
	base
	assets assetRoot
}

// NewModContentHelper creates the mod content helper for a mod folder.
func NewModContentHelper(modID, dir string, registry Registry, content *services.ContentManager) *ModContentHelper {
	return &ModContentHelper{
		base:   base{modID: modID, registry: registry},
		assets: assetRoot{root: dir, content: content},
	}
}

// Load returns a decoded asset relative to the mod folder.
func (m *ModContentHelper) Load(relativePath string) (any, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.assets.load(relativePath)
}

// LoadInto decodes a mod asset into out.
func (m *ModContentHelper) LoadInto(relativePath string, out any) error {
	if err := m.check(); err != nil {
		return err
	}
	return m.assets.loadInto(relativePath, out)
}

// Query evaluates a gjson path against a JSON mod asset.
func (m *ModContentHelper) Query(relativePath, expr string) (any, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.assets.query(relativePath, expr)
}

// GetInternalAssetName returns the name other mods use for this asset.
func (m *ModContentHelper) GetInternalAssetName(relativePath string) (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	if _, err := m.assets.resolve(relativePath); err != nil {
		return "", err
	}
	return "Mods/" + strings.ToLower(m.modID) + "/" + strings.ReplaceAll(relativePath, "\\", "/"), nil
}

// ContentPack is a content pack as seen by the mod that reads it.
type ContentPack struct {
	Manifest      *modinfo.Manifest
	DirectoryPath string

	assets      assetRoot
	translation *TranslationHelper
}

// NewContentPack creates a content pack view over a folder.
func NewContentPack(dir string, manifest *modinfo.Manifest, content *services.ContentManager, translation *TranslationHelper) *ContentPack {
	return &ContentPack{
		Manifest:      manifest,
		DirectoryPath: dir,
		assets:        assetRoot{root: dir, content: content},
		translation:   translation,
	}
}

// HasFile reports whether a file exists in the pack.
func (p *ContentPack) HasFile(path string) bool {
	full, err := p.assets.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}

// ReadJSONFile decodes a JSON file from the pack. Returns false if it does not exist.
func (p *ContentPack) ReadJSONFile(path string, out any) (bool, error) {
	full, err := p.assets.resolve(path)
	if err != nil {
		return false, err
	}
	return readJSONFile(full, out)
}

// WriteJSONFile writes a JSON file into the pack.
func (p *ContentPack) WriteJSONFile(path string, v any) error {
	full, err := p.assets.resolve(path)
	if err != nil {
		return err
	}
	return writeJSONFile(full, v)
}

// Load returns a decoded asset from the pack.
func (p *ContentPack) Load(path string) (any, error) {
	return p.assets.load(path)
}

// Translation returns the pack's translations.
func (p *ContentPack) Translation() *TranslationHelper {
	return p.translation
}

// FakePackFactory creates a temporary content pack that is not registered with the host.
type FakePackFactory func(dir, id, name, description, author, version string) (*ContentPack, error)

// ContentPackHelper lists and creates content packs for a mod.
type ContentPackHelper struct {
	base
	content *services.ContentManager
	create  FakePackFactory
	locale  string

	mu    sync.Mutex
	owned []*ContentPack
}

// NewContentPackHelper creates the content pack helper for a mod.
func NewContentPackHelper(modID string, registry Registry, content *services.ContentManager, create FakePackFactory, locale string) *ContentPackHelper {
	return &ContentPackHelper{
		base:    base{modID: modID, registry: registry},
		content: content,
		create:  create,
		locale:  locale,
	}
}

// GetOwned returns the content packs whose ContentPackFor names this mod.
// It fails while mods are still loading; the first successful result is cached.
func (c *ContentPackHelper) GetOwned() ([]*ContentPack, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owned != nil {
		return c.owned, nil
	}
	if !c.registry.AreAllModsLoaded() {
		return nil, fmt.Errorf("%w: content packs for %s are not known yet", ErrModsStillLoading, c.modID)
	}

	owned := make([]*ContentPack, 0)
	for _, info := range c.registry.All() {
		m := info.Manifest()
		if !info.IsContentPack() || !strings.EqualFold(m.ContentPackFor.UniqueID, c.modID) {
			continue
		}
		translation, err := NewTranslationHelper(m.UniqueID, info.DirectoryPath(), c.registry, c.locale)
		if err != nil {
			return nil, err
		}
		owned = append(owned, NewContentPack(info.DirectoryPath(), m.Clone(), c.content, translation))
	}
	c.owned = owned
	return owned, nil
}

// CreateTemporary creates a content pack for a folder that was not loaded
// as a mod. The folder must exist; id must not collide with a loaded mod.
func (c *ContentPackHelper) CreateTemporary(dir, id, name, description, author, version string) (*ContentPack, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if c.registry.IsRegistered(id) {
		return nil, fmt.Errorf("cannot create temporary content pack %s: a mod with that id is loaded", id)
	}
	if c.create == nil {
		return nil, fmt.Errorf("temporary content packs are not supported by this host")
	}
	return c.create(dir, id, name, description, author, version)
}
