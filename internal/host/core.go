package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/modinfo"
)

// APIVersion is the mod API version this host implements.
const APIVersion = "4.1.0"

// GlobalDataFileName is the SQLite file for global mod data inside the data folder.
const GlobalDataFileName = "globaldata.db"

const tracerName = "github.com/sinz/selene/internal/host"

// Core is the mod host. It discovers mods, loads them in dependency order,
// registers them and calls their entry points.
type Core struct {
	modsPath    string
	contentPath string
	dataPath    string
	locale      string
	apiVersion  string
	verboseMods []string
	watch       bool

	logger     zerolog.Logger
	tracer     trace.Tracer
	assemblies *AssemblyCatalog

	// Shared services. Mods reach them only through their helpers.
	modRegistry    *ModRegistry
	logManager     *services.LogManager
	eventManager   *services.EventManager
	commandManager *services.CommandManager
	reflection     *services.Reflector
	multiplayer    *services.Multiplayer
	content        *services.ContentManager
	globalData     *services.GlobalData

	entryPatches patchSet[EntryResolver]
	loadPatches  patchSet[LoadInterceptor]

	mu      sync.Mutex
	loading bool
	failed  []*ModMetadata
	ticks   uint64
}

// Option configures a Core.
type Option func(*Core)

// WithContentPath sets the game content folder.
func WithContentPath(path string) Option {
	return func(c *Core) { c.contentPath = path }
}

// WithDataPath sets the folder holding the global data store.
// Without it global data is unavailable.
func WithDataPath(path string) Option {
	return func(c *Core) { c.dataPath = path }
}

// WithLocale sets the game locale used for translations.
func WithLocale(locale string) Option {
	return func(c *Core) { c.locale = locale }
}

// WithLogger sets the root logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithVerboseMods enables verbose logging for the given mod ids.
func WithVerboseMods(ids ...string) Option {
	return func(c *Core) { c.verboseMods = append(c.verboseMods, ids...) }
}

// WithAssemblies sets the catalog of code mod assemblies.
func WithAssemblies(catalog *AssemblyCatalog) Option {
	return func(c *Core) { c.assemblies = catalog }
}

// WithAPIVersion overrides the API version checked against MinimumApiVersion.
func WithAPIVersion(version string) Option {
	return func(c *Core) { c.apiVersion = version }
}

// WithTracer sets the tracer for the load pass.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Core) { c.tracer = tracer }
}

// WithContentWatch invalidates cached assets when their files change.
func WithContentWatch(enabled bool) Option {
	return func(c *Core) { c.watch = enabled }
}

// New creates a host for the mods folder.
func New(modsPath string, opts ...Option) (*Core, error) {
	c := &Core{
		modsPath:    modsPath,
		contentPath: "Content",
		apiVersion:  APIVersion,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.assemblies == nil {
		c.assemblies = NewAssemblyCatalog()
	}

	c.logManager = services.NewLogManager(c.logger, c.verboseMods...)
	c.logger = c.logger.With().Str("component", "host").Logger()
	c.modRegistry = NewModRegistry()
	c.eventManager = services.NewEventManager(c.logger)
	c.commandManager = services.NewCommandManager()
	c.reflection = services.NewReflector()
	c.multiplayer = services.NewMultiplayer(c.eventManager, "Host")
	c.content = services.NewContentManager(c.contentPath, c.eventManager, c.logger)

	if c.dataPath != "" {
		if err := os.MkdirAll(c.dataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data folder: %w", err)
		}
		global, err := services.OpenGlobalData(filepath.Join(c.dataPath, GlobalDataFileName))
		if err != nil {
			return nil, fmt.Errorf("open global data: %w", err)
		}
		c.globalData = global
	}

	if c.watch {
		if err := c.content.Watch(c.content.GameRoot(), services.DefaultDebounce); err != nil {
			c.logger.Warn().Err(err).Str("path", c.content.GameRoot()).Msg("Content watch disabled")
		}
	}
	return c, nil
}

// Close releases the content watcher and the global data store.
func (c *Core) Close() error {
	var errs []error
	if err := c.content.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.globalData != nil {
		if err := c.globalData.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ModsPath returns the mods folder.
func (c *Core) ModsPath() string { return c.modsPath }

// Assemblies returns the assembly catalog.
func (c *Core) Assemblies() *AssemblyCatalog { return c.assemblies }

// Mod returns the record of a registered mod.
func (c *Core) Mod(id string) (*ModMetadata, bool) {
	return c.modRegistry.Metadata(id)
}

// ModCount returns the number of registered mods.
func (c *Core) ModCount() int {
	return c.modRegistry.Count()
}

// LoadedMods returns the registered mods in load order.
func (c *Core) LoadedMods() []*ModMetadata {
	return c.modRegistry.Mods()
}

// FailedMods returns the mods that failed during the last load pass.
func (c *Core) FailedMods() []*ModMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ModMetadata, len(c.failed))
	copy(out, c.failed)
	return out
}

// LoadMods runs the load pass: discovery, dependency ordering, the load
// routine for each mod, then Entry on every loaded code mod. Mods that fail
// are recorded and skipped; only discovery errors are returned.
func (c *Core) LoadMods(ctx context.Context) error {
	c.mu.Lock()
	if c.loading || c.modRegistry.AreAllModsLoaded() {
		c.mu.Unlock()
		return ErrAlreadyLoaded
	}
	c.loading = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	ctx, span := c.tracer.Start(ctx, "host.LoadMods", trace.WithAttributes(
		attribute.String("mods.path", c.modsPath),
	))
	defer span.End()

	found, err := DiscoverMods(c.modsPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		return err
	}
	c.logger.Info().Int("count", len(found)).Str("path", c.modsPath).Msg("Discovered mods")

	for _, meta := range OrderByDependencies(found) {
		if meta.Status() == StatusFailed {
			c.recordFailure(meta)
			continue
		}
		c.loadOne(ctx, meta)
	}

	c.modRegistry.setAllModsLoaded(true)
	c.logger.Info().Int("loaded", c.modRegistry.Count()).Int("failed", len(c.FailedMods())).Msg("Mods loaded")

	c.runEntries(ctx)
	c.eventManager.Raise(services.EventGameLaunched, services.GameLaunchedEventArgs{})

	span.SetAttributes(
		attribute.Int("mods.loaded", c.modRegistry.Count()),
		attribute.Int("mods.failed", len(c.FailedMods())),
	)
	return nil
}

func (c *Core) loadOne(ctx context.Context, meta *ModMetadata) {
	_, span := c.tracer.Start(ctx, "host.TryLoadMod", trace.WithAttributes(
		attribute.String("mod.id", meta.ID()),
		attribute.Bool("mod.content_pack", meta.IsContentPack()),
	))
	defer span.End()

	outcome := c.tryLoadMod(meta)
	if !outcome.OK {
		if outcome.Reason == "" {
			outcome.Reason = FailLoadFailed
		}
		meta.SetStatus(StatusFailed, outcome.Reason, outcome.Error)
		c.recordFailure(meta)
		span.SetStatus(codes.Error, outcome.Error)
		return
	}

	event := c.logger.Info().Str("mod", meta.ID()).Str("version", meta.Manifest().Version)
	if meta.IsContentPack() {
		event = event.Str("for", meta.Manifest().ContentPackFor.UniqueID)
	}
	event.Msgf("Loaded %s", meta.DisplayName())
}

func (c *Core) recordFailure(meta *ModMetadata) {
	c.mu.Lock()
	c.failed = append(c.failed, meta)
	c.mu.Unlock()

	c.logger.Error().
		Str("mod", meta.DisplayName()).
		Str("reason", string(meta.FailReason())).
		Str("folder", meta.RelativeDirectoryPath()).
		Msgf("Skipped %s: %s", meta.DisplayName(), meta.Error())
}

// loadMod is the host's own load routine.
func (c *Core) loadMod(meta *ModMetadata) LoadOutcome {
	m := meta.Manifest()
	if meta.IsContentPack() {
		return c.loadContentPack(meta)
	}

	if m.EntryAssembly == "" {
		return Failed(FailInvalidManifest, "manifest has neither EntryAssembly nor ContentPackFor")
	}
	if missing := c.missingDependencies(m); len(missing) > 0 {
		return Failed(FailMissingDependencies, "it requires mods which are not installed (%s)", strings.Join(missing, ", "))
	}
	if m.MinimumAPIVersion != "" && !modinfo.IsVersionAtLeast(c.apiVersion, m.MinimumAPIVersion) {
		return Failed(FailIncompatible, "it needs API version %s or later (this host is %s)", m.MinimumAPIVersion, c.apiVersion)
	}

	asm, ok := c.assemblies.Lookup(m.EntryAssembly)
	if !ok {
		return Failed(FailLoadFailed, "%s: %v", m.EntryAssembly, ErrAssemblyNotFound)
	}
	mod, err := c.tryLoadModEntry(meta, asm)
	if err != nil {
		return Failed(FailLoadFailed, "%v", err)
	}

	helper, monitor, translation, err := c.newModHelper(meta)
	if err != nil {
		return Failed(FailLoadFailed, "%v", err)
	}
	base := mod.Base()
	if base == nil {
		return Failed(FailLoadFailed, "entry of %s has no base fields", m.UniqueID)
	}
	base.ModManifest = m
	base.Helper = helper
	base.Monitor = monitor

	meta.SetMod(mod, translation)
	if err := c.modRegistry.Add(meta); err != nil {
		return Failed(FailDuplicate, "%v", err)
	}
	return Loaded()
}

func (c *Core) loadContentPack(meta *ModMetadata) LoadOutcome {
	target := meta.Manifest().ContentPackFor
	owner, ok := c.modRegistry.Metadata(target.UniqueID)
	if !ok {
		return Failed(FailMissingDependencies, "it needs the '%s' mod, which is not installed", target.UniqueID)
	}
	if target.MinimumVersion != "" && !modinfo.IsVersionAtLeast(owner.Manifest().Version, target.MinimumVersion) {
		return Failed(FailMissingDependencies, "it needs %s %s or later", target.UniqueID, target.MinimumVersion)
	}

	pack, err := c.CreateFakeContentPack(meta.DirectoryPath(), meta.Manifest())
	if err != nil {
		return Failed(FailLoadFailed, "%v", err)
	}
	meta.SetContentPack(pack, pack.Translation())
	if err := c.modRegistry.Add(meta); err != nil {
		return Failed(FailDuplicate, "%v", err)
	}
	return Loaded()
}

func (c *Core) missingDependencies(m *modinfo.Manifest) []string {
	var missing []string
	for _, dep := range m.Dependencies {
		if !dep.Required() {
			continue
		}
		other, ok := c.modRegistry.Metadata(dep.UniqueID)
		if !ok {
			missing = append(missing, dep.UniqueID)
			continue
		}
		if dep.MinimumVersion != "" && !modinfo.IsVersionAtLeast(other.Manifest().Version, dep.MinimumVersion) {
			missing = append(missing, fmt.Sprintf("%s %s or later", dep.UniqueID, dep.MinimumVersion))
		}
	}
	return missing
}

// newModHelper builds the capability bundle for a code mod.
func (c *Core) newModHelper(meta *ModMetadata) (*helpers.ModHelper, *services.Monitor, *helpers.TranslationHelper, error) {
	id, dir := meta.ID(), meta.DirectoryPath()

	monitor := c.logManager.GetMonitor(id, meta.DisplayName())
	translation, err := helpers.NewTranslationHelper(id, dir, c.modRegistry, c.locale)
	if err != nil {
		return nil, nil, nil, err
	}

	helper, err := helpers.NewModHelper(id, dir, c.modRegistry,
		helpers.NewModEvents(id, c.modRegistry, c.eventManager),
		helpers.NewCommandHelper(id, c.modRegistry, c.commandManager),
		helpers.NewGameContentHelper(id, c.modRegistry, c.content, c.locale),
		helpers.NewModContentHelper(id, dir, c.modRegistry, c.content),
		helpers.NewContentPackHelper(id, c.modRegistry, c.content, c.FakePackFactory(), c.locale),
		helpers.NewDataHelper(id, dir, c.modRegistry, c.globalData),
		helpers.NewReflectionHelper(id, c.modRegistry, c.reflection),
		helpers.NewModRegistryHelper(id, c.modRegistry),
		helpers.NewMultiplayerHelper(id, c.modRegistry, c.multiplayer),
		translation,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return helper, monitor, translation, nil
}

// CreateFakeContentPack creates a content pack view for a folder that is
// not registered as a mod.
func (c *Core) CreateFakeContentPack(dir string, manifest *modinfo.Manifest) (*helpers.ContentPack, error) {
	if manifest == nil {
		return nil, fmt.Errorf("content pack manifest is nil")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("content pack folder %q does not exist", dir)
	}
	translation, err := helpers.NewTranslationHelper(manifest.UniqueID, dir, c.modRegistry, c.locale)
	if err != nil {
		return nil, err
	}
	return helpers.NewContentPack(dir, manifest, c.content, translation), nil
}

// FakePackFactory adapts CreateFakeContentPack for ContentPackHelper.
func (c *Core) FakePackFactory() helpers.FakePackFactory {
	return func(dir, id, name, description, author, version string) (*helpers.ContentPack, error) {
		manifest := &modinfo.Manifest{
			Name:        name,
			Author:      author,
			Version:     version,
			Description: description,
			UniqueID:    id,
		}
		if err := manifest.Validate(); err != nil {
			return nil, err
		}
		return c.CreateFakeContentPack(dir, manifest)
	}
}

// runEntries calls Entry on every loaded code mod in load order.
func (c *Core) runEntries(ctx context.Context) {
	_, span := c.tracer.Start(ctx, "host.RunEntries")
	defer span.End()

	for _, meta := range c.modRegistry.Mods() {
		mod := meta.Mod()
		if mod == nil {
			continue
		}
		if err := callEntry(mod); err != nil {
			span.RecordError(err, trace.WithAttributes(attribute.String("mod.id", meta.ID())))
			if monitor := mod.Base().Monitor; monitor != nil {
				monitor.Log(fmt.Sprintf("Mod crashed on entry and might not work correctly: %v", err), services.LogError)
			} else {
				c.logger.Error().Err(err).Str("mod", meta.ID()).Msg("Mod crashed on entry")
			}
		}
	}
}

func callEntry(mod Mod) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return mod.Entry(mod.Base().Helper)
}

// Tick raises the asset invalidations queued by the content watcher, then
// UpdateTicked, and returns the tick count.
func (c *Core) Tick() uint64 {
	c.mu.Lock()
	c.ticks++
	ticks := c.ticks
	c.mu.Unlock()

	c.content.FlushInvalidations()
	c.eventManager.Raise(services.EventUpdateTicked, services.UpdateTickedEventArgs{Ticks: ticks})
	return ticks
}

// RunCommand runs a console command line such as "mycommand arg1 arg2".
func (c *Core) RunCommand(line string) (bool, error) {
	return c.commandManager.TriggerLine(line)
}

// Commands lists the registered console commands.
func (c *Core) Commands() []services.Command {
	return c.commandManager.List()
}
