// Package script runs mod entry scripts in embedded script engines.
package script

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Isolation controls how engine instances are shared between mods.
type Isolation string

const (
	// IsolatePerMod gives every mod its own engine instance.
	IsolatePerMod Isolation = "per-mod"
	// IsolateShared runs every mod of an engine type in one instance.
	IsolateShared Isolation = "shared"
)

// Runtime owns the native support library and the engine instances.
type Runtime struct {
	baseDir       string
	isolation     Isolation
	requireNative bool
	loader        NativeLoader
	goos, goarch  string
	types         *TypeCatalog
	logger        zerolog.Logger

	mu          sync.Mutex
	initialized bool
	initErr     error
	library     *NativeLibrary
	factories   map[string]EngineFactory
	shared      map[string]Engine
	engines     []Engine
	closed      bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithBaseDir sets the folder holding the runtimes directory.
func WithBaseDir(dir string) Option {
	return func(r *Runtime) { r.baseDir = dir }
}

// WithIsolation sets engine sharing.
func WithIsolation(iso Isolation) Option {
	return func(r *Runtime) { r.isolation = iso }
}

// WithRequireNative controls whether Initialize loads the native library.
func WithRequireNative(required bool) Option {
	return func(r *Runtime) { r.requireNative = required }
}

// WithNativeLoader replaces the platform library loader.
func WithNativeLoader(loader NativeLoader) Option {
	return func(r *Runtime) { r.loader = loader }
}

// WithPlatform overrides the detected GOOS and GOARCH.
func WithPlatform(goos, goarch string) Option {
	return func(r *Runtime) { r.goos, r.goarch = goos, goarch }
}

// WithTypes sets the catalog exposed through clr.
func WithTypes(types *TypeCatalog) Option {
	return func(r *Runtime) { r.types = types }
}

// WithLogger sets the logger handed to engines.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runtime) { r.logger = logger }
}

// NewRuntime creates a runtime. No library is loaded until Initialize.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		baseDir:       ".",
		isolation:     IsolatePerMod,
		requireNative: true,
		goos:          runtime.GOOS,
		goarch:        runtime.GOARCH,
		logger:        zerolog.Nop(),
		factories:     make(map[string]EngineFactory),
		shared:        make(map[string]Engine),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.loader == nil {
		r.loader = DefaultNativeLoader()
	}
	if r.types == nil {
		r.types = NewTypeCatalog()
	}
	return r
}

// RegisterEngine adds an engine factory.
func (r *Runtime) RegisterEngine(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Engines returns the registered engine names, sorted.
func (r *Runtime) Engines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Initialize loads the native support library. Only the first call does
// any work; later calls return its result.
func (r *Runtime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initializeLocked()
}

func (r *Runtime) initializeLocked() error {
	if r.initialized {
		return r.initErr
	}
	r.initialized = true

	if !r.requireNative {
		return nil
	}
	lib, err := openNativeLibrary(r.loader, r.baseDir, r.goos, r.goarch)
	if err != nil {
		r.initErr = fmt.Errorf("%w: %w", ErrFeatureUnavailable, err)
		return r.initErr
	}
	r.library = lib
	r.logger.Debug().Str("path", lib.Path).Str("rid", lib.RID).Msg("Loaded native script library")
	return nil
}

// Library returns the loaded native library, or nil.
func (r *Runtime) Library() *NativeLibrary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.library
}

// Isolation returns the engine sharing mode.
func (r *Runtime) Isolation() Isolation {
	return r.isolation
}

// Types returns the clr catalog.
func (r *Runtime) Types() *TypeCatalog {
	return r.types
}

// LoadAndRun executes the entry script in dir with the named engine and
// returns its entry object.
func (r *Runtime) LoadAndRun(engine, dir string) (EntryHandle, error) {
	r.mu.Lock()
	if err := r.initializeLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	eng, err := r.engineLocked(engine)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	handle, err := eng.Run(dir)
	if r.isolation == IsolateShared {
		eng.Detach()
	}
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (r *Runtime) engineLocked(name string) (Engine, error) {
	if r.closed {
		return nil, ErrEngineClosed
	}
	if r.isolation == IsolateShared {
		if eng, ok := r.shared[name]; ok {
			return eng, nil
		}
	}

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	eng, err := factory(EngineOptions{
		Types:  r.types,
		Logger: r.logger.With().Str("engine", name).Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("create %s engine: %w", name, err)
	}

	r.engines = append(r.engines, eng)
	if r.isolation == IsolateShared {
		r.shared[name] = eng
	}
	return eng, nil
}

// EngineCount returns the number of engine instances created.
func (r *Runtime) EngineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close closes every engine instance.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, eng := range r.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.engines = nil
	r.shared = make(map[string]Engine)
	return errors.Join(errs...)
}
