// Package bridge loads scripted mods into the host. It claims content packs
// that name the marker mod as their target, runs their entry script and
// registers them as if the host had loaded them itself.
package bridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/script"
	"github.com/sinz/selene/internal/script/js"
	"github.com/sinz/selene/internal/script/lua"
)

// Reserved mod ids.
const (
	// SelfUniqueID is the unique id of the bridge's own mod.
	SelfUniqueID = "SinZational.SeleneSupport"

	// MarkerUniqueID is the ContentPackFor target that marks a scripted mod.
	MarkerUniqueID = "SinZ.SeleneSupport"

	// AssemblyName is the entry assembly of the bridge's own mod.
	AssemblyName = "Selene"

	displayName = "Selene"
)

// State is the process-wide bridge state.
type State struct {
	mu sync.Mutex

	runtime *script.Runtime
	logger  zerolog.Logger
	monitor *services.Monitor

	host      *HostBridge
	services  *HostServices
	installed bool

	initialized    bool
	disabled       bool
	reason         error
	reasonReported bool

	support    *SupportMod
	scriptMods []*ScriptMod
}

// Option configures a State.
type Option func(*State)

// WithRuntime sets the script runtime.
func WithRuntime(rt *script.Runtime) Option {
	return func(s *State) { s.runtime = rt }
}

// WithLogger sets the logger used until the host monitor is available.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *State) { s.logger = logger }
}

// New creates a bridge state. Without WithRuntime it uses NewRuntime().
func New(opts ...Option) *State {
	s := &State{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.runtime == nil {
		s.runtime = NewRuntime()
	}
	s.monitor = services.NewMonitor(displayName, s.logger)
	s.support = &SupportMod{state: s}
	return s
}

var (
	defaultOnce  sync.Once
	defaultState *State
)

// Default returns the process-wide bridge state.
func Default() *State {
	defaultOnce.Do(func() {
		defaultState = New()
	})
	return defaultState
}

// Configure applies options to a state that has not been installed yet.
func (s *State) Configure(opts ...Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed {
		return ErrAlreadyInstalled
	}
	for _, opt := range opts {
		opt(s)
	}
	s.monitor = services.NewMonitor(displayName, s.logger)
	return nil
}

// NewRuntime creates a script runtime with the Lua and JavaScript engines
// and the default clr catalog.
func NewRuntime(opts ...script.Option) *script.Runtime {
	opts = append([]script.Option{script.WithTypes(DefaultTypes())}, opts...)
	rt := script.NewRuntime(opts...)
	rt.RegisterEngine(script.EngineLua, lua.NewEngine)
	rt.RegisterEngine(script.EngineJavaScript, js.NewEngine)
	return rt
}

// Runtime returns the script runtime.
func (s *State) Runtime() *script.Runtime {
	return s.runtime
}

// EnsureInitialized initializes script support once. A failure disables the
// bridge for the rest of the process and is returned by every later call.
func (s *State) EnsureInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureInitializedLocked()
}

func (s *State) ensureInitializedLocked() error {
	if s.initialized || s.disabled {
		return s.reason
	}
	s.initialized = true

	if err := s.initializeRuntime(); err != nil {
		s.disableLocked(err)
		return s.reason
	}
	s.monitor.Log("Script support initialized.", services.LogDebug)
	return nil
}

// initializeRuntime reports a panic during runtime setup as a missing feature.
func (s *State) initializeRuntime() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: initialization panicked: %v", script.ErrFeatureUnavailable, r)
		}
	}()
	return s.runtime.Initialize()
}

func (s *State) disableLocked(err error) {
	s.disabled = true
	s.reason = fmt.Errorf("%w: %w", ErrDisabled, err)
	s.reportLocked()
}

// reportLocked logs the disable reason the first time it is seen.
func (s *State) reportLocked() {
	if s.reasonReported {
		return
	}
	s.reasonReported = true
	s.monitor.Log(fmt.Sprintf("Scripted mods will not load: %v", s.reason), services.LogError)
}

// Disabled reports whether script support is off, and why.
func (s *State) Disabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled, s.reason
}

// Installed reports whether the intercepts are installed.
func (s *State) Installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// ScriptMods returns the scripted mods bound so far, in load order.
func (s *State) ScriptMods() []*ScriptMod {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ScriptMod, len(s.scriptMods))
	copy(out, s.scriptMods)
	return out
}

// Close releases the script engines.
func (s *State) Close() error {
	return s.runtime.Close()
}

func isFeatureFailure(err error) bool {
	return errors.Is(err, script.ErrFeatureUnavailable)
}
