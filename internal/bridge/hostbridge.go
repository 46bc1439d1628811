package bridge

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/modinfo"
)

// Names of the unexported host fields the bridge reads.
const (
	fieldModRegistry    = "modRegistry"
	fieldLogManager     = "logManager"
	fieldEventManager   = "eventManager"
	fieldCommandManager = "commandManager"
	fieldReflection     = "reflection"
	fieldMultiplayer    = "multiplayer"
	fieldContent        = "content"
	fieldGlobalData     = "globalData"
	fieldLocale         = "locale"
)

// HostServices are the shared host services a helper bundle is built from.
type HostServices struct {
	Registry    *host.ModRegistry
	LogManager  *services.LogManager
	Events      *services.EventManager
	Commands    *services.CommandManager
	Reflector   *services.Reflector
	Multiplayer *services.Multiplayer
	Content     *services.ContentManager

	// GlobalData is nil when the host has no data folder.
	GlobalData *services.GlobalData

	Locale    string
	FakePacks helpers.FakePackFactory
}

// HostBridge is the only place that knows how the host keeps its services.
// Everything else in the bridge goes through it.
type HostBridge struct {
	core *host.Core

	once     sync.Once
	services *HostServices
	err      error
}

// NewHostBridge creates a lookup layer over a host.
func NewHostBridge(core *host.Core) *HostBridge {
	return &HostBridge{core: core}
}

// Services resolves the host services. The result is computed once.
func (b *HostBridge) Services() (*HostServices, error) {
	b.once.Do(func() {
		b.services, b.err = b.resolve()
	})
	return b.services, b.err
}

func (b *HostBridge) resolve() (*HostServices, error) {
	if b.core == nil {
		return nil, fmt.Errorf("%w: no host", ErrHostAPIMismatch)
	}

	// The host's own reflector is itself a host field.
	reflector, err := hostField[*services.Reflector](services.NewReflector(), b.core, fieldReflection, true)
	if err != nil {
		return nil, err
	}

	svc := &HostServices{Reflector: reflector}
	if svc.Registry, err = hostField[*host.ModRegistry](reflector, b.core, fieldModRegistry, true); err != nil {
		return nil, err
	}
	if svc.LogManager, err = hostField[*services.LogManager](reflector, b.core, fieldLogManager, true); err != nil {
		return nil, err
	}
	if svc.Events, err = hostField[*services.EventManager](reflector, b.core, fieldEventManager, true); err != nil {
		return nil, err
	}
	if svc.Commands, err = hostField[*services.CommandManager](reflector, b.core, fieldCommandManager, true); err != nil {
		return nil, err
	}
	if svc.Multiplayer, err = hostField[*services.Multiplayer](reflector, b.core, fieldMultiplayer, true); err != nil {
		return nil, err
	}
	if svc.Content, err = hostField[*services.ContentManager](reflector, b.core, fieldContent, true); err != nil {
		return nil, err
	}
	if svc.GlobalData, err = hostField[*services.GlobalData](reflector, b.core, fieldGlobalData, false); err != nil {
		return nil, err
	}
	if svc.Locale, err = hostField[string](reflector, b.core, fieldLocale, false); err != nil {
		return nil, err
	}
	svc.FakePacks = b.core.FakePackFactory()
	return svc, nil
}

// hostField reads a field of the host by name and checks its type. A
// non-nil requirement also rejects nil pointers.
func hostField[T any](r *services.Reflector, core *host.Core, name string, nonNil bool) (T, error) {
	var zero T
	f, err := r.GetField(core, name, true)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrHostAPIMismatch, err)
	}
	v, ok := f.Get().(T)
	if !ok {
		return zero, fmt.Errorf("%w: host field %s is %s, want %T", ErrHostAPIMismatch, name, f.Type, zero)
	}
	if rv := reflect.ValueOf(v); nonNil && rv.Kind() == reflect.Pointer && rv.IsNil() {
		return zero, fmt.Errorf("%w: host field %s is nil", ErrHostAPIMismatch, name)
	}
	return v, nil
}

// PatchEntryResolution installs an entry resolution prefix on the host.
func (b *HostBridge) PatchEntryResolution(owner string, fn host.EntryResolver) error {
	return b.core.PatchEntryResolution(owner, fn)
}

// PatchModLoad installs a mod load prefix on the host.
func (b *HostBridge) PatchModLoad(owner string, fn host.LoadInterceptor) error {
	return b.core.PatchModLoad(owner, fn)
}

// RegisterAssembly adds an assembly to the host's catalog.
func (b *HostBridge) RegisterAssembly(asm host.Assembly) error {
	return b.core.Assemblies().Register(asm)
}

// CreateFakeContentPack creates a content pack view for a folder the host
// did not load.
func (b *HostBridge) CreateFakeContentPack(dir string, manifest *modinfo.Manifest) (*helpers.ContentPack, error) {
	return b.core.CreateFakeContentPack(dir, manifest)
}
