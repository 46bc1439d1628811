package bridge

import (
	"fmt"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/host/services"
)

// Install hooks the bridge into a host: it registers the bridge assembly
// and installs the entry resolution and mod load intercepts. If the host
// services cannot be resolved nothing is installed and the bridge is
// disabled.
func (s *State) Install(hb *HostBridge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.installed {
		return ErrAlreadyInstalled
	}

	svc, err := hb.Services()
	if err != nil {
		s.disableLocked(err)
		return err
	}
	s.monitor = svc.LogManager.GetMonitor(SelfUniqueID, displayName)

	asm := host.Assembly{
		Name: AssemblyName,
		Types: []host.EntryType{
			{Name: "ModEntry", New: func() host.Mod { return &SupportMod{state: s} }},
			{Name: "ScriptMod", New: func() host.Mod { return &ScriptMod{} }},
		},
	}
	if err := hb.RegisterAssembly(asm); err != nil {
		return fmt.Errorf("register %s assembly: %w", AssemblyName, err)
	}
	if err := hb.PatchEntryResolution(SelfUniqueID, s.resolveEntry); err != nil {
		return fmt.Errorf("patch entry resolution: %w", err)
	}
	if err := hb.PatchModLoad(SelfUniqueID, s.interceptLoad); err != nil {
		return fmt.Errorf("patch mod load: %w", err)
	}

	s.host = hb
	s.services = svc
	s.installed = true
	s.monitor.Log("Installed script mod loader.", services.LogTrace)
	return nil
}

// resolveEntry makes the bridge singleton the entry of the bridge's own mod.
func (s *State) resolveEntry(meta *host.ModMetadata, _ *host.Assembly) (host.Mod, bool, error) {
	if !meta.HasID(SelfUniqueID) {
		return nil, false, nil
	}
	return s.support, true, nil
}

// IsScriptedPack reports whether a record is a content pack for the marker
// mod. The id match is exact.
func IsScriptedPack(meta *host.ModMetadata) bool {
	return meta != nil && meta.IsContentPack() && meta.Manifest().ContentPackFor.UniqueID == MarkerUniqueID
}

// interceptLoad claims scripted packs and passes everything else through.
func (s *State) interceptLoad(meta *host.ModMetadata) (outcome host.LoadOutcome, handled bool) {
	if !IsScriptedPack(meta) {
		return host.LoadOutcome{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = s.fail(meta, fmt.Errorf("panic: %v", r))
		}
	}()
	return s.loadScriptMod(meta), true
}

// loadScriptMod runs the scripted mod load pipeline for one pack.
func (s *State) loadScriptMod(meta *host.ModMetadata) host.LoadOutcome {
	svc, err := s.ready()
	if err != nil {
		return host.Failed(host.FailLoadFailed, "%v", err)
	}
	if svc == nil {
		return s.fail(meta, ErrNotInstalled)
	}

	identity, err := BuildIdentity(meta.Manifest())
	if err != nil {
		return s.fail(meta, fmt.Errorf("identity: %w", err))
	}
	record, err := BuildMetadataRecord(identity, meta.DirectoryPath(), meta.RootPath())
	if err != nil {
		return s.fail(meta, err)
	}

	handle, err := s.runtime.LoadAndRun(ScriptEngine(identity), record.DirectoryPath())
	if err != nil {
		if isFeatureFailure(err) {
			s.disable(err)
		}
		return s.fail(meta, err)
	}

	bundle, monitor, err := BuildCapabilityBundle(record, svc)
	if err != nil {
		return s.fail(meta, fmt.Errorf("helpers: %w", err))
	}
	mod, err := Bind(svc.Registry, handle, record, bundle, monitor)
	if err != nil {
		return s.fail(meta, err)
	}

	s.track(mod)
	monitor.Log(fmt.Sprintf("Loaded %s from %s.", identity, handle.Engine()), services.LogTrace)
	return host.Loaded()
}

// ready initializes script support on first use and returns the host
// services, or nil when the bridge is not installed.
func (s *State) ready() (*HostServices, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	return s.services, nil
}

func (s *State) disable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disableLocked(err)
}

func (s *State) track(mod *ScriptMod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scriptMods = append(s.scriptMods, mod)
}

// fail logs a scripted mod failure and returns it as a load outcome.
func (s *State) fail(meta *host.ModMetadata, err error) host.LoadOutcome {
	s.mu.Lock()
	monitor := s.monitor
	s.mu.Unlock()

	monitor.Log(fmt.Sprintf("Failed to load scripted mod %s: %v", meta.DisplayName(), err), services.LogError)
	return host.Failed(host.FailLoadFailed, "%v", err)
}
