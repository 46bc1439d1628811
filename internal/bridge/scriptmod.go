package bridge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/modinfo"
	"github.com/sinz/selene/internal/script"
)

// Entry script methods forwarded by ScriptMod.
const (
	methodEntry  = "Entry"
	methodGetAPI = "GetApi"
)

// ScriptMod is the native entry the host sees for a scripted mod. It
// forwards Entry and API to the script's ModEntry.
type ScriptMod struct {
	host.BaseMod

	handle script.EntryHandle
	meta   *host.ModMetadata
}

var (
	_ host.Mod         = (*ScriptMod)(nil)
	_ host.APIProvider = (*ScriptMod)(nil)
)

// NewScriptMod pairs a ModEntry handle with its shadow.
func NewScriptMod(handle script.EntryHandle, meta *host.ModMetadata, bundle *helpers.ModHelper, monitor *services.Monitor) *ScriptMod {
	return &ScriptMod{
		BaseMod: host.BaseMod{
			ModManifest: meta.Manifest(),
			Helper:      bundle,
			Monitor:     monitor,
		},
		handle: handle,
		meta:   meta,
	}
}

// Handle returns the script entry object.
func (m *ScriptMod) Handle() script.EntryHandle {
	return m.handle
}

// Entry calls ModEntry:Entry(helper) when the script defines it.
func (m *ScriptMod) Entry(helper *helpers.ModHelper) error {
	if m.handle == nil {
		return fmt.Errorf("%w: %s has no script entry", script.ErrEntryMissing, m.ModManifest.UniqueID)
	}
	if _, called, err := m.handle.Invoke(methodEntry, helper); err != nil {
		return err
	} else if !called && m.Monitor != nil {
		m.Monitor.VerboseLog(fmt.Sprintf("%s defines no %s method", script.EntrySymbol, methodEntry))
	}
	return nil
}

// API returns the result of ModEntry:GetApi(), or nil.
func (m *ScriptMod) API() any {
	if m.handle == nil {
		return nil
	}
	api, _, err := m.handle.Invoke(methodGetAPI)
	if err != nil {
		if m.Monitor != nil {
			m.Monitor.Log(fmt.Sprintf("%s failed: %v", methodGetAPI, err), services.LogError)
		}
		return nil
	}
	return api
}

// SupportMod is the entry of the bridge's own mod.
type SupportMod struct {
	host.BaseMod

	state *State
}

// Entry reports the scripted mods and adds the selene_mods console command.
func (m *SupportMod) Entry(helper *helpers.ModHelper) error {
	mods := m.state.ScriptMods()
	m.Monitor.Log(fmt.Sprintf("Script support ready with %d scripted mod(s).", len(mods)), services.LogInfo)

	return helper.Commands.Add("selene_mods", "Lists the scripted mods loaded by Selene.", func(string, []string) {
		var lines []string
		for _, mod := range m.state.ScriptMods() {
			lines = append(lines, fmt.Sprintf("%s (%s)", mod.ModManifest, ScriptEngine(mod.ModManifest)))
		}
		sort.Strings(lines)
		if len(lines) == 0 {
			lines = append(lines, "no scripted mods")
		}
		m.Monitor.Log(strings.Join(lines, "\n"), services.LogInfo)
	})
}

// DefaultTypes returns the host types and values scripts reach through clr.
func DefaultTypes() *script.TypeCatalog {
	types := script.NewTypeCatalog()
	for name, sample := range map[string]any{
		"Manifest":       (*modinfo.Manifest)(nil),
		"ContentPackFor": (*modinfo.ContentPackFor)(nil),
		"Dependency":     (*modinfo.Dependency)(nil),
		"Player":         (*services.Player)(nil),
	} {
		mustRegister(types.RegisterType(name, sample))
	}

	events := make(map[string]string)
	for _, name := range services.Events() {
		events[string(name)] = string(name)
	}
	for name, v := range map[string]any{
		"LogLevel":         services.LogLevels,
		"Events":           events,
		"APIVersion":       host.APIVersion,
		"CompareVersions":  modinfo.CompareVersions,
		"IsVersionAtLeast": modinfo.IsVersionAtLeast,
	} {
		mustRegister(types.RegisterValue(name, v))
	}
	return types
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}
