package bridge

import (
	"fmt"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/script"
)

// Bind gives the script's ModEntry its identity, helper bundle and monitor,
// pairs it with a ScriptMod shadow and registers the record as loaded.
func Bind(registry *host.ModRegistry, handle script.EntryHandle, meta *host.ModMetadata, bundle *helpers.ModHelper, monitor *services.Monitor) (*ScriptMod, error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: no %s object", script.ErrEntryMissing, script.EntrySymbol)
	}
	if registry == nil || meta == nil || bundle == nil || monitor == nil {
		return nil, fmt.Errorf("bind %s: registry, record, bundle and monitor are required", handle.Symbol())
	}
	if meta.Manifest() == nil {
		return nil, fmt.Errorf("bind %s: %s has no manifest", handle.Symbol(), meta.DisplayName())
	}

	slots := []struct {
		name  string
		value any
	}{
		// The script gets its own copy; the registry keeps the original.
		{script.SlotManifest, meta.Manifest().Clone()},
		{script.SlotHelper, bundle},
		{script.SlotMonitor, monitor},
	}
	for _, slot := range slots {
		if err := handle.Assign(slot.name, slot.value); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", handle.Symbol(), slot.name, err)
		}
	}

	if err := registry.Add(meta); err != nil {
		return nil, err
	}
	mod := NewScriptMod(handle, meta, bundle, monitor)
	meta.SetMod(mod, bundle.Translation)
	return mod, nil
}
