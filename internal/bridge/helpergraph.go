package bridge

import (
	"fmt"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
)

// BuildCapabilityBundle builds the helper bundle and monitor of a scripted
// mod from the host services. Every helper is scoped to the record's id and
// refuses to work until that id is registered.
func BuildCapabilityBundle(meta *host.ModMetadata, svc *HostServices) (*helpers.ModHelper, *services.Monitor, error) {
	if meta == nil || meta.Manifest() == nil {
		return nil, nil, fmt.Errorf("metadata record has no identity")
	}
	if svc == nil {
		return nil, nil, fmt.Errorf("%w: no host services", ErrHostAPIMismatch)
	}
	id, dir := meta.ID(), meta.DirectoryPath()

	translation, err := helpers.NewTranslationHelper(id, dir, svc.Registry, svc.Locale)
	if err != nil {
		return nil, nil, fmt.Errorf("translations: %w", err)
	}

	bundle, err := helpers.NewModHelper(id, dir, svc.Registry,
		helpers.NewModEvents(id, svc.Registry, svc.Events),
		helpers.NewCommandHelper(id, svc.Registry, svc.Commands),
		helpers.NewGameContentHelper(id, svc.Registry, svc.Content, svc.Locale),
		helpers.NewModContentHelper(id, dir, svc.Registry, svc.Content),
		helpers.NewContentPackHelper(id, svc.Registry, svc.Content, svc.FakePacks, svc.Locale),
		helpers.NewDataHelper(id, dir, svc.Registry, svc.GlobalData),
		helpers.NewReflectionHelper(id, svc.Registry, svc.Reflector),
		helpers.NewModRegistryHelper(id, svc.Registry),
		helpers.NewMultiplayerHelper(id, svc.Registry, svc.Multiplayer),
		translation,
	)
	if err != nil {
		return nil, nil, err
	}
	return bundle, svc.LogManager.GetMonitor(id, meta.DisplayName()), nil
}
