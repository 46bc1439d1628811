package helpers

import "github.com/sinz/selene/internal/host/services"

// MultiplayerHelper sends mod messages and lists players.
type MultiplayerHelper struct {
	base
	multiplayer *services.Multiplayer
}

// NewMultiplayerHelper creates the multiplayer helper for a mod.
func NewMultiplayerHelper(modID string, registry Registry, multiplayer *services.Multiplayer) *MultiplayerHelper {
	return &MultiplayerHelper{
		base:        base{modID: modID, registry: registry},
		multiplayer: multiplayer,
	}
}

// GetNewID returns an id unique for this session.
func (m *MultiplayerHelper) GetNewID() (int64, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	return m.multiplayer.GetNewID(), nil
}

// SendMessage sends a message to other mods. Empty target lists mean everyone.
func (m *MultiplayerHelper) SendMessage(message any, messageType string, toMods []string, toPlayers []int64) (string, error) {
	if err := m.check(); err != nil {
		return "", err
	}
	return m.multiplayer.SendMessage(m.modID, message, messageType, toMods, toPlayers)
}

// GetConnectedPlayers lists connected players.
func (m *MultiplayerHelper) GetConnectedPlayers() ([]services.Player, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.multiplayer.GetConnectedPlayers(), nil
}
