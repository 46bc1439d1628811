package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Player is a connected player.
type Player struct {
	ID     int64
	Name   string
	IsHost bool
	Mods   []string
}

// Multiplayer tracks connected players and routes mod messages. Messages
// are delivered locally through the ModMessageReceived event.
type Multiplayer struct {
	mu      sync.RWMutex
	events  *EventManager
	players map[int64]Player
	localID int64
	lastID  int64
}

// NewMultiplayer creates a multiplayer service with the local player as host.
func NewMultiplayer(events *EventManager, localName string) *Multiplayer {
	mp := &Multiplayer{
		events:  events,
		players: make(map[int64]Player),
		lastID:  time.Now().UnixNano(),
	}
	mp.localID = mp.GetNewID()
	mp.players[mp.localID] = Player{ID: mp.localID, Name: localName, IsHost: true}
	return mp
}

// GetNewID returns an id unique for this session.
func (mp *Multiplayer) GetNewID() int64 {
	return atomic.AddInt64(&mp.lastID, 1)
}

// LocalPlayerID returns the local player's id.
func (mp *Multiplayer) LocalPlayerID() int64 {
	return mp.localID
}

// AddPlayer records a connected player.
func (mp *Multiplayer) AddPlayer(p Player) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.players[p.ID] = p
}

// RemovePlayer forgets a player.
func (mp *Multiplayer) RemovePlayer(id int64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if id != mp.localID {
		delete(mp.players, id)
	}
}

// GetConnectedPlayers returns every connected player ordered by id.
func (mp *Multiplayer) GetConnectedPlayers() []Player {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	list := make([]Player, 0, len(mp.players))
	for _, p := range mp.players {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// SendMessage delivers a message from a mod to the mods listed in toMods
// (every mod if empty). Messages addressed only to other players are not
// delivered locally. Returns the message id.
func (mp *Multiplayer) SendMessage(fromModID string, message any, messageType string, toMods []string, toPlayers []int64) (string, error) {
	if messageType == "" {
		return "", fmt.Errorf("message type is required")
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}

	id := uuid.NewString()
	if !mp.addressedToLocal(toPlayers) {
		return id, nil
	}

	args := ModMessageReceivedEventArgs{
		ID:           id,
		FromModID:    fromModID,
		FromPlayerID: mp.localID,
		Type:         messageType,
		Payload:      payload,
	}
	mp.events.RaiseFor(EventModMessageReceived, args, OwnerIn(toMods))
	return id, nil
}

func (mp *Multiplayer) addressedToLocal(toPlayers []int64) bool {
	if len(toPlayers) == 0 {
		return true
	}
	for _, id := range toPlayers {
		if id == mp.localID {
			return true
		}
	}
	return false
}
