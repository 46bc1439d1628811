package helpers

import (
	"sync"

	"github.com/sinz/selene/internal/host/services"
)

// ModEvents subscribes one mod to host events.
type ModEvents struct {
	base
	events *services.EventManager

	mu   sync.Mutex
	subs []uint64
}

// NewModEvents creates the event helper for a mod.
func NewModEvents(modID string, registry Registry, events *services.EventManager) *ModEvents {
	return &ModEvents{
		base:   base{modID: modID, registry: registry},
		events: events,
	}
}

// Subscribe adds a handler for an event such as "GameLoop.GameLaunched".
// Returns the subscription id.
func (e *ModEvents) Subscribe(event string, handler services.Handler) (uint64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	id, err := e.events.Subscribe(e.modID, services.EventName(event), handler)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.subs = append(e.subs, id)
	e.mu.Unlock()
	return id, nil
}

// Unsubscribe removes one of this mod's subscriptions.
func (e *ModEvents) Unsubscribe(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subs {
		if sub == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return e.events.Unsubscribe(id)
		}
	}
	return false
}

// UnsubscribeAll removes every subscription made through this helper.
func (e *ModEvents) UnsubscribeAll() int {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	n := 0
	for _, id := range subs {
		if e.events.Unsubscribe(id) {
			n++
		}
	}
	return n
}
