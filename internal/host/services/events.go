package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// EventName identifies a host event.
type EventName string

// Host events.
const (
	EventGameLaunched       EventName = "GameLoop.GameLaunched"
	EventUpdateTicked       EventName = "GameLoop.UpdateTicked"
	EventDayStarted         EventName = "GameLoop.DayStarted"
	EventSaveLoaded         EventName = "GameLoop.SaveLoaded"
	EventModMessageReceived EventName = "Multiplayer.ModMessageReceived"
	EventAssetsInvalidated  EventName = "Content.AssetsInvalidated"
)

var knownEvents = map[EventName]bool{
	EventGameLaunched:       true,
	EventUpdateTicked:       true,
	EventDayStarted:         true,
	EventSaveLoaded:         true,
	EventModMessageReceived: true,
	EventAssetsInvalidated:  true,
}

// Events returns all event names in sorted order.
func Events() []EventName {
	names := make([]EventName, 0, len(knownEvents))
	for name := range knownEvents {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Event arguments.
type (
	GameLaunchedEventArgs struct{}

	UpdateTickedEventArgs struct {
		Ticks uint64
	}

	DayStartedEventArgs struct {
		Day int
	}

	SaveLoadedEventArgs struct {
		SaveName string
	}

	AssetsInvalidatedEventArgs struct {
		Names []string
	}
)

// ModMessageReceivedEventArgs carries a message sent by another mod.
type ModMessageReceivedEventArgs struct {
	ID           string
	FromModID    string
	FromPlayerID int64
	Type         string
	Payload      json.RawMessage
}

// ReadAs decodes the message payload into out.
func (a ModMessageReceivedEventArgs) ReadAs(out any) error {
	return json.Unmarshal(a.Payload, out)
}

// Data decodes the message payload into a generic value.
func (a ModMessageReceivedEventArgs) Data() (any, error) {
	var v any
	err := json.Unmarshal(a.Payload, &v)
	return v, err
}

// Handler receives event arguments. Handlers run on the goroutine that
// raises the event.
type Handler func(args any)

type subscription struct {
	id    uint64
	owner string
	fn    Handler
}

// EventManager dispatches host events to subscribed handlers.
type EventManager struct {
	mu       sync.RWMutex
	handlers map[EventName][]subscription
	nextID   uint64
	logger   zerolog.Logger
}

// NewEventManager creates an event manager.
func NewEventManager(logger zerolog.Logger) *EventManager {
	return &EventManager{
		handlers: make(map[EventName][]subscription),
		logger:   logger,
	}
}

// Subscribe adds a handler owned by a mod. Returns the subscription id.
func (em *EventManager) Subscribe(owner string, name EventName, fn Handler) (uint64, error) {
	if !knownEvents[name] {
		return 0, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
	if fn == nil {
		return 0, fmt.Errorf("nil handler for %s", name)
	}

	id := atomic.AddUint64(&em.nextID, 1)

	em.mu.Lock()
	em.handlers[name] = append(em.handlers[name], subscription{id: id, owner: owner, fn: fn})
	em.mu.Unlock()

	return id, nil
}

// Unsubscribe removes a subscription. Returns true if it existed.
func (em *EventManager) Unsubscribe(id uint64) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	for name, subs := range em.handlers {
		for i, sub := range subs {
			if sub.id == id {
				em.handlers[name] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// HandlerCount returns the number of handlers for an event.
func (em *EventManager) HandlerCount(name EventName) int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.handlers[name])
}

// Raise calls every handler for the event in subscription order.
// A failing handler does not stop the others; failures are logged and returned.
func (em *EventManager) Raise(name EventName, args any) []error {
	return em.RaiseFor(name, args, nil)
}

// RaiseFor is Raise restricted to handlers whose owner passes the filter.
// A nil filter matches every handler.
func (em *EventManager) RaiseFor(name EventName, args any, filter func(owner string) bool) []error {
	em.mu.RLock()
	subs := make([]subscription, len(em.handlers[name]))
	copy(subs, em.handlers[name])
	em.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if filter != nil && !filter(sub.owner) {
			continue
		}
		if err := em.call(sub, args); err != nil {
			em.logger.Error().
				Err(err).
				Str("event", string(name)).
				Str("mod", sub.owner).
				Msg("Event handler failed")
			errs = append(errs, err)
		}
	}
	return errs
}

func (em *EventManager) call(sub subscription, args any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	sub.fn(args)
	return nil
}

// OwnerIn returns a filter matching any of the given mod ids, ignoring case.
// An empty list matches every owner.
func OwnerIn(ids []string) func(string) bool {
	if len(ids) == 0 {
		return nil
	}
	return func(owner string) bool {
		for _, id := range ids {
			if strings.EqualFold(owner, id) {
				return true
			}
		}
		return false
	}
}
