// Package services implements the host's shared services: per-mod log
// monitors, the event bus, console commands, reflection, multiplayer
// messaging, content loading and the global data store.
//
// The host keeps one instance of each service and never hands them to mods
// directly. Mods reach them through the scoped helpers in package helpers.
//
// Services are safe for concurrent use. Event handlers run on the goroutine
// that raises the event; callers that own a script engine must raise events
// from the goroutine that owns that engine.
package services
