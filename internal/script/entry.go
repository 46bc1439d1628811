package script

import "github.com/rs/zerolog"

// Engine names.
const (
	EngineLua        = "lua"
	EngineJavaScript = "javascript"
)

// EntrySymbol is the global a mod script assigns its entry object to.
const EntrySymbol = "ModEntry"

// Entry object slots assigned by the host before Entry runs.
const (
	SlotManifest = "ModManifest"
	SlotHelper   = "Helper"
	SlotMonitor  = "Monitor"
)

// EntryFile returns the fixed entry script name for an engine.
func EntryFile(engine string) string {
	switch engine {
	case EngineJavaScript:
		return "modentry.js"
	default:
		return "modentry.lua"
	}
}

// EntryHandle refers to the entry object a script defined.
type EntryHandle interface {
	// Symbol returns the global name the entry was read from.
	Symbol() string

	// Engine returns the engine name.
	Engine() string

	// Assign writes a host value into a slot of the entry object. It fails
	// with ErrEntryShape when the slot cannot be written.
	Assign(slot string, v any) error

	// Lookup reads a slot, converting script values to Go values.
	Lookup(slot string) (any, bool)

	// Invoke calls a method of the entry object with the object as receiver.
	// called is false when the entry has no such method.
	Invoke(method string, args ...any) (result any, called bool, err error)
}

// Engine is one script environment.
type Engine interface {
	// Name returns the engine name.
	Name() string

	// Run puts dir on the module search path, executes the entry script in
	// dir and returns a handle to the entry object.
	Run(dir string) (EntryHandle, error)

	// Detach removes the entry symbol and the modules loaded from mod
	// folders from the global environment. Handles already returned stay valid.
	Detach()

	// Close releases the engine.
	Close() error
}

// EngineOptions are passed to engine factories.
type EngineOptions struct {
	Types  *TypeCatalog
	Logger zerolog.Logger
}

// EngineFactory creates an engine instance.
type EngineFactory func(opts EngineOptions) (Engine, error)
