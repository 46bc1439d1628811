package script

import (
	"errors"
	"fmt"
)

// Feature-level errors. Any of these disables scripted mods for the process.
var (
	// ErrFeatureUnavailable is returned when the script runtime cannot start.
	ErrFeatureUnavailable = errors.New("script runtime unavailable")

	// ErrUnsupportedPlatform is returned for platforms without a native library build.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Per-mod errors.
var (
	// ErrScriptLoad matches every *ScriptError.
	ErrScriptLoad = errors.New("script load failed")

	// ErrScriptNotFound is returned when the entry script does not exist.
	ErrScriptNotFound = errors.New("entry script not found")

	// ErrScriptSyntax is returned when the entry script does not parse.
	ErrScriptSyntax = errors.New("syntax error")

	// ErrScriptRuntime is returned when the entry script throws while running.
	ErrScriptRuntime = errors.New("script error")

	// ErrEntryMissing is returned when the script does not define the entry symbol.
	ErrEntryMissing = errors.New("entry object not defined")

	// ErrEntryShape is returned when the entry symbol is not an object with
	// assignable slots.
	ErrEntryShape = errors.New("missing or wrong-shaped entry object")

	// ErrUnknownEngine is returned for an engine name with no registered factory.
	ErrUnknownEngine = errors.New("unknown script engine")

	// ErrEngineClosed is returned when using an engine after Close.
	ErrEngineClosed = errors.New("script engine is closed")
)

// ScriptError is a failure to load or run a script file.
type ScriptError struct {
	Path string
	Err  error
}

// NewScriptError wraps cause with one of ErrScriptNotFound, ErrScriptSyntax
// or ErrScriptRuntime.
func NewScriptError(path string, kind, cause error) *ScriptError {
	if cause == nil {
		return &ScriptError{Path: path, Err: kind}
	}
	return &ScriptError{Path: path, Err: fmt.Errorf("%w: %v", kind, cause)}
}

func (e *ScriptError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Is makes every ScriptError match ErrScriptLoad.
func (e *ScriptError) Is(target error) bool {
	return target == ErrScriptLoad
}
