// Package lua runs mod entry scripts in a sandboxed gopher-lua state.
package lua

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/sinz/selene/internal/script"
)

// State wraps gopher-lua with the sandbox and the Go value bridge.
//
// gopher-lua's LState is not goroutine-safe. Scripts, and Go callbacks that
// call back into Lua, must run on one goroutine at a time; the host's load
// pass and event raises satisfy this. The mutex only guards Close.
type State struct {
	L *lua.LState

	sandbox *Sandbox
	bridge  *Bridge

	mu     sync.Mutex
	closed bool
}

// NewState creates a sandboxed Lua state.
func NewState() *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(L)

	s := &State{
		L:       L,
		sandbox: NewSandbox(L),
		bridge:  NewBridge(L),
	}
	s.sandbox.Install()
	return s
}

// openSafeLibraries opens the standard libraries that cannot reach the
// file system or the process. io, os and debug stay closed.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenPackage(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	lua.OpenCoroutine(L)
}

// Bridge returns the Go value bridge.
func (s *State) Bridge() *Bridge {
	return s.bridge
}

// Sandbox returns the sandbox.
func (s *State) Sandbox() *Sandbox {
	return s.sandbox
}

// DoFile executes a Lua file. Failures are *script.ScriptError values
// classified as not found, syntax or runtime errors.
func (s *State) DoFile(path string) error {
	if s.IsClosed() {
		return ErrStateClosed
	}
	if _, err := os.Stat(path); err != nil {
		return script.NewScriptError(path, script.ErrScriptNotFound, err)
	}

	var fn *lua.LFunction
	err := s.doWithRecovery(func() error {
		var err error
		fn, err = s.L.LoadFile(path)
		return err
	})
	if err != nil {
		return script.NewScriptError(path, script.ErrScriptSyntax, err)
	}

	if _, err := s.Call(fn); err != nil {
		return script.NewScriptError(path, script.ErrScriptRuntime, err)
	}
	return nil
}

// DoString executes a Lua chunk.
func (s *State) DoString(code string) error {
	if s.IsClosed() {
		return ErrStateClosed
	}
	return s.doWithRecovery(func() error {
		return s.L.DoString(code)
	})
}

// doWithRecovery executes a function with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Call calls a Lua function in protected mode and returns its results.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	if s.IsClosed() {
		return nil, ErrStateClosed
	}
	return s.bridge.call(fn, args...)
}

// Protect runs fn as a Lua function in protected mode, so metamethods that
// raise errors come back as Go errors.
func (s *State) Protect(fn func(L *lua.LState)) error {
	if s.IsClosed() {
		return ErrStateClosed
	}
	_, err := s.bridge.call(s.L.NewFunction(func(L *lua.LState) int {
		fn(L)
		return 0
	}))
	return err
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	if s.IsClosed() {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// SetGlobal sets a global variable.
func (s *State) SetGlobal(name string, value lua.LValue) {
	if s.IsClosed() {
		return
	}
	s.L.SetGlobal(name, value)
}

// RegisterModule registers a global table of functions.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	if s.IsClosed() {
		return
	}
	s.L.SetGlobal(name, s.L.SetFuncs(s.L.NewTable(), funcs))
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the Lua state.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
