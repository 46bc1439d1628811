package lua

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/sinz/selene/internal/script"
)

// Engine runs modentry.lua scripts. It implements script.Engine.
type Engine struct {
	state  *State
	types  *script.TypeCatalog
	logger zerolog.Logger
}

var _ script.Engine = (*Engine)(nil)

// NewEngine creates a Lua engine. It matches script.EngineFactory.
func NewEngine(opts script.EngineOptions) (script.Engine, error) {
	e := &Engine{
		state:  NewState(),
		types:  opts.Types,
		logger: opts.Logger,
	}
	e.installPrint()
	e.installCLR()
	return e, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return script.EngineLua
}

// State returns the underlying Lua state.
func (e *Engine) State() *State {
	return e.state
}

// Run executes dir/modentry.lua and returns its ModEntry table.
func (e *Engine) Run(dir string) (script.EntryHandle, error) {
	if e.state.IsClosed() {
		return nil, ErrStateClosed
	}
	path := filepath.Join(dir, script.EntryFile(script.EngineLua))

	e.state.Sandbox().SetModuleDir(dir)
	if err := e.state.DoFile(path); err != nil {
		return nil, err
	}

	lv := e.state.GetGlobal(script.EntrySymbol)
	switch v := lv.(type) {
	case *lua.LTable:
		return &entryHandle{engine: e, path: path, table: v}, nil
	case *lua.LNilType:
		return nil, fmt.Errorf("%w: %s does not define %s", script.ErrEntryMissing, path, script.EntrySymbol)
	default:
		return nil, fmt.Errorf("%w: %s in %s is a %s, not a table", script.ErrEntryShape, script.EntrySymbol, path, lv.Type())
	}
}

// Detach forgets the last script's ModEntry global and the modules it
// loaded from its folder.
func (e *Engine) Detach() {
	if e.state.IsClosed() {
		return
	}
	e.state.SetGlobal(script.EntrySymbol, lua.LNil)
	e.state.Sandbox().ForgetFileModules()
}

// Close releases the Lua state.
func (e *Engine) Close() error {
	return e.state.Close()
}

// installPrint routes print to the engine logger.
func (e *Engine) installPrint() {
	e.state.SetGlobal("print", e.state.L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		e.logger.Info().Msg(strings.Join(parts, "\t"))
		return 0
	}))
}

// installCLR exposes the type catalog as the clr table.
func (e *Engine) installCLR() {
	bridge := e.state.Bridge()
	e.state.RegisterModule("clr", map[string]lua.LGFunction{
		"import": func(L *lua.LState) int {
			v, err := e.types.Resolve(L.CheckString(1))
			if err != nil {
				L.RaiseError("%v", err)
				return 0
			}
			L.Push(bridge.ToLuaValue(v))
			return 1
		},
		"new": func(L *lua.LState) int {
			v, err := e.types.New(L.CheckString(1))
			if err != nil {
				L.RaiseError("%v", err)
				return 0
			}
			L.Push(bridge.ToLuaValue(v))
			return 1
		},
		"types": func(L *lua.LState) int {
			t := L.NewTable()
			for _, name := range e.types.Names() {
				t.Append(lua.LString(name))
			}
			L.Push(t)
			return 1
		},
	})
}

// entryHandle is a ModEntry table.
type entryHandle struct {
	engine *Engine
	path   string
	table  *lua.LTable
}

func (h *entryHandle) Symbol() string { return script.EntrySymbol }

func (h *entryHandle) Engine() string { return script.EngineLua }

// Assign sets a slot on the entry table. Metamethods run, so a table whose
// __newindex rejects or drops the slot is reported as wrong-shaped.
func (h *entryHandle) Assign(slot string, v any) error {
	s := h.engine.state
	lv := s.Bridge().ToLuaValue(v)

	var readback lua.LValue
	err := s.Protect(func(L *lua.LState) {
		L.SetField(h.table, slot, lv)
		readback = L.GetField(h.table, slot)
	})
	if err != nil {
		return fmt.Errorf("%w: set %s.%s: %v", script.ErrEntryShape, script.EntrySymbol, slot, err)
	}
	if lv != lua.LNil && readback == lua.LNil {
		return fmt.Errorf("%w: %s.%s did not keep its value", script.ErrEntryShape, script.EntrySymbol, slot)
	}
	return nil
}

// Lookup reads a slot from the entry table.
func (h *entryHandle) Lookup(slot string) (any, bool) {
	s := h.engine.state
	if s.IsClosed() {
		return nil, false
	}
	lv := h.table.RawGetString(slot)
	if lv == lua.LNil {
		return nil, false
	}
	return s.Bridge().ToGoValue(lv), true
}

// Invoke calls ModEntry:method(args...). A missing method is not an error.
func (h *entryHandle) Invoke(method string, args ...any) (any, bool, error) {
	s := h.engine.state
	if s.IsClosed() {
		return nil, false, ErrStateClosed
	}
	var member lua.LValue
	if err := s.Protect(func(L *lua.LState) {
		member = L.GetField(h.table, method)
	}); err != nil {
		return nil, false, fmt.Errorf("%w: %s.%s: %v", script.ErrScriptRuntime, script.EntrySymbol, method, err)
	}
	fn, ok := member.(*lua.LFunction)
	if !ok {
		return nil, false, nil
	}

	largs := make([]lua.LValue, 0, len(args)+1)
	largs = append(largs, h.table)
	for _, a := range args {
		largs = append(largs, s.Bridge().ToLuaValue(a))
	}

	results, err := s.Call(fn, largs...)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s:%s: %v", script.ErrScriptRuntime, script.EntrySymbol, method, err)
	}
	if len(results) == 0 {
		return nil, true, nil
	}
	return s.Bridge().ToGoValue(results[0]), true, nil
}
