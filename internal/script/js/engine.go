// Package js runs modentry.js scripts in a goja runtime.
//
// Go values reach scripts through goja's reflection wrapper, so helpers keep
// their Go method and field names. Go functions returning a non-nil error
// throw, and script functions passed where Go expects a func are wrapped by
// goja.
package js

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/sinz/selene/internal/script"
)

// The entry script runs in its own function scope. Whatever declaration
// form the script uses for ModEntry, the wrapper returns it.
const entrySuffix = "\nreturn typeof " + script.EntrySymbol + " === 'undefined' ? module.exports." + script.EntrySymbol + " : " + script.EntrySymbol + ";\n})"

// Engine runs modentry.js scripts. It implements script.Engine.
type Engine struct {
	vm     *goja.Runtime
	types  *script.TypeCatalog
	logger zerolog.Logger

	// modules caches loaded files by absolute path.
	modules map[string]*goja.Object

	mu     sync.Mutex
	closed bool
}

var _ script.Engine = (*Engine)(nil)

// NewEngine creates a JavaScript engine. It matches script.EngineFactory.
func NewEngine(opts script.EngineOptions) (script.Engine, error) {
	e := &Engine{
		vm:      goja.New(),
		types:   opts.Types,
		logger:  opts.Logger,
		modules: make(map[string]*goja.Object),
	}
	if err := e.installConsole(); err != nil {
		return nil, err
	}
	if err := e.installCLR(); err != nil {
		return nil, err
	}
	return e, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return script.EngineJavaScript
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Run executes dir/modentry.js and returns its ModEntry object.
func (e *Engine) Run(dir string) (script.EntryHandle, error) {
	if e.isClosed() {
		return nil, script.ErrEngineClosed
	}
	path := filepath.Join(dir, script.EntryFile(script.EngineJavaScript))

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, script.NewScriptError(path, script.ErrScriptNotFound, err)
	}
	prog, err := compileModule(path, string(src), entrySuffix)
	if err != nil {
		return nil, script.NewScriptError(path, script.ErrScriptSyntax, err)
	}

	var entry goja.Value
	err = e.protect(func() error {
		wrapper, err := e.vm.RunProgram(prog)
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(wrapper)
		if !ok {
			return fmt.Errorf("entry wrapper is not callable")
		}
		module := e.vm.NewObject()
		exports := e.vm.NewObject()
		if err := module.Set("exports", exports); err != nil {
			return err
		}
		entry, err = fn(goja.Undefined(),
			exports,
			e.vm.ToValue(e.requireFrom(dir, dir)),
			module,
			e.vm.ToValue(path),
			e.vm.ToValue(dir),
		)
		return err
	})
	if err != nil {
		return nil, script.NewScriptError(path, script.ErrScriptRuntime, err)
	}

	if entry == nil || goja.IsUndefined(entry) || goja.IsNull(entry) {
		return nil, fmt.Errorf("%w: %s does not define %s", script.ErrEntryMissing, path, script.EntrySymbol)
	}
	obj, ok := entry.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s is a %s, not an object", script.ErrEntryShape, script.EntrySymbol, path, entry.ExportType())
	}
	return &entryHandle{engine: e, path: path, obj: obj}, nil
}

// Detach removes an implicit ModEntry global and the module cache.
func (e *Engine) Detach() {
	if e.isClosed() {
		return
	}
	global := e.vm.GlobalObject()
	if global.Get(script.EntrySymbol) != nil {
		if err := global.Delete(script.EntrySymbol); err != nil {
			_ = global.Set(script.EntrySymbol, goja.Undefined())
		}
	}
	e.modules = make(map[string]*goja.Object)
}

// Close releases the runtime.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.vm.Interrupt(script.ErrEngineClosed)
	e.modules = nil
	return nil
}

// ModuleCount returns the number of cached modules.
func (e *Engine) ModuleCount() int {
	return len(e.modules)
}

// protect runs fn, turning thrown values and Go panics into errors.
func (e *Engine) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ex, ok := r.(*goja.Exception); ok {
				err = ex
				return
			}
			err = fmt.Errorf("script panic: %v", r)
		}
	}()
	return fn()
}

func (e *Engine) installConsole() error {
	logAt := func(level zerolog.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			e.logger.WithLevel(level).Msg(strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.vm.NewObject()
	for name, level := range map[string]zerolog.Level{
		"log":   zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
	} {
		if err := console.Set(name, logAt(level)); err != nil {
			return err
		}
	}
	return e.vm.Set("console", console)
}

func (e *Engine) installCLR() error {
	clr := e.vm.NewObject()
	if err := clr.Set("import", func(name string) (any, error) {
		return e.types.Resolve(name)
	}); err != nil {
		return err
	}
	if err := clr.Set("new", func(name string) (any, error) {
		return e.types.New(name)
	}); err != nil {
		return err
	}
	if err := clr.Set("types", func() []string {
		return e.types.Names()
	}); err != nil {
		return err
	}
	return e.vm.Set("clr", clr)
}

// entryHandle is a ModEntry object.
type entryHandle struct {
	engine *Engine
	path   string
	obj    *goja.Object
}

func (h *entryHandle) Symbol() string { return script.EntrySymbol }

func (h *entryHandle) Engine() string { return script.EngineJavaScript }

// Assign sets a property on the entry object. Frozen objects and proxies
// that reject or drop the property are reported as wrong-shaped.
func (h *entryHandle) Assign(slot string, v any) error {
	var readback goja.Value
	err := h.engine.protect(func() error {
		if err := h.obj.Set(slot, v); err != nil {
			return err
		}
		readback = h.obj.Get(slot)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: set %s.%s: %v", script.ErrEntryShape, script.EntrySymbol, slot, err)
	}
	if v != nil && (readback == nil || goja.IsUndefined(readback) || goja.IsNull(readback)) {
		return fmt.Errorf("%w: %s.%s did not keep its value", script.ErrEntryShape, script.EntrySymbol, slot)
	}
	return nil
}

// Lookup reads a property from the entry object.
func (h *entryHandle) Lookup(slot string) (any, bool) {
	if h.engine.isClosed() {
		return nil, false
	}
	v := h.obj.Get(slot)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v.Export(), true
}

// Invoke calls ModEntry.method(args...) with ModEntry as this.
func (h *entryHandle) Invoke(method string, args ...any) (any, bool, error) {
	e := h.engine
	if e.isClosed() {
		return nil, false, script.ErrEngineClosed
	}
	fn, ok := goja.AssertFunction(h.obj.Get(method))
	if !ok {
		return nil, false, nil
	}

	vals := make([]goja.Value, len(args))
	for i, a := range args {
		vals[i] = e.vm.ToValue(a)
	}

	var result goja.Value
	err := e.protect(func() error {
		var err error
		result, err = fn(h.obj, vals...)
		return err
	})
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s.%s: %v", script.ErrScriptRuntime, script.EntrySymbol, method, describe(err))
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, true, nil
	}
	return result.Export(), true, nil
}

// describe prefers the script stack for thrown values.
func describe(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.String()
	}
	return err.Error()
}
