package lua

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// moduleName matches dotted module names; anything that could walk out of
// the mod folder is rejected before the file loader sees it.
var moduleName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// builtinModules can always be required.
var builtinModules = map[string]bool{
	"_G":        true,
	"string":    true,
	"table":     true,
	"math":      true,
	"coroutine": true,
	"package":   true,
}

// Sandbox restricts what a script can load.
type Sandbox struct {
	L *lua.LState

	dir         string
	fileModules map[string]bool
}

// NewSandbox creates a sandbox for the Lua state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:           L,
		fileModules: make(map[string]bool),
	}
}

// Install removes the chunk loading globals and replaces require.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}
	s.installSafeRequire()
}

// installSafeRequire limits require to builtins, preloaded modules and
// files under the current mod folder.
func (s *Sandbox) installSafeRequire() {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return
	}
	s.L.SetField(pkg, "path", lua.LString(""))
	s.L.SetField(pkg, "cpath", lua.LString(""))

	if loaded, ok := s.L.GetField(pkg, "loaded").(*lua.LTable); ok {
		var remove []string
		loaded.ForEach(func(k, _ lua.LValue) {
			if ks, ok := k.(lua.LString); ok && !builtinModules[string(ks)] {
				remove = append(remove, string(ks))
			}
		})
		for _, key := range remove {
			loaded.RawSetString(key, lua.LNil)
		}
	}

	// require resolves files from the mod folder itself; the stock searchers go.
	s.L.SetField(pkg, "loaders", s.L.NewTable())
	s.L.SetField(pkg, "loadlib", lua.LNil)

	s.L.SetGlobal("require", s.L.NewFunction(s.require))
}

// require returns package.loaded[name], running a preloader or a file from
// the mod folder the first time.
func (s *Sandbox) require(L *lua.LState) int {
	name := L.CheckString(1)

	loaded := s.packageField("loaded")
	if loaded == nil {
		L.RaiseError("package.loaded is not a table")
		return 0
	}
	if lv := loaded.RawGetString(name); lv != lua.LNil {
		L.Push(lv)
		return 1
	}

	var chunk *lua.LFunction
	fromFile := false
	if preload := s.packageField("preload"); preload != nil {
		chunk, _ = preload.RawGetString(name).(*lua.LFunction)
	}
	if chunk == nil {
		path := s.resolve(name)
		if path == "" {
			L.RaiseError("module %q is not available", name)
			return 0
		}
		fn, err := L.LoadFile(path)
		if err != nil {
			L.RaiseError("module %q: %v", name, err)
			return 0
		}
		chunk, fromFile = fn, true
	}

	L.Push(chunk)
	L.Push(lua.LString(name))
	L.Call(1, 1)
	if ret := L.Get(-1); ret != lua.LNil {
		loaded.RawSetString(name, ret)
	}
	L.Pop(1)
	if loaded.RawGetString(name) == lua.LNil {
		loaded.RawSetString(name, lua.LTrue)
	}
	if fromFile {
		s.fileModules[name] = true
	}
	L.Push(loaded.RawGetString(name))
	return 1
}

// resolve maps a dotted module name to <dir>/a/b.lua or <dir>/a/b/init.lua.
func (s *Sandbox) resolve(name string) string {
	if s.dir == "" || !moduleName.MatchString(name) {
		return ""
	}
	rel := filepath.FromSlash(strings.ReplaceAll(name, ".", "/"))
	for _, path := range []string{
		filepath.Join(s.dir, rel+".lua"),
		filepath.Join(s.dir, rel, "init.lua"),
	} {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func (s *Sandbox) packageField(name string) *lua.LTable {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return nil
	}
	t, _ := s.L.GetField(pkg, name).(*lua.LTable)
	return t
}

// SetModuleDir points the module search path at a mod folder. package.path
// mirrors it for scripts that inspect it; require only looks at dir.
func (s *Sandbox) SetModuleDir(dir string) {
	s.dir = dir
	base := filepath.ToSlash(dir)
	path := base + "/?.lua;" + base + "/?/init.lua"

	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(path))
	}
}

// ModulePath returns package.path.
func (s *Sandbox) ModulePath() string {
	pkg, ok := s.L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return ""
	}
	return lua.LVAsString(s.L.GetField(pkg, "path"))
}

// FileModules returns the modules loaded from mod folders, sorted.
func (s *Sandbox) FileModules() []string {
	names := make([]string, 0, len(s.fileModules))
	for name := range s.fileModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForgetFileModules removes file modules from package.loaded so the next
// mod loads its own copies.
func (s *Sandbox) ForgetFileModules() {
	if loaded := s.packageField("loaded"); loaded != nil {
		for name := range s.fileModules {
			loaded.RawSetString(name, lua.LNil)
		}
	}
	s.fileModules = make(map[string]bool)
	s.dir = ""
	if pkg, ok := s.L.GetGlobal("package").(*lua.LTable); ok {
		s.L.SetField(pkg, "path", lua.LString(""))
	}
}
