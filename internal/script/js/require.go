package js

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
)

const modulePrefix = "(function(exports, require, module, __filename, __dirname) {"

var (
	// ErrModuleNotAvailable is thrown by require for names it will not load.
	ErrModuleNotAvailable = errors.New("module is not available")

	// ErrWrapperEscape is returned for source that closes its module
	// function early.
	ErrWrapperEscape = errors.New("source closes the module function")
)

// compileModule wraps src in the module function and compiles it. The
// wrapped text must parse to that one function expression.
func compileModule(path, src, suffix string) (*goja.Program, error) {
	parsed, err := goja.Parse(path, modulePrefix+src+suffix)
	if err != nil {
		return nil, err
	}
	if len(parsed.Body) != 1 {
		return nil, fmt.Errorf("%s: %w", path, ErrWrapperEscape)
	}
	stmt, ok := parsed.Body[0].(*ast.ExpressionStatement)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrWrapperEscape)
	}
	if _, ok := stmt.Expression.(*ast.FunctionLiteral); !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrWrapperEscape)
	}
	return goja.CompileAST(parsed, false)
}

// requireFrom returns the require function for a file in base. Only
// relative paths inside root are loaded.
func (e *Engine) requireFrom(root, base string) func(name string) (goja.Value, error) {
	return func(name string) (goja.Value, error) {
		if !strings.HasPrefix(name, "./") && !strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("%w: %q", ErrModuleNotAvailable, name)
		}

		path, err := resolveModule(root, filepath.Join(base, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("require %q: %w", name, err)
		}
		if module, ok := e.modules[path]; ok {
			return module.Get("exports"), nil
		}
		return e.loadModule(root, path)
	}
}

// loadModule runs a CommonJS file and caches its module object.
func (e *Engine) loadModule(root, path string) (goja.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := compileModule(path, string(src), "\n})")
	if err != nil {
		return nil, err
	}
	wrapper, err := e.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("module wrapper for %s is not callable", path)
	}

	module := e.vm.NewObject()
	exports := e.vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	// Cache first so cycles see the partial exports.
	e.modules[path] = module

	dir := filepath.Dir(path)
	if _, err := fn(goja.Undefined(),
		exports,
		e.vm.ToValue(e.requireFrom(root, dir)),
		module,
		e.vm.ToValue(path),
		e.vm.ToValue(dir),
	); err != nil {
		delete(e.modules, path)
		return nil, err
	}
	return module.Get("exports"), nil
}

// resolveModule finds path, path.js or path/index.js below root.
func resolveModule(root, path string) (string, error) {
	root = filepath.Clean(root)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: outside the mod folder", ErrModuleNotAvailable)
	}

	for _, candidate := range []string{path, path + ".js", filepath.Join(path, "index.js")} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s not found", ErrModuleNotAvailable, rel)
}
