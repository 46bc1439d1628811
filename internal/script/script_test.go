package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLoader struct {
	opened  []string
	missing map[string]bool
}

func (l *countingLoader) Open(path string) (uintptr, error) {
	l.opened = append(l.opened, path)
	return uintptr(len(l.opened)), nil
}

func (l *countingLoader) Symbol(_ uintptr, name string) (uintptr, error) {
	if l.missing[name] {
		return 0, fmt.Errorf("symbol %s not found", name)
	}
	return 1, nil
}

type fakeHandle struct{ dir string }

func (h *fakeHandle) Symbol() string            { return EntrySymbol }
func (h *fakeHandle) Engine() string            { return "fake" }
func (h *fakeHandle) Assign(string, any) error  { return nil }
func (h *fakeHandle) Lookup(string) (any, bool) { return nil, false }
func (h *fakeHandle) Invoke(string, ...any) (any, bool, error) {
	return nil, false, nil
}

type fakeEngine struct {
	runs     []string
	detached int
	closed   bool
	fail     error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Run(dir string) (EntryHandle, error) {
	e.runs = append(e.runs, dir)
	if e.fail != nil {
		return nil, e.fail
	}
	return &fakeHandle{dir: dir}, nil
}

func (e *fakeEngine) Detach() { e.detached++ }

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

func writeNativeLibrary(t *testing.T, base, goos, goarch string) string {
	t.Helper()
	path, err := NativeLibraryPath(base, goos, goarch)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("lib"), 0o644))
	return path
}

func TestRID(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"linux", "amd64", "linux-x64", false},
		{"linux", "arm64", "linux-arm64", false},
		{"darwin", "arm64", "osx-arm64", false},
		{"windows", "amd64", "win-x64", false},
		{"plan9", "amd64", "", true},
		{"linux", "386", "", true},
	}
	for _, tt := range tests {
		got, err := RID(tt.goos, tt.goarch)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedPlatform, "%s/%s", tt.goos, tt.goarch)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	path, err := NativeLibraryPath("/base", "windows", "amd64")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/base", "runtimes", "win-x64", "native", "lua54.dll"), path)
}

func TestInitializeLoadsLibraryOnce(t *testing.T) {
	base := t.TempDir()
	want := writeNativeLibrary(t, base, "linux", "amd64")
	loader := &countingLoader{}
	rt := NewRuntime(WithBaseDir(base), WithNativeLoader(loader), WithPlatform("linux", "amd64"))

	require.NoError(t, rt.Initialize())
	require.NoError(t, rt.Initialize())
	assert.Equal(t, []string{want}, loader.opened)

	lib := rt.Library()
	require.NotNil(t, lib)
	assert.Equal(t, "linux-x64", lib.RID)
}

func TestInitializeMissingLibrary(t *testing.T) {
	loader := &countingLoader{}
	rt := NewRuntime(WithBaseDir(t.TempDir()), WithNativeLoader(loader), WithPlatform("linux", "amd64"))

	err := rt.Initialize()
	assert.ErrorIs(t, err, ErrFeatureUnavailable)
	assert.ErrorIs(t, rt.Initialize(), ErrFeatureUnavailable)
	assert.Empty(t, loader.opened)

	_, err = rt.LoadAndRun("fake", t.TempDir())
	assert.ErrorIs(t, err, ErrFeatureUnavailable)
}

func TestInitializeUnsupportedPlatform(t *testing.T) {
	rt := NewRuntime(WithBaseDir(t.TempDir()), WithNativeLoader(&countingLoader{}), WithPlatform("plan9", "amd64"))
	err := rt.Initialize()
	assert.ErrorIs(t, err, ErrFeatureUnavailable)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestInitializeMissingSymbol(t *testing.T) {
	base := t.TempDir()
	writeNativeLibrary(t, base, "darwin", "arm64")
	loader := &countingLoader{missing: map[string]bool{NativeCheckSymbol: true}}
	rt := NewRuntime(WithBaseDir(base), WithNativeLoader(loader), WithPlatform("darwin", "arm64"))
	assert.ErrorIs(t, rt.Initialize(), ErrFeatureUnavailable)
}

func TestLoadAndRunIsolation(t *testing.T) {
	for _, iso := range []Isolation{IsolatePerMod, IsolateShared} {
		t.Run(string(iso), func(t *testing.T) {
			var created []*fakeEngine
			rt := NewRuntime(WithRequireNative(false), WithIsolation(iso))
			rt.RegisterEngine("fake", func(EngineOptions) (Engine, error) {
				e := &fakeEngine{}
				created = append(created, e)
				return e, nil
			})

			for _, dir := range []string{"a", "b"} {
				h, err := rt.LoadAndRun("fake", dir)
				require.NoError(t, err)
				assert.Equal(t, dir, h.(*fakeHandle).dir)
			}

			if iso == IsolateShared {
				require.Len(t, created, 1)
				assert.Equal(t, 2, created[0].detached)
			} else {
				require.Len(t, created, 2)
				assert.Zero(t, created[0].detached)
			}
			assert.Equal(t, len(created), rt.EngineCount())

			require.NoError(t, rt.Close())
			for _, e := range created {
				assert.True(t, e.closed)
			}
			_, err := rt.LoadAndRun("fake", "c")
			assert.ErrorIs(t, err, ErrEngineClosed)
		})
	}
}

func TestLoadAndRunUnknownEngine(t *testing.T) {
	rt := NewRuntime(WithRequireNative(false))
	_, err := rt.LoadAndRun("cobol", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestScriptErrorMatching(t *testing.T) {
	err := error(NewScriptError("/mods/a/modentry.lua", ErrScriptSyntax, errors.New("unexpected symbol")))
	assert.ErrorIs(t, err, ErrScriptLoad)
	assert.ErrorIs(t, err, ErrScriptSyntax)
	assert.NotErrorIs(t, err, ErrScriptRuntime)
	assert.Contains(t, err.Error(), "unexpected symbol")

	var se *ScriptError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &se)
	assert.Equal(t, "/mods/a/modentry.lua", se.Path)
}

type sample struct{ Name string }

func TestTypeCatalog(t *testing.T) {
	c := NewTypeCatalog()
	require.NoError(t, c.RegisterType("Sample", (*sample)(nil)))
	require.NoError(t, c.RegisterValue("Answer", 42))
	assert.Error(t, c.RegisterValue("Answer", 43))

	v, err := c.New("Sample")
	require.NoError(t, err)
	assert.IsType(t, &sample{}, v)

	answer, err := c.Resolve("Answer")
	require.NoError(t, err)
	assert.Equal(t, 42, answer)

	_, err = c.New("Answer")
	assert.Error(t, err)
	_, err = c.Resolve("Missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"Answer", "Sample"}, c.Names())
}

func TestEntryFile(t *testing.T) {
	assert.Equal(t, "modentry.lua", EntryFile(EngineLua))
	assert.Equal(t, "modentry.js", EntryFile(EngineJavaScript))
	assert.Equal(t, "modentry.lua", EntryFile(""))
}

type panickingLoader struct{}

func (panickingLoader) Open(string) (uintptr, error)            { panic("loader exploded") }
func (panickingLoader) Symbol(uintptr, string) (uintptr, error) { return 0, nil }

func TestInitializeLoaderPanic(t *testing.T) {
	base := t.TempDir()
	writeNativeLibrary(t, base, "linux", "amd64")
	rt := NewRuntime(WithBaseDir(base), WithNativeLoader(panickingLoader{}), WithPlatform("linux", "amd64"))

	err := rt.Initialize()
	if !errors.Is(err, ErrFeatureUnavailable) {
		t.Fatalf("Initialize() error = %v, want %v", err, ErrFeatureUnavailable)
	}
	if again := rt.Initialize(); again != err {
		t.Errorf("second Initialize() = %v, want %v", again, err)
	}
	if lib := rt.Library(); lib != nil {
		t.Errorf("Library() = %v, want nil", lib)
	}
}
