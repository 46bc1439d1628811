package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinz/selene/internal/host"
	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/modinfo"
	"github.com/sinz/selene/internal/script"
)

// syncBuffer is a log sink safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeManifest(t *testing.T, dir string, m map[string]any) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	writeFile(t, filepath.Join(dir, modinfo.ManifestFileName), string(data))
}

// scriptedPack writes a content pack for the marker mod. engine may be empty.
func scriptedPack(t *testing.T, dir, id, engine string, files map[string]string) {
	t.Helper()
	m := map[string]any{
		"Name":           id,
		"Version":        "1.0.0",
		"UniqueID":       id,
		"ContentPackFor": map[string]any{"UniqueID": MarkerUniqueID},
	}
	if engine != "" {
		m[ScriptEngineField] = engine
	}
	writeManifest(t, dir, m)
	for name, content := range files {
		writeFile(t, filepath.Join(dir, name), content)
	}
}

type codeEntry struct {
	host.BaseMod
	entered bool
}

func (m *codeEntry) Entry(*helpers.ModHelper) error {
	m.entered = true
	return nil
}

func newHost(t *testing.T, mods string, logs *syncBuffer, opts ...host.Option) *host.Core {
	t.Helper()
	opts = append([]host.Option{
		host.WithLogger(zerolog.New(logs)),
		host.WithContentPath(t.TempDir()),
		host.WithDataPath(t.TempDir()),
	}, opts...)
	core, err := host.New(mods, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func newState(t *testing.T, opts ...script.Option) *State {
	t.Helper()
	opts = append([]script.Option{script.WithRequireNative(false)}, opts...)
	s := New(WithRuntime(NewRuntime(opts...)))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func install(t *testing.T, s *State, core *host.Core) {
	t.Helper()
	require.NoError(t, s.Install(NewHostBridge(core)))
}

func entryOf(t *testing.T, core *host.Core, id string) *ScriptMod {
	t.Helper()
	meta, ok := core.Mod(id)
	require.True(t, ok, "%s is not registered", id)
	mod, ok := meta.Mod().(*ScriptMod)
	require.True(t, ok, "%s entry is %T", id, meta.Mod())
	return mod
}

func failedIDs(core *host.Core) map[string]*host.ModMetadata {
	out := map[string]*host.ModMetadata{}
	for _, meta := range core.FailedMods() {
		out[meta.ID()] = meta
	}
	return out
}

const luaEntryA = `
ModEntry = {}

function ModEntry:Entry(helper)
  self.entered = true
  self.sameHelper = (helper == self.Helper)
  self.id = self.ModManifest.UniqueID
  local api = helper.ModRegistry:GetAPI("Test.B")
  self.fromB = api.greeting
  helper.Events:Subscribe("GameLoop.UpdateTicked", function(args)
    self.ticks = args.Ticks
  end)
  self.Monitor:Log("A entered", 2)
end

function ModEntry:GetApi()
  return { name = "A" }
end
`

const jsEntryB = `
var ModEntry = {
  Entry: function (helper) {
    this.entered = true;
    this.dir = helper.DirectoryPath;
  },
  GetApi: function () {
    return { greeting: "hi from B" };
  }
};
`

func TestLoadScriptedMods(t *testing.T) {
	root := t.TempDir()
	scriptedPack(t, filepath.Join(root, "A"), "Test.A", "", map[string]string{"modentry.lua": luaEntryA})
	scriptedPack(t, filepath.Join(root, "B"), "Test.B", "js", map[string]string{"modentry.js": jsEntryB})

	logs := &syncBuffer{}
	core := newHost(t, root, logs)
	s := newState(t)
	install(t, s, core)

	require.NoError(t, core.LoadMods(context.Background()))
	assert.Empty(t, core.FailedMods(), logs.String())

	a := entryOf(t, core, "Test.A")
	b := entryOf(t, core, "Test.B")
	assert.Equal(t, script.EngineLua, a.Handle().Engine())
	assert.Equal(t, script.EngineJavaScript, b.Handle().Engine())

	mods := s.ScriptMods()
	require.Len(t, mods, 2)
	assert.Same(t, a, mods[0])
	assert.Same(t, b, mods[1])

	lookup := func(mod *ScriptMod, slot string) any {
		v, ok := mod.Handle().Lookup(slot)
		require.True(t, ok, "slot %s", slot)
		return v
	}
	assert.Equal(t, true, lookup(a, "entered"))
	assert.Equal(t, true, lookup(a, "sameHelper"))
	assert.Equal(t, "Test.A", lookup(a, "id"))
	assert.Equal(t, "hi from B", lookup(a, "fromB"))
	assert.Equal(t, true, lookup(b, "entered"))
	assert.Equal(t, filepath.Join(root, "B"), lookup(b, "dir"))

	// The identity carries the resolved engine.
	engine, _ := a.ModManifest.Extra(ScriptEngineField)
	assert.Equal(t, script.EngineLua, engine)

	assert.Equal(t, uint64(1), core.Tick())
	assert.EqualValues(t, 1, lookup(a, "ticks"))

	assert.Equal(t, map[string]any{"name": "A"}, a.API())

	assert.Contains(t, logs.String(), "A entered")
}

func TestNonScriptedModsPassThrough(t *testing.T) {
	root := t.TempDir()
	code := &codeEntry{}
	catalog := host.NewAssemblyCatalog()
	require.NoError(t, catalog.Register(host.Assembly{
		Name:  "Code",
		Types: []host.EntryType{{Name: "ModEntry", New: func() host.Mod { return code }}},
	}))

	writeManifest(t, filepath.Join(root, "Code"), map[string]any{
		"Name": "Code", "Version": "1.0.0", "UniqueID": "Test.Code", "EntryAssembly": "Code",
	})
	writeManifest(t, filepath.Join(root, "Pack"), map[string]any{
		"Name": "Pack", "Version": "1.0.0", "UniqueID": "Test.Pack",
		"ContentPackFor": map[string]any{"UniqueID": "Test.Code"},
	})
	// The marker match is exact, so this pack falls through to the host.
	writeManifest(t, filepath.Join(root, "Lower"), map[string]any{
		"Name": "Lower", "Version": "1.0.0", "UniqueID": "Test.Lower",
		"ContentPackFor": map[string]any{"UniqueID": strings.ToLower(MarkerUniqueID)},
	})
	writeFile(t, filepath.Join(root, "Lower", "modentry.lua"), "ModEntry = {}")

	logs := &syncBuffer{}
	core := newHost(t, root, logs, host.WithAssemblies(catalog))
	s := newState(t)
	install(t, s, core)
	require.NoError(t, core.LoadMods(context.Background()))

	meta, ok := core.Mod("Test.Code")
	require.True(t, ok)
	assert.Same(t, code, meta.Mod())
	assert.True(t, code.entered)

	pack, ok := core.Mod("Test.Pack")
	require.True(t, ok)
	assert.NotNil(t, pack.ContentPack())

	failed := failedIDs(core)
	require.Contains(t, failed, "Test.Lower")
	assert.Equal(t, host.FailMissingDependencies, failed["Test.Lower"].FailReason())

	assert.Empty(t, s.ScriptMods())
}

func TestScriptedModFailures(t *testing.T) {
	tests := []struct {
		name    string
		engine  string
		files   map[string]string
		wantLog string
	}{
		{"missing script", "", nil, "modentry.lua"},
		{"missing js script", "javascript", map[string]string{"modentry.lua": "ModEntry = {}"}, "modentry.js"},
		{"no entry", "", map[string]string{"modentry.lua": "local x = 1"}, script.EntrySymbol},
		{"entry not a table", "", map[string]string{"modentry.lua": "ModEntry = 42"}, script.EntrySymbol},
		{"syntax error", "", map[string]string{"modentry.lua": "ModEntry = {"}, "syntax"},
		{"runtime error", "", map[string]string{"modentry.lua": "error('boom')"}, "boom"},
		{"unknown engine", "python", map[string]string{"modentry.lua": "ModEntry = {}"}, "python"},
		{
			"slot rejected", "",
			map[string]string{"modentry.lua": "ModEntry = setmetatable({}, { __newindex = function() end })"},
			script.SlotManifest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			scriptedPack(t, filepath.Join(root, "Bad"), "Test.Bad", tt.engine, tt.files)

			logs := &syncBuffer{}
			core := newHost(t, root, logs)
			s := newState(t)
			install(t, s, core)
			require.NoError(t, core.LoadMods(context.Background()))

			_, registered := core.Mod("Test.Bad")
			assert.False(t, registered)

			failed := failedIDs(core)
			require.Contains(t, failed, "Test.Bad")
			assert.Equal(t, host.FailLoadFailed, failed["Test.Bad"].FailReason())

			out := logs.String()
			assert.Contains(t, out, "Failed to load scripted mod Test.Bad")
			assert.Contains(t, out, tt.wantLog)
			assert.Empty(t, s.ScriptMods())

			disabled, _ := s.Disabled()
			assert.False(t, disabled)
		})
	}
}

func TestFailureDoesNotBlockOtherMods(t *testing.T) {
	root := t.TempDir()
	scriptedPack(t, filepath.Join(root, "A"), "Test.A", "", map[string]string{"modentry.lua": "error('broken')"})
	scriptedPack(t, filepath.Join(root, "B"), "Test.B", "", map[string]string{
		"modentry.lua": "ModEntry = {}\nfunction ModEntry:Entry() self.entered = true end",
	})

	core := newHost(t, root, &syncBuffer{})
	s := newState(t)
	install(t, s, core)
	require.NoError(t, core.LoadMods(context.Background()))

	assert.Contains(t, failedIDs(core), "Test.A")
	entered, ok := entryOf(t, core, "Test.B").Handle().Lookup("entered")
	require.True(t, ok)
	assert.Equal(t, true, entered)
}

// countingLoader stands in for the platform library loader.
type countingLoader struct {
	mu     sync.Mutex
	opened []string
}

func (l *countingLoader) Open(path string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened = append(l.opened, path)
	return uintptr(len(l.opened)), nil
}

func (l *countingLoader) Symbol(uintptr, string) (uintptr, error) {
	return 1, nil
}

func TestInitializationRunsOnce(t *testing.T) {
	base := t.TempDir()
	lib, err := script.NativeLibraryPath(base, "linux", "amd64")
	require.NoError(t, err)
	writeFile(t, lib, "")

	root := t.TempDir()
	for _, id := range []string{"A", "B", "C"} {
		scriptedPack(t, filepath.Join(root, id), "Test."+id, "", map[string]string{"modentry.lua": "ModEntry = {}"})
	}

	loader := &countingLoader{}
	core := newHost(t, root, &syncBuffer{})
	s := newState(t,
		script.WithRequireNative(true),
		script.WithBaseDir(base),
		script.WithPlatform("linux", "amd64"),
		script.WithNativeLoader(loader),
	)
	install(t, s, core)
	require.NoError(t, core.LoadMods(context.Background()))

	assert.Len(t, s.ScriptMods(), 3)
	require.NoError(t, s.EnsureInitialized())
	assert.Equal(t, []string{lib}, loader.opened)
	assert.Equal(t, lib, s.Runtime().Library().Path)
}

func TestMissingNativeLibraryDisablesBridge(t *testing.T) {
	root := t.TempDir()
	scriptedPack(t, filepath.Join(root, "A"), "Test.A", "", map[string]string{"modentry.lua": "ModEntry = {}"})
	scriptedPack(t, filepath.Join(root, "B"), "Test.B", "", map[string]string{"modentry.lua": "ModEntry = {}"})

	loader := &countingLoader{}
	logs := &syncBuffer{}
	core := newHost(t, root, logs)
	s := newState(t,
		script.WithRequireNative(true),
		script.WithBaseDir(t.TempDir()),
		script.WithPlatform("linux", "amd64"),
		script.WithNativeLoader(loader),
	)
	install(t, s, core)
	require.NoError(t, core.LoadMods(context.Background()))

	failed := failedIDs(core)
	assert.Contains(t, failed, "Test.A")
	assert.Contains(t, failed, "Test.B")
	assert.Empty(t, loader.opened)

	disabled, reason := s.Disabled()
	assert.True(t, disabled)
	assert.ErrorIs(t, reason, ErrDisabled)
	assert.ErrorIs(t, reason, script.ErrFeatureUnavailable)
	assert.ErrorIs(t, s.EnsureInitialized(), ErrDisabled)

	assert.Equal(t, 1, strings.Count(logs.String(), "Scripted mods will not load"))
}

func TestSupportModEntry(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Selene"), map[string]any{
		"Name": "Selene", "Version": "1.0.0", "UniqueID": SelfUniqueID, "EntryAssembly": AssemblyName,
	})
	scriptedPack(t, filepath.Join(root, "A"), "Test.A", "", map[string]string{"modentry.lua": "ModEntry = {}"})

	logs := &syncBuffer{}
	core := newHost(t, root, logs)
	s := newState(t)
	install(t, s, core)
	require.NoError(t, core.LoadMods(context.Background()))

	meta, ok := core.Mod(SelfUniqueID)
	require.True(t, ok, logs.String())
	assert.Same(t, s.support, meta.Mod())

	var names []string
	for _, cmd := range core.Commands() {
		names = append(names, cmd.Name)
	}
	assert.Contains(t, names, "selene_mods")

	handled, err := core.RunCommand("selene_mods")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, logs.String(), "Test.A v1.0.0 (lua)")
}

func TestInstall(t *testing.T) {
	t.Run("twice", func(t *testing.T) {
		core := newHost(t, t.TempDir(), &syncBuffer{})
		s := newState(t)
		install(t, s, core)
		assert.True(t, s.Installed())
		assert.ErrorIs(t, s.Install(NewHostBridge(core)), ErrAlreadyInstalled)
		assert.ErrorIs(t, s.Configure(WithLogger(zerolog.Nop())), ErrAlreadyInstalled)

		entry, load := core.Patches()
		assert.Equal(t, []string{SelfUniqueID}, entry)
		assert.Equal(t, []string{SelfUniqueID}, load)
	})

	t.Run("host mismatch", func(t *testing.T) {
		s := newState(t)
		err := s.Install(NewHostBridge(nil))
		assert.ErrorIs(t, err, ErrHostAPIMismatch)
		assert.False(t, s.Installed())

		disabled, reason := s.Disabled()
		assert.True(t, disabled)
		assert.ErrorIs(t, reason, ErrHostAPIMismatch)
	})

	t.Run("not installed", func(t *testing.T) {
		root := t.TempDir()
		scriptedPack(t, filepath.Join(root, "A"), "Test.A", "", map[string]string{"modentry.lua": "ModEntry = {}"})
		metas, err := host.DiscoverMods(root)
		require.NoError(t, err)
		require.Len(t, metas, 1)

		s := newState(t)
		outcome, handled := s.interceptLoad(metas[0])
		assert.True(t, handled)
		assert.False(t, outcome.OK)
		assert.Contains(t, outcome.Error, ErrNotInstalled.Error())
	})
}

func TestHostServices(t *testing.T) {
	core := newHost(t, t.TempDir(), &syncBuffer{})
	hb := NewHostBridge(core)

	svc, err := hb.Services()
	require.NoError(t, err)
	assert.NotNil(t, svc.Registry)
	assert.NotNil(t, svc.LogManager)
	assert.NotNil(t, svc.Events)
	assert.NotNil(t, svc.Commands)
	assert.NotNil(t, svc.Reflector)
	assert.NotNil(t, svc.Content)
	assert.NotNil(t, svc.FakePacks)

	again, err := hb.Services()
	require.NoError(t, err)
	assert.Same(t, svc, again)
}

func TestBuildIdentity(t *testing.T) {
	tests := []struct {
		name    string
		extra   map[string]any
		want    string
		wantErr error
	}{
		{"default", nil, script.EngineLua, nil},
		{"lua", map[string]any{"ScriptEngine": "Lua"}, script.EngineLua, nil},
		{"js", map[string]any{"ScriptEngine": "js"}, script.EngineJavaScript, nil},
		{"javascript", map[string]any{"scriptengine": "JavaScript"}, script.EngineJavaScript, nil},
		{"unknown", map[string]any{"ScriptEngine": "ruby"}, "", script.ErrUnknownEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &modinfo.Manifest{Name: "A", UniqueID: "Test.A", Version: "1.0.0", ExtraFields: tt.extra}
			identity, err := BuildIdentity(m)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ScriptEngine(identity))
			assert.Equal(t, tt.want, identity.ExtraFields[ScriptEngineField])
			assert.NotSame(t, m, identity)

			identity.Name = "changed"
			assert.Equal(t, "A", m.Name)
		})
	}

	_, err := BuildIdentity(&modinfo.Manifest{Name: "A"})
	assert.Error(t, err)
}

func TestBuildMetadataRecord(t *testing.T) {
	dir := t.TempDir()
	identity := &modinfo.Manifest{Name: "A", UniqueID: "Test.A", Version: "1.0.0"}

	meta, err := BuildMetadataRecord(identity, dir+string(filepath.Separator), filepath.Dir(dir))
	require.NoError(t, err)
	assert.Equal(t, "Test.A", meta.ID())
	assert.Equal(t, filepath.Clean(dir), meta.DirectoryPath())
	assert.Nil(t, meta.Mod())
	assert.Same(t, identity, meta.Manifest())

	file := filepath.Join(dir, "file.txt")
	writeFile(t, file, "x")
	_, err = BuildMetadataRecord(identity, file, dir)
	assert.Error(t, err)

	_, err = BuildMetadataRecord(identity, filepath.Join(dir, "missing"), dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBindRequiresHandle(t *testing.T) {
	_, err := Bind(host.NewModRegistry(), nil, nil, nil, nil)
	assert.ErrorIs(t, err, script.ErrEntryMissing)
	assert.Contains(t, err.Error(), script.EntrySymbol)
}

func TestDefaultTypes(t *testing.T) {
	types := DefaultTypes()
	names := types.Names()
	for _, name := range []string{"Manifest", "ContentPackFor", "Dependency", "Player", "LogLevel", "Events", "APIVersion"} {
		assert.Contains(t, names, name)
	}

	v, err := types.New("Manifest")
	require.NoError(t, err)
	assert.IsType(t, &modinfo.Manifest{}, v)
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
