package host

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinz/selene/internal/host/helpers"
	"github.com/sinz/selene/internal/host/services"
	"github.com/sinz/selene/internal/modinfo"
)

func writeManifest(t *testing.T, dir string, m map[string]any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, modinfo.ManifestFileName), data, 0o644))
}

func codeMod(id, assembly string, deps ...string) map[string]any {
	m := map[string]any{
		"Name":          id,
		"Version":       "1.0.0",
		"UniqueID":      id,
		"EntryAssembly": assembly,
	}
	if len(deps) > 0 {
		list := make([]map[string]any, len(deps))
		for i, d := range deps {
			list[i] = map[string]any{"UniqueID": d}
		}
		m["Dependencies"] = list
	}
	return m
}

func contentPack(id, target string) map[string]any {
	return map[string]any{
		"Name":           id,
		"Version":        "1.0.0",
		"UniqueID":       id,
		"ContentPackFor": map[string]any{"UniqueID": target},
	}
}

// testMod records the calls the host makes on it.
type testMod struct {
	BaseMod
	entered  bool
	entryErr error
	api      any
	onEntry  func(helper *helpers.ModHelper)
}

func (m *testMod) Entry(helper *helpers.ModHelper) error {
	m.entered = true
	if m.onEntry != nil {
		m.onEntry(helper)
	}
	return m.entryErr
}

func (m *testMod) API() any { return m.api }

func singleType(name string, mod *testMod) Assembly {
	return Assembly{Name: name, Types: []EntryType{{Name: "ModEntry", New: func() Mod { return mod }}}}
}

func newCore(t *testing.T, mods string, catalog *AssemblyCatalog, opts ...Option) *Core {
	t.Helper()
	opts = append([]Option{
		WithAssemblies(catalog),
		WithContentPath(t.TempDir()),
		WithDataPath(t.TempDir()),
	}, opts...)
	core, err := New(mods, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })
	return core
}

func TestDiscoverMods(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Alpha"), codeMod("Test.Alpha", "Alpha"))
	writeManifest(t, filepath.Join(root, "Group", "Beta"), contentPack("Test.Beta", "Test.Alpha"))
	writeManifest(t, filepath.Join(root, ".Hidden"), codeMod("Test.Hidden", "Hidden"))
	writeManifest(t, filepath.Join(root, "CopyA"), codeMod("Test.Copy", "Copy"))
	writeManifest(t, filepath.Join(root, "CopyB"), codeMod("Test.Copy", "Copy"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Broken", modinfo.ManifestFileName), []byte("{"), 0o644))

	mods, err := DiscoverMods(root)
	require.NoError(t, err)

	byFolder := map[string]*ModMetadata{}
	for _, m := range mods {
		byFolder[m.RelativeDirectoryPath()] = m
	}
	require.Len(t, byFolder, 5)
	assert.NotContains(t, byFolder, ".Hidden")

	assert.Equal(t, StatusFound, byFolder["Alpha"].Status())
	assert.Equal(t, "Test.Alpha", byFolder["Alpha"].ID())

	beta := byFolder[filepath.Join("Group", "Beta")]
	require.NotNil(t, beta)
	assert.True(t, beta.IsContentPack())

	assert.Equal(t, StatusFailed, byFolder["Broken"].Status())
	assert.Equal(t, FailInvalidManifest, byFolder["Broken"].FailReason())

	assert.Equal(t, FailDuplicate, byFolder["CopyA"].FailReason())
	assert.Equal(t, FailDuplicate, byFolder["CopyB"].FailReason())
}

func TestDiscoverModsMissingRoot(t *testing.T) {
	mods, err := DiscoverMods(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestOrderByDependencies(t *testing.T) {
	mk := func(m *modinfo.Manifest) *ModMetadata {
		return NewModMetadata(m.Name, "/mods/"+m.Name, "/mods", m, false)
	}
	pack := mk(&modinfo.Manifest{Name: "Pack", UniqueID: "Pack", ContentPackFor: &modinfo.ContentPackFor{UniqueID: "Core"}})
	user := mk(&modinfo.Manifest{Name: "User", UniqueID: "User", Dependencies: []modinfo.Dependency{{UniqueID: "core"}}})
	core := mk(&modinfo.Manifest{Name: "Core", UniqueID: "Core"})
	free := mk(&modinfo.Manifest{Name: "Free", UniqueID: "Free", Dependencies: []modinfo.Dependency{{UniqueID: "NotInstalled"}}})

	ordered := OrderByDependencies([]*ModMetadata{pack, user, core, free})
	ids := make([]string, len(ordered))
	for i, m := range ordered {
		ids[i] = m.ID()
	}
	assert.Equal(t, []string{"Core", "Free", "Pack", "User"}, ids)
}

func TestOrderByDependenciesCycle(t *testing.T) {
	mk := func(id, dep string) *ModMetadata {
		m := &modinfo.Manifest{Name: id, UniqueID: id, Dependencies: []modinfo.Dependency{{UniqueID: dep}}}
		return NewModMetadata(id, "/mods/"+id, "/mods", m, false)
	}
	a, b := mk("A", "B"), mk("B", "A")
	c := NewModMetadata("C", "/mods/C", "/mods", &modinfo.Manifest{Name: "C", UniqueID: "C"}, false)

	ordered := OrderByDependencies([]*ModMetadata{a, b, c})
	require.Len(t, ordered, 3)
	assert.Equal(t, "C", ordered[0].ID())
	for _, m := range []*ModMetadata{a, b} {
		assert.Equal(t, StatusFailed, m.Status())
		assert.Equal(t, FailMissingDependencies, m.FailReason())
		assert.Contains(t, m.Error(), ErrCyclicDependency.Error())
	}
	assert.Equal(t, StatusFound, c.Status())
}

func TestLoadModsCodeModAndContentPack(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Pack"), contentPack("Test.Pack", "Test.Main"))
	writeManifest(t, filepath.Join(root, "Main"), codeMod("Test.Main", "MainAssembly"))

	var owned []*helpers.ContentPack
	var ownedErr error
	mod := &testMod{api: "main-api"}
	mod.onEntry = func(helper *helpers.ModHelper) {
		owned, ownedErr = helper.ContentPacks.GetOwned()
	}

	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("MainAssembly", mod)))
	core := newCore(t, root, catalog)

	launched := 0
	_, err := core.eventManager.Subscribe("test", services.EventGameLaunched, func(any) { launched++ })
	require.NoError(t, err)

	require.NoError(t, core.LoadMods(context.Background()))

	assert.Equal(t, 2, core.ModCount())
	assert.Empty(t, core.FailedMods())
	assert.Equal(t, 1, launched)

	loaded := core.LoadedMods()
	assert.Equal(t, "Test.Main", loaded[0].ID())
	assert.Equal(t, "Test.Pack", loaded[1].ID())

	assert.True(t, mod.entered)
	assert.Equal(t, "Test.Main", mod.ModManifest.UniqueID)
	require.NotNil(t, mod.Helper)
	assert.Equal(t, "Test.Main", mod.Helper.ModID())
	require.NotNil(t, mod.Monitor)

	require.NoError(t, ownedErr)
	require.Len(t, owned, 1)
	assert.Equal(t, "Test.Pack", owned[0].Manifest.UniqueID)

	meta, ok := core.Mod("test.main")
	require.True(t, ok)
	assert.Same(t, mod.Helper, meta.Helper())

	api, err := mod.Helper.ModRegistry.GetAPI("Test.Main")
	require.NoError(t, err)
	assert.Equal(t, "main-api", api)

	assert.ErrorIs(t, core.LoadMods(context.Background()), ErrAlreadyLoaded)
}

func TestLoadModsFailures(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Orphan"), contentPack("Test.Orphan", "Test.Missing"))
	writeManifest(t, filepath.Join(root, "NeedsDep"), codeMod("Test.NeedsDep", "Needs", "Test.Missing"))
	writeManifest(t, filepath.Join(root, "NoAssembly"), codeMod("Test.NoAssembly", "Unknown"))
	writeManifest(t, filepath.Join(root, "Twice"), codeMod("Test.Twice", "Twice"))
	future := codeMod("Test.Future", "Future")
	future["MinimumApiVersion"] = "99.0.0"
	writeManifest(t, filepath.Join(root, "Future"), future)

	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("Needs", &testMod{})))
	require.NoError(t, catalog.Register(singleType("Future", &testMod{})))
	require.NoError(t, catalog.Register(Assembly{Name: "Twice", Types: []EntryType{
		{Name: "First", New: func() Mod { return &testMod{} }},
		{Name: "Second", New: func() Mod { return &testMod{} }},
	}}))
	core := newCore(t, root, catalog)

	require.NoError(t, core.LoadMods(context.Background()))
	assert.Equal(t, 0, core.ModCount())

	reasons := map[string]FailReason{}
	for _, m := range core.FailedMods() {
		reasons[m.ID()] = m.FailReason()
	}
	assert.Equal(t, map[string]FailReason{
		"Test.Orphan":     FailMissingDependencies,
		"Test.NeedsDep":   FailMissingDependencies,
		"Test.NoAssembly": FailLoadFailed,
		"Test.Twice":      FailLoadFailed,
		"Test.Future":     FailIncompatible,
	}, reasons)

	twice, ok := findFailed(core, "Test.Twice")
	require.True(t, ok)
	assert.Contains(t, twice.Error(), ErrMultipleEntryTypes.Error())
}

func findFailed(core *Core, id string) (*ModMetadata, bool) {
	for _, m := range core.FailedMods() {
		if m.ID() == id {
			return m, true
		}
	}
	return nil, false
}

func TestEntryPanicDoesNotStopOtherMods(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "A"), codeMod("Test.A", "A"))
	writeManifest(t, filepath.Join(root, "B"), codeMod("Test.B", "B"))

	a := &testMod{onEntry: func(*helpers.ModHelper) { panic("boom") }}
	b := &testMod{}
	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("A", a)))
	require.NoError(t, catalog.Register(singleType("B", b)))
	core := newCore(t, root, catalog)

	require.NoError(t, core.LoadMods(context.Background()))
	assert.True(t, a.entered)
	assert.True(t, b.entered)
	assert.Equal(t, 2, core.ModCount())
}

func TestLoadPatches(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Claimed"), contentPack("Test.Claimed", "Marker"))
	writeManifest(t, filepath.Join(root, "Main"), codeMod("Test.Main", "Main"))

	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("Main", &testMod{})))
	core := newCore(t, root, catalog)

	var seen []string
	require.NoError(t, core.PatchModLoad("test.claim", func(meta *ModMetadata) (LoadOutcome, bool) {
		seen = append(seen, meta.ID())
		if !meta.IsContentPack() || meta.Manifest().ContentPackFor.UniqueID != "Marker" {
			return LoadOutcome{}, false
		}
		return Failed(FailLoadFailed, "claimed by test"), true
	}))
	assert.ErrorIs(t, core.PatchModLoad("TEST.claim", func(*ModMetadata) (LoadOutcome, bool) {
		return LoadOutcome{}, false
	}), ErrPatchExists)

	require.NoError(t, core.LoadMods(context.Background()))

	assert.ElementsMatch(t, []string{"Test.Claimed", "Test.Main"}, seen)
	assert.Equal(t, 1, core.ModCount())
	claimed, ok := findFailed(core, "Test.Claimed")
	require.True(t, ok)
	assert.Equal(t, "claimed by test", claimed.Error())

	_, loadOwners := core.Patches()
	assert.Equal(t, []string{"test.claim"}, loadOwners)
}

func TestLoadPatchPanicFailsOnlyThatMod(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "A"), codeMod("Test.A", "A"))
	writeManifest(t, filepath.Join(root, "B"), codeMod("Test.B", "B"))

	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("A", &testMod{})))
	require.NoError(t, catalog.Register(singleType("B", &testMod{})))
	core := newCore(t, root, catalog)

	require.NoError(t, core.PatchModLoad("test.panic", func(meta *ModMetadata) (LoadOutcome, bool) {
		if meta.ID() == "Test.A" {
			panic("bad patch")
		}
		return LoadOutcome{}, false
	}))

	require.NoError(t, core.LoadMods(context.Background()))
	assert.Equal(t, 1, core.ModCount())
	assert.True(t, core.modRegistry.IsRegistered("Test.B"))

	a, ok := findFailed(core, "Test.A")
	require.True(t, ok)
	assert.Equal(t, FailLoadFailed, a.FailReason())
	assert.Contains(t, a.Error(), "bad patch")
}

func TestEntryResolutionPatch(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Self"), codeMod("Test.Self", "Shared"))

	self := &testMod{}
	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(Assembly{Name: "Shared", Types: []EntryType{
		{Name: "ModEntry", New: func() Mod { return &testMod{} }},
		{Name: "ScriptMod", New: func() Mod { return &testMod{} }},
	}}))
	core := newCore(t, root, catalog)

	require.NoError(t, core.PatchEntryResolution("test.self", func(meta *ModMetadata, asm *Assembly) (Mod, bool, error) {
		if meta.ID() != "Test.Self" {
			return nil, false, nil
		}
		return self, true, nil
	}))

	require.NoError(t, core.LoadMods(context.Background()))
	require.Equal(t, 1, core.ModCount())
	meta, _ := core.Mod("Test.Self")
	assert.Same(t, self, meta.Mod())
	assert.True(t, self.entered)
}

func TestHelpersBeforeRegistration(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Main")
	writeManifest(t, dir, codeMod("Test.Main", "Main"))
	core := newCore(t, root, NewAssemblyCatalog())

	meta := NewModMetadata("Main", dir, root, &modinfo.Manifest{UniqueID: "Test.Main", Name: "Main", Version: "1.0.0"}, false)
	helper, _, _, err := core.newModHelper(meta)
	require.NoError(t, err)

	_, err = helper.Multiplayer.GetNewID()
	assert.ErrorIs(t, err, helpers.ErrModNotRegistered)

	require.NoError(t, core.modRegistry.Add(meta))
	_, err = helper.Multiplayer.GetNewID()
	assert.NoError(t, err)

	_, err = helper.ContentPacks.GetOwned()
	assert.ErrorIs(t, err, helpers.ErrModsStillLoading)
}

func TestCreateFakeContentPack(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Main"), codeMod("Test.Main", "Main"))
	packDir := filepath.Join(t.TempDir(), "pack")
	require.NoError(t, os.MkdirAll(packDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "data.json"), []byte(`{"a":1}`), 0o644))

	var pack *helpers.ContentPack
	var createErr, clashErr error
	mod := &testMod{onEntry: func(helper *helpers.ModHelper) {
		pack, createErr = helper.ContentPacks.CreateTemporary(packDir, "Test.Temp", "Temp", "", "me", "1.0.0")
		_, clashErr = helper.ContentPacks.CreateTemporary(packDir, "Test.Main", "Clash", "", "me", "1.0.0")
	}}
	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("Main", mod)))
	core := newCore(t, root, catalog)

	require.NoError(t, core.LoadMods(context.Background()))
	require.NoError(t, createErr)
	assert.Error(t, clashErr)
	require.NotNil(t, pack)
	assert.True(t, pack.HasFile("data.json"))
	assert.False(t, core.modRegistry.IsRegistered("Test.Temp"))
}

func TestTickAndCommands(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "Main"), codeMod("Test.Main", "Main"))

	var ticks []uint64
	var args []string
	mod := &testMod{onEntry: func(helper *helpers.ModHelper) {
		_, _ = helper.Events.Subscribe(string(services.EventUpdateTicked), func(a any) {
			ticks = append(ticks, a.(services.UpdateTickedEventArgs).Ticks)
		})
		_ = helper.Commands.Add("echo", "Echoes its arguments.", func(_ string, a []string) { args = a })
	}}
	catalog := NewAssemblyCatalog()
	require.NoError(t, catalog.Register(singleType("Main", mod)))
	core := newCore(t, root, catalog)
	require.NoError(t, core.LoadMods(context.Background()))

	core.Tick()
	core.Tick()
	assert.Equal(t, []uint64{1, 2}, ticks)

	found, err := core.RunCommand("echo hello world")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"hello", "world"}, args)
	require.Len(t, core.Commands(), 1)
	assert.Equal(t, "Test.Main", core.Commands()[0].Owner)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewModRegistry()
	m := &modinfo.Manifest{UniqueID: "Test.A", Name: "A", Version: "1.0.0"}
	require.NoError(t, r.Add(NewModMetadata("A", "/a", "/", m, false)))
	err := r.Add(NewModMetadata("A2", "/a2", "/", &modinfo.Manifest{UniqueID: "test.a"}, false))
	assert.ErrorIs(t, err, ErrDuplicateMod)
	assert.Equal(t, 1, r.Count())

	_, ok := r.API("Test.A")
	assert.False(t, ok)
}

func TestAssemblyCatalog(t *testing.T) {
	c := NewAssemblyCatalog()
	require.NoError(t, c.Register(Assembly{Name: "One"}))
	assert.Error(t, c.Register(Assembly{Name: "one"}))
	assert.Error(t, c.Register(Assembly{Name: ""}))
	assert.Error(t, c.Register(Assembly{Name: "Bad", Types: []EntryType{{Name: "X"}}}))

	asm, ok := c.Lookup("ONE")
	require.True(t, ok)
	_, err := resolveEntryType(asm)
	assert.ErrorIs(t, err, ErrNoEntryType)
	assert.Equal(t, []string{"One"}, c.Names())
}
