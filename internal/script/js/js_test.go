package js

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sinz/selene/internal/script"
)

type counter struct {
	N    int
	Name string
}

func (c *counter) Add(n int) int {
	c.N += n
	return c.N
}

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func newTestEngine(t *testing.T, types *script.TypeCatalog, buf *bytes.Buffer) *Engine {
	t.Helper()
	logger := zerolog.Nop()
	if buf != nil {
		logger = zerolog.New(buf)
	}
	eng, err := NewEngine(script.EngineOptions{Types: types, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng.(*Engine)
}

func TestEngineRunAndInvoke(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "lib/util.js", `exports.double = function(x) { return x * 2; };`)
	writeScript(t, dir, "modentry.js", `
const util = require("./lib/util");
var ModEntry = {
  Entry: function(helper) {
    this.seen = helper.Name;
    return util.double(21);
  }
};
`)
	eng := newTestEngine(t, nil, nil)

	h, err := eng.Run(dir)
	require.NoError(t, err)
	assert.Equal(t, script.EntrySymbol, h.Symbol())
	assert.Equal(t, script.EngineJavaScript, h.Engine())
	assert.Equal(t, 1, eng.ModuleCount())

	slot := &counter{Name: "slot"}
	require.NoError(t, h.Assign(script.SlotHelper, slot))
	v, ok := h.Lookup(script.SlotHelper)
	require.True(t, ok)
	assert.Same(t, slot, v)

	result, called, err := h.Invoke("Entry", &counter{Name: "bob"})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, int64(42), result)

	seen, ok := h.Lookup("seen")
	require.True(t, ok)
	assert.Equal(t, "bob", seen)

	_, called, err = h.Invoke("GetApi")
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEngineRunErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"syntax", "var ModEntry = {", script.ErrScriptSyntax},
		{"runtime", `throw new Error("boom");`, script.ErrScriptRuntime},
		{"missing entry", "var x = 1;", script.ErrEntryMissing},
		{"wrong shape", "var ModEntry = 5;", script.ErrEntryShape},
		{"bare require", `require("fs"); var ModEntry = {};`, script.ErrScriptRuntime},
		{"escaping require", `require("../outside"); var ModEntry = {};`, script.ErrScriptRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeScript(t, dir, "modentry.js", tt.src)
			_, err := newTestEngine(t, nil, nil).Run(dir)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := newTestEngine(t, nil, nil).Run(t.TempDir())
	assert.ErrorIs(t, err, script.ErrScriptNotFound)
	assert.ErrorIs(t, err, script.ErrScriptLoad)
}

func TestModuleExportsEntry(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "modentry.js", `module.exports.ModEntry = { kind: "exported" };`)
	h, err := newTestEngine(t, nil, nil).Run(dir)
	require.NoError(t, err)
	kind, _ := h.Lookup("kind")
	assert.Equal(t, "exported", kind)
}

func TestEntryAssignRejected(t *testing.T) {
	for name, src := range map[string]string{
		"frozen":  `var ModEntry = Object.freeze({});`,
		"dropped": `var ModEntry = new Proxy({}, { set: function() { return true; } });`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeScript(t, dir, "modentry.js", src)
			h, err := newTestEngine(t, nil, nil).Run(dir)
			require.NoError(t, err)
			assert.ErrorIs(t, h.Assign(script.SlotMonitor, &counter{}), script.ErrEntryShape)
		})
	}
}

func TestEngineDetach(t *testing.T) {
	eng := newTestEngine(t, nil, nil)

	first := filepath.Join(t.TempDir(), "first")
	writeScript(t, first, "name.js", `module.exports = "first";`)
	writeScript(t, first, "modentry.js", `ModEntry = { name: require("./name") };`)

	second := filepath.Join(t.TempDir(), "second")
	writeScript(t, second, "modentry.js", `var unrelated = true;`)

	h, err := eng.Run(first)
	require.NoError(t, err)
	name, _ := h.Lookup("name")
	assert.Equal(t, "first", name)
	assert.NotNil(t, eng.vm.GlobalObject().Get(script.EntrySymbol))

	eng.Detach()
	assert.Nil(t, eng.vm.GlobalObject().Get(script.EntrySymbol))
	assert.Zero(t, eng.ModuleCount())

	_, err = eng.Run(second)
	assert.ErrorIs(t, err, script.ErrEntryMissing)

	// Handles taken before Detach stay usable.
	name, _ = h.Lookup("name")
	assert.Equal(t, "first", name)
}

func TestEngineCLRAndConsole(t *testing.T) {
	var handler func(args any)
	types := script.NewTypeCatalog()
	require.NoError(t, types.RegisterType("Counter", (*counter)(nil)))
	require.NoError(t, types.RegisterValue("Answer", 42))
	require.NoError(t, types.RegisterValue("subscribe", func(h func(any)) { handler = h }))

	dir := t.TempDir()
	writeScript(t, dir, "modentry.js", `
var Counter = clr.import("Counter");
var c = Counter();
c.Add(4);
console.log("made", c.N);
clr.import("subscribe")(function(a) { ModEntry.got = a; });
var ModEntry = { v: c.N, answer: clr.import("Answer"), count: clr.types().length, fresh: clr.new("Counter").N };
`)
	var buf bytes.Buffer
	h, err := newTestEngine(t, types, &buf).Run(dir)
	require.NoError(t, err)

	v, _ := h.Lookup("v")
	assert.Equal(t, int64(4), v)
	answer, _ := h.Lookup("answer")
	assert.Equal(t, int64(42), answer)
	count, _ := h.Lookup("count")
	assert.Equal(t, int64(3), count)
	fresh, _ := h.Lookup("fresh")
	assert.Equal(t, int64(0), fresh)
	assert.Contains(t, buf.String(), "made 4")

	require.NotNil(t, handler)
	handler("hello")
	got, _ := h.Lookup("got")
	assert.Equal(t, "hello", got)
}

func TestInvokeThrows(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "modentry.js", `var ModEntry = { Entry: function() { throw new Error("entry failed"); } };`)
	h, err := newTestEngine(t, nil, nil).Run(dir)
	require.NoError(t, err)

	_, called, err := h.Invoke("Entry")
	assert.True(t, called)
	assert.ErrorIs(t, err, script.ErrScriptRuntime)
	assert.Contains(t, err.Error(), "entry failed")
}

func TestClosedEngine(t *testing.T) {
	eng := newTestEngine(t, nil, nil)
	require.NoError(t, eng.Close())
	_, err := eng.Run(t.TempDir())
	assert.ErrorIs(t, err, script.ErrEngineClosed)
	eng.Detach()
}

func TestSourceCannotCloseModuleFunction(t *testing.T) {
	const escape = `var ModEntry = {};
return ModEntry;
});
globalThis.escaped = true;
(function() {`

	t.Run("entry", func(t *testing.T) {
		dir := t.TempDir()
		writeScript(t, dir, "modentry.js", escape)
		eng := newTestEngine(t, nil, nil)

		_, err := eng.Run(dir)
		if !errors.Is(err, script.ErrScriptSyntax) {
			t.Fatalf("Run() error = %v, want %v", err, script.ErrScriptSyntax)
		}
		if !strings.Contains(err.Error(), ErrWrapperEscape.Error()) {
			t.Errorf("Run() error = %q, want it to contain %q", err, ErrWrapperEscape)
		}
		if v := eng.vm.GlobalObject().Get("escaped"); v != nil {
			t.Errorf("escaped = %v, want unset", v)
		}
	})

	t.Run("module", func(t *testing.T) {
		dir := t.TempDir()
		writeScript(t, dir, "lib/evil.js", "exports.x = 1;\n});\nglobalThis.escaped = true;\n(function() {")
		writeScript(t, dir, "modentry.js", `require("./lib/evil"); var ModEntry = {};`)
		eng := newTestEngine(t, nil, nil)

		_, err := eng.Run(dir)
		if !errors.Is(err, script.ErrScriptRuntime) {
			t.Fatalf("Run() error = %v, want %v", err, script.ErrScriptRuntime)
		}
		if v := eng.vm.GlobalObject().Get("escaped"); v != nil {
			t.Errorf("escaped = %v, want unset", v)
		}
		if got := eng.ModuleCount(); got != 0 {
			t.Errorf("ModuleCount() = %d, want 0", got)
		}
	})

	t.Run("closing braces in strings", func(t *testing.T) {
		dir := t.TempDir()
		writeScript(t, dir, "modentry.js", `var ModEntry = { text: "});" }; // })`)
		h, err := newTestEngine(t, nil, nil).Run(dir)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got, _ := h.Lookup("text"); got != "});" {
			t.Errorf("text = %v, want %q", got, "});")
		}
	})
}
