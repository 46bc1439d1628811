package lua

import (
	"fmt"
	"reflect"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Bridge converts values between Go and Lua. Go structs, pointers and
// interfaces cross as object userdata; maps and slices are copied into
// tables.
type Bridge struct {
	L *lua.LState

	objectMeta *lua.LTable
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	b := &Bridge{L: L}
	b.objectMeta = b.newObjectMetatable()
	return b
}

// ToGoValue converts a Lua value to a Go value.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGoValueWithVisited(lv, make(map[*lua.LTable]bool))
}

// toGoValueWithVisited converts a Lua value to a Go value, tracking visited tables.
func (b *Bridge) toGoValueWithVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return b.tableToGoWithVisited(v, visited)
	case *lua.LFunction:
		return v
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

// tableToGoWithVisited converts a Lua table to a slice when its keys are
// 1..n, and to a string-keyed map otherwise.
func (b *Bridge) tableToGoWithVisited(t *lua.LTable, visited map[*lua.LTable]bool) any {
	if n := arrayLength(t); n > 0 {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = b.toGoValueWithVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = strconv.FormatFloat(float64(kv), 'f', -1, 64)
		default:
			key = k.String()
		}
		m[key] = b.toGoValueWithVisited(v, visited)
	})
	return m
}

// arrayLength returns n when the table's keys are exactly 1..n, else 0.
func arrayLength(t *lua.LTable) int {
	isArray := true
	maxN, count := 0, 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				if n > maxN {
					maxN = n
				}
				return
			}
		}
		isArray = false
	})
	if !isArray || count != maxN {
		return 0
	}
	return maxN
}

// ToLuaValue converts a Go value to a Lua value.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}

	switch val := v.(type) {
	case lua.LValue:
		return val
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case error:
		return lua.LString(val.Error())
	case []any:
		return b.sliceToTable(val)
	case map[string]any:
		return b.mapToTable(val)
	}
	return b.reflectToLua(reflect.ValueOf(v))
}

// sliceToTable converts a Go slice to a Lua table (array).
func (b *Bridge) sliceToTable(s []any) *lua.LTable {
	t := b.L.NewTable()
	for i, v := range s {
		t.RawSetInt(i+1, b.ToLuaValue(v))
	}
	return t
}

// mapToTable converts a Go map to a Lua table.
func (b *Bridge) mapToTable(m map[string]any) *lua.LTable {
	t := b.L.NewTable()
	for k, v := range m {
		t.RawSetString(k, b.ToLuaValue(v))
	}
	return t
}

// reflectToLua converts by kind, so named scalar types such as log levels
// arrive as plain numbers and strings.
func (b *Bridge) reflectToLua(rv reflect.Value) lua.LValue {
	if !rv.IsValid() {
		return lua.LNil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())

	case reflect.Slice:
		if rv.IsNil() {
			return lua.LNil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return lua.LString(rv.Bytes())
		}
		return b.listToTable(rv)
	case reflect.Array:
		return b.listToTable(rv)

	case reflect.Map:
		if rv.IsNil() {
			return lua.LNil
		}
		t := b.L.NewTable()
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(b.reflectToLua(iter.Key()), b.reflectToLua(iter.Value()))
		}
		return t

	case reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		if !rv.CanInterface() {
			return lua.LNil
		}
		return b.ToLuaValue(rv.Elem().Interface())

	case reflect.Func:
		if rv.IsNil() {
			return lua.LNil
		}
		return b.L.NewFunction(func(L *lua.LState) int {
			return b.callGo(L, rv, 1)
		})

	case reflect.Pointer:
		if rv.IsNil() {
			return lua.LNil
		}
	case reflect.Struct:
		if rv.CanAddr() {
			rv = rv.Addr()
		}
	}

	if !rv.CanInterface() {
		return lua.LNil
	}
	return b.NewObject(rv.Interface())
}

func (b *Bridge) listToTable(rv reflect.Value) *lua.LTable {
	t := b.L.NewTable()
	for i := 0; i < rv.Len(); i++ {
		t.RawSetInt(i+1, b.reflectToLua(rv.Index(i)))
	}
	return t
}

// FromLua converts a Lua value to the Go type t. nil becomes t's zero
// value; numbers convert between numeric kinds.
func (b *Bridge) FromLua(lv lua.LValue, t reflect.Type) (reflect.Value, error) {
	if lv == nil || lv == lua.LNil {
		return reflect.Zero(t), nil
	}
	if ud, ok := lv.(*lua.LUserData); ok {
		return convertGo(ud.Value, t)
	}

	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() == 0 {
			g := b.ToGoValue(lv)
			if g == nil {
				return reflect.Zero(t), nil
			}
			return reflect.ValueOf(g), nil
		}

	case reflect.Bool:
		return reflect.ValueOf(lua.LVAsBool(lv)).Convert(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		switch v := lv.(type) {
		case lua.LNumber:
			return reflect.ValueOf(float64(v)).Convert(t), nil
		case lua.LString:
			f, err := strconv.ParseFloat(string(v), 64)
			if err == nil {
				return reflect.ValueOf(f).Convert(t), nil
			}
		}

	case reflect.String:
		switch lv.(type) {
		case lua.LString, lua.LNumber:
			return reflect.ValueOf(lv.String()).Convert(t), nil
		}

	case reflect.Slice:
		if s, ok := lv.(lua.LString); ok && t.Elem().Kind() == reflect.Uint8 {
			return reflect.ValueOf([]byte(s)).Convert(t), nil
		}
		if tbl, ok := lv.(*lua.LTable); ok {
			n := tbl.Len()
			out := reflect.MakeSlice(t, n, n)
			for i := 1; i <= n; i++ {
				v, err := b.FromLua(tbl.RawGetInt(i), t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i - 1).Set(v)
			}
			return out, nil
		}

	case reflect.Map:
		if tbl, ok := lv.(*lua.LTable); ok {
			out := reflect.MakeMap(t)
			var convErr error
			tbl.ForEach(func(k, v lua.LValue) {
				if convErr != nil {
					return
				}
				kv, err := b.FromLua(k, t.Key())
				if err != nil {
					convErr = fmt.Errorf("key %s: %w", k, err)
					return
				}
				vv, err := b.FromLua(v, t.Elem())
				if err != nil {
					convErr = fmt.Errorf("value for %s: %w", k, err)
					return
				}
				out.SetMapIndex(kv, vv)
			})
			if convErr != nil {
				return reflect.Value{}, convErr
			}
			return out, nil
		}

	case reflect.Struct:
		if tbl, ok := lv.(*lua.LTable); ok {
			return b.tableToStruct(tbl, t)
		}

	case reflect.Pointer:
		if tbl, ok := lv.(*lua.LTable); ok && t.Elem().Kind() == reflect.Struct {
			v, err := b.tableToStruct(tbl, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(v)
			return p, nil
		}

	case reflect.Func:
		if fn, ok := lv.(*lua.LFunction); ok {
			return b.makeFunc(fn, t), nil
		}
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", ErrNotAssignable, lv.Type(), t)
}

// tableToStruct fills exported fields from same-named table keys.
func (b *Bridge) tableToStruct(tbl *lua.LTable, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		lv := tbl.RawGetString(f.Name)
		if lv == lua.LNil {
			lv = tbl.RawGetString(lowerFirst(f.Name))
		}
		if lv == lua.LNil {
			continue
		}
		v, err := b.FromLua(lv, f.Type)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out.Field(i).Set(v)
	}
	return out, nil
}

// convertGo adapts a Go value carried through Lua to the type t.
func convertGo(v any, t reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return reflect.Zero(t), nil
	}
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Type().AssignableTo(t) {
		return rv.Elem(), nil
	}
	if t.Kind() != reflect.String && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", ErrNotAssignable, rv.Type(), t)
}

// call invokes a Lua function in protected mode and returns its results.
func (b *Bridge) call(fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	L := b.L
	top := L.GetTop()
	L.Push(fn)
	for _, arg := range args {
		L.Push(arg)
	}
	if err := L.PCall(len(args), lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return nil, err
	}

	n := L.GetTop() - top
	results := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		results[i] = L.Get(top + i + 1)
	}
	L.SetTop(top)
	return results, nil
}

// makeFunc wraps a Lua function as a Go function of type t. A Lua error
// becomes the trailing error result, or a panic when t has none.
func (b *Bridge) makeFunc(fn *lua.LFunction, t reflect.Type) reflect.Value {
	return reflect.MakeFunc(t, func(in []reflect.Value) []reflect.Value {
		if t.IsVariadic() && len(in) > 0 {
			last := in[len(in)-1]
			in = in[:len(in)-1]
			for i := 0; i < last.Len(); i++ {
				in = append(in, last.Index(i))
			}
		}
		args := make([]lua.LValue, len(in))
		for i, a := range in {
			args[i] = b.reflectToLua(a)
		}

		results, err := b.call(fn, args...)

		out := make([]reflect.Value, t.NumOut())
		hasErr := false
		for i := range out {
			ot := t.Out(i)
			if ot == errorType {
				hasErr = true
				if err != nil {
					out[i] = reflect.ValueOf(&err).Elem()
				} else {
					out[i] = reflect.Zero(ot)
				}
				continue
			}
			out[i] = reflect.Zero(ot)
			if i < len(results) {
				if v, cerr := b.FromLua(results[i], ot); cerr == nil {
					out[i] = v
				}
			}
		}
		if err != nil && !hasErr {
			panic(err)
		}
		return out
	})
}

func lowerFirst(s string) string {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return s
	}
	return string(s[0]+('a'-'A')) + s[1:]
}

func upperFirst(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
