package lua

import (
	"fmt"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// objectTypeName is the registry name of the object metatable.
const objectTypeName = "selene.object"

// NewObject wraps a Go value as userdata. Methods and exported fields are
// reachable by name, with a lower-case first letter also accepted. Methods
// may be called with either obj:Method() or obj.Method().
func (b *Bridge) NewObject(v any) *lua.LUserData {
	ud := b.L.NewUserData()
	ud.Value = v
	ud.Metatable = b.objectMeta
	return ud
}

func (b *Bridge) newObjectMetatable() *lua.LTable {
	mt := b.L.NewTypeMetatable(objectTypeName)
	b.L.SetFuncs(mt, map[string]lua.LGFunction{
		"__index":    b.objectIndex,
		"__newindex": b.objectNewIndex,
		"__tostring": b.objectToString,
		"__len":      b.objectLen,
		"__eq":       b.objectEq,
		"__call":     b.objectCall,
	})
	return mt
}

func (b *Bridge) objectIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.Get(2)
	rv := reflect.ValueOf(ud.Value)

	switch k := key.(type) {
	case lua.LString:
		name := string(k)
		if m := methodByName(rv, name); m.IsValid() {
			L.Push(L.NewFunction(func(L *lua.LState) int {
				first := 1
				if self, ok := L.Get(1).(*lua.LUserData); ok && self == ud {
					first = 2
				}
				return b.callGo(L, m, first)
			}))
			return 1
		}
		if f, ok := fieldByName(rv, name); ok {
			L.Push(b.reflectToLua(f))
			return 1
		}
		if m := reflect.Indirect(rv); m.Kind() == reflect.Map && m.Type().Key().Kind() == reflect.String {
			v := m.MapIndex(reflect.ValueOf(name).Convert(m.Type().Key()))
			L.Push(b.reflectToLua(v))
			return 1
		}

	case lua.LNumber:
		list := reflect.Indirect(rv)
		if list.Kind() == reflect.Slice || list.Kind() == reflect.Array {
			i := int(k) - 1
			if i >= 0 && i < list.Len() {
				L.Push(b.reflectToLua(list.Index(i)))
				return 1
			}
		}
	}

	L.Push(lua.LNil)
	return 1
}

func (b *Bridge) objectNewIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	name := L.CheckString(2)
	val := L.Get(3)
	rv := reflect.ValueOf(ud.Value)

	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if f, ok := fieldByName(rv, name); ok && f.CanSet() {
			v, err := b.FromLua(val, f.Type())
			if err != nil {
				L.RaiseError("set %s: %v", name, err)
				return 0
			}
			f.Set(v)
			return 0
		}
	}
	if m := reflect.Indirect(rv); m.Kind() == reflect.Map && !m.IsNil() && m.Type().Key().Kind() == reflect.String {
		key := reflect.ValueOf(name).Convert(m.Type().Key())
		if val == lua.LNil {
			m.SetMapIndex(key, reflect.Value{})
			return 0
		}
		v, err := b.FromLua(val, m.Type().Elem())
		if err != nil {
			L.RaiseError("set %s: %v", name, err)
			return 0
		}
		m.SetMapIndex(key, v)
		return 0
	}

	L.RaiseError("cannot set %s on %T", name, ud.Value)
	return 0
}

func (b *Bridge) objectToString(L *lua.LState) int {
	ud := L.CheckUserData(1)
	L.Push(lua.LString(fmt.Sprint(ud.Value)))
	return 1
}

func (b *Bridge) objectLen(L *lua.LState) int {
	ud := L.CheckUserData(1)
	rv := reflect.Indirect(reflect.ValueOf(ud.Value))
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		L.Push(lua.LNumber(rv.Len()))
	default:
		L.Push(lua.LNumber(0))
	}
	return 1
}

func (b *Bridge) objectEq(L *lua.LState) int {
	a, _ := L.Get(1).(*lua.LUserData)
	c, _ := L.Get(2).(*lua.LUserData)
	if a == nil || c == nil {
		L.Push(lua.LFalse)
		return 1
	}
	ta, tc := reflect.TypeOf(a.Value), reflect.TypeOf(c.Value)
	L.Push(lua.LBool(ta == tc && ta != nil && ta.Comparable() && a.Value == c.Value))
	return 1
}

func (b *Bridge) objectCall(L *lua.LState) int {
	ud := L.CheckUserData(1)
	rv := reflect.ValueOf(ud.Value)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		L.RaiseError("%T is not callable", ud.Value)
		return 0
	}
	return b.callGo(L, rv, 2)
}

// callGo calls fn with the Lua arguments from stack index first onward and
// pushes its results. Missing arguments are zero values. A non-nil trailing
// error and a Go panic both raise a Lua error.
func (b *Bridge) callGo(L *lua.LState, fn reflect.Value, first int) int {
	ft := fn.Type()
	numIn := ft.NumIn()
	fixed := numIn
	if ft.IsVariadic() {
		fixed--
	}

	in := make([]reflect.Value, 0, numIn)
	for i := 0; i < fixed; i++ {
		v, err := b.FromLua(L.Get(first+i), ft.In(i))
		if err != nil {
			L.ArgError(first+i, err.Error())
			return 0
		}
		in = append(in, v)
	}
	if ft.IsVariadic() {
		elem := ft.In(fixed).Elem()
		for i := first + fixed; i <= L.GetTop(); i++ {
			v, err := b.FromLua(L.Get(i), elem)
			if err != nil {
				L.ArgError(i, err.Error())
				return 0
			}
			in = append(in, v)
		}
	}

	out, panicked := invoke(fn, in)
	if panicked != nil {
		L.RaiseError("%v", panicked)
		return 0
	}

	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if errv := out[n-1]; !errv.IsNil() {
			L.RaiseError("%v", errv.Interface())
			return 0
		}
		out = out[:n-1]
	}
	for _, v := range out {
		L.Push(b.reflectToLua(v))
	}
	return len(out)
}

// invoke calls fn and reports a panic instead of propagating it.
func invoke(fn reflect.Value, in []reflect.Value) (out []reflect.Value, panicked any) {
	defer func() {
		if r := recover(); r != nil {
			panicked = r
		}
	}()
	return fn.Call(in), nil
}

func methodByName(rv reflect.Value, name string) reflect.Value {
	if !rv.IsValid() {
		return reflect.Value{}
	}
	if m := rv.MethodByName(name); m.IsValid() {
		return m
	}
	if upper := upperFirst(name); upper != name {
		return rv.MethodByName(upper)
	}
	return reflect.Value{}
}

func fieldByName(rv reflect.Value, name string) (reflect.Value, bool) {
	sv := reflect.Indirect(rv)
	if sv.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	for _, n := range []string{name, upperFirst(name)} {
		sf, ok := sv.Type().FieldByName(n)
		if !ok || !sf.IsExported() {
			continue
		}
		f, err := sv.FieldByIndexErr(sf.Index)
		if err != nil {
			return reflect.Value{}, false
		}
		return f, true
	}
	return reflect.Value{}, false
}
