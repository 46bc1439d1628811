package services

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// Reflector looks up fields and methods by name, including unexported
// fields. Lookups are cached per type.
type Reflector struct {
	mu      sync.RWMutex
	fields  map[memberKey][]int
	methods map[memberKey]int
}

type memberKey struct {
	typ  reflect.Type
	name string
}

// NewReflector creates a reflector with an empty cache.
func NewReflector() *Reflector {
	return &Reflector{
		fields:  make(map[memberKey][]int),
		methods: make(map[memberKey]int),
	}
}

// Field is a reflected field bound to a specific value.
type Field struct {
	Name  string
	Type  reflect.Type
	value reflect.Value
}

// Get returns the current field value.
func (f *Field) Get() any {
	return f.value.Interface()
}

// Set replaces the field value.
func (f *Field) Set(v any) error {
	var rv reflect.Value
	if v == nil {
		rv = reflect.Zero(f.Type)
	} else {
		rv = reflect.ValueOf(v)
	}
	if !rv.Type().AssignableTo(f.Type) {
		if !rv.Type().ConvertibleTo(f.Type) {
			return fmt.Errorf("cannot assign %s to field %s of type %s", rv.Type(), f.Name, f.Type)
		}
		rv = rv.Convert(f.Type)
	}
	f.value.Set(rv)
	return nil
}

// Method is a reflected method bound to a specific receiver.
type Method struct {
	Name string
	fn   reflect.Value
}

// Invoke calls the method. A trailing error result is returned as err and
// dropped from the results.
func (m *Method) Invoke(args ...any) (results []any, err error) {
	ft := m.fn.Type()
	if !ft.IsVariadic() && len(args) != ft.NumIn() {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", m.Name, ft.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		if arg == nil {
			in[i] = reflect.Zero(pt)
			continue
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(pt) {
			if !av.Type().ConvertibleTo(pt) {
				return nil, fmt.Errorf("%s argument %d: cannot use %s as %s", m.Name, i+1, av.Type(), pt)
			}
			av = av.Convert(pt)
		}
		in[i] = av
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", m.Name, r)
		}
	}()

	out := m.fn.Call(in)
	errType := reflect.TypeOf((*error)(nil)).Elem()
	if n := len(out); n > 0 && ft.Out(n-1) == errType {
		if e := out[n-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:n-1]
	}
	for _, v := range out {
		results = append(results, v.Interface())
	}
	return results, err
}

// GetField returns a named field of obj, which must be a pointer to a struct.
// Unexported fields are accessible. If required is false a missing field
// returns (nil, nil).
func (r *Reflector) GetField(obj any, name string, required bool) (*Field, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T (need pointer to struct)", ErrNotAddressable, obj)
	}
	sv := rv.Elem()

	index, ok := r.fieldIndex(sv.Type(), name)
	if !ok {
		if !required {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: field %s.%s", ErrMemberNotFound, sv.Type(), name)
	}

	fv, err := sv.FieldByIndexErr(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAddressable, err)
	}
	if !fv.CanSet() {
		fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
	}

	return &Field{Name: name, Type: fv.Type(), value: fv}, nil
}

// GetMethod returns a named exported method of obj. If required is false a
// missing method returns (nil, nil).
func (r *Reflector) GetMethod(obj any, name string, required bool) (*Method, error) {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil receiver", ErrMemberNotFound)
	}

	index, ok := r.methodIndex(rv.Type(), name)
	if !ok {
		if !required {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: method %s.%s", ErrMemberNotFound, rv.Type(), name)
	}
	return &Method{Name: name, fn: rv.Method(index)}, nil
}

func (r *Reflector) fieldIndex(t reflect.Type, name string) ([]int, bool) {
	key := memberKey{typ: t, name: name}

	r.mu.RLock()
	index, ok := r.fields[key]
	r.mu.RUnlock()
	if ok {
		return index, index != nil
	}

	if sf, found := t.FieldByName(name); found {
		index = sf.Index
	}

	r.mu.Lock()
	r.fields[key] = index
	r.mu.Unlock()
	return index, index != nil
}

func (r *Reflector) methodIndex(t reflect.Type, name string) (int, bool) {
	key := memberKey{typ: t, name: name}

	r.mu.RLock()
	index, ok := r.methods[key]
	r.mu.RUnlock()
	if ok {
		return index, index >= 0
	}

	index = -1
	if m, found := t.MethodByName(name); found {
		index = m.Index
	}

	r.mu.Lock()
	r.methods[key] = index
	r.mu.Unlock()
	return index, index >= 0
}
