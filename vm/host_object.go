package vm

import (
	"fmt"
	"reflect"
	"sync"
)

// ---------------------------------------------------------------------------
// HostProxy: guest-visible wrapper for arbitrary Go values
// ---------------------------------------------------------------------------

// HostProxy holds an opaque Go value along with its type registry ID. A
// proxy may stand in as the native instance of an object, in which case
// field-backed accessors unwrap it before touching the fields.
type HostProxy struct {
	TypeID uint16
	Value  any
}

// HostTypeInfo describes a registered Go type and its guest class.
type HostTypeInfo struct {
	TypeID    uint16
	GoType    reflect.Type
	Class     *Class
	ClassName string
}

// HostTypeRegistry maps Go types to guest classes and vice versa.
// Thread-safe for concurrent registration and lookup.
type HostTypeRegistry struct {
	mu     sync.RWMutex
	types  map[uint16]*HostTypeInfo
	byType map[reflect.Type]uint16
	nextID uint16
}

// NewHostTypeRegistry creates an empty type registry.
func NewHostTypeRegistry() *HostTypeRegistry {
	return &HostTypeRegistry{
		types:  make(map[uint16]*HostTypeInfo),
		byType: make(map[reflect.Type]uint16),
		nextID: 1, // 0 means unregistered
	}
}

// Register adds a Go type to the registry and returns its type ID.
// If the type is already registered, returns the existing ID.
func (r *HostTypeRegistry) Register(goType reflect.Type, class *Class, className string) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byType[goType]; ok {
		return id
	}

	id := r.nextID
	r.nextID++

	r.types[id] = &HostTypeInfo{
		TypeID:    id,
		GoType:    goType,
		Class:     class,
		ClassName: className,
	}
	r.byType[goType] = id
	return id
}

// LookupByType returns the type info for a given Go reflect.Type.
func (r *HostTypeRegistry) LookupByType(goType reflect.Type) *HostTypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byType[goType]
	if !ok {
		return nil
	}
	return r.types[id]
}

// ---------------------------------------------------------------------------
// VM-level helpers
// ---------------------------------------------------------------------------

// RegisterHostType registers a Go type under a guest class name.
// Creates the class if it doesn't exist and returns it.
func (vm *VM) RegisterHostType(className string, goType reflect.Type) *Class {
	if info := vm.hostTypes.LookupByType(goType); info != nil {
		return info.Class
	}
	class := vm.DefineClass(className)
	vm.hostTypes.Register(goType, class, className)
	return class
}

// WrapHost wraps a Go value in a proxy and returns its reference.
// The Go value's type must be pre-registered via RegisterHostType.
func (vm *VM) WrapHost(goValue any) (Value, error) {
	p, err := vm.NewHostProxy(goValue)
	if err != nil {
		return Nil, err
	}
	return vm.heap.ProxyValue(p), nil
}

// NewHostProxy wraps a Go value of a registered type.
func (vm *VM) NewHostProxy(goValue any) (*HostProxy, error) {
	goType := reflect.TypeOf(goValue)
	info := vm.hostTypes.LookupByType(goType)
	if info == nil {
		return nil, fmt.Errorf("vm: Go type %s not registered", goType)
	}
	return &HostProxy{TypeID: info.TypeID, Value: goValue}, nil
}

// UnwrapHost extracts the Go value from a proxy reference.
func (vm *VM) UnwrapHost(v Value) (any, bool) {
	p, ok := vm.heap.Proxy(v)
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// ---------------------------------------------------------------------------
// Type marshaling: Go <-> Value conversion
// ---------------------------------------------------------------------------

// GoToValue converts a Go value to a Value.
// Handles basic types (int, float, string, bool, nil), Values, objects and
// registered host types. Anything else converts to Nil.
func (vm *VM) GoToValue(goVal any) Value {
	if goVal == nil {
		return Nil
	}

	switch x := goVal.(type) {
	case Value:
		return x
	case *Object:
		return vm.heap.ObjectValue(x)
	case *HostProxy:
		return vm.heap.ProxyValue(x)
	}

	v := reflect.ValueOf(goVal)
	switch v.Kind() {
	case reflect.Bool:
		return FromBool(v.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, ok := TryFromSmallInt(v.Int()); ok {
			return n
		}
		return vm.boxInt64(v.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return vm.uintValue(v.Uint())

	case reflect.Float32, reflect.Float64:
		return FromFloat64(v.Float())

	case reflect.String:
		return vm.heap.NewString(v.String())

	case reflect.Ptr, reflect.Struct, reflect.Interface:
		if v.Kind() != reflect.Struct && v.IsNil() {
			return Nil
		}
		if info := vm.hostTypes.LookupByType(v.Type()); info != nil {
			if v.Kind() == reflect.Ptr {
				return vm.heap.hostPointerValue(info.TypeID, goVal)
			}
			return vm.heap.ProxyValue(&HostProxy{TypeID: info.TypeID, Value: goVal})
		}
	}

	return Nil
}

// ValueToGo converts a Value to a Go value.
// Handles specials, numbers, strings, objects and proxy unwrapping.
func (vm *VM) ValueToGo(v Value) any {
	switch {
	case v == Nil, v == Unset:
		return nil
	case v == True:
		return true
	case v == False:
		return false
	case v.IsSmallInt():
		return v.SmallInt()
	case v.IsFloat():
		return v.Float64()
	case v.IsRef():
		x, ok := vm.heap.Deref(v)
		if !ok {
			return nil
		}
		if p, ok := x.(*HostProxy); ok {
			return p.Value
		}
		return x
	default:
		return nil
	}
}
