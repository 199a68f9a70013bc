package vm

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Configuration errors reported when a class is reified.
var (
	ErrFieldType      = errors.New("native field type incompatible with unwrap policy")
	ErrFieldPolicy    = errors.New("unknown unwrap policy")
	ErrDuplicateField = errors.New("duplicate field variable")
	ErrNotReifiable   = errors.New("type cannot be reified")
)

// ErrFieldConversion is returned by TrySet when a value cannot be stored in
// the native field.
var ErrFieldConversion = errors.New("value not convertible to native field")

// UnwrapPolicy says how values cross between a Value and a native field.
type UnwrapPolicy uint8

const (
	// Direct stores the Value itself; the field must be of type Value.
	Direct UnwrapPolicy = iota
	// ConvertOnly converts between Values and Go scalars and strings.
	ConvertOnly
	// UnwrapProxyThenConvert stores the Go value behind a host proxy.
	UnwrapProxyThenConvert
)

func (p UnwrapPolicy) String() string {
	switch p {
	case Direct:
		return "direct"
	case ConvertOnly:
		return "convert"
	case UnwrapProxyThenConvert:
		return "unwrap"
	default:
		return fmt.Sprintf("UnwrapPolicy(%d)", uint8(p))
	}
}

// ParseUnwrapPolicy parses the policy names used in struct tags.
func ParseUnwrapPolicy(s string) (UnwrapPolicy, error) {
	switch s {
	case "direct":
		return Direct, nil
	case "convert":
		return ConvertOnly, nil
	case "unwrap":
		return UnwrapProxyThenConvert, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrFieldPolicy)
	}
}

var valueType = reflect.TypeOf(Value(0))

// FieldSpec describes one native field a reified class exposes as a
// variable. Get and Set receive the native instance (never a proxy).
type FieldSpec struct {
	Name   string
	Type   reflect.Type
	Policy UnwrapPolicy
	Get    func(native any) any
	Set    func(native any, v any)
}

func (spec FieldSpec) validate() error {
	if spec.Get == nil || spec.Set == nil || spec.Type == nil {
		return fmt.Errorf("field %q: missing getter, setter or type: %w", spec.Name, ErrFieldType)
	}
	ok := false
	switch spec.Policy {
	case Direct:
		ok = spec.Type == valueType
	case ConvertOnly:
		ok = isScalarKind(spec.Type.Kind()) && spec.Type != valueType
	case UnwrapProxyThenConvert:
		switch spec.Type.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Struct:
			ok = true
		}
	default:
		return fmt.Errorf("field %q: %s: %w", spec.Name, spec.Policy, ErrFieldPolicy)
	}
	if !ok {
		return fmt.Errorf("field %q: %s cannot use policy %s: %w", spec.Name, spec.Type, spec.Policy, ErrFieldType)
	}
	return nil
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// FieldAccessor
// ---------------------------------------------------------------------------

// FieldAccessor binds a variable name to a native field. It bypasses the
// attribute table entirely; concurrent access is only as safe as the
// native field itself.
type FieldAccessor struct {
	name  string
	shape *Shape
	index int
	spec  FieldSpec
}

func newFieldAccessor(shape *Shape, name string, index int, spec FieldSpec) *FieldAccessor {
	return &FieldAccessor{name: name, shape: shape, index: index, spec: spec}
}

func (a *FieldAccessor) Name() string         { return a.name }
func (a *FieldAccessor) Index() int           { return a.index }
func (a *FieldAccessor) Shape() *Shape        { return a.shape }
func (a *FieldAccessor) FieldBacked() bool    { return true }
func (a *FieldAccessor) Policy() UnwrapPolicy { return a.spec.Policy }
func (a *FieldAccessor) FieldType() reflect.Type {
	return a.spec.Type
}

// Get reads the native field and converts it to a Value. An object without
// a native instance reads as Unset.
func (a *FieldAccessor) Get(obj *Object) Value {
	target := obj.nativeTarget()
	if target == nil {
		return Unset
	}
	raw := a.spec.Get(target)
	switch a.spec.Policy {
	case Direct:
		v, _ := raw.(Value)
		return v
	default:
		return a.shape.vm.GoToValue(raw)
	}
}

// Set writes v into the native field. It panics with an error wrapping
// ErrFieldConversion if v does not fit; use TrySet to get the error.
func (a *FieldAccessor) Set(obj *Object, v Value) {
	if err := a.TrySet(obj, v); err != nil {
		panic(err)
	}
}

// TrySet writes v into the native field, converting as the policy says.
func (a *FieldAccessor) TrySet(obj *Object, v Value) error {
	target := obj.nativeTarget()
	if target == nil {
		return fmt.Errorf("vm: %s.%s: object has no native instance: %w", obj.ClassName(), a.name, ErrFieldConversion)
	}
	if a.spec.Policy == Direct {
		a.spec.Set(target, v)
		return nil
	}
	x, err := a.convert(v)
	if err != nil {
		return fmt.Errorf("vm: %s.%s: %w", obj.ClassName(), a.name, err)
	}
	a.spec.Set(target, x)
	return nil
}

// convert turns v into a value assignable to the field type.
func (a *FieldAccessor) convert(v Value) (any, error) {
	t := a.spec.Type
	if v.IsNil() || v.IsUnset() {
		return reflect.Zero(t).Interface(), nil
	}

	var goVal any
	switch a.spec.Policy {
	case UnwrapProxyThenConvert:
		p, ok := a.shape.vm.heap.Proxy(v)
		if !ok {
			return nil, fmt.Errorf("expected host object for %s: %w", t, ErrFieldConversion)
		}
		goVal = p.Value
	default:
		goVal = a.shape.vm.ValueToGo(v)
	}
	if goVal == nil {
		return nil, fmt.Errorf("nil for %s: %w", t, ErrFieldConversion)
	}

	rv := reflect.ValueOf(goVal)
	switch {
	case rv.Type().AssignableTo(t):
		return goVal, nil
	case isScalarKind(t.Kind()) && numericOrSame(rv.Kind(), t.Kind()) && rv.Type().ConvertibleTo(t):
		return rv.Convert(t).Interface(), nil
	}
	return nil, fmt.Errorf("%s into %s: %w", rv.Type(), t, ErrFieldConversion)
}

// numericOrSame rejects conversions Go allows but that change meaning, such
// as int to string.
func numericOrSame(from, to reflect.Kind) bool {
	if from == to {
		return true
	}
	return isNumericKind(from) && isNumericKind(to)
}

func isNumericKind(k reflect.Kind) bool {
	return isScalarKind(k) && k != reflect.Bool && k != reflect.String
}

// ---------------------------------------------------------------------------
// Reflection-driven field specs
// ---------------------------------------------------------------------------

// StructFields builds field specs for the struct pointed to by t from
// `ivar:"name[,policy]"` tags. Untagged fields are skipped. Without an
// explicit policy, Value fields are Direct, scalars ConvertOnly and
// pointers, interfaces and structs UnwrapProxyThenConvert.
func StructFields(t reflect.Type) ([]FieldSpec, error) {
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("vm: %s: %w", t, ErrNotReifiable)
	}
	st := t.Elem()

	var specs []FieldSpec
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		tag, ok := f.Tag.Lookup("ivar")
		if !ok || tag == "-" {
			continue
		}
		if !f.IsExported() {
			return nil, fmt.Errorf("vm: %s.%s: unexported field: %w", st.Name(), f.Name, ErrNotReifiable)
		}

		name, policyName, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		policy := defaultPolicy(f.Type)
		if policyName != "" {
			p, err := ParseUnwrapPolicy(policyName)
			if err != nil {
				return nil, fmt.Errorf("vm: %s.%s: %w", st.Name(), f.Name, err)
			}
			policy = p
		}

		index := f.Index
		specs = append(specs, FieldSpec{
			Name:   name,
			Type:   f.Type,
			Policy: policy,
			Get: func(native any) any {
				return reflect.ValueOf(native).Elem().FieldByIndex(index).Interface()
			},
			Set: func(native any, v any) {
				fv := reflect.ValueOf(native).Elem().FieldByIndex(index)
				if v == nil {
					fv.Set(reflect.Zero(fv.Type()))
					return
				}
				fv.Set(reflect.ValueOf(v))
			},
		})
	}
	return specs, nil
}

func defaultPolicy(t reflect.Type) UnwrapPolicy {
	switch {
	case t == valueType:
		return Direct
	case isScalarKind(t.Kind()):
		return ConvertOnly
	default:
		return UnwrapProxyThenConvert
	}
}
