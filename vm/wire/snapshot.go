package wire

import (
	"fmt"
	"math/big"

	"github.com/chazu/ivars/vm"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ivars.wire")

// ---------------------------------------------------------------------------
// Capture
// ---------------------------------------------------------------------------

// Capture builds a snapshot of obj's user variables, field-backed ones
// included, in index order. Referenced objects are captured recursively
// and embedded; an object reached twice along one path is a cycle. Unset
// variables are omitted.
func Capture(v *vm.VM, obj *vm.Object) (*Snapshot, error) {
	c := &capturer{vm: v, active: make(map[*vm.Object]bool)}
	return c.object(obj)
}

type capturer struct {
	vm     *vm.VM
	active map[*vm.Object]bool
}

func (c *capturer) object(obj *vm.Object) (*Snapshot, error) {
	if c.active[obj] {
		return nil, fmt.Errorf("%w at %s", ErrCycle, obj.ClassName())
	}
	c.active[obj] = true
	defer delete(c.active, obj)

	shape := obj.Shape()
	snap := &Snapshot{Class: obj.ClassName(), Generation: shape.Generation()}
	for _, a := range shape.UserAccessors() {
		val := a.Get(obj)
		if val.IsUnset() {
			continue
		}
		d, err := c.datum(val)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", snap.Class, a.Name(), err)
		}
		snap.Vars = append(snap.Vars, Var{Name: a.Name(), Value: d})
	}
	return snap, nil
}

func (c *capturer) datum(val vm.Value) (Datum, error) {
	switch {
	case val == vm.Nil:
		return Datum{Kind: KindNil}, nil
	case val == vm.True, val == vm.False:
		return Datum{Kind: KindBool, Bool: val.Bool()}, nil
	case val.IsSmallInt():
		return Datum{Kind: KindInt, Int: val.SmallInt()}, nil
	case val.IsFloat():
		return Datum{Kind: KindFloat, Float: val.Float64()}, nil
	case val.IsRef():
		h := c.vm.Heap()
		if s, ok := h.String(val); ok {
			return Datum{Kind: KindString, Str: s}, nil
		}
		if obj, ok := h.Object(val); ok {
			snap, err := c.object(obj)
			if err != nil {
				return Datum{}, err
			}
			return Datum{Kind: KindObject, Object: snap}, nil
		}
		if n, ok := h.Integer(val); ok {
			if n.IsInt64() {
				return Datum{Kind: KindInt, Int: n.Int64()}, nil
			}
			return Datum{Kind: KindBigInt, Str: n.String()}, nil
		}
	}
	return Datum{}, fmt.Errorf("%w: %#x", ErrUnsupportedValue, uint64(val))
}

// ---------------------------------------------------------------------------
// Restore
// ---------------------------------------------------------------------------

// Restore creates a new instance of the snapshot's class, defining the
// class if the VM has not seen it, and writes the snapshot's variables
// onto it. Names are bound through the class's current shape, so a
// snapshot taken from an older generation restores by name.
func Restore(v *vm.VM, s *Snapshot) (*vm.Object, error) {
	class := v.DefineClass(s.Class)
	if g := class.Shape().Generation(); g != s.Generation {
		log.Debugf("restore %s: snapshot generation %d, class generation %d", s.Class, s.Generation, g)
	}
	obj := class.NewInstance()
	if err := Apply(v, obj, s); err != nil {
		return nil, err
	}
	return obj, nil
}

// Apply writes the snapshot's variables onto an existing object.
// Variables of obj that the snapshot does not name are left alone.
func Apply(v *vm.VM, obj *vm.Object, s *Snapshot) error {
	shape := obj.Shape()
	for _, sv := range s.Vars {
		val, err := value(v, sv.Value)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.Class, sv.Name, err)
		}
		a := shape.ForWrite(sv.Name)
		if fa, ok := a.(*vm.FieldAccessor); ok {
			if err := fa.TrySet(obj, val); err != nil {
				return err
			}
			continue
		}
		a.Set(obj, val)
	}
	return nil
}

func value(v *vm.VM, d Datum) (vm.Value, error) {
	switch d.Kind {
	case KindNil:
		return vm.Nil, nil
	case KindBool:
		return vm.FromBool(d.Bool), nil
	case KindInt:
		return v.GoToValue(d.Int), nil
	case KindBigInt:
		n, ok := new(big.Int).SetString(d.Str, 10)
		if !ok {
			return vm.Nil, fmt.Errorf("%w: malformed integer %q", ErrUnsupportedValue, d.Str)
		}
		return v.Heap().BigInt(n), nil
	case KindFloat:
		return vm.FromFloat64(d.Float), nil
	case KindString:
		return v.NewString(d.Str), nil
	case KindObject:
		if d.Object == nil {
			return vm.Nil, fmt.Errorf("%w: object datum without snapshot", ErrUnsupportedValue)
		}
		obj, err := Restore(v, d.Object)
		if err != nil {
			return vm.Nil, err
		}
		return v.ObjectValue(obj), nil
	}
	return vm.Nil, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, d.Kind)
}
