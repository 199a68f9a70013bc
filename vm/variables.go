package vm

import "errors"

// ---------------------------------------------------------------------------
// Named variable access
// ---------------------------------------------------------------------------

// GetVariable returns the value of the named variable on obj, or Unset if
// the shape has never seen the name or obj has never written it.
func (vm *VM) GetVariable(obj *Object, name string) Value {
	a, ok := obj.shape.Lookup(name)
	if !ok {
		return Unset
	}
	return a.Get(obj)
}

// SetVariable writes the named variable on obj, allocating the name on
// obj's shape if needed. Table slots accept any value; a field-backed
// variable returns an error wrapping ErrFieldConversion when v does not
// fit its native field, and the field is left unchanged.
func (vm *VM) SetVariable(obj *Object, name string, v Value) error {
	return setAccessor(obj.shape.ForWrite(name), obj, v)
}

// setAccessor writes through a, reporting field conversion failures
// instead of panicking.
func setAccessor(a Accessor, obj *Object, v Value) error {
	if fa, ok := a.(*FieldAccessor); ok {
		return fa.TrySet(obj, v)
	}
	a.Set(obj, v)
	return nil
}

// ---------------------------------------------------------------------------
// Presence queries
// ---------------------------------------------------------------------------

// HasVariables reports whether obj holds anything: a field-backed
// variable, or any set slot including extras.
func (vm *VM) HasVariables(obj *Object) bool {
	if obj.shape.fieldCount > 0 {
		return true
	}
	t := obj.table.Load()
	if t == nil {
		return false
	}
	for i := range t.slots {
		if Value(t.slots[i].Load()) != Unset {
			return true
		}
	}
	return false
}

// HasUserVariables reports whether obj holds any user-visible variable.
// Field-backed storage bypasses the table, so it is asked separately.
func (vm *VM) HasUserVariables(obj *Object) bool {
	if obj.shape.fieldCount > 0 {
		return true
	}
	t := obj.table.Load()
	if t == nil {
		return false
	}
	skip := obj.shape.extraIndices()
outer:
	for i := range t.slots {
		for _, x := range skip {
			if i == x {
				continue outer
			}
		}
		if Value(t.slots[i].Load()) != Unset {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Bulk copy
// ---------------------------------------------------------------------------

// SyncVariables copies src's variables onto dest, as when duplicating an
// object. When both share a shape without native fields this is one
// structural table replacement; dest keeps its own identity slot, so an
// identity number it already handed out survives and src's is never
// shared. Otherwise every user variable of src is copied by name, which
// also works across shapes; values that do not fit a field of dest are
// skipped and reported in the returned error.
func (vm *VM) SyncVariables(dest, src *Object) error {
	shape := src.shape
	if dest.shape == shape && shape.fieldCount == 0 {
		idIndex := -1
		if a := shape.ExtraForRead(ExtraIdentity); a != nil {
			idIndex = a.index
		}
		st := src.table.Load()
		vm.strategy.replace(dest, func(old *slotTable) *slotTable {
			if st == nil && old == nil {
				return nil
			}
			size := st.len()
			if old.len() > size {
				size = old.len()
			}
			nt := newSlotTable(size)
			if st != nil {
				for i := range st.slots {
					if i != idIndex {
						nt.slots[i].Store(st.slots[i].Load())
					}
				}
			}
			if idIndex >= 0 && idIndex < old.len() {
				nt.slots[idIndex].Store(old.slots[idIndex].Load())
			}
			return nt
		})
		return nil
	}

	var errs []error
	for _, a := range shape.UserAccessors() {
		v := a.Get(src)
		if v.IsUnset() {
			continue
		}
		if err := setAccessor(dest.shape.ForWrite(a.Name()), dest, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// Variable is one name/value pair of an object's enumeration.
type Variable struct {
	Name  string
	Value Value
}

// Variables enumerates obj's set table-slot variables in index order.
// Names are unique and the order is stable as long as the shape exists.
// Extras and field-backed variables are not included.
func (vm *VM) Variables(obj *Object) []Variable {
	var out []Variable
	for _, a := range obj.shape.UserAccessors() {
		if a.FieldBacked() {
			continue
		}
		v := a.Get(obj)
		if v.IsUnset() {
			continue
		}
		out = append(out, Variable{Name: a.Name(), Value: v})
	}
	return out
}

// RestoreVariables writes vars onto obj, binding each name through obj's
// shape. Names the shape has not seen are allocated, so the enumeration
// may come from a differently shaped object. Values that do not fit a
// native field are skipped and reported in the returned error.
func (vm *VM) RestoreVariables(obj *Object, vars []Variable) error {
	var errs []error
	for _, v := range vars {
		if err := setAccessor(obj.shape.ForWrite(v.Name), obj, v.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
