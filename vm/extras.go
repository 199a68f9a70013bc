package vm

import (
	"math/big"
	"strings"
)

// ---------------------------------------------------------------------------
// Extras: reserved per-object slots
// ---------------------------------------------------------------------------

// ExtraKind identifies one of the reserved slots a shape allocates on
// demand. Extras use the ordinary allocation path but are keyed by names
// that guest code cannot spell, and they are excluded from user-variable
// queries and enumeration.
type ExtraKind uint8

const (
	ExtraIdentity ExtraKind = iota
	ExtraForeignHandle
	ExtraGroup
	numExtras
)

// extraPrefix starts every reserved name. Guest identifiers never contain NUL.
const extraPrefix = "\x00"

var extraNames = [numExtras]string{
	ExtraIdentity:      extraPrefix + "identity",
	ExtraForeignHandle: extraPrefix + "foreign_handle",
	ExtraGroup:         extraPrefix + "group",
}

func (k ExtraKind) String() string {
	switch k {
	case ExtraIdentity:
		return "identity"
	case ExtraForeignHandle:
		return "foreign-handle"
	case ExtraGroup:
		return "group"
	default:
		return "extra?"
	}
}

func isExtraName(name string) bool {
	return strings.HasPrefix(name, extraPrefix)
}

// ExtraForRead returns the accessor for an extra, or nil if no object of
// this shape has needed it yet.
func (s *Shape) ExtraForRead(kind ExtraKind) *SlotAccessor {
	return s.extras[kind].Load()
}

// ExtraForWrite returns the accessor for an extra, allocating it on first
// demand.
func (s *Shape) ExtraForWrite(kind ExtraKind) *SlotAccessor {
	if a := s.extras[kind].Load(); a != nil {
		return a
	}
	a := s.ForWrite(extraNames[kind]).(*SlotAccessor)
	if s.extras[kind].CompareAndSwap(nil, a) {
		log.Debugf("shape %s/%d: allocated %s extra at %d", s.className(), s.generation, kind, a.index)
	}
	return a
}

// HasExtra reports whether the extra has been allocated for this shape.
func (s *Shape) HasExtra(kind ExtraKind) bool {
	return s.extras[kind].Load() != nil
}

// extraIndices returns the indices of allocated extras.
func (s *Shape) extraIndices() []int {
	var out []int
	for k := range s.extras {
		if a := s.extras[k].Load(); a != nil {
			out = append(out, a.index)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Identity numbers
// ---------------------------------------------------------------------------

// IdentityNumber returns obj's identity number, allocating it on first
// request. Once visible the number never changes, so allocation is a
// double-checked write under the object's own lock rather than a CAS.
func (vm *VM) IdentityNumber(obj *Object) Value {
	a := obj.shape.ExtraForWrite(ExtraIdentity)
	if v := a.Get(obj); !v.IsUnset() {
		return v
	}

	obj.mu.Lock()
	defer obj.mu.Unlock()
	if v := a.Get(obj); !v.IsUnset() {
		return v
	}
	v := vm.uintValue(vm.nextIdentity.Add(1))
	a.setHeld(obj, v)
	return v
}

// uintValue encodes n in the narrowest representation that holds it.
func (vm *VM) uintValue(n uint64) Value {
	if n <= uint64(MaxSmallInt) {
		return FromSmallInt(int64(n))
	}
	return vm.heap.BigInt(new(big.Int).SetUint64(n))
}

func (vm *VM) boxInt64(n int64) Value {
	return vm.heap.BigInt(big.NewInt(n))
}

// ---------------------------------------------------------------------------
// Foreign handles and group tags
// ---------------------------------------------------------------------------

// ForeignHandle returns the foreign handle attached to obj, or nil.
func (vm *VM) ForeignHandle(obj *Object) any {
	a := obj.shape.ExtraForRead(ExtraForeignHandle)
	if a == nil {
		return nil
	}
	v := a.Get(obj)
	if v.IsUnset() || v.IsNil() {
		return nil
	}
	x, _ := vm.heap.Deref(v)
	return x
}

// SetForeignHandle attaches a foreign handle to obj.
func (vm *VM) SetForeignHandle(obj *Object, handle any) {
	obj.shape.ExtraForWrite(ExtraForeignHandle).Set(obj, vm.heap.Box(handle))
}

// GroupTag returns obj's group tag, or Unset.
func (vm *VM) GroupTag(obj *Object) Value {
	a := obj.shape.ExtraForRead(ExtraGroup)
	if a == nil {
		return Unset
	}
	return a.Get(obj)
}

// SetGroupTag sets obj's group tag.
func (vm *VM) SetGroupTag(obj *Object, tag Value) {
	obj.shape.ExtraForWrite(ExtraGroup).Set(obj, tag)
}
