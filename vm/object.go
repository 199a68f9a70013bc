package vm

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// Object is a guest-language instance.
//
// Variables live either in the attribute table (a lazily created,
// grow-only array indexed by accessor index) or, for reified classes, in
// fields of the native Go instance. The table pointer and the structural
// stamp are only touched through the VM's Strategy; reads go straight to
// the table.
type Object struct {
	shape *Shape

	table atomic.Pointer[slotTable]

	// stamp is even while the table is stable and odd while a structural
	// operation (create, grow, replace) is in flight.
	stamp atomic.Uint64

	// mu is the object's intrinsic lock. The locked strategy guards every
	// write with it and identity-number allocation double-checks under it.
	mu deadlock.Mutex

	// native is the reified Go instance, or a *HostProxy wrapping one.
	native any
}

// Shape returns the shape the object was created with.
func (obj *Object) Shape() *Shape {
	return obj.shape
}

// Class returns the object's class.
func (obj *Object) Class() *Class {
	return obj.shape.class
}

// ClassName returns the name of the object's class, or "?" if unknown.
func (obj *Object) ClassName() string {
	if obj.shape == nil || obj.shape.class == nil {
		return "?"
	}
	return obj.shape.class.Name
}

// Native returns the native instance backing field variables, or nil.
func (obj *Object) Native() any {
	return obj.native
}

// nativeTarget returns the Go instance whose fields back field accessors,
// looking through one level of host proxy.
func (obj *Object) nativeTarget() any {
	if p, ok := obj.native.(*HostProxy); ok {
		return p.Value
	}
	return obj.native
}

// ---------------------------------------------------------------------------
// Table access
// ---------------------------------------------------------------------------

// slot reads the value at index. Never blocks, never retries.
func (obj *Object) slot(index int) Value {
	return obj.table.Load().load(index)
}

// TableLen returns the current length of the attribute table (0 if none).
func (obj *Object) TableLen() int {
	return obj.table.Load().len()
}

// Stamp returns the current structural stamp.
func (obj *Object) Stamp() uint64 {
	return obj.stamp.Load()
}

// ForEachSlot calls fn for each slot in the current table snapshot.
func (obj *Object) ForEachSlot(fn func(index int, value Value)) {
	t := obj.table.Load()
	if t == nil {
		return
	}
	for i := range t.slots {
		fn(i, Value(t.slots[i].Load()))
	}
}
