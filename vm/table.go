package vm

import "sync/atomic"

// slotTable is the per-object array of variable values. Once published on
// an object it never changes length; growing means publishing a new, longer
// table that carries over every prior value.
type slotTable struct {
	slots []atomic.Uint64
}

// newSlotTable allocates a table of n slots, all Unset.
func newSlotTable(n int) *slotTable {
	t := &slotTable{slots: make([]atomic.Uint64, n)}
	for i := range t.slots {
		t.slots[i].Store(uint64(Unset))
	}
	return t
}

// grownTable returns a table of at least size slots (and at least
// index+1) holding old's values. old may be nil.
func grownTable(old *slotTable, size, index int) *slotTable {
	if size <= index {
		size = index + 1
	}
	if old != nil && size < len(old.slots) {
		size = len(old.slots)
	}
	t := newSlotTable(size)
	if old != nil {
		for i := range old.slots {
			t.slots[i].Store(old.slots[i].Load())
		}
	}
	return t
}

func (t *slotTable) len() int {
	if t == nil {
		return 0
	}
	return len(t.slots)
}

func (t *slotTable) load(index int) Value {
	if t == nil || index >= len(t.slots) {
		return Unset
	}
	return Value(t.slots[index].Load())
}
