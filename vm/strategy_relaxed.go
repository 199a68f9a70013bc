package vm

import "runtime"

// relaxedStrategy creates and grows tables exactly like the stamped
// strategy but stores into an existing table without re-validating the
// stamp afterwards. Only for objects with a single writer, or callers that
// tolerate a write racing a grow being dropped.
type relaxedStrategy struct{}

func (relaxedStrategy) Kind() StrategyKind { return StrategyRelaxed }

func (relaxedStrategy) Set(obj *Object, index int, v Value) {
	for {
		t := obj.table.Load()
		if t != nil && index < len(t.slots) {
			t.slots[index].Store(uint64(v))
			return
		}

		stamp := obj.stamp.Load()
		if stamp&1 != 0 {
			runtime.Gosched()
			continue
		}
		// Re-load under the observed stamp; a grow may have just landed.
		if t = obj.table.Load(); t != nil && index < len(t.slots) {
			continue
		}
		if growAndSet(obj, stamp, t, index, v) {
			return
		}
	}
}

// setHeld is used for identity numbers, which must never be lost, so it
// takes the validated stamped path.
func (relaxedStrategy) setHeld(obj *Object, index int, v Value) {
	stampedStrategy{}.Set(obj, index, v)
}

func (relaxedStrategy) replace(obj *Object, build func(old *slotTable) *slotTable) {
	stampedReplace(obj, build)
}
