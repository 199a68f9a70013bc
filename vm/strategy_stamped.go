package vm

import "runtime"

// ---------------------------------------------------------------------------
// Stamped strategy
// ---------------------------------------------------------------------------

// stampedStrategy writes slots optimistically. Structural changes claim the
// object's stamp by moving it from even to odd with a CAS; an ordinary write
// stores into the current table and then re-reads the stamp, retrying if a
// structural operation started or finished in between. Go atomics are
// sequentially consistent, so the store/load pair needs no extra fence.
type stampedStrategy struct{}

func (stampedStrategy) Kind() StrategyKind { return StrategyStamped }

func (s stampedStrategy) Set(obj *Object, index int, v Value) {
	for {
		stamp := obj.stamp.Load()
		if stamp&1 != 0 {
			// A grow is in flight.
			runtime.Gosched()
			continue
		}

		t := obj.table.Load()
		if t == nil || index >= len(t.slots) {
			if growAndSet(obj, stamp, t, index, v) {
				return
			}
			continue
		}

		t.slots[index].Store(uint64(v))
		if obj.stamp.Load() == stamp {
			return
		}
	}
}

func (s stampedStrategy) setHeld(obj *Object, index int, v Value) {
	s.Set(obj, index, v)
}

func (stampedStrategy) replace(obj *Object, build func(old *slotTable) *slotTable) {
	stampedReplace(obj, build)
}

// growAndSet claims the stamp observed as stamp, publishes a grown copy of
// t with v at index and releases the stamp. It reports false if the claim
// failed and the caller must retry.
func growAndSet(obj *Object, stamp uint64, t *slotTable, index int, v Value) bool {
	if !obj.stamp.CompareAndSwap(stamp, stamp+1) {
		return false
	}
	// While the stamp is ours no other structural op can publish, so t is
	// still the current table.
	nt := grownTable(t, tableSizeFor(obj), index)
	nt.slots[index].Store(uint64(v))
	obj.table.Store(nt)
	obj.stamp.Store(stamp + 2)
	return true
}

// stampedReplace runs build under a claimed stamp and publishes its result.
func stampedReplace(obj *Object, build func(old *slotTable) *slotTable) {
	for {
		stamp := obj.stamp.Load()
		if stamp&1 != 0 {
			runtime.Gosched()
			continue
		}
		if !obj.stamp.CompareAndSwap(stamp, stamp+1) {
			continue
		}
		obj.table.Store(build(obj.table.Load()))
		obj.stamp.Store(stamp + 2)
		return
	}
}
