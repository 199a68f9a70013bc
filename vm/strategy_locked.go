package vm

// ---------------------------------------------------------------------------
// Locked strategy
// ---------------------------------------------------------------------------

// lockedStrategy takes the object's intrinsic lock for every write and
// creates or grows the table under it. Reads stay lock-free. The stamp is
// still bumped around structural changes so observers see the same
// even/odd protocol as under the stamped strategy.
type lockedStrategy struct{}

func (lockedStrategy) Kind() StrategyKind { return StrategyLocked }

func (s lockedStrategy) Set(obj *Object, index int, v Value) {
	obj.mu.Lock()
	s.setHeld(obj, index, v)
	obj.mu.Unlock()
}

func (lockedStrategy) setHeld(obj *Object, index int, v Value) {
	t := obj.table.Load()
	if t == nil || index >= len(t.slots) {
		stamp := obj.stamp.Load()
		obj.stamp.Store(stamp + 1)
		t = grownTable(t, tableSizeFor(obj), index)
		t.slots[index].Store(uint64(v))
		obj.table.Store(t)
		obj.stamp.Store(stamp + 2)
		return
	}
	t.slots[index].Store(uint64(v))
}

func (lockedStrategy) replace(obj *Object, build func(old *slotTable) *slotTable) {
	obj.mu.Lock()
	defer obj.mu.Unlock()
	stamp := obj.stamp.Load()
	obj.stamp.Store(stamp + 1)
	obj.table.Store(build(obj.table.Load()))
	obj.stamp.Store(stamp + 2)
}
