package vm

import (
	"math/big"
	"sync"
	"testing"
)

func TestIdentityNumberStable(t *testing.T) {
	vm := NewVM()
	obj := vm.DefineClass("Thing").NewInstance()

	id := vm.IdentityNumber(obj)
	if !id.IsSmallInt() || id.SmallInt() != 1 {
		t.Fatalf("first identity = %v, want 1", id)
	}
	for i := 0; i < 3; i++ {
		if got := vm.IdentityNumber(obj); got != id {
			t.Fatalf("identity changed from %v to %v", id, got)
		}
	}
	if vm.HasUserVariables(obj) {
		t.Error("identity number counted as a user variable")
	}
	if !vm.HasVariables(obj) {
		t.Error("identity number not counted by HasVariables")
	}
}

func TestIdentityNumbersUniqueUnderConcurrency(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Thing")

			const objects = 64
			const goroutines = 8
			objs := make([]*Object, objects)
			for i := range objs {
				objs[i] = class.NewInstance()
			}

			seen := make([][]Value, goroutines)
			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					ids := make([]Value, objects)
					for i := range objs {
						// Interleave with ordinary writes that grow the table.
						if i%4 == g%4 {
							vm.SetVariable(objs[i], "@tag", FromSmallInt(int64(g)))
						}
						ids[i] = vm.IdentityNumber(objs[i])
					}
					seen[g] = ids
				}(g)
			}
			wg.Wait()

			unique := make(map[Value]int)
			for i := 0; i < objects; i++ {
				id := seen[0][i]
				for g := 1; g < goroutines; g++ {
					if seen[g][i] != id {
						t.Fatalf("object %d: goroutines saw identities %v and %v", i, id, seen[g][i])
					}
				}
				if prev, dup := unique[id]; dup {
					t.Fatalf("objects %d and %d share identity %v", prev, i, id)
				}
				unique[id] = i
			}
		})
	}
}

func TestIdentityNumberBoxedWhenWide(t *testing.T) {
	vm := NewVM(WithIdentitySeed(uint64(MaxSmallInt)))
	obj := vm.DefineClass("Thing").NewInstance()

	id := vm.IdentityNumber(obj)
	if id.IsSmallInt() {
		t.Fatalf("identity %v should not fit a SmallInt", id)
	}
	n, ok := vm.Heap().Integer(id)
	if !ok {
		t.Fatalf("identity %v is not a boxed integer", id)
	}
	want := new(big.Int).SetUint64(uint64(MaxSmallInt) + 1)
	if n.Cmp(want) != 0 {
		t.Errorf("identity = %s, want %s", n, want)
	}
	if got := vm.IdentityNumber(obj); got != id {
		t.Error("boxed identity not stable")
	}
}

func TestForeignHandle(t *testing.T) {
	vm := NewVM()
	class := vm.DefineClass("Wrapped")
	obj := class.NewInstance()

	if h := vm.ForeignHandle(obj); h != nil {
		t.Errorf("ForeignHandle() = %v, want nil", h)
	}
	if class.Shape().HasExtra(ExtraForeignHandle) {
		t.Error("reading the handle allocated the extra")
	}

	type handle struct{ fd int }
	h := &handle{fd: 3}
	vm.SetForeignHandle(obj, h)
	if got := vm.ForeignHandle(obj); got != h {
		t.Errorf("ForeignHandle() = %v, want %v", got, h)
	}
	if vm.Variables(obj) != nil {
		t.Error("foreign handle leaked into enumeration")
	}
}

func TestGroupTag(t *testing.T) {
	vm := NewVM()
	obj := vm.DefineClass("Member").NewInstance()

	if got := vm.GroupTag(obj); got != Unset {
		t.Errorf("GroupTag() = %v, want Unset", got)
	}
	vm.SetGroupTag(obj, FromSmallInt(12))
	if got := vm.GroupTag(obj); got != FromSmallInt(12) {
		t.Errorf("GroupTag() = %v, want 12", got)
	}
	if vm.HasUserVariables(obj) {
		t.Error("group tag counted as a user variable")
	}
}
