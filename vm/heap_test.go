package vm

import (
	"math"
	"math/big"
	"reflect"
	"testing"
)

func TestHeapObjectIdentity(t *testing.T) {
	vm := NewVM()
	obj := vm.DefineClass("Thing").NewInstance()

	v1 := vm.ObjectValue(obj)
	v2 := vm.ObjectValue(obj)
	if v1 != v2 {
		t.Errorf("same object registered as %v and %v", v1, v2)
	}
	back, ok := vm.Heap().Object(v1)
	if !ok || back != obj {
		t.Error("Object() did not return the registered object")
	}
	if vm.ObjectValue(nil) != Nil {
		t.Error("nil object should be Nil")
	}
}

func TestHeapStrings(t *testing.T) {
	h := NewHeap()
	v := h.NewString("hello")
	if s, ok := h.String(v); !ok || s != "hello" {
		t.Errorf("String() = %q, %v", s, ok)
	}
	if _, ok := h.String(FromSmallInt(1)); ok {
		t.Error("String() on a SmallInt should fail")
	}
	if h.Count() != 1 {
		t.Errorf("Count() = %d, want 1", h.Count())
	}
}

func TestHeapInteger(t *testing.T) {
	h := NewHeap()
	if n, ok := h.Integer(FromSmallInt(-3)); !ok || n.Int64() != -3 {
		t.Errorf("Integer(SmallInt) = %v, %v", n, ok)
	}
	wide := new(big.Int).Lsh(big.NewInt(1), 70)
	v := h.BigInt(wide)
	n, ok := h.Integer(v)
	if !ok || n.Cmp(wide) != 0 {
		t.Errorf("Integer(boxed) = %v, %v", n, ok)
	}
	if _, ok := h.Integer(h.NewString("1")); ok {
		t.Error("Integer() on a string should fail")
	}
}

// ---------------------------------------------------------------------------
// Go <-> Value conversion
// ---------------------------------------------------------------------------

type hostCounter struct{ n int }

func TestGoToValueScalars(t *testing.T) {
	vm := NewVM()

	if vm.GoToValue(nil) != Nil || vm.GoToValue(true) != True || vm.GoToValue(false) != False {
		t.Error("nil/bool conversion")
	}
	if vm.GoToValue(int32(7)) != FromSmallInt(7) || vm.GoToValue(uint8(7)) != FromSmallInt(7) {
		t.Error("small integers should be SmallInts")
	}
	if got := vm.GoToValue(2.5); got != FromFloat64(2.5) {
		t.Errorf("GoToValue(2.5) = %v", got)
	}

	wide := vm.GoToValue(int64(math.MaxInt64))
	if wide.IsSmallInt() {
		t.Fatal("MaxInt64 should be boxed")
	}
	if n, ok := vm.Heap().Integer(wide); !ok || n.Int64() != math.MaxInt64 {
		t.Errorf("boxed MaxInt64 = %v, %v", n, ok)
	}

	if got := vm.ValueToGo(vm.GoToValue("text")); got != "text" {
		t.Errorf("string round trip = %v", got)
	}
	if vm.ValueToGo(Unset) != nil || vm.ValueToGo(Nil) != nil {
		t.Error("Unset and Nil convert to nil")
	}
}

func TestHostTypeRegistration(t *testing.T) {
	vm := NewVM()
	goType := reflect.TypeOf(&hostCounter{})

	class := vm.RegisterHostType("Counter", goType)
	if again := vm.RegisterHostType("Other", goType); again != class {
		t.Error("re-registering a type should return its class")
	}
	info := vm.HostTypes().LookupByType(goType)
	if info == nil || info.Class != class || info.ClassName != "Counter" {
		t.Errorf("LookupByType() = %+v, want Counter", info)
	}

	c := &hostCounter{n: 3}
	v, err := vm.WrapHost(c)
	if err != nil {
		t.Fatalf("WrapHost: %v", err)
	}
	got, ok := vm.UnwrapHost(v)
	if !ok || got != c {
		t.Errorf("UnwrapHost() = %v, %v", got, ok)
	}

	// Converting the same pointer twice reuses one proxy.
	if vm.GoToValue(c) != vm.GoToValue(c) {
		t.Error("pointer conversion not identity-preserving")
	}

	if _, err := vm.WrapHost(struct{}{}); err == nil {
		t.Error("WrapHost of an unregistered type should fail")
	}
	if vm.GoToValue(struct{ x int }{}) != Nil {
		t.Error("unregistered struct should convert to Nil")
	}
}
