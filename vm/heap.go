package vm

import (
	"math/big"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Heap: registry behind reference Values
// ---------------------------------------------------------------------------

// Heap keeps the Go values that reference Values point at. A Value is a
// plain word, so the Go garbage collector cannot trace through it; the Heap
// holds the strong reference instead. Entries are never swept here.
//
// Objects and host proxies are registered by identity: registering the same
// pointer twice yields the same Value, so reference equality of Values
// matches identity of the underlying objects.
type Heap struct {
	mu      sync.RWMutex
	entries map[uint64]any
	byPtr   map[any]uint64
	proxies map[any]*HostProxy
	nextID  atomic.Uint64
}

// NewHeap creates an empty heap. IDs start at 1 (0 could be confused with
// an uninitialized reference).
func NewHeap() *Heap {
	h := &Heap{
		entries: make(map[uint64]any),
		byPtr:   make(map[any]uint64),
		proxies: make(map[any]*HostProxy),
	}
	h.nextID.Store(0)
	return h
}

func (h *Heap) register(x any) Value {
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.entries[id] = x
	h.mu.Unlock()
	return fromRefID(id)
}

// registerIdentity returns the existing reference for x or registers it.
func (h *Heap) registerIdentity(x any) Value {
	h.mu.RLock()
	id, ok := h.byPtr[x]
	h.mu.RUnlock()
	if ok {
		return fromRefID(id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.byPtr[x]; ok {
		return fromRefID(id)
	}
	id = h.nextID.Add(1)
	h.entries[id] = x
	h.byPtr[x] = id
	return fromRefID(id)
}

// Deref returns the Go value behind a reference Value.
func (h *Heap) Deref(v Value) (any, bool) {
	if !v.IsRef() {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	x, ok := h.entries[v.RefID()]
	return x, ok
}

// Count returns the number of registered entries.
func (h *Heap) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// ---------------------------------------------------------------------------
// Typed constructors and accessors
// ---------------------------------------------------------------------------

// NewString registers a string and returns its reference.
func (h *Heap) NewString(s string) Value {
	return h.register(s)
}

// String returns the string behind v.
func (h *Heap) String(v Value) (string, bool) {
	x, ok := h.Deref(v)
	if !ok {
		return "", false
	}
	s, ok := x.(string)
	return s, ok
}

// ObjectValue returns the reference Value for obj.
func (h *Heap) ObjectValue(obj *Object) Value {
	if obj == nil {
		return Nil
	}
	return h.registerIdentity(obj)
}

// Object returns the object behind v.
func (h *Heap) Object(v Value) (*Object, bool) {
	x, ok := h.Deref(v)
	if !ok {
		return nil, false
	}
	obj, ok := x.(*Object)
	return obj, ok
}

// ProxyValue returns the reference Value for a host proxy.
func (h *Heap) ProxyValue(p *HostProxy) Value {
	if p == nil {
		return Nil
	}
	return h.registerIdentity(p)
}

// hostPointerValue returns the proxy reference for a pointer-typed host
// value, reusing the proxy already registered for the same pointer.
func (h *Heap) hostPointerValue(typeID uint16, ptr any) Value {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.proxies[ptr]; ok {
		return fromRefID(h.byPtr[p])
	}
	p := &HostProxy{TypeID: typeID, Value: ptr}
	id := h.nextID.Add(1)
	h.entries[id] = p
	h.byPtr[p] = id
	h.proxies[ptr] = p
	return fromRefID(id)
}

// Proxy returns the host proxy behind v.
func (h *Heap) Proxy(v Value) (*HostProxy, bool) {
	x, ok := h.Deref(v)
	if !ok {
		return nil, false
	}
	p, ok := x.(*HostProxy)
	return p, ok
}

// BigInt boxes an integer that does not fit in a SmallInt.
func (h *Heap) BigInt(n *big.Int) Value {
	return h.register(new(big.Int).Set(n))
}

// Box stores an arbitrary Go value, such as a foreign handle.
func (h *Heap) Box(x any) Value {
	if x == nil {
		return Nil
	}
	return h.register(x)
}

// Integer returns v as a big.Int if v is a SmallInt or a boxed integer.
func (h *Heap) Integer(v Value) (*big.Int, bool) {
	if v.IsSmallInt() {
		return big.NewInt(v.SmallInt()), true
	}
	x, ok := h.Deref(v)
	if !ok {
		return nil, false
	}
	n, ok := x.(*big.Int)
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(n), true
}
