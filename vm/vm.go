package vm

import (
	"sort"
	"sync"
	"sync/atomic"
)

// VM holds the state shared by every object: the concurrency strategy,
// the class table, the heap behind reference values, host type
// registrations and the identity-number counter.
type VM struct {
	strategy  Strategy
	heap      *Heap
	hostTypes *HostTypeRegistry

	classesMu sync.RWMutex
	classes   map[string]*Class

	nextIdentity atomic.Uint64
}

// Option configures a VM.
type Option func(*VM)

// WithStrategy selects the attribute-table concurrency strategy.
func WithStrategy(s Strategy) Option {
	return func(vm *VM) {
		if s != nil {
			vm.strategy = s
		}
	}
}

// WithIdentitySeed makes the next identity number seed+1.
func WithIdentitySeed(seed uint64) Option {
	return func(vm *VM) {
		vm.nextIdentity.Store(seed)
	}
}

// NewVM creates a VM. The stamped strategy is the default.
func NewVM(opts ...Option) *VM {
	vm := &VM{
		strategy:  Stamped(),
		heap:      NewHeap(),
		hostTypes: NewHostTypeRegistry(),
		classes:   make(map[string]*Class),
	}
	for _, opt := range opts {
		opt(vm)
	}
	log.Debugf("vm: created with %s strategy", vm.strategy.Kind())
	return vm
}

// Strategy returns the VM's concurrency strategy.
func (vm *VM) Strategy() Strategy { return vm.strategy }

// Heap returns the VM's heap.
func (vm *VM) Heap() *Heap { return vm.heap }

// HostTypes returns the VM's host type registry.
func (vm *VM) HostTypes() *HostTypeRegistry { return vm.hostTypes }

// NewString is shorthand for vm.Heap().NewString.
func (vm *VM) NewString(s string) Value { return vm.heap.NewString(s) }

// ObjectValue is shorthand for vm.Heap().ObjectValue.
func (vm *VM) ObjectValue(obj *Object) Value { return vm.heap.ObjectValue(obj) }

// ---------------------------------------------------------------------------
// Class table
// ---------------------------------------------------------------------------

// DefineClass returns the class with the given name, creating it if needed.
func (vm *VM) DefineClass(name string) *Class {
	vm.classesMu.RLock()
	c, ok := vm.classes[name]
	vm.classesMu.RUnlock()
	if ok {
		return c
	}

	vm.classesMu.Lock()
	defer vm.classesMu.Unlock()
	if c, ok := vm.classes[name]; ok {
		return c
	}
	c = newClass(vm, name)
	vm.classes[name] = c
	return c
}

// LookupClass returns the class with the given name, or nil.
func (vm *VM) LookupClass(name string) *Class {
	vm.classesMu.RLock()
	defer vm.classesMu.RUnlock()
	return vm.classes[name]
}

// ClassNames returns the names of all defined classes, sorted.
func (vm *VM) ClassNames() []string {
	vm.classesMu.RLock()
	names := make([]string, 0, len(vm.classes))
	for n := range vm.classes {
		names = append(names, n)
	}
	vm.classesMu.RUnlock()
	sort.Strings(names)
	return names
}
