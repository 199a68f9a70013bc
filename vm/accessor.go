package vm

// Accessor is a stable handle for reading and writing one named variable
// on every object of a shape. Accessors are created once by their shape and
// never change afterwards.
type Accessor interface {
	Name() string
	Index() int
	Shape() *Shape

	// Get returns the variable's value on obj, or Unset.
	Get(obj *Object) Value
	// Set writes the variable on obj.
	Set(obj *Object, v Value)

	// FieldBacked reports whether the variable lives in a native field.
	FieldBacked() bool
}

// AccessorBuilder constructs the accessor for a newly allocated index.
type AccessorBuilder func(shape *Shape, name string, index int) Accessor

// SlotAccessor binds a variable name to an index in the object's table.
type SlotAccessor struct {
	name     string
	shape    *Shape
	index    int
	strategy Strategy
}

func newSlotAccessor(shape *Shape, name string, index int) Accessor {
	return &SlotAccessor{
		name:     name,
		shape:    shape,
		index:    index,
		strategy: shape.vm.strategy,
	}
}

func (a *SlotAccessor) Name() string      { return a.name }
func (a *SlotAccessor) Index() int        { return a.index }
func (a *SlotAccessor) Shape() *Shape     { return a.shape }
func (a *SlotAccessor) FieldBacked() bool { return false }

// Get returns the slot value, or Unset when the object's table does not
// reach this index yet.
func (a *SlotAccessor) Get(obj *Object) Value {
	return obj.slot(a.index)
}

// Set writes the slot through the VM's strategy.
func (a *SlotAccessor) Set(obj *Object, v Value) {
	a.strategy.Set(obj, a.index, v)
}

// setHeld writes the slot while the caller holds obj.mu.
func (a *SlotAccessor) setHeld(obj *Object, v Value) {
	a.strategy.setHeld(obj, a.index, v)
}
