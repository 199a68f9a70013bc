package vm

import (
	"fmt"
	"reflect"
	"sync"
)

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class is a guest-language class identity. It owns the shape new
// instances are created with. Reifying or redefining a class installs a
// fresh shape; objects created earlier keep the shape they were made with.
type Class struct {
	Name string
	vm   *VM

	mu        sync.RWMutex
	shape     *Shape
	newNative func() any
	goType    reflect.Type
}

func newClass(vm *VM, name string) *Class {
	c := &Class{Name: name, vm: vm}
	c.shape = newShape(vm, c, 1)
	return c
}

// Shape returns the class's current shape.
func (c *Class) Shape() *Shape {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shape
}

// Reified reports whether the class has native fields.
func (c *Class) Reified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.newNative != nil
}

// NewInstance creates an object of this class. Reified classes get a fresh
// native instance.
func (c *Class) NewInstance() *Object {
	c.mu.RLock()
	shape, mk := c.shape, c.newNative
	c.mu.RUnlock()

	obj := &Object{shape: shape}
	if mk != nil {
		obj.native = mk()
	}
	return obj
}

// NewInstanceWithNative creates an object backed by an existing native
// instance, or by a *HostProxy wrapping one.
func (c *Class) NewInstanceWithNative(native any) *Object {
	return &Object{shape: c.Shape(), native: native}
}

// Reify binds the given native fields to variables. The class gets a new
// shape whose first indices are the fields; newNative creates the native
// instance for each new object. A field whose type does not fit its policy
// fails the whole call and leaves the class unchanged.
func (c *Class) Reify(newNative func() any, fields []FieldSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	generation := c.shape.generation + 1
	shape, err := newReifiedShape(c.vm, c, generation, fields)
	if err != nil {
		log.Warningf("%v", err)
		return err
	}
	c.shape = shape
	c.newNative = newNative
	log.Infof("class %s: reified with %d fields (generation %d)", c.Name, len(fields), generation)
	return nil
}

// ReifyStruct reifies the class from the tagged fields of the struct that
// goType points to, and registers goType as this class's host type.
func (c *Class) ReifyStruct(goType reflect.Type) error {
	fields, err := StructFields(goType)
	if err != nil {
		log.Warningf("%v", err)
		return err
	}
	elem := goType.Elem()
	newNative := func() any {
		native := reflect.New(elem).Interface()
		// The zero Value is float 0; unwritten Direct fields read as nil.
		for _, f := range fields {
			if f.Policy == Direct {
				f.Set(native, Nil)
			}
		}
		return native
	}
	if err := c.Reify(newNative, fields); err != nil {
		return err
	}
	c.mu.Lock()
	c.goType = goType
	c.mu.Unlock()
	c.vm.hostTypes.Register(goType, c, c.Name)
	return nil
}

// Redefine discards the class's variable layout: new instances get an
// empty, unreified shape.
func (c *Class) Redefine() *Shape {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shape = newShape(c.vm, c, c.shape.generation+1)
	c.newNative = nil
	c.goType = nil
	log.Infof("class %s: redefined (generation %d)", c.Name, c.shape.generation)
	return c.shape
}

func (c *Class) String() string {
	return fmt.Sprintf("%s/%d", c.Name, c.Shape().generation)
}
