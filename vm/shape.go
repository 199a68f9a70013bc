package vm

import (
	"fmt"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/text/unicode/norm"
)

// ---------------------------------------------------------------------------
// Shape: per-class registry of variable names
// ---------------------------------------------------------------------------

// Shape maps the variable names known to a class onto accessors. Every
// object of the class shares it.
//
// The names list is append-only: once a name is bound to index i that
// binding holds for the lifetime of the shape. Both the names list and the
// accessor map are immutable snapshots replaced wholesale on growth, so
// lookups never lock. Growth is serialized by mu.
type Shape struct {
	vm         *VM
	class      *Class
	generation int

	mu        deadlock.Mutex
	names     atomic.Pointer[[]string]
	accessors atomic.Pointer[map[string]Accessor]

	fieldCount int
	userSlots  atomic.Int32

	extras [numExtras]atomic.Pointer[SlotAccessor]
}

func newShape(vm *VM, class *Class, generation int) *Shape {
	s := &Shape{vm: vm, class: class, generation: generation}
	names := []string{}
	accessors := map[string]Accessor{}
	s.names.Store(&names)
	s.accessors.Store(&accessors)
	return s
}

// newReifiedShape builds a shape whose first indices are bound to native
// fields. The fields are validated up front so a bad layout is reported
// once, when the class is reified.
func newReifiedShape(vm *VM, class *Class, generation int, fields []FieldSpec) (*Shape, error) {
	s := newShape(vm, class, generation)
	for _, spec := range fields {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("vm: reify %s: %w", class.Name, err)
		}
		name := norm.NFC.String(spec.Name)
		if _, dup := s.Lookup(name); dup {
			return nil, fmt.Errorf("vm: reify %s: field %q: %w", class.Name, name, ErrDuplicateField)
		}
		spec := spec
		s.ResolveOrAllocate(name, func(shape *Shape, name string, index int) Accessor {
			return newFieldAccessor(shape, name, index, spec)
		})
	}
	s.fieldCount = len(fields)
	return s, nil
}

// Class returns the class this shape belongs to.
func (s *Shape) Class() *Class { return s.class }

// Generation is 1 for a class's first shape and increases with every
// redefinition.
func (s *Shape) Generation() int { return s.generation }

// FieldCount returns the number of field-backed variables.
func (s *Shape) FieldCount() int { return s.fieldCount }

// Names returns a snapshot of the known variable names in index order,
// including reserved extras.
func (s *Shape) Names() []string {
	return *s.names.Load()
}

// Lookup returns the accessor bound to name without synchronization.
// Names are matched in NFC form, as they are stored.
func (s *Shape) Lookup(name string) (Accessor, bool) {
	if a, ok := s.lookup(name); ok {
		return a, true
	}
	if n := norm.NFC.String(name); n != name {
		return s.lookup(n)
	}
	return nil, false
}

func (s *Shape) lookup(name string) (Accessor, bool) {
	a, ok := (*s.accessors.Load())[name]
	return a, ok
}

// ResolveOrAllocate returns the accessor for name, allocating the next
// index and building it with build if the name is new. Concurrent callers
// asking for the same name converge on one accessor; no index is ever
// handed out twice.
func (s *Shape) ResolveOrAllocate(name string, build AccessorBuilder) Accessor {
	if a, ok := s.lookup(name); ok {
		return a
	}
	if n := norm.NFC.String(name); n != name {
		name = n
		if a, ok := s.lookup(name); ok {
			return a
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.lookup(name); ok {
		return a
	}

	names := *s.names.Load()
	index := len(names)
	a := build(s, name, index)

	newNames := make([]string, index+1)
	copy(newNames, names)
	newNames[index] = name

	old := *s.accessors.Load()
	newAccessors := make(map[string]Accessor, len(old)+1)
	for k, v := range old {
		newAccessors[k] = v
	}
	newAccessors[name] = a

	// Publish the map first so any index visible in names has an accessor.
	s.accessors.Store(&newAccessors)
	s.names.Store(&newNames)

	if _, ok := a.(*SlotAccessor); ok && !isExtraName(name) {
		s.userSlots.Add(1)
	}
	log.Debugf("shape %s/%d: %q -> %d", s.className(), s.generation, name, index)
	return a
}

// ForWrite returns the accessor for name, allocating a table slot if the
// name is new to the shape.
func (s *Shape) ForWrite(name string) Accessor {
	return s.ResolveOrAllocate(name, newSlotAccessor)
}

// Accessors returns every accessor in index order, including extras.
func (s *Shape) Accessors() []Accessor {
	names := s.Names()
	accessors := *s.accessors.Load()
	out := make([]Accessor, 0, len(names))
	for _, n := range names {
		out = append(out, accessors[n])
	}
	return out
}

// UserAccessors returns the field-backed and table-slot accessors of
// user-visible variables in index order.
func (s *Shape) UserAccessors() []Accessor {
	all := s.Accessors()
	out := all[:0]
	for _, a := range all {
		if !isExtraName(a.Name()) {
			out = append(out, a)
		}
	}
	return out
}

// TotalSlotCount returns the number of user table-slot variables. Extras
// and field-backed variables are not counted.
func (s *Shape) TotalSlotCount() int {
	return int(s.userSlots.Load())
}

// TotalSlotCountWithExtras returns the size of the index space: fields,
// user slots and allocated extras. New tables are sized to it.
func (s *Shape) TotalSlotCountWithExtras() int {
	return len(*s.names.Load())
}

func (s *Shape) className() string {
	if s.class == nil {
		return "?"
	}
	return s.class.Name
}
