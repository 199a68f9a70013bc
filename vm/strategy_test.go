package vm

import (
	"fmt"
	"sync"
	"testing"
)

var allStrategies = []Strategy{Stamped(), Locked(), Relaxed()}

// ---------------------------------------------------------------------------
// Basic behaviour, per strategy
// ---------------------------------------------------------------------------

func TestStrategySetGet(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Point")
			obj := class.NewInstance()

			if obj.TableLen() != 0 {
				t.Errorf("fresh object TableLen() = %d, want 0", obj.TableLen())
			}
			x := class.Shape().ForWrite("@x")
			if got := x.Get(obj); got != Unset {
				t.Errorf("unwritten @x = %v, want Unset", got)
			}

			x.Set(obj, FromSmallInt(1))
			if got := x.Get(obj); got != FromSmallInt(1) {
				t.Errorf("@x = %v, want 1", got)
			}
			x.Set(obj, Nil)
			if got := x.Get(obj); got != Nil {
				t.Errorf("@x = %v, want nil", got)
			}
			if obj.Stamp()%2 != 0 {
				t.Errorf("stamp %d is odd after writes returned", obj.Stamp())
			}
		})
	}
}

func TestStrategyTableSizedToShape(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Point")
			s := class.Shape()
			for i := 0; i < 5; i++ {
				s.ForWrite(fmt.Sprintf("@v%d", i))
			}
			obj := class.NewInstance()

			a, _ := s.Lookup("@v0")
			a.Set(obj, True)
			if obj.TableLen() != 5 {
				t.Errorf("TableLen() = %d, want 5 (whole index space)", obj.TableLen())
			}
		})
	}
}

func TestStrategyValueSurvivesGrowth(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Point")
			s := class.Shape()
			obj := class.NewInstance()

			x := s.ForWrite("@x")
			x.Set(obj, FromSmallInt(99))
			before := obj.TableLen()

			// Another goroutine grows the shape, then this object writes
			// past the end of its table.
			var late Accessor
			done := make(chan struct{})
			go func() {
				late = s.ForWrite("@late")
				close(done)
			}()
			<-done

			if got := x.Get(obj); got != FromSmallInt(99) {
				t.Fatalf("@x after shape growth = %v, want 99", got)
			}
			if got := late.Get(obj); got != Unset {
				t.Errorf("@late before write = %v, want Unset", got)
			}

			late.Set(obj, FromSmallInt(7))
			if obj.TableLen() <= before {
				t.Errorf("table did not grow: %d -> %d", before, obj.TableLen())
			}
			if got := x.Get(obj); got != FromSmallInt(99) {
				t.Errorf("@x after table growth = %v, want 99", got)
			}
			if got := late.Get(obj); got != FromSmallInt(7) {
				t.Errorf("@late = %v, want 7", got)
			}
		})
	}
}

func TestStrategyTableNeverShrinks(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Grow")
			s := class.Shape()
			obj := class.NewInstance()

			prev := 0
			for i := 0; i < 40; i++ {
				s.ForWrite(fmt.Sprintf("@v%d", i)).Set(obj, FromSmallInt(int64(i)))
				if obj.TableLen() < prev {
					t.Fatalf("table shrank from %d to %d", prev, obj.TableLen())
				}
				prev = obj.TableLen()
			}
			for i := 0; i < 40; i++ {
				a, _ := s.Lookup(fmt.Sprintf("@v%d", i))
				if got := a.Get(obj); got != FromSmallInt(int64(i)) {
					t.Errorf("@v%d = %v, want %d", i, got, i)
				}
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	cases := map[string]StrategyKind{
		"":        StrategyStamped,
		"stamped": StrategyStamped,
		"Locked":  StrategyLocked,
		"mutex":   StrategyLocked,
		"relaxed": StrategyRelaxed,
	}
	for in, want := range cases {
		st, err := ParseStrategy(in)
		if err != nil {
			t.Errorf("ParseStrategy(%q): %v", in, err)
			continue
		}
		if st.Kind() != want {
			t.Errorf("ParseStrategy(%q) = %s, want %s", in, st.Kind(), want)
		}
	}
	if _, err := ParseStrategy("volatile"); err == nil {
		t.Error("ParseStrategy(volatile) should fail")
	}
}

// ---------------------------------------------------------------------------
// Concurrent write safety
// ---------------------------------------------------------------------------

// Writers each own a distinct set of names on one object while growers keep
// allocating new names on the shape and writing them to the same object,
// forcing table replacements under the writers' feet.
func TestConcurrentWritesSurviveGrowth(t *testing.T) {
	for _, st := range []Strategy{Stamped(), Locked()} {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Hot")
			s := class.Shape()
			obj := class.NewInstance()

			const writers = 8
			const perWriter = 16
			const rounds = 50
			const growers = 4
			const growNames = 64

			var wg sync.WaitGroup
			start := make(chan struct{})
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					<-start
					for r := 0; r < rounds; r++ {
						for i := 0; i < perWriter; i++ {
							a := s.ForWrite(fmt.Sprintf("@w%d_%d", w, i))
							a.Set(obj, FromSmallInt(int64(r*1000+w*100+i)))
						}
					}
				}(w)
			}
			for g := 0; g < growers; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					<-start
					for i := 0; i < growNames; i++ {
						a := s.ForWrite(fmt.Sprintf("@g%d_%d", g, i))
						a.Set(obj, FromSmallInt(int64(i)))
					}
				}(g)
			}
			close(start)
			wg.Wait()

			maxIndex := 0
			for w := 0; w < writers; w++ {
				for i := 0; i < perWriter; i++ {
					a, ok := s.Lookup(fmt.Sprintf("@w%d_%d", w, i))
					if !ok {
						t.Fatalf("@w%d_%d missing from shape", w, i)
					}
					want := FromSmallInt(int64((rounds-1)*1000 + w*100 + i))
					if got := a.Get(obj); got != want {
						t.Errorf("@w%d_%d = %v, want last write %v", w, i, got, want)
					}
					if a.Index() > maxIndex {
						maxIndex = a.Index()
					}
				}
			}
			for g := 0; g < growers; g++ {
				for i := 0; i < growNames; i++ {
					a, _ := s.Lookup(fmt.Sprintf("@g%d_%d", g, i))
					if got := a.Get(obj); got != FromSmallInt(int64(i)) {
						t.Errorf("@g%d_%d = %v, want %d", g, i, got, i)
					}
					if a.Index() > maxIndex {
						maxIndex = a.Index()
					}
				}
			}
			if obj.TableLen() < maxIndex+1 {
				t.Errorf("TableLen() = %d, want >= %d", obj.TableLen(), maxIndex+1)
			}
			if obj.Stamp()%2 != 0 {
				t.Errorf("stamp %d left odd", obj.Stamp())
			}
		})
	}
}

// Many goroutines race to create the first table of many fresh objects.
func TestConcurrentFirstWrites(t *testing.T) {
	for _, st := range allStrategies {
		t.Run(st.Kind().String(), func(t *testing.T) {
			vm := NewVM(WithStrategy(st))
			class := vm.DefineClass("Fresh")
			s := class.Shape()

			const objects = 32
			const goroutines = 8
			objs := make([]*Object, objects)
			for i := range objs {
				objs[i] = class.NewInstance()
			}

			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					a := s.ForWrite(fmt.Sprintf("@v%d", g))
					for _, obj := range objs {
						a.Set(obj, FromSmallInt(int64(g)))
					}
				}(g)
			}
			wg.Wait()

			if st.Kind() == StrategyRelaxed {
				// Racing writers may lose a write to a concurrent grow.
				return
			}
			for _, obj := range objs {
				for g := 0; g < goroutines; g++ {
					a, _ := s.Lookup(fmt.Sprintf("@v%d", g))
					if got := a.Get(obj); got != FromSmallInt(int64(g)) {
						t.Errorf("@v%d = %v, want %d", g, got, g)
					}
				}
			}
		})
	}
}

// The relaxed strategy is exact for a single writer per object.
func TestRelaxedSingleWriterPerObject(t *testing.T) {
	vm := NewVM(WithStrategy(Relaxed()))
	class := vm.DefineClass("Owned")
	s := class.Shape()

	const goroutines = 8
	objs := make([]*Object, goroutines)
	for i := range objs {
		objs[i] = class.NewInstance()
	}

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				s.ForWrite(fmt.Sprintf("@v%d", i)).Set(objs[g], FromSmallInt(int64(g*100+i)))
			}
		}(g)
	}
	wg.Wait()

	for g, obj := range objs {
		for i := 0; i < 32; i++ {
			if got := vm.GetVariable(obj, fmt.Sprintf("@v%d", i)); got != FromSmallInt(int64(g*100+i)) {
				t.Errorf("object %d @v%d = %v, want %d", g, i, got, g*100+i)
			}
		}
	}
}
