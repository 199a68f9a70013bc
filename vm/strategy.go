package vm

import (
	"fmt"
	"strings"
)

// StrategyKind names one of the attribute-table concurrency strategies.
type StrategyKind uint8

const (
	// StrategyStamped is the optimistic stamp-validated strategy (default).
	StrategyStamped StrategyKind = iota
	// StrategyLocked guards every write with the object's intrinsic lock.
	StrategyLocked
	// StrategyRelaxed shares the stamped structural path but skips stamp
	// re-validation on ordinary writes.
	StrategyRelaxed
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyStamped:
		return "stamped"
	case StrategyLocked:
		return "locked"
	case StrategyRelaxed:
		return "relaxed"
	default:
		return fmt.Sprintf("StrategyKind(%d)", uint8(k))
	}
}

// Strategy is the algorithm used to create, grow and update an object's
// attribute table. Reads never go through a strategy; they load the table
// pointer and the slot directly.
//
// All strategies share one invariant: a table only ever grows, at most one
// structural operation is in flight per object, and values at lower indices
// survive every grow.
type Strategy interface {
	Kind() StrategyKind

	// Set writes v at index on obj, creating or growing the table as needed.
	Set(obj *Object, index int, v Value)

	// setHeld is Set for callers that already hold obj.mu.
	setHeld(obj *Object, index int, v Value)

	// replace swaps in build(old) as one structural operation.
	replace(obj *Object, build func(old *slotTable) *slotTable)
}

// Stamped returns the optimistic stamped strategy.
func Stamped() Strategy { return stampedStrategy{} }

// Locked returns the mutex-guarded strategy.
func Locked() Strategy { return lockedStrategy{} }

// Relaxed returns the relaxed strategy. It is the weakest option: with a
// single writer per object a write is visible to that writer immediately
// and to other goroutines after any later synchronizing operation; with
// several writers, a write racing a grow of the same object can be lost.
func Relaxed() Strategy { return relaxedStrategy{} }

// StrategyFor returns the strategy of the given kind.
func StrategyFor(k StrategyKind) Strategy {
	switch k {
	case StrategyLocked:
		return Locked()
	case StrategyRelaxed:
		return Relaxed()
	default:
		return Stamped()
	}
}

// ParseStrategy maps a configuration name to a strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "stamped", "optimistic":
		return Stamped(), nil
	case "locked", "mutex":
		return Locked(), nil
	case "relaxed":
		return Relaxed(), nil
	default:
		return nil, fmt.Errorf("vm: unknown strategy %q", name)
	}
}

// tableSizeFor is the length a new table for obj must have to hold index.
func tableSizeFor(obj *Object) int {
	return obj.shape.TotalSlotCountWithExtras()
}
