// Package wire encodes object snapshots for exchange between VMs and for
// storage. A snapshot is the ordered name/value enumeration of an object,
// with values reduced to portable datums. The primary encoding is
// canonical CBOR; a protobuf Struct form is provided for collaborators
// that already speak protobuf.
package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	// ErrCycle is returned when an object graph refers back to an object
	// that is still being captured.
	ErrCycle = errors.New("wire: object graph contains a cycle")
	// ErrUnsupportedValue is returned for values that have no portable
	// form, such as host proxies and foreign handles.
	ErrUnsupportedValue = errors.New("wire: unsupported value")
)

// Kind identifies the type of a Datum.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindBigInt
	KindFloat
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Datum is one portable value. Exactly the field selected by Kind is
// meaningful; big integers are carried as decimal text in Str.
type Datum struct {
	Kind   Kind      `cbor:"1,keyasint"`
	Bool   bool      `cbor:"2,keyasint,omitempty"`
	Int    int64     `cbor:"3,keyasint,omitempty"`
	Float  float64   `cbor:"4,keyasint,omitempty"`
	Str    string    `cbor:"5,keyasint,omitempty"`
	Object *Snapshot `cbor:"6,keyasint,omitempty"`
}

// Var is one name/value pair of a snapshot.
type Var struct {
	Name  string `cbor:"1,keyasint"`
	Value Datum  `cbor:"2,keyasint"`
}

// Snapshot is a portable copy of an object's variables in index order.
// Generation records the shape generation the object was captured from.
type Snapshot struct {
	Class      string `cbor:"1,keyasint"`
	Generation int    `cbor:"2,keyasint"`
	Vars       []Var  `cbor:"3,keyasint,omitempty"`
}

// Lookup returns the datum stored under name.
func (s *Snapshot) Lookup(name string) (Datum, bool) {
	for _, v := range s.Vars {
		if v.Name == name {
			return v.Value, true
		}
	}
	return Datum{}, false
}

// cborEncMode uses canonical mode so equal snapshots encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a Snapshot to CBOR bytes.
func Marshal(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// Unmarshal deserializes a Snapshot from CBOR bytes.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("wire: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
