package wire

import (
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Integers do not survive as protobuf numbers (they are doubles), so they
// travel as {"int": "<decimal>"}; embedded objects as {"object": {...}}.
const (
	intKey    = "int"
	objectKey = "object"
)

// ToStruct converts a snapshot to a protobuf Struct of the form
// {"class": ..., "generation": ..., "vars": [{"name": ..., "value": ...}]}.
func ToStruct(s *Snapshot) (*structpb.Struct, error) {
	vars := make([]*structpb.Value, 0, len(s.Vars))
	for _, v := range s.Vars {
		val, err := datumToProto(v.Value)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Class, v.Name, err)
		}
		vars = append(vars, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"name":  structpb.NewStringValue(v.Name),
			"value": val,
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"class":      structpb.NewStringValue(s.Class),
		"generation": structpb.NewNumberValue(float64(s.Generation)),
		"vars":       structpb.NewListValue(&structpb.ListValue{Values: vars}),
	}}, nil
}

func datumToProto(d Datum) (*structpb.Value, error) {
	switch d.Kind {
	case KindNil:
		return structpb.NewNullValue(), nil
	case KindBool:
		return structpb.NewBoolValue(d.Bool), nil
	case KindInt:
		return tagged(intKey, structpb.NewStringValue(strconv.FormatInt(d.Int, 10))), nil
	case KindBigInt:
		return tagged(intKey, structpb.NewStringValue(d.Str)), nil
	case KindFloat:
		if math.IsNaN(d.Float) || math.IsInf(d.Float, 0) {
			return nil, fmt.Errorf("%w: %v has no protobuf form", ErrUnsupportedValue, d.Float)
		}
		return structpb.NewNumberValue(d.Float), nil
	case KindString:
		return structpb.NewStringValue(d.Str), nil
	case KindObject:
		if d.Object == nil {
			return nil, fmt.Errorf("%w: object datum without snapshot", ErrUnsupportedValue)
		}
		st, err := ToStruct(d.Object)
		if err != nil {
			return nil, err
		}
		return tagged(objectKey, structpb.NewStructValue(st)), nil
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, d.Kind)
}

func tagged(key string, v *structpb.Value) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{key: v}})
}

// FromStruct converts a Struct produced by ToStruct back to a snapshot.
func FromStruct(st *structpb.Struct) (*Snapshot, error) {
	f := st.GetFields()
	s := &Snapshot{
		Class:      f["class"].GetStringValue(),
		Generation: int(f["generation"].GetNumberValue()),
	}
	if s.Class == "" {
		return nil, fmt.Errorf("wire: struct snapshot without class")
	}
	for i, item := range f["vars"].GetListValue().GetValues() {
		vf := item.GetStructValue().GetFields()
		name := vf["name"].GetStringValue()
		if name == "" {
			return nil, fmt.Errorf("wire: %s: variable %d has no name", s.Class, i)
		}
		d, err := datumFromProto(vf["value"])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", s.Class, name, err)
		}
		s.Vars = append(s.Vars, Var{Name: name, Value: d})
	}
	return s, nil
}

func datumFromProto(v *structpb.Value) (Datum, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return Datum{Kind: KindNil}, nil
	case *structpb.Value_BoolValue:
		return Datum{Kind: KindBool, Bool: k.BoolValue}, nil
	case *structpb.Value_NumberValue:
		return Datum{Kind: KindFloat, Float: k.NumberValue}, nil
	case *structpb.Value_StringValue:
		return Datum{Kind: KindString, Str: k.StringValue}, nil
	case *structpb.Value_StructValue:
		f := k.StructValue.GetFields()
		if iv, ok := f[intKey]; ok {
			text := iv.GetStringValue()
			if n, err := strconv.ParseInt(text, 10, 64); err == nil {
				return Datum{Kind: KindInt, Int: n}, nil
			}
			return Datum{Kind: KindBigInt, Str: text}, nil
		}
		if ov, ok := f[objectKey]; ok {
			snap, err := FromStruct(ov.GetStructValue())
			if err != nil {
				return Datum{}, err
			}
			return Datum{Kind: KindObject, Object: snap}, nil
		}
	}
	return Datum{}, fmt.Errorf("%w: unrecognized protobuf value", ErrUnsupportedValue)
}

// MarshalProto serializes a snapshot as a binary protobuf Struct.
func MarshalProto(s *Snapshot) ([]byte, error) {
	st, err := ToStruct(s)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// UnmarshalProto deserializes a snapshot from a binary protobuf Struct.
func UnmarshalProto(data []byte) (*Snapshot, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("wire: unmarshal proto snapshot: %w", err)
	}
	return FromStruct(&st)
}
