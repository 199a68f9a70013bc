package vm

import (
	"fmt"
	"io"
	"strings"
)

// ShapeInfo is a plain snapshot of a shape for reporting.
type ShapeInfo struct {
	Class      string     `json:"class" yaml:"class"`
	Generation int        `json:"generation" yaml:"generation"`
	Fields     int        `json:"fields" yaml:"fields"`
	Slots      int        `json:"slots" yaml:"slots"`
	IndexSpace int        `json:"index_space" yaml:"index_space"`
	Entries    []SlotInfo `json:"entries" yaml:"entries"`
}

// SlotInfo describes one index of a shape.
type SlotInfo struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Kind  string `json:"kind" yaml:"kind"`
}

// Info returns a snapshot of the shape's layout.
func (s *Shape) Info() ShapeInfo {
	info := ShapeInfo{
		Class:      s.className(),
		Generation: s.generation,
		Fields:     s.fieldCount,
		Slots:      s.TotalSlotCount(),
		IndexSpace: s.TotalSlotCountWithExtras(),
	}
	for _, a := range s.Accessors() {
		e := SlotInfo{Index: a.Index(), Name: a.Name(), Kind: "slot"}
		switch acc := a.(type) {
		case *FieldAccessor:
			e.Kind = fmt.Sprintf("field(%s %s)", acc.spec.Policy, acc.spec.Type)
		case *SlotAccessor:
			if isExtraName(acc.name) {
				e.Name = strings.TrimPrefix(acc.name, extraPrefix)
				e.Kind = "extra"
			}
		}
		info.Entries = append(info.Entries, e)
	}
	return info
}

// Describe writes a human-readable layout of the shape.
func Describe(w io.Writer, s *Shape) error {
	info := s.Info()
	if _, err := fmt.Fprintf(w, "shape %s generation %d\n", info.Class, info.Generation); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "  fields=%d slots=%d index-space=%d\n", info.Fields, info.Slots, info.IndexSpace); err != nil {
		return err
	}
	for _, e := range info.Entries {
		if _, err := fmt.Fprintf(w, "  [%d] %-10s %s\n", e.Index, e.Name, e.Kind); err != nil {
			return err
		}
	}
	return nil
}
