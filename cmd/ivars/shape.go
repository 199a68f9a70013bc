package main

import (
	"fmt"
	"io"
	"reflect"

	"github.com/chazu/ivars/vm"
	"github.com/spf13/cobra"
)

// demoRecord is the native layout used by `shape --reify`.
type demoRecord struct {
	Name  string   `ivar:"@name"`
	Count int64    `ivar:"@count"`
	Score float64  `ivar:"@score"`
	Tag   vm.Value `ivar:"@tag"`
}

type shapeOptions struct {
	Class    string
	Reify    bool
	Identity bool
}

func newShapeCommand(opts *rootOptions) *cobra.Command {
	so := shapeOptions{}

	cmd := &cobra.Command{
		Use:   "shape [names...]",
		Short: "Allocate variables on a class and print its shape",
		Long: `Allocate the given variable names on a class, in order, and print the
resulting shape: field-backed variables, table slots and reserved extras
with their indices.`,
		Example: `  ivars shape @x @y @z
  ivars shape --reify @extra --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.newVM("")
			if err != nil {
				return err
			}
			shape, err := buildShape(v, so, args)
			if err != nil {
				return withExit(exitCommandError, err)
			}
			return opts.emit(cmd.OutOrStdout(), shape.Info(), func(w io.Writer) error {
				return vm.Describe(w, shape)
			})
		},
	}

	cmd.Flags().StringVar(&so.Class, "class", "Demo", "class name")
	cmd.Flags().BoolVar(&so.Reify, "reify", false, "reify the class onto a native struct first")
	cmd.Flags().BoolVar(&so.Identity, "identity", false, "request an identity number (allocates the identity extra)")

	return cmd
}

func buildShape(v *vm.VM, so shapeOptions, names []string) (*vm.Shape, error) {
	class := v.DefineClass(so.Class)
	if so.Reify {
		if err := class.ReifyStruct(reflect.TypeOf(&demoRecord{})); err != nil {
			return nil, err
		}
	}
	shape := class.Shape()
	obj := class.NewInstance()
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("variable %d: empty name", i)
		}
		a := shape.ForWrite(name)
		if !a.FieldBacked() {
			a.Set(obj, vm.FromSmallInt(int64(i)))
		}
	}
	if so.Identity {
		v.IdentityNumber(obj)
	}
	return shape, nil
}
