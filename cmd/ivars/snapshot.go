package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/ivars/lib/persist"
	"github.com/chazu/ivars/vm"
	"github.com/chazu/ivars/vm/wire"
	"github.com/spf13/cobra"
)

type snapshotOptions struct {
	DB string
}

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	so := &snapshotOptions{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, load and list object snapshots",
	}
	cmd.PersistentFlags().StringVar(&so.DB, "db", "", "snapshot database (default: [persist] path from config)")

	cmd.AddCommand(newSnapshotSaveCommand(opts, so))
	cmd.AddCommand(newSnapshotLoadCommand(opts, so))
	cmd.AddCommand(newSnapshotListCommand(opts, so))
	cmd.AddCommand(newSnapshotDeleteCommand(opts, so))
	return cmd
}

func (so *snapshotOptions) open(opts *rootOptions) (*persist.Store, error) {
	path := so.DB
	if path == "" {
		path = opts.manifest.PersistPath()
	}
	s, err := persist.Open(path)
	if err != nil {
		return nil, withExit(exitCommandError, err)
	}
	return s, nil
}

func newSnapshotSaveCommand(opts *rootOptions, so *snapshotOptions) *cobra.Command {
	var class string

	cmd := &cobra.Command{
		Use:   "save name=value...",
		Short: "Build an object from name=value pairs and store its snapshot",
		Long: `Build an object of --class from name=value pairs and store its snapshot.
Values are parsed as nil, true, false, integers, floats, or else strings.`,
		Example: `  ivars snapshot save --class Point @x=1 @y=2 @label=origin`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.newVM("")
			if err != nil {
				return err
			}
			obj := v.DefineClass(class).NewInstance()
			for _, arg := range args {
				name, text, ok := strings.Cut(arg, "=")
				if !ok || name == "" {
					return withExit(exitCommandError, fmt.Errorf("expected name=value, got %q", arg))
				}
				if err := v.SetVariable(obj, name, parseValue(v, text)); err != nil {
					return withExit(exitCommandError, err)
				}
			}

			s, err := so.open(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.SaveObject(cmd.Context(), v, obj)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), map[string]string{"id": id}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, id)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&class, "class", "Demo", "class of the object")
	return cmd
}

func newSnapshotLoadCommand(opts *rootOptions, so *snapshotOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <id>",
		Short: "Load a snapshot, restore it and print its variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := so.open(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.Load(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, persist.ErrNotFound) {
					return withExit(exitCommandError, err)
				}
				return err
			}

			// Restoring proves the snapshot binds onto a live shape.
			v, err := opts.newVM("")
			if err != nil {
				return err
			}
			obj, err := wire.Restore(v, snap)
			if err != nil {
				return err
			}
			log.Debugf("restored %s with %d variables", obj.ClassName(), len(v.Variables(obj)))

			st, err := wire.ToStruct(snap)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), st.AsMap(), func(w io.Writer) error {
				return writeSnapshot(w, snap, "")
			})
		},
	}
}

func newSnapshotListCommand(opts *rootOptions, so *snapshotOptions) *cobra.Command {
	var class string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := so.open(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			recs, err := s.List(cmd.Context(), class)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), recs, func(w io.Writer) error {
				for _, r := range recs {
					fmt.Fprintf(w, "%s  %-12s %5d bytes  %s\n", r.ID, r.Class, r.Size, r.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&class, "class", "", "only list snapshots of this class")
	return cmd
}

func newSnapshotDeleteCommand(opts *rootOptions, so *snapshotOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := so.open(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, persist.ErrNotFound) {
					return withExit(exitCommandError, err)
				}
				return err
			}
			return nil
		},
	}
}

// parseValue interprets command-line text as a guest value.
func parseValue(v *vm.VM, text string) vm.Value {
	switch text {
	case "nil":
		return vm.Nil
	case "true":
		return vm.True
	case "false":
		return vm.False
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return v.GoToValue(n)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return vm.FromFloat64(f)
	}
	return v.NewString(strings.Trim(text, `"`))
}

func writeSnapshot(w io.Writer, snap *wire.Snapshot, indent string) error {
	if _, err := fmt.Fprintf(w, "%sclass %s generation %d\n", indent, snap.Class, snap.Generation); err != nil {
		return err
	}
	for _, sv := range snap.Vars {
		d := sv.Value
		switch d.Kind {
		case wire.KindObject:
			fmt.Fprintf(w, "%s  %s =\n", indent, sv.Name)
			if err := writeSnapshot(w, d.Object, indent+"    "); err != nil {
				return err
			}
		default:
			fmt.Fprintf(w, "%s  %s = %s\n", indent, sv.Name, formatDatum(d))
		}
	}
	return nil
}

func formatDatum(d wire.Datum) string {
	switch d.Kind {
	case wire.KindNil:
		return "nil"
	case wire.KindBool:
		return strconv.FormatBool(d.Bool)
	case wire.KindInt:
		return strconv.FormatInt(d.Int, 10)
	case wire.KindBigInt:
		return d.Str
	case wire.KindFloat:
		return strconv.FormatFloat(d.Float, 'g', -1, 64)
	case wire.KindString:
		return strconv.Quote(d.Str)
	}
	return "?"
}
