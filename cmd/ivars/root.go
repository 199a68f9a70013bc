package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/chazu/ivars/manifest"
	"github.com/chazu/ivars/vm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Verbose    int
	Format     string // "text" | "json" | "yaml"

	manifest *manifest.Manifest
}

var validFormats = []string{"text", "json", "yaml"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ivars",
		Short:         "Instance-variable storage toolkit",
		Long:          "Inspect shapes, stress the attribute-table strategies and persist object snapshots.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return opts.loadManifest()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file (default: nearest ivars.toml or ivars.yaml)")
	cmd.PersistentFlags().CountVarP(&opts.Verbose, "verbose", "v", "increase log verbosity (repeatable)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newStressCommand(opts))
	cmd.AddCommand(newShapeCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadManifest reads the configuration and applies its process-wide
// settings (logging and lock diagnostics).
func (o *rootOptions) loadManifest() error {
	var m *manifest.Manifest
	var err error
	if o.ConfigPath != "" {
		m, err = manifest.LoadFile(o.ConfigPath)
	} else {
		m, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return withExit(exitCommandError, err)
	}
	if m == nil {
		m = manifest.Default()
	}

	m.ConfigureLogging(o.Verbose)
	if err := m.ApplyDebug(); err != nil {
		return withExit(exitCommandError, err)
	}
	if m.Path != "" {
		log.Infof("using configuration %s", m.Path)
	}
	o.manifest = m
	return nil
}

// newVM creates a VM from the configuration. A non-empty strategy
// overrides the configured one.
func (o *rootOptions) newVM(strategy string) (*vm.VM, error) {
	opts, err := o.manifest.VMOptions()
	if err != nil {
		return nil, withExit(exitCommandError, err)
	}
	if strategy != "" {
		st, err := vm.ParseStrategy(strategy)
		if err != nil {
			return nil, withExit(exitCommandError, err)
		}
		opts = append(opts, vm.WithStrategy(st))
	}
	return vm.NewVM(opts...), nil
}

// emit writes data as JSON or YAML, or calls text for the text format.
func (o *rootOptions) emit(w io.Writer, data any, text func(io.Writer) error) error {
	switch o.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}
