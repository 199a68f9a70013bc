package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/ivars/lib/persist"
	"github.com/chazu/ivars/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI with an isolated configuration and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "ivars.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("[persist]\npath = \"snapshots.db\"\n"), 0644))

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()
	assert.Equal(t, "ivars", cmd.Use)

	for _, name := range []string{"stress", "shape", "snapshot"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "shape")
	assert.Error(t, err)
}

func TestShapeText(t *testing.T) {
	out, err := run(t, "shape", "--identity", "@x", "@y")
	require.NoError(t, err)
	want := "shape Demo generation 1\n" +
		"  fields=0 slots=2 index-space=3\n" +
		"  [0] @x         slot\n" +
		"  [1] @y         slot\n" +
		"  [2] identity   extra\n"
	assert.Equal(t, want, out)
}

func TestShapeJSONReified(t *testing.T) {
	out, err := run(t, "--format", "json", "shape", "--reify", "@extra")
	require.NoError(t, err)

	var info vm.ShapeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "Demo", info.Class)
	assert.Equal(t, 2, info.Generation)
	assert.Equal(t, 4, info.Fields)
	assert.Equal(t, 1, info.Slots)
	require.Len(t, info.Entries, 5)
	assert.Equal(t, "@extra", info.Entries[4].Name)
	assert.Equal(t, "field(direct vm.Value)", info.Entries[3].Kind)
}

func TestShapeYAML(t *testing.T) {
	out, err := run(t, "--format", "yaml", "shape", "@a")
	require.NoError(t, err)
	assert.Contains(t, out, "class: Demo")
	assert.Contains(t, out, "name: '@a'")
}

func TestRunStress(t *testing.T) {
	cfg := stressConfig{Objects: 4, Writers: 4, Growers: 2, Names: 8, Rounds: 5}
	for _, name := range []string{"stamped", "locked", "relaxed"} {
		t.Run(name, func(t *testing.T) {
			st, err := vm.ParseStrategy(name)
			require.NoError(t, err)
			v := vm.NewVM(vm.WithStrategy(st))

			report, err := runStress(context.Background(), v, cfg)
			require.NoError(t, err)
			assert.Empty(t, report.Violations)
			assert.Equal(t, name, report.Strategy)
			assert.Equal(t, cfg.Objects, report.Identities)
			// Names from writers and growers plus the identity extra.
			assert.Equal(t, (cfg.Writers+cfg.Growers)*cfg.Names+1, report.ShapeSize)
			if name != "relaxed" {
				assert.Zero(t, report.Lost)
			}
		})
	}
}

func TestRunStressRejectsBadConfig(t *testing.T) {
	_, err := runStress(context.Background(), vm.NewVM(), stressConfig{Objects: 0, Names: 1, Rounds: 1})
	assert.Error(t, err)
}

func TestStressCommand(t *testing.T) {
	out, err := run(t, "stress", "--strategy", "locked", "--objects", "2", "--writers", "2", "--growers", "1", "--names", "4", "--rounds", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "strategy:   locked")
	assert.True(t, strings.HasSuffix(out, "ok\n"), out)
}

func TestSnapshotCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, "snapshot", "--db", db, "save", "--class", "Point", "@x=1", "@label=origin", "@ratio=0.5", "@on=true")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = run(t, "--format", "json", "snapshot", "--db", db, "list")
	require.NoError(t, err)
	var recs []persist.Record
	require.NoError(t, json.Unmarshal([]byte(out), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, "Point", recs[0].Class)

	out, err = run(t, "snapshot", "--db", db, "load", id)
	require.NoError(t, err)
	assert.Equal(t, "class Point generation 1\n"+
		"  @x = 1\n"+
		"  @label = \"origin\"\n"+
		"  @ratio = 0.5\n"+
		"  @on = true\n", out)

	_, err = run(t, "snapshot", "--db", db, "delete", id)
	require.NoError(t, err)

	_, err = run(t, "snapshot", "--db", db, "load", id)
	require.ErrorIs(t, err, persist.ErrNotFound)
	assert.Equal(t, exitCommandError, exitCode(err))
}

func TestParseValue(t *testing.T) {
	v := vm.NewVM()
	assert.Equal(t, vm.Nil, parseValue(v, "nil"))
	assert.Equal(t, vm.True, parseValue(v, "true"))
	assert.Equal(t, vm.FromSmallInt(-4), parseValue(v, "-4"))
	assert.Equal(t, vm.FromFloat64(2.5), parseValue(v, "2.5"))

	s, ok := v.Heap().String(parseValue(v, "inf"))
	require.True(t, ok)
	assert.Equal(t, "inf", s)
}
