package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chazu/ivars/vm"
	"github.com/chazu/ivars/vm/wire"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func pointSnapshot(x int64) *wire.Snapshot {
	return &wire.Snapshot{Class: "Point", Generation: 1, Vars: []wire.Var{
		{Name: "@x", Value: wire.Datum{Kind: wire.KindInt, Int: x}},
	}}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	snap := pointSnapshot(3)
	id, err := s.Save(ctx, snap)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "ids are UUIDs")

	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Load(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutReplaces(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Put(ctx, "fixed", pointSnapshot(1)))
	require.NoError(t, s.Put(ctx, "fixed", pointSnapshot(2)))

	got, err := s.Load(ctx, "fixed")
	require.NoError(t, err)
	d, _ := got.Lookup("@x")
	assert.Equal(t, int64(2), d.Int)

	recs, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	id, err := s.Save(ctx, pointSnapshot(1))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
}

func TestListByClass(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Save(ctx, pointSnapshot(1))
	require.NoError(t, err)
	_, err = s.Save(ctx, &wire.Snapshot{Class: "Line", Generation: 1})
	require.NoError(t, err)
	_, err = s.Save(ctx, pointSnapshot(2))
	require.NoError(t, err)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	points, err := s.List(ctx, "Point")
	require.NoError(t, err)
	require.Len(t, points, 2)
	for _, r := range points {
		assert.Equal(t, "Point", r.Class)
		assert.Positive(t, r.Size)
		assert.False(t, r.CreatedAt.IsZero())
	}
}

func TestObjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	v := vm.NewVM()
	obj := v.DefineClass("Point").NewInstance()
	v.SetVariable(obj, "@x", vm.FromSmallInt(10))
	v.SetVariable(obj, "@label", v.NewString("origin"))

	id, err := s.SaveObject(ctx, v, obj)
	require.NoError(t, err)

	other := vm.NewVM()
	restored, err := s.LoadObject(ctx, other, id)
	require.NoError(t, err)
	assert.Equal(t, vm.FromSmallInt(10), other.GetVariable(restored, "@x"))
	label, ok := other.Heap().String(other.GetVariable(restored, "@label"))
	require.True(t, ok)
	assert.Equal(t, "origin", label)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Save(ctx, pointSnapshot(7))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Point", got.Class)
}
