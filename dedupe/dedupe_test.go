package dedupe

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func exerciseGuard(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	guard := NewGuard(store, time.Minute, WithClock(clock.Now))

	dup, err := guard.Duplicate(ctx, "42", "d1")
	require.NoError(t, err)
	require.False(t, dup)

	clock.now = clock.now.Add(10 * time.Second)
	dup, err = guard.Duplicate(ctx, "42", "d1")
	require.NoError(t, err)
	require.True(t, dup)

	dup, err = guard.Duplicate(ctx, "43", "d1")
	require.NoError(t, err)
	require.False(t, dup, "delivery ids are scoped to the participant")

	dup, err = guard.Duplicate(ctx, "42", "")
	require.NoError(t, err)
	require.False(t, dup)
	dup, err = guard.Duplicate(ctx, "42", "")
	require.NoError(t, err)
	require.False(t, dup, "events without a delivery id are never suppressed")

	clock.now = clock.now.Add(5 * time.Minute)
	dup, err = guard.Duplicate(ctx, "42", "d1")
	require.NoError(t, err)
	require.False(t, dup, "window elapsed")
}

func TestGuardMemory(t *testing.T) {
	exerciseGuard(t, NewMemoryStore())
}

func TestGuardLevelDB(t *testing.T) {
	store, err := OpenLevelDB(filepath.Join(t.TempDir(), "dedupe"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	exerciseGuard(t, store)
}

func TestLevelDBSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dedupe")
	store, err := OpenLevelDB(path)
	require.NoError(t, err)
	at := time.Unix(1700000000, 0).UTC()
	_, seen, err := store.Mark(ctx, NewKey("1", "a"), at)
	require.NoError(t, err)
	require.False(t, seen)
	require.NoError(t, store.Close())

	reopened, err := OpenLevelDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	previous, seen, err := reopened.Mark(ctx, NewKey("1", "a"), at.Add(time.Second))
	require.NoError(t, err)
	require.True(t, seen)
	require.Equal(t, at, previous)
}

func TestPruneForgetsOldKeys(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()
	stores := map[string]Store{"memory": NewMemoryStore()}
	ldb, err := OpenLevelDB(filepath.Join(t.TempDir(), "dedupe"))
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	stores["leveldb"] = ldb

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.Mark(ctx, NewKey("1", "old"), at)
			require.NoError(t, err)
			_, _, err = store.Mark(ctx, NewKey("1", "new"), at.Add(time.Hour))
			require.NoError(t, err)

			require.NoError(t, store.Prune(ctx, at.Add(time.Minute)))

			_, seen, err := store.Mark(ctx, NewKey("1", "old"), at.Add(2*time.Hour))
			require.NoError(t, err)
			require.False(t, seen)
			_, seen, err = store.Mark(ctx, NewKey("1", "new"), at.Add(2*time.Hour))
			require.NoError(t, err)
			require.True(t, seen)
		})
	}
}

func TestKeyIsStable(t *testing.T) {
	require.Equal(t, NewKey("1", "a"), NewKey("1", "a"))
	require.NotEqual(t, NewKey("1", "a"), NewKey("1a", ""))
	require.Len(t, NewKey("1", "a").String(), 64)
}
