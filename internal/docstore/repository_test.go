package docstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/sticky-canvas/internal/db"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = Scope{AppID: "collaborative-canvas", UserID: "alice"}
	bob   = Scope{AppID: "collaborative-canvas", UserID: "bob"}
)

func ptr[T any](v T) *T { return &v }

// newInMemorySQLiteRepository gives every scope its own encrypted in-memory
// database.
func newInMemorySQLiteRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	var mu sync.Mutex
	open := map[Scope]*db.CanvasDB{}
	t.Cleanup(func() {
		for _, cdb := range open {
			cdb.Close()
		}
	})
	return NewSQLiteRepositoryWithOpener(func(_ context.Context, s Scope) (*db.CanvasDB, error) {
		mu.Lock()
		defer mu.Unlock()
		if cdb, ok := open[s]; ok {
			return cdb, nil
		}
		cdb, err := testdb.NewCanvasDBInMemory(db.CanvasKey{AppID: s.AppID, UserID: s.UserID})
		if err != nil {
			return nil, err
		}
		open[s] = cdb
		return cdb, nil
	})
}

func repositories() map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(*testing.T) Repository { return NewMemoryRepository() },
		"sqlite": func(t *testing.T) Repository { return newInMemorySQLiteRepository(t) },
	}
}

func TestRepository_Contract(t *testing.T) {
	t.Parallel()
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			repo := newRepo(t)
			t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			t1 := t0.Add(1500 * time.Microsecond)

			// Create with text only: coordinates default to 0.
			n, created, err := repo.Upsert(ctx, alice, "b-note", notes.TextField("hello"), t0)
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, "hello", n.Text)
			assert.Zero(t, n.X)
			assert.True(t, n.CreatedAt.Equal(t0))
			assert.True(t, n.LastModified.Equal(t0))

			// Position-only merge keeps text and CreatedAt.
			n, created, err = repo.Upsert(ctx, alice, "b-note", notes.Fields{X: ptr(10.5), Y: ptr(20.25)}, t1)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, "hello", n.Text)
			assert.Equal(t, 10.5, n.X)
			assert.Equal(t, 20.25, n.Y)
			assert.True(t, n.CreatedAt.Equal(t0))
			assert.True(t, n.LastModified.Equal(t1))

			_, _, err = repo.Upsert(ctx, alice, "a-note", notes.Fields{Text: ptr("")}, t1)
			require.NoError(t, err)
			_, _, err = repo.Upsert(ctx, bob, "bobs", notes.TextField("bob"), t1)
			require.NoError(t, err)

			all, err := repo.List(ctx, alice)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a-note", all[0].ID)
			assert.Equal(t, "b-note", all[1].ID)

			count, err := repo.Count(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			_, err = repo.Get(ctx, alice, "bobs")
			assert.ErrorIs(t, err, ErrNotFound, "collections are isolated per user")

			removed, existed, err := repo.Delete(ctx, alice, "b-note")
			require.NoError(t, err)
			assert.True(t, existed)
			assert.Equal(t, "hello", removed.Text)

			_, existed, err = repo.Delete(ctx, alice, "b-note")
			require.NoError(t, err)
			assert.False(t, existed)

			_, err = repo.Get(ctx, alice, "b-note")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteRepository_ClampsInStorage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newInMemorySQLiteRepository(t)

	n, _, err := repo.Upsert(ctx, alice, "far", notes.Fields{X: ptr(1e9), Y: ptr(-5.0)}, time.Unix(1, 0))
	require.NoError(t, err)
	assert.Equal(t, 9850.0, n.X)
	assert.Equal(t, 0.0, n.Y)
}

func TestSQLiteRepository_HostileText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newInMemorySQLiteRepository(t)

	for i, text := range []string{`'; DROP TABLE textboxes; --`, "nul\x00byte", "日本語 🎉", ""} {
		id := string(rune('a' + i))
		_, _, err := repo.Upsert(ctx, alice, id, notes.TextField(text), time.Unix(1, 0))
		require.NoError(t, err)
		got, err := repo.Get(ctx, alice, id)
		require.NoError(t, err)
		assert.Equal(t, text, got.Text)
	}
}

func TestService_SQLiteCreateAndMove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := NewService(newInMemorySQLiteRepository(t), WithClock(newStepClock().Now))

	n, err := svc.Upsert(ctx, alice, "textbox-text", notes.TextField("only text"))
	require.NoError(t, err)
	assert.Equal(t, "only text", n.Text)
	assert.Zero(t, n.X)
	assert.Zero(t, n.Y)
	assert.False(t, n.CreatedAt.IsZero())

	n, err = svc.Upsert(ctx, alice, "textbox-pos", notes.Fields{Text: ptr("moved"), X: ptr(100.5), Y: ptr(200.25)})
	require.NoError(t, err)
	assert.Equal(t, 100.5, n.X)
	assert.Equal(t, 200.25, n.Y)

	// Integral coordinates and a text-only merge over stored positions.
	n, err = svc.Upsert(ctx, alice, "textbox-pos", notes.Fields{X: ptr(300.0), Y: ptr(0.0)})
	require.NoError(t, err)
	assert.Equal(t, 300.0, n.X)
	assert.Equal(t, 0.0, n.Y)
	n, err = svc.Upsert(ctx, alice, "textbox-pos", notes.TextField("edited"))
	require.NoError(t, err)
	assert.Equal(t, "edited", n.Text)
	assert.Equal(t, 300.0, n.X)

	all, err := svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
