package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/s3client"
	"github.com/kuitang/sticky-canvas/internal/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// stepClock advances one millisecond per reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestService(opts ...Option) *Service {
	return NewService(NewMemoryRepository(), append([]Option{WithClock(newStepClock().Now)}, opts...)...)
}

func TestService_MergeMatchesModel(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		svc := newTestService()
		sub, err := svc.Subscribe(ctx, alice)
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		defer sub.Close()
		sub.Take()

		model := map[string]notes.Note{}
		ids := []string{"textbox-a", "textbox-b", "textbox-c"}
		for i, n := 0, rapid.IntRange(1, 40).Draw(t, "ops"); i < n; i++ {
			id := rapid.SampledFrom(ids).Draw(t, "id")
			prev, existed := model[id]

			if rapid.IntRange(0, 3).Draw(t, "op") == 0 {
				if err := svc.Delete(ctx, alice, id); err != nil {
					t.Fatalf("delete: %v", err)
				}
				delete(model, id)
				snap, ok := sub.Take()
				if ok != existed {
					t.Fatalf("snapshot after delete = %v, existed %v", ok, existed)
				}
				if ok && (len(snap.Changes) != 1 || snap.Changes[0].Type != notes.ChangeRemoved) {
					t.Fatalf("delete changes = %+v", snap.Changes)
				}
				continue
			}

			var f notes.Fields
			if rapid.Bool().Draw(t, "setText") {
				f.Text = ptr(rapid.StringN(0, 20, -1).Draw(t, "text"))
			}
			if rapid.Bool().Draw(t, "setPos") || f.Text == nil {
				f.X = ptr(rapid.Float64Range(-20000, 20000).Draw(t, "x"))
				f.Y = ptr(rapid.Float64Range(-20000, 20000).Draw(t, "y"))
			}
			got, err := svc.Upsert(ctx, alice, id, f)
			if err != nil {
				t.Fatalf("upsert: %v", err)
			}

			want := f.Apply(notes.Note{ID: id})
			if existed {
				want = f.Apply(prev)
			}
			p := viewport.ClampNote(want.Position())
			want.X, want.Y = p.X, p.Y
			if got.Text != want.Text || got.X != want.X || got.Y != want.Y {
				t.Fatalf("upsert %s = %+v, want %+v", id, got, want)
			}
			if existed && !got.CreatedAt.Equal(prev.CreatedAt) {
				t.Fatalf("CreatedAt changed on merge")
			}
			if !got.LastModified.After(prev.LastModified) {
				t.Fatalf("LastModified did not advance")
			}
			model[id] = got

			snap, ok := sub.Take()
			if !ok || len(snap.Changes) != 1 {
				t.Fatalf("expected one change, got %+v", snap)
			}
			wantType := notes.ChangeModified
			if !existed {
				wantType = notes.ChangeAdded
			}
			if snap.Changes[0].Type != wantType {
				t.Fatalf("change type = %s, want %s", snap.Changes[0].Type, wantType)
			}
			if len(snap.Notes) != len(model) {
				t.Fatalf("snapshot holds %d notes, model %d", len(snap.Notes), len(model))
			}
		}

		all, err := svc.List(ctx, alice)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != len(model) {
			t.Fatalf("list = %d notes, model %d", len(all), len(model))
		}
		for _, n := range all {
			m := model[n.ID]
			if m.Text != n.Text || m.X != n.X || m.Y != n.Y || !m.LastModified.Equal(n.LastModified) {
				t.Fatalf("note %s = %+v, model %+v", n.ID, n, model[n.ID])
			}
		}
	})
}

func TestService_RejectsInvalidWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	cases := []struct {
		name  string
		scope Scope
		id    string
		f     notes.Fields
	}{
		{"empty fields", alice, "n", notes.Fields{}},
		{"nan", alice, "n", notes.Fields{X: ptr(math.NaN())}},
		{"inf", alice, "n", notes.Fields{Y: ptr(math.Inf(1))}},
		{"long text", alice, "n", notes.TextField(string(make([]byte, notes.MaxTextBytes+1)))},
		{"bad id", alice, "a/b", notes.TextField("x")},
		{"no user", Scope{AppID: "app"}, "n", notes.TextField("x")},
		{"bad app", Scope{AppID: "../etc", UserID: "u"}, "n", notes.TextField("x")},
	}
	for _, tc := range cases {
		_, err := svc.Upsert(ctx, tc.scope, tc.id, tc.f)
		assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err), tc.name)
	}
	all, err := svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, all)
}

// countingRepository reports a full canvas.
type countingRepository struct {
	*MemoryRepository
	count int
}

func (r countingRepository) Count(context.Context, Scope) (int, error) { return r.count, nil }

func TestService_NoteLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemoryRepository()
	svc := NewService(countingRepository{MemoryRepository: mem, count: notes.MaxNotesPerCanvas})

	_, err := svc.Upsert(ctx, alice, "new", notes.TextField("x"))
	assert.Equal(t, errs.FailedPrecondition, errs.CodeOf(err))
	assert.Equal(t, "canvas is full", errs.MessageOf(err))

	// Existing notes stay writable.
	_, _, err = mem.Upsert(ctx, alice, "old", notes.TextField("x"), time.Now())
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, alice, "old", notes.TextField("y"))
	assert.NoError(t, err)
}

func TestService_GetMissing(t *testing.T) {
	t.Parallel()
	_, err := newTestService().Get(context.Background(), alice, "missing")
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestService_DeleteMissingIsQuiet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	sub, err := svc.Subscribe(ctx, alice)
	require.NoError(t, err)
	defer sub.Close()
	sub.Take()

	require.NoError(t, svc.Delete(ctx, alice, "missing"))
	_, ok := sub.Take()
	assert.False(t, ok)
}

func TestSubscription_InitialAndCoalescing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	_, err := svc.Upsert(ctx, alice, "n1", notes.TextField("one"))
	require.NoError(t, err)

	sub, err := svc.Subscribe(ctx, alice)
	require.NoError(t, err)
	defer sub.Close()

	first, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Len(t, first.Changes, 1)
	assert.Equal(t, notes.ChangeAdded, first.Changes[0].Type)

	// Nobody reads while three writes land; they arrive as one snapshot.
	_, err = svc.Upsert(ctx, alice, "n2", notes.TextField("two"))
	require.NoError(t, err)
	_, err = svc.Upsert(ctx, alice, "n1", notes.TextField("ONE"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, alice, "n2"))

	snap, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Notes, 1)
	assert.Equal(t, "ONE", snap.Notes[0].Text)
	var types []notes.ChangeType
	for _, ch := range snap.Changes {
		types = append(types, ch.Type)
	}
	assert.Equal(t, []notes.ChangeType{notes.ChangeAdded, notes.ChangeModified, notes.ChangeRemoved}, types)

	// Other users' writes never reach this feed.
	_, err = svc.Upsert(ctx, bob, "n1", notes.TextField("bob"))
	require.NoError(t, err)
	_, ok := sub.Take()
	assert.False(t, ok)
}

func TestSubscription_CloseAndCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	sub, err := svc.Subscribe(ctx, alice)
	require.NoError(t, err)
	sub.Take()
	assert.Equal(t, 1, svc.Hub().Subscribers(alice))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sub.Next(cctx)
	assert.ErrorIs(t, err, context.Canceled)

	sub.Close()
	sub.Close()
	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.Equal(t, 0, svc.Hub().Subscribers(alice))
	assert.False(t, svc.Hub().Active(alice))
}

func TestService_Export(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := s3client.TestClient(t, "exports")
	svc := newTestService(WithExporter(client))
	_, err := svc.Upsert(ctx, alice, "n1", notes.Fields{Text: ptr("hi"), X: ptr(1.0), Y: ptr(2.0)})
	require.NoError(t, err)

	res, err := svc.Export(ctx, alice)
	require.NoError(t, err)
	assert.Regexp(t, `^artifacts/collaborative-canvas/users/alice/exports/\d+\.json$`, res.Key)
	assert.Contains(t, res.URL, res.Key)

	body, err := client.GetObject(ctx, res.Key)
	require.NoError(t, err)
	var doc struct {
		AppID string       `json:"appId"`
		Notes []notes.Note `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Equal(t, "collaborative-canvas", doc.AppID)
	require.Len(t, doc.Notes, 1)
	assert.Equal(t, "hi", doc.Notes[0].Text)

	listed, err := svc.ListExports(ctx, alice)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, res.Key, listed[0].Key)
	assert.Positive(t, listed[0].Size)

	others, err := svc.ListExports(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, others)
}

type failingExporter struct{}

func (failingExporter) PutObject(context.Context, string, []byte, string) error {
	return errors.New("bucket gone")
}
func (failingExporter) ListObjects(context.Context, string) ([]s3client.ObjectInfo, error) {
	return nil, errors.New("bucket gone")
}
func (failingExporter) GetPublicURL(key string) string { return key }

func TestService_ExportUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := newTestService().Export(ctx, alice)
	assert.Equal(t, errs.Unavailable, errs.CodeOf(err))

	_, err = newTestService(WithExporter(failingExporter{})).Export(ctx, alice)
	assert.Equal(t, errs.Unavailable, errs.CodeOf(err))
	assert.Equal(t, "export upload failed", errs.MessageOf(err))

	_, err = newTestService(WithExporter(failingExporter{})).ListExports(ctx, alice)
	assert.Equal(t, errs.Unavailable, errs.CodeOf(err))
}

func TestScope_Paths(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "artifacts/collaborative-canvas/users/alice/textboxes", alice.CollectionPath())
	assert.Equal(t, "artifacts/collaborative-canvas/users/alice/exports/42.json", alice.ExportKey(time.Unix(0, 42)))
	assert.NoError(t, alice.Validate())
	assert.ErrorIs(t, Scope{AppID: "a b", UserID: "u"}.Validate(), ErrInvalidScope)
}
