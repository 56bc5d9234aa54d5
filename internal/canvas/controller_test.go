package canvas

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// =============================================================================
// Test doubles
// =============================================================================

type storeWrite struct {
	Kind   string // "upsert" or "remove"
	ID     string
	Fields notes.Fields
}

type fakeStore struct {
	mu           sync.Mutex
	fn           func(notes.Snapshot)
	writes       []storeWrite
	writeErr     error
	subscribeErr error
	unsubscribed int
}

func (s *fakeStore) Subscribe(_ context.Context, fn func(notes.Snapshot)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	s.fn = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fn = nil
		s.unsubscribed++
	}, nil
}

func (s *fakeStore) Upsert(_ context.Context, id string, f notes.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, storeWrite{Kind: "upsert", ID: id, Fields: f})
	return s.writeErr
}

func (s *fakeStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, storeWrite{Kind: "remove", ID: id})
	return s.writeErr
}

func (s *fakeStore) push(snap notes.Snapshot) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (s *fakeStore) Writes() []storeWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeWrite(nil), s.writes...)
}

type recordingSurface struct {
	calls []string
}

func (r *recordingSurface) SetTextSelection(enabled bool) {
	r.calls = append(r.calls, fmt.Sprintf("select:%v", enabled))
}

func (r *recordingSurface) CapturePointer(capture bool) {
	r.calls = append(r.calls, fmt.Sprintf("capture:%v", capture))
}

type harness struct {
	c       *Controller
	store   *fakeStore
	surface *recordingSurface
	frames  int
}

func syncExecutor(task func()) { task() }

func newHarness(opts Options) *harness {
	h := &harness{store: &fakeStore{}, surface: &recordingSurface{}}
	opts.Executor = syncExecutor
	opts.Host = h.surface
	opts.Renderer = RendererFunc(func(Frame) { h.frames++ })
	seq := 0
	if opts.NewID == nil {
		opts.NewID = func() string {
			seq++
			return fmt.Sprintf("textbox-new%d", seq)
		}
	}
	h.c = New(h.store, opts)
	if err := h.c.Mount(context.Background()); err != nil {
		panic(err)
	}
	return h
}

func startHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := newHarness(opts)
	t.Cleanup(h.c.Close)
	return h
}

// push delivers a snapshot through the store callback and processes it.
func (h *harness) push(snap notes.Snapshot) {
	h.store.push(snap)
	h.c.Drain()
}

func (h *harness) scroll() viewport.Point {
	vp := h.c.Viewport()
	return vp.Scroll()
}

func (h *harness) send(evs ...Event) {
	for _, ev := range evs {
		h.c.Dispatch(ev)
	}
	h.c.Drain()
}

// At DefaultZoom in the default 1280x720 container, screen (640, 360) shows
// logical (2500, 2500).
var center = viewport.Point{X: 640, Y: 360}

func note(id, text string, x, y float64) notes.Note {
	return notes.Note{ID: id, Text: text, X: x, Y: y}
}

// =============================================================================
// Creation
// =============================================================================

func TestDoubleClick_CreatesCenteredNote(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial(nil))

	h.send(DoubleClick{Screen: center, Target: Background})

	writes := h.store.Writes()
	require.Len(t, writes, 1)
	w := writes[0]
	assert.Equal(t, "upsert", w.Kind)
	assert.Equal(t, "textbox-new1", w.ID)
	require.NotNil(t, w.Fields.Text)
	assert.Equal(t, notes.DefaultText, *w.Fields.Text)
	assert.Equal(t, 2425.0, *w.Fields.X)
	assert.Equal(t, 2460.0, *w.Fields.Y)
	assert.Equal(t, "textbox-new1", h.c.Frame().LastInteracted)

	// Nothing is displayed until the store echoes the note back.
	assert.Empty(t, h.c.Frame().Notes)
	h.push(notes.NewSnapshot([]notes.Note{note("textbox-new1", notes.DefaultText, 2425, 2460)}))
	nf, ok := h.c.Frame().Note("textbox-new1")
	require.True(t, ok)
	assert.Equal(t, viewport.Point{X: 2425, Y: 2460}, nf.Position)
}

func TestDoubleClick_ClampsNearEdge(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.c.vp.ScrollTo(viewport.Point{X: -1000, Y: -1000})

	h.send(DoubleClick{Screen: viewport.Point{X: 10, Y: 10}, Target: Background})

	writes := h.store.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, 0.0, *writes[0].Fields.X)
	assert.Equal(t, 0.0, *writes[0].Fields.Y)
}

func TestDoubleClick_IgnoredOnNotesAndDuringGestures(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "a", 2500, 2500)}))

	h.send(DoubleClick{Screen: center, Target: Surface("a")})
	h.send(DoubleClick{Screen: center, Target: Content("a")})
	h.send(PointerDown{Screen: viewport.Point{X: 10, Y: 10}, Target: Background})
	h.send(DoubleClick{Screen: center, Target: Background})

	assert.Empty(t, h.store.Writes())
}

func TestDoubleClick_CanvasFull(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	full := make([]notes.Note, notes.MaxNotesPerCanvas)
	for i := range full {
		full[i] = note(fmt.Sprintf("n%05d", i), "", 0, 0)
	}
	h.push(notes.Initial(full))

	h.send(DoubleClick{Screen: center, Target: Background})

	assert.Empty(t, h.store.Writes())
	assert.Equal(t, "canvas is full", h.c.Frame().LastError)
}

// =============================================================================
// Dragging
// =============================================================================

func TestDrag_WritesFinalPositionOnce(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "hello", 2500, 2500)}))

	h.send(PointerDown{Screen: viewport.Point{X: 650, Y: 370}, Target: Surface("a")})
	require.Equal(t, DraggingNote, h.c.Gesture().Kind)
	assert.Equal(t, viewport.Point{X: 10, Y: 10}, h.c.Gesture().GrabOffset)

	h.send(PointerMove{Screen: viewport.Point{X: 700, Y: 420}})
	h.send(PointerMove{Screen: viewport.Point{X: 750, Y: 470}})
	nf, _ := h.c.Frame().Note("a")
	assert.Equal(t, viewport.Point{X: 2600, Y: 2600}, nf.Position)
	assert.True(t, nf.Dragging)
	assert.Empty(t, h.store.Writes(), "no writes while dragging")

	h.send(PointerUp{Screen: viewport.Point{X: 760, Y: 480}})

	writes := h.store.Writes()
	require.Len(t, writes, 1)
	assert.Nil(t, writes[0].Fields.Text, "a move never writes text")
	assert.Equal(t, 2610.0, *writes[0].Fields.X)
	assert.Equal(t, 2610.0, *writes[0].Fields.Y)
	assert.Equal(t, Idle, h.c.Gesture().Kind)
	assert.Equal(t, []string{"capture:true", "capture:false"}, h.surface.calls)
}

func TestDrag_KeepsLocalPositionAgainstRemoteUpdates(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "v1", 2500, 2500)}))

	h.send(
		PointerDown{Screen: center, Target: Surface("a")},
		PointerMove{Screen: viewport.Point{X: 700, Y: 400}},
	)
	h.push(notes.NewSnapshot([]notes.Note{note("a", "v2", 100, 100)}))

	nf, _ := h.c.Frame().Note("a")
	assert.Equal(t, viewport.Point{X: 2560, Y: 2540}, nf.Position)
	assert.Equal(t, "v2", nf.Text, "text is not protected by a drag")

	h.send(PointerUp{Screen: viewport.Point{X: 700, Y: 400}})
	h.push(notes.NewSnapshot([]notes.Note{note("a", "v2", 2560, 2540)}))
	nf, _ = h.c.Frame().Note("a")
	assert.Equal(t, viewport.Point{X: 2560, Y: 2540}, nf.Position)
}

func TestDrag_StaysOnCanvas(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness(Options{})
		defer h.c.Close()
		h.push(notes.Initial([]notes.Note{note("a", "", 2500, 2500)}))

		h.send(PointerDown{Screen: center, Target: Surface("a")})
		for i, n := 0, rapid.IntRange(1, 10).Draw(t, "moves"); i < n; i++ {
			p := viewport.Point{
				X: rapid.Float64Range(-1e6, 1e6).Draw(t, "x"),
				Y: rapid.Float64Range(-1e6, 1e6).Draw(t, "y"),
			}
			h.send(PointerMove{Screen: p})
			nf, _ := h.c.Frame().Note("a")
			if !viewport.InBounds(nf.Position) {
				t.Fatalf("note left the canvas: %+v", nf.Position)
			}
		}
		h.send(PointerUp{Screen: center})
		w := h.store.Writes()
		if len(w) != 1 || !viewport.InBounds(viewport.Point{X: *w[0].Fields.X, Y: *w[0].Fields.Y}) {
			t.Fatalf("unexpected writes %+v", w)
		}
	})
}

func TestDrag_ContentNeverStartsDrag(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "", 2500, 2500)}))

	h.send(PointerDown{Screen: center, Target: Content("a")})
	assert.Equal(t, Idle, h.c.Gesture().Kind)
	h.send(PointerUp{Screen: center})
	assert.Empty(t, h.store.Writes())
}

func TestDrag_RemoteRemovalEndsGesture(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "", 2500, 2500), note("b", "", 10, 10)}))

	h.send(PointerDown{Screen: center, Target: Surface("a")})
	h.push(notes.NewSnapshot(
		[]notes.Note{note("b", "", 10, 10)},
		notes.Change{Type: notes.ChangeRemoved, Note: note("a", "", 2500, 2500)},
	))

	assert.Equal(t, Idle, h.c.Gesture().Kind)
	assert.Equal(t, 0, h.c.gestureScope.len())
	_, ok := h.c.Frame().Note("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"capture:true", "capture:false"}, h.surface.calls)

	h.send(PointerUp{Screen: center})
	assert.Empty(t, h.store.Writes())
}

func TestDeleteNote_DuringDrag(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "", 2500, 2500)}))

	h.send(PointerDown{Screen: center, Target: Surface("a")}, DeleteNote{NoteID: "a"})

	assert.Equal(t, Idle, h.c.Gesture().Kind)
	assert.Equal(t, []storeWrite{{Kind: "remove", ID: "a"}}, h.store.Writes())
}

// =============================================================================
// Panning and zoom
// =============================================================================

func TestPan_MovesScrollAndRestoresSelection(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	start := h.scroll()

	h.send(PointerDown{Screen: viewport.Point{X: 100, Y: 100}, Target: Background})
	assert.Equal(t, PanningCanvas, h.c.Gesture().Kind)
	h.send(PointerMove{Screen: viewport.Point{X: 150, Y: 130}})
	assert.Equal(t, start.Sub(viewport.Point{X: 50, Y: 30}), h.scroll())
	h.send(PointerUp{Screen: viewport.Point{X: 150, Y: 130}})

	assert.Equal(t, Idle, h.c.Gesture().Kind)
	assert.Empty(t, h.store.Writes())
	assert.Equal(t, []string{"select:false", "capture:true", "capture:false", "select:true"}, h.surface.calls)
}

func TestWheel_ZoomKeepsPointerFixed(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness(Options{})
		defer h.c.Close()

		p := viewport.Point{
			X: rapid.Float64Range(0, 1280).Draw(t, "x"),
			Y: rapid.Float64Range(0, 720).Draw(t, "y"),
		}
		vp := h.c.Viewport()
		before := vp.Logical(p, h.c.container)
		in := rapid.Bool().Draw(t, "in")
		dy := 1.0
		if in {
			dy = -1
		}
		h.send(Wheel{Screen: p, DeltaY: dy, Modifier: true})

		vp = h.c.Viewport()
		after := vp.Logical(p, h.c.container)
		if d := before.Sub(after); d.X*d.X+d.Y*d.Y > 1e-12 {
			t.Fatalf("pivot drifted from %+v to %+v", before, after)
		}
		want := 0.99
		if in {
			want = 1.01
		}
		if diff := vp.Zoom - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("zoom = %v, want %v", vp.Zoom, want)
		}
	})
}

func TestWheel_WithoutModifierScrolls(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	start := h.scroll()

	h.send(Wheel{DeltaX: 5, DeltaY: 40})

	assert.Equal(t, start.Add(viewport.Point{X: 5, Y: 40}), h.scroll())
	assert.Equal(t, viewport.DefaultZoom, h.c.Viewport().Zoom)
}

func TestZoom_StaysInRange(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness(Options{ZoomStep: rapid.Float64Range(0.01, 0.5).Draw(t, "step")})
		defer h.c.Close()
		for i, n := 0, rapid.IntRange(1, 60).Draw(t, "n"); i < n; i++ {
			if rapid.Bool().Draw(t, "wheel") {
				h.send(Wheel{Screen: center, DeltaY: rapid.SampledFrom([]float64{-3, 3}).Draw(t, "dy"), Modifier: true})
			} else {
				h.send(Key{Key: rapid.SampledFrom([]string{"+", "=", "-", "_", "0"}).Draw(t, "key"), Modifier: true})
			}
			z := h.c.Viewport().Zoom
			if z < viewport.MinZoom || z > viewport.MaxZoom {
				t.Fatalf("zoom %v out of range", z)
			}
		}
	})
}

func TestKey_Shortcuts(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})

	h.send(Key{Key: "+"})
	assert.Equal(t, 1.0, h.c.Viewport().Zoom, "zoom keys need the modifier")

	h.send(Key{Key: "+", Modifier: true}, Key{Key: "=", Modifier: true})
	assert.InDelta(t, 1.02, h.c.Viewport().Zoom, 1e-9)

	h.send(Key{Key: "0", Modifier: true})
	assert.Equal(t, 1.0, h.c.Viewport().Zoom)

	frames := h.frames
	h.send(Key{Key: "0", Modifier: true})
	assert.Equal(t, frames, h.frames, "reset at default zoom renders nothing")
}

// =============================================================================
// Editing
// =============================================================================

func TestEditing_RemoteTextWaitsForBlur(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "original", 100, 100)}))

	h.send(Focus{NoteID: "a"}, Edit{NoteID: "a", Text: "local draft"})
	h.push(notes.NewSnapshot([]notes.Note{note("a", "remote", 300, 300)}))

	nf, _ := h.c.Frame().Note("a")
	assert.Equal(t, "local draft", nf.Text)
	assert.True(t, nf.HasPendingRemote)
	assert.True(t, nf.Editing)
	assert.Equal(t, viewport.Point{X: 300, Y: 300}, nf.Position, "position still follows the store")
	assert.Empty(t, h.store.Writes(), "edits are local until blur")

	h.send(Blur{NoteID: "a", Text: "final"})

	writes := h.store.Writes()
	require.Len(t, writes, 1)
	require.NotNil(t, writes[0].Fields.Text)
	assert.Equal(t, "final", *writes[0].Fields.Text)
	assert.Nil(t, writes[0].Fields.X, "a text commit never writes position")
	assert.Nil(t, writes[0].Fields.Y)

	nf, _ = h.c.Frame().Note("a")
	assert.Equal(t, "final", nf.Text)
	assert.False(t, nf.HasPendingRemote)
	assert.Empty(t, h.c.Frame().Editing)
}

func TestEditing_UnfocusedNotesFollowStore(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "one", 0, 0), note("b", "two", 0, 0)}))

	h.send(Focus{NoteID: "a"})
	h.push(notes.NewSnapshot([]notes.Note{note("a", "one", 0, 0), note("b", "TWO", 0, 0)}))

	nf, _ := h.c.Frame().Note("b")
	assert.Equal(t, "TWO", nf.Text)
}

func TestEditing_RemovedWhileFocused(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "x", 0, 0)}))

	h.send(Focus{NoteID: "a"})
	h.push(notes.NewSnapshot(nil))

	assert.Empty(t, h.c.Frame().Editing)
	h.send(Blur{NoteID: "a", Text: "lost"})
	assert.Empty(t, h.store.Writes(), "blur of a removed note writes nothing")
}

// =============================================================================
// Reconciliation and failures
// =============================================================================

func TestReconcile_ClampsOutOfBoundsNotes(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("far", "", 20000, -50)}))

	nf, _ := h.c.Frame().Note("far")
	assert.Equal(t, viewport.Point{X: viewport.CanvasWidth - viewport.NoteWidth, Y: 0}, nf.Position)
	assert.True(t, h.c.Frame().Loaded)
}

func TestWriteFailure_SurfacesAuthAndClears(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "", 0, 0)}))

	h.store.writeErr = errs.New(errs.Unauthenticated, "Unauthorized: No token provided.")
	h.send(Blur{NoteID: "a", Text: "x"})

	fr := h.c.Frame()
	assert.True(t, fr.AuthRequired)
	assert.Equal(t, "Unauthorized: No token provided.", fr.LastError)

	h.store.writeErr = nil
	h.send(Blur{NoteID: "a", Text: "y"})
	assert.Empty(t, h.c.Frame().LastError)
}

func TestWriteFailure_UntypedErrorIsHidden(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.push(notes.Initial([]notes.Note{note("a", "", 0, 0)}))

	h.store.writeErr = fmt.Errorf("dial tcp 10.0.0.1:443: connection refused")
	h.send(DeleteNote{NoteID: "a"})

	fr := h.c.Frame()
	assert.False(t, fr.AuthRequired)
	assert.Equal(t, "internal error", fr.LastError)
}

func TestMount_SubscribeFailure(t *testing.T) {
	t.Parallel()
	store := &fakeStore{subscribeErr: errs.New(errs.PermissionDenied, "Unauthorized: Invalid token.")}
	c := New(store, Options{Executor: syncExecutor})
	t.Cleanup(c.Close)

	require.Error(t, c.Mount(context.Background()))
	assert.True(t, c.Frame().AuthRequired)
	assert.False(t, c.Frame().Loaded)
}

// =============================================================================
// Index and follow
// =============================================================================

func TestIndex_JumpToFocusesNote(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	older := note("old", "older", 100, 100)
	older.LastModified = base
	newer := note("new", "newer", 8000, 4000)
	newer.LastModified = base.Add(time.Minute)
	h.push(notes.Initial([]notes.Note{older, newer}))

	fr := h.c.Frame()
	require.Len(t, fr.Index, 2)
	assert.Equal(t, "new", fr.Index[0].ID)

	h.send(ToggleIndex{})
	assert.True(t, h.c.Frame().IndexOpen)
	h.send(JumpTo{NoteID: "old"})

	fr = h.c.Frame()
	assert.False(t, fr.IndexOpen)
	assert.Equal(t, viewport.FocusZoom, fr.Viewport.Zoom)
	vp := fr.Viewport
	got := vp.Logical(fr.Container.Center(), fr.Container)
	assert.InDelta(t, 175, got.X, 1e-9)
	assert.InDelta(t, 140, got.Y, 1e-9)
}

func TestIndex_EscapeCloses(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.send(ToggleIndex{}, Key{Key: "Escape"})
	assert.False(t, h.c.Frame().IndexOpen)
}

func TestFollowRemote(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{FollowRemote: true})
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := note("a", "", 100, 100)
	a.LastModified = base
	h.push(notes.Initial([]notes.Note{a}))
	initial := h.scroll()
	fresh := viewport.New(h.c.container)
	assert.Equal(t, fresh.Scroll(), initial, "first snapshot never moves the view")

	b := note("b", "", 5000, 1000)
	b.LastModified = base.Add(time.Second)
	h.push(notes.NewSnapshot([]notes.Note{a, b}))
	vp := h.c.Viewport()
	got := vp.Logical(h.c.container.Center(), h.c.container)
	assert.InDelta(t, 5075, got.X, 1e-9)
	assert.InDelta(t, 1040, got.Y, 1e-9)

	// A note this session created becoming newest does not move the view.
	h.send(DoubleClick{Screen: center, Target: Background})
	before := h.scroll()
	own := note("textbox-new1", notes.DefaultText, 10, 10)
	own.LastModified = base.Add(2 * time.Second)
	h.push(notes.NewSnapshot([]notes.Note{a, b, own}))
	assert.Equal(t, before, h.scroll())
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestClose_ReleasesEverything(t *testing.T) {
	t.Parallel()
	h := newHarness(Options{})
	h.push(notes.Initial(nil))
	h.send(PointerDown{Screen: center, Target: Background})

	h.c.Close()
	h.c.Close()

	assert.Equal(t, 1, h.store.unsubscribed)
	assert.Equal(t, []string{"select:false", "capture:true", "capture:false", "select:true"}, h.surface.calls)
	assert.False(t, h.c.Post(ToggleIndex{}))
	h.c.Dispatch(DoubleClick{Screen: center, Target: Background})
	assert.Empty(t, h.store.Writes())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()

	require.True(t, h.c.Post(ToggleIndex{}))
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, h.store.unsubscribed)
}

func TestRender_OnlyOnChange(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	frames := h.frames

	h.send(PointerMove{Screen: center}, PointerUp{Screen: center}, Wheel{Screen: center})
	assert.Equal(t, frames, h.frames)

	h.send(Resize{Container: viewport.Rect{Width: 800, Height: 600}})
	assert.Equal(t, frames+1, h.frames)
}

func TestResize_KeepsInitialFocusCentered(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})

	// An 80x24 terminal with a one-row header.
	term := viewport.Rect{Top: 16, Width: 640, Height: 352}
	h.send(Resize{Container: term})
	vp := h.c.Viewport()
	got := vp.Logical(term.Center(), term)
	assert.InDelta(t, viewport.InitialFocus.X, got.X, 1e-9)
	assert.InDelta(t, viewport.InitialFocus.Y, got.Y, 1e-9)

	lo, hi := vp.VisibleLogical(term)
	assert.Less(t, lo.X, viewport.InitialFocus.X)
	assert.Greater(t, hi.X, viewport.InitialFocus.X)
	assert.Less(t, lo.Y, viewport.InitialFocus.Y)
	assert.Greater(t, hi.Y, viewport.InitialFocus.Y)
}

func TestResize_KeepsCenterAfterPanAndZoom(t *testing.T) {
	t.Parallel()
	h := startHarness(t, Options{})
	h.send(
		Wheel{DeltaX: 300, DeltaY: -120},
		Key{Key: "+", Modifier: true},
	)
	vp := h.c.Viewport()
	before := vp.Logical(h.c.container.Center(), h.c.container)

	next := viewport.Rect{Left: 10, Top: 16, Width: 1000, Height: 400}
	h.send(Resize{Container: next})
	vp = h.c.Viewport()
	after := vp.Logical(next.Center(), next)
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	frames := h.frames
	h.send(Resize{Container: viewport.Rect{Width: 0, Height: 10}})
	assert.Equal(t, frames, h.frames, "degenerate containers are ignored")
}

func TestScope_ClosesLIFOAndSurvivesPanics(t *testing.T) {
	t.Parallel()
	var order []int
	s := scope{name: "test"}
	s.push(func() { order = append(order, 1) })
	s.push(func() { panic("boom") })
	s.push(func() { order = append(order, 3) })

	s.close()
	assert.Equal(t, []int{3, 1}, order)
	assert.Equal(t, 0, s.len())
	s.close()
	assert.Equal(t, []int{3, 1}, order)
}

// =============================================================================
// Random event sequences
// =============================================================================

func TestController_InvariantsUnderRandomEvents(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		h := newHarness(Options{})
		defer h.c.Close()

		ids := []string{"n0", "n1", "n2"}
		present := map[string]bool{}
		snapshot := func() notes.Snapshot {
			var ns []notes.Note
			for i, id := range ids {
				if present[id] {
					ns = append(ns, note(id, id, float64(2400+40*i), 2450))
				}
			}
			return notes.NewSnapshot(ns)
		}
		for _, id := range ids {
			present[id] = true
		}
		h.push(snapshot())

		point := func(label string) viewport.Point {
			return viewport.Point{
				X: rapid.Float64Range(-200, 1500).Draw(t, label+"x"),
				Y: rapid.Float64Range(-200, 900).Draw(t, label+"y"),
			}
		}
		moves := 0
		for i, n := 0, rapid.IntRange(1, 80).Draw(t, "n"); i < n; i++ {
			id := rapid.SampledFrom(ids).Draw(t, "id")
			var ev Event
			switch rapid.IntRange(0, 8).Draw(t, "kind") {
			case 0:
				ev = PointerDown{Screen: point("down"), Target: Surface(id)}
			case 1:
				ev = PointerDown{Screen: point("down"), Target: Background}
			case 2:
				ev = PointerMove{Screen: point("move")}
			case 3:
				ev = PointerUp{Screen: point("up")}
			case 4:
				ev = Wheel{Screen: point("wheel"), DeltaY: rapid.Float64Range(-5, 5).Draw(t, "dy"), Modifier: true}
			case 5:
				present[id] = !present[id]
				ev = SnapshotReceived{Snapshot: snapshot()}
			case 6:
				ev = Focus{NoteID: id}
			case 7:
				ev = Blur{NoteID: id, Text: "t"}
			case 8:
				ev = Key{Key: rapid.SampledFrom([]string{"+", "-", "0", "Escape"}).Draw(t, "key"), Modifier: true}
			}
			if _, ok := ev.(PointerUp); ok && h.c.Gesture().Kind == DraggingNote {
				moves++
			}
			h.send(ev)

			fr := h.c.Frame()
			if fr.Viewport.Zoom < viewport.MinZoom || fr.Viewport.Zoom > viewport.MaxZoom {
				t.Fatalf("zoom %v out of range", fr.Viewport.Zoom)
			}
			for _, nf := range fr.Notes {
				if !viewport.InBounds(nf.Position) {
					t.Fatalf("note %s out of bounds at %+v", nf.ID, nf.Position)
				}
			}
			g := h.c.Gesture()
			if (g.Kind == Idle) != (h.c.gestureScope.len() == 0) {
				t.Fatalf("gesture %s holds %d releases", g.Kind, h.c.gestureScope.len())
			}
			if g.Kind == DraggingNote {
				if _, ok := fr.Note(g.NoteID); !ok {
					t.Fatalf("dragging missing note %s", g.NoteID)
				}
			}
			if fr.Editing != "" {
				if _, ok := fr.Note(fr.Editing); !ok {
					t.Fatalf("editing missing note %s", fr.Editing)
				}
			}
		}

		got := 0
		for _, w := range h.store.Writes() {
			if w.Kind == "upsert" && w.Fields.Text == nil {
				got++
			}
		}
		if got != moves {
			t.Fatalf("%d move writes for %d completed drags", got, moves)
		}
	})
}
