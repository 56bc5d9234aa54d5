// Package canvas is the collaborative canvas controller. It owns one
// session's viewport, gesture state and displayed notes, and reconciles
// them against snapshots from a notes.Store.
//
// A Controller is single-threaded: all events are processed by Dispatch on
// one goroutine, normally the one running Run. Store callbacks and write
// completions arrive from other goroutines through Post.
package canvas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kuitang/sticky-canvas/internal/index"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// Renderer receives a frame after every event that changed visible state.
type Renderer interface {
	Render(Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame)

func (f RendererFunc) Render(fr Frame) { f(fr) }

// Host applies host-level side effects of gestures.
type Host interface {
	// SetTextSelection toggles document text selection; panning disables it.
	SetTextSelection(enabled bool)
	// CapturePointer routes pointer events to the canvas until released,
	// so a drag keeps tracking outside the note.
	CapturePointer(capture bool)
}

type nopHost struct{}

func (nopHost) SetTextSelection(bool) {}
func (nopHost) CapturePointer(bool)   {}

// Executor runs a store write off the event loop.
type Executor func(task func())

// GoExecutor runs each task on its own goroutine.
func GoExecutor(task func()) { go task() }

// Options configures a Controller. Zero values pick defaults.
type Options struct {
	Container viewport.Rect
	// ZoomStep is the zoom delta per wheel notch or shortcut.
	ZoomStep float64
	// FollowRemote recenters on a note when someone else makes it the newest.
	FollowRemote bool
	Renderer     Renderer
	Host         Host
	Executor     Executor
	QueueSize    int
	// NewID generates ids for created notes.
	NewID  func() string
	Logger *slog.Logger
}

type noteView struct {
	display viewport.Point
	text    string
	// pending holds remote text that arrived while the note was focused.
	pending *string
}

// Controller is one canvas session.
type Controller struct {
	store notes.Store
	opts  Options
	log   *slog.Logger

	vp        viewport.Viewport
	container viewport.Rect

	gesture      Gesture
	gestureScope scope
	mountScope   scope

	canonical map[string]notes.Note
	views     map[string]*noteView
	idx       index.Index
	editing   string

	lastInteracted string
	newest         string
	loaded         bool
	authRequired   bool
	lastErr        error

	events   chan Event
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	mounted  bool
	closed   bool
}

// New creates a controller for store. Call Mount to start receiving
// snapshots.
func New(store notes.Store, opts Options) *Controller {
	if opts.ZoomStep <= 0 {
		opts.ZoomStep = viewport.ZoomStep
	}
	if opts.Host == nil {
		opts.Host = nopHost{}
	}
	if opts.Executor == nil {
		opts.Executor = GoExecutor
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.NewID == nil {
		opts.NewID = notes.NewID
	}
	if opts.Logger == nil {
		opts.Logger = obs.Pkg("canvas")
	}
	if opts.Container.Width <= 0 || opts.Container.Height <= 0 {
		opts.Container = viewport.Rect{Width: 1280, Height: 720}
	}

	c := &Controller{
		store:        store,
		opts:         opts,
		log:          opts.Logger,
		container:    opts.Container,
		vp:           viewport.New(opts.Container),
		canonical:    make(map[string]notes.Note),
		views:        make(map[string]*noteView),
		events:       make(chan Event, opts.QueueSize),
		done:         make(chan struct{}),
		gestureScope: scope{name: "gesture"},
		mountScope:   scope{name: "mount"},
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Mount subscribes to the store. Snapshots are posted to the event queue.
// The subscription is released by Close.
func (c *Controller) Mount(ctx context.Context) error {
	if c.mounted || c.closed {
		return nil
	}
	unsubscribe, err := c.store.Subscribe(ctx, func(s notes.Snapshot) {
		c.Post(SnapshotReceived{Snapshot: s})
	})
	if err != nil {
		c.log.Warn("subscribe failed", "error", err)
		c.noteWriteError(err)
		c.render()
		return err
	}
	c.mounted = true
	c.mountScope.push(unsubscribe)
	c.render()
	return nil
}

// Post enqueues an event for the loop. It blocks while the queue is full
// and returns false once the controller is closed.
func (c *Controller) Post(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case <-c.done:
		return false
	case c.events <- ev:
		return true
	}
}

// Run dispatches queued events until ctx is done, then closes the
// controller.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.Dispatch(ev)
		}
	}
}

// Drain dispatches every event already queued and returns how many ran.
func (c *Controller) Drain() int {
	n := 0
	for {
		select {
		case ev := <-c.events:
			c.Dispatch(ev)
			n++
		default:
			return n
		}
	}
}

// Dispatch processes one event. It must only be called from the goroutine
// that owns the controller.
func (c *Controller) Dispatch(ev Event) {
	if c.closed {
		return
	}
	if c.handle(ev) {
		c.render()
	}
}

func (c *Controller) handle(ev Event) bool {
	switch e := ev.(type) {
	case PointerDown:
		return c.pointerDown(e)
	case PointerMove:
		return c.pointerMove(e)
	case PointerUp:
		return c.pointerUp(e)
	case DoubleClick:
		return c.doubleClick(e)
	case Wheel:
		return c.wheel(e)
	case Key:
		return c.key(e)
	case Focus:
		return c.focus(e)
	case Edit:
		return c.edit(e)
	case Blur:
		return c.blur(e)
	case DeleteNote:
		return c.deleteNote(e)
	case Resize:
		return c.resize(e.Container)
	case ToggleIndex:
		c.idx.Toggle()
		return true
	case JumpTo:
		return c.jumpTo(e)
	case SnapshotReceived:
		c.reconcile(e.Snapshot)
		return true
	case WriteCompleted:
		return c.writeCompleted(e)
	default:
		c.log.Debug("unknown event", "type", fmt.Sprintf("%T", ev))
		return false
	}
}

// resize swaps the container and keeps the logical point at its center in
// place.
func (c *Controller) resize(container viewport.Rect) bool {
	if container == c.container || container.Width <= 0 || container.Height <= 0 {
		return false
	}
	focus := c.vp.Logical(c.container.Center(), c.container)
	c.container = container
	c.vp.CenterOn(focus, container)
	return true
}

// Close tears the session down: any gesture ends and releases its
// resources, the store subscription is cancelled, and in-flight writes are
// cancelled and awaited. Close is idempotent and must not run concurrently
// with Run; cancel Run's context instead.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.done)
	c.endGesture()
	c.editing = ""
	c.mountScope.close()
	c.mounted = false
	c.inflight.Wait()
}

// Frame returns the current visible state.
func (c *Controller) Frame() Frame {
	return c.frame()
}

// Gesture returns the current interaction state.
func (c *Controller) Gesture() Gesture {
	return c.gesture
}

// Viewport returns the current zoom and scroll.
func (c *Controller) Viewport() viewport.Viewport {
	return c.vp
}

func (c *Controller) render() {
	if c.opts.Renderer != nil {
		c.opts.Renderer.Render(c.frame())
	}
}

// write issues a store write through the executor and posts its outcome.
func (c *Controller) write(op WriteOp, id string, f notes.Fields) {
	ctx := c.ctx
	c.log.Debug("store write", "op", string(op), "note_id", id)
	c.inflight.Add(1)
	c.opts.Executor(func() {
		defer c.inflight.Done()
		var err error
		if op == OpRemove {
			err = c.store.Remove(ctx, id)
		} else {
			err = c.store.Upsert(ctx, id, f)
		}
		c.Post(WriteCompleted{Op: op, NoteID: id, Err: err})
	})
}
