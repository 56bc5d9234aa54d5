package canvas

import (
	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/index"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// createOffset places a new note's center on the double-click point.
var createOffset = viewport.Point{X: viewport.NoteWidth / 2, Y: viewport.NoteHeight / 2}

func (c *Controller) pointerDown(e PointerDown) bool {
	if c.gesture.Kind != Idle {
		return false
	}
	switch e.Target.Kind {
	case TargetNoteSurface:
		return c.startDrag(e.Target.NoteID, e.Screen)
	case TargetBackground:
		return c.startPan(e.Screen)
	default:
		return false
	}
}

func (c *Controller) startDrag(id string, screen viewport.Point) bool {
	v, ok := c.views[id]
	if !ok {
		return false
	}
	grab := c.vp.Logical(screen, c.container)
	c.gesture = Gesture{
		Kind:       DraggingNote,
		NoteID:     id,
		GrabOffset: grab.Sub(v.display),
		Origin:     v.display,
	}
	host := c.opts.Host
	host.CapturePointer(true)
	c.gestureScope.push(func() { host.CapturePointer(false) })
	c.log.Debug("drag started", "note_id", id)
	return true
}

func (c *Controller) startPan(screen viewport.Point) bool {
	c.gesture = Gesture{
		Kind:        PanningCanvas,
		StartScreen: screen,
		StartScroll: c.vp.Scroll(),
	}
	host := c.opts.Host
	host.SetTextSelection(false)
	c.gestureScope.push(func() { host.SetTextSelection(true) })
	host.CapturePointer(true)
	c.gestureScope.push(func() { host.CapturePointer(false) })
	return true
}

func (c *Controller) pointerMove(e PointerMove) bool {
	switch c.gesture.Kind {
	case DraggingNote:
		v := c.views[c.gesture.NoteID]
		next := viewport.ClampNote(c.vp.Logical(e.Screen, c.container).Sub(c.gesture.GrabOffset))
		if next == v.display {
			return false
		}
		v.display = next
		return true
	case PanningCanvas:
		moved := e.Screen.Sub(c.gesture.StartScreen)
		next := c.gesture.StartScroll.Sub(moved)
		if next == c.vp.Scroll() {
			return false
		}
		c.vp.ScrollTo(next)
		return true
	default:
		return false
	}
}

func (c *Controller) pointerUp(e PointerUp) bool {
	switch c.gesture.Kind {
	case DraggingNote:
		c.pointerMove(PointerMove(e))
		id := c.gesture.NoteID
		pos := c.views[id].display
		c.endGesture()
		c.lastInteracted = id
		c.write(OpMove, id, notes.PositionFields(pos))
		return true
	case PanningCanvas:
		c.pointerMove(PointerMove(e))
		c.endGesture()
		return true
	default:
		return false
	}
}

// endGesture returns to Idle and releases everything the gesture acquired.
func (c *Controller) endGesture() {
	if c.gesture.Kind == Idle {
		return
	}
	c.log.Debug("gesture ended", "gesture", c.gesture.Kind.String(), "note_id", c.gesture.NoteID)
	c.gestureScope.close()
	c.gesture = Gesture{}
}

func (c *Controller) doubleClick(e DoubleClick) bool {
	if c.gesture.Kind != Idle || e.Target.Kind != TargetBackground {
		return false
	}
	if err := notes.CheckNoteLimit(len(c.canonical)); err != nil {
		c.log.Warn("note not created", "error", err)
		c.lastErr = errs.Wrap(errs.FailedPrecondition, "canvas is full", err)
		return true
	}
	pos := viewport.ClampNote(c.vp.Logical(e.Screen, c.container).Sub(createOffset))
	id := c.opts.NewID()
	text := notes.DefaultText
	c.lastInteracted = id
	c.write(OpCreate, id, notes.Fields{Text: &text, X: &pos.X, Y: &pos.Y})
	return true
}

func (c *Controller) wheel(e Wheel) bool {
	if !e.Modifier {
		if e.DeltaX == 0 && e.DeltaY == 0 {
			return false
		}
		c.vp.ScrollBy(e.DeltaX, e.DeltaY)
		return true
	}
	switch {
	case e.DeltaY < 0:
		return c.zoomTo(c.vp.Zoom+c.opts.ZoomStep, &e.Screen)
	case e.DeltaY > 0:
		return c.zoomTo(c.vp.Zoom-c.opts.ZoomStep, &e.Screen)
	default:
		return false
	}
}

func (c *Controller) key(e Key) bool {
	if e.Key == "Escape" && c.idx.IsOpen() {
		c.idx.Close()
		return true
	}
	if !e.Modifier {
		return false
	}
	center := c.container.Center()
	switch e.Key {
	case "=", "+":
		return c.zoomTo(c.vp.Zoom+c.opts.ZoomStep, &center)
	case "-", "_":
		return c.zoomTo(c.vp.Zoom-c.opts.ZoomStep, &center)
	case "0":
		return c.zoomTo(viewport.DefaultZoom, &center)
	default:
		return false
	}
}

func (c *Controller) zoomTo(z float64, pivot *viewport.Point) bool {
	return c.vp.SetZoom(z, pivot, c.container)
}

func (c *Controller) focus(e Focus) bool {
	if _, ok := c.views[e.NoteID]; !ok || c.editing == e.NoteID {
		return false
	}
	if c.editing != "" {
		// Focus moved without a blur; the previous note keeps its local text
		// until its own Blur arrives, so only the focus changes here.
		c.log.Debug("focus moved without blur", "from", c.editing, "to", e.NoteID)
	}
	c.editing = e.NoteID
	return true
}

func (c *Controller) edit(e Edit) bool {
	v, ok := c.views[e.NoteID]
	if !ok || c.editing != e.NoteID || v.text == e.Text {
		return false
	}
	v.text = e.Text
	return true
}

func (c *Controller) blur(e Blur) bool {
	v, ok := c.views[e.NoteID]
	if !ok {
		return false
	}
	if c.editing == e.NoteID {
		c.editing = ""
	}
	v.text = e.Text
	v.pending = nil
	c.lastInteracted = e.NoteID
	c.write(OpText, e.NoteID, notes.TextField(e.Text))
	return true
}

func (c *Controller) deleteNote(e DeleteNote) bool {
	if _, ok := c.views[e.NoteID]; !ok {
		return false
	}
	if c.gesture.Dragging(e.NoteID) {
		c.endGesture()
	}
	if c.editing == e.NoteID {
		c.editing = ""
	}
	c.write(OpRemove, e.NoteID, notes.Fields{})
	return true
}

func (c *Controller) jumpTo(e JumpTo) bool {
	entry, ok := c.idx.Select(e.NoteID)
	if !ok {
		return false
	}
	index.JumpTo(&c.vp, c.container, entry)
	return true
}
