package canvas

import (
	"sort"
	"time"

	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/index"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// Frame is everything a host needs to draw the canvas.
type Frame struct {
	Viewport  viewport.Viewport
	Container viewport.Rect
	Gesture   Gesture
	// Notes are ordered by id.
	Notes []NoteFrame

	Index     []index.Entry
	IndexOpen bool

	Editing        string
	LastInteracted string
	// Loaded is false until the first snapshot arrives.
	Loaded bool
	// AuthRequired asks the host for a blocking sign-in prompt.
	AuthRequired bool
	// LastError is the user-facing message of the latest failed write.
	LastError string
}

// NoteFrame is one displayed note.
type NoteFrame struct {
	ID           string
	Text         string
	Position     viewport.Point
	Screen       viewport.Rect
	LastModified time.Time
	Dragging     bool
	Editing      bool
	// HasPendingRemote is set when a remote text change waits for blur.
	HasPendingRemote bool
}

// Note returns the displayed note with id.
func (f Frame) Note(id string) (NoteFrame, bool) {
	i := sort.Search(len(f.Notes), func(i int) bool { return f.Notes[i].ID >= id })
	if i < len(f.Notes) && f.Notes[i].ID == id {
		return f.Notes[i], true
	}
	return NoteFrame{}, false
}

func (c *Controller) frame() Frame {
	fr := Frame{
		Viewport:       c.vp,
		Container:      c.container,
		Gesture:        c.gesture,
		Notes:          make([]NoteFrame, 0, len(c.views)),
		Index:          c.idx.Entries(),
		IndexOpen:      c.idx.IsOpen(),
		Editing:        c.editing,
		LastInteracted: c.lastInteracted,
		Loaded:         c.loaded,
		AuthRequired:   c.authRequired,
	}
	if c.lastErr != nil {
		fr.LastError = errs.MessageOf(c.lastErr)
	}
	for id, v := range c.views {
		fr.Notes = append(fr.Notes, NoteFrame{
			ID:               id,
			Text:             v.text,
			Position:         v.display,
			Screen:           c.vp.NoteScreenRect(v.display, c.container),
			LastModified:     c.canonical[id].LastModified,
			Dragging:         c.gesture.Dragging(id),
			Editing:          c.editing == id,
			HasPendingRemote: v.pending != nil,
		})
	}
	sort.Slice(fr.Notes, func(i, j int) bool { return fr.Notes[i].ID < fr.Notes[j].ID })
	return fr
}
