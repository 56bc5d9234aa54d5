package canvas

import (
	"fmt"

	"github.com/kuitang/sticky-canvas/internal/obs"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// GestureKind is the interaction mode of the canvas.
type GestureKind int

const (
	Idle GestureKind = iota
	DraggingNote
	PanningCanvas
)

func (k GestureKind) String() string {
	switch k {
	case Idle:
		return "idle"
	case DraggingNote:
		return "dragging_note"
	case PanningCanvas:
		return "panning_canvas"
	default:
		return fmt.Sprintf("gesture(%d)", int(k))
	}
}

// Gesture is the single interaction state. Fields beyond Kind are only
// meaningful for the kind that sets them.
type Gesture struct {
	Kind GestureKind

	// DraggingNote
	NoteID     string
	GrabOffset viewport.Point
	Origin     viewport.Point

	// PanningCanvas
	StartScreen viewport.Point
	StartScroll viewport.Point
}

// Dragging reports whether the note with id is under an active drag.
func (g Gesture) Dragging(id string) bool {
	return g.Kind == DraggingNote && g.NoteID == id
}

// scope is a LIFO stack of release functions. Every resource acquired for
// a gesture or a mount pushes its release here; close runs each exactly once.
type scope struct {
	name string
	fns  []func()
}

func (s *scope) push(fn func()) {
	s.fns = append(s.fns, fn)
}

func (s *scope) close() {
	for i := len(s.fns) - 1; i >= 0; i-- {
		s.run(s.fns[i])
	}
	s.fns = nil
}

func (s *scope) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			obs.Pkg("canvas").Error("cleanup panicked", "scope", s.name, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (s *scope) len() int { return len(s.fns) }
