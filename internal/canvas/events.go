package canvas

import (
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// Event is an input to the controller. Hosts translate raw input into
// events; the store adapter and write completions arrive as events too.
type Event interface {
	event()
}

// TargetKind says what a pointer event landed on.
type TargetKind int

const (
	// TargetBackground is empty canvas.
	TargetBackground TargetKind = iota
	// TargetNoteSurface is the draggable frame of a note.
	TargetNoteSurface
	// TargetNoteContent is a note's editable text. It never starts a drag.
	TargetNoteContent
)

// Target is the hit-test result for a pointer event.
type Target struct {
	Kind   TargetKind
	NoteID string
}

// Background is the hit target for empty canvas.
var Background = Target{Kind: TargetBackground}

// Surface returns the drag-handle target of a note.
func Surface(id string) Target { return Target{Kind: TargetNoteSurface, NoteID: id} }

// Content returns the text-area target of a note.
func Content(id string) Target { return Target{Kind: TargetNoteContent, NoteID: id} }

type (
	PointerDown struct {
		Screen viewport.Point
		Target Target
	}
	PointerMove struct {
		Screen viewport.Point
	}
	PointerUp struct {
		Screen viewport.Point
	}
	DoubleClick struct {
		Screen viewport.Point
		Target Target
	}
	// Wheel with Modifier (ctrl/meta) zooms around the pointer; without it
	// the canvas scrolls by the delta.
	Wheel struct {
		Screen         viewport.Point
		DeltaX, DeltaY float64
		Modifier       bool
	}
	// Key carries a shortcut key. Zoom shortcuts need Modifier.
	Key struct {
		Key      string
		Modifier bool
	}
	Focus struct {
		NoteID string
	}
	// Edit is a local keystroke-level change of a focused note's text.
	Edit struct {
		NoteID string
		Text   string
	}
	// Blur ends editing and commits Text.
	Blur struct {
		NoteID string
		Text   string
	}
	DeleteNote struct {
		NoteID string
	}
	Resize struct {
		Container viewport.Rect
	}
	ToggleIndex struct{}
	JumpTo      struct {
		NoteID string
	}
	SnapshotReceived struct {
		Snapshot notes.Snapshot
	}
	WriteCompleted struct {
		Op     WriteOp
		NoteID string
		Err    error
	}
)

func (PointerDown) event()      {}
func (PointerMove) event()      {}
func (PointerUp) event()        {}
func (DoubleClick) event()      {}
func (Wheel) event()            {}
func (Key) event()              {}
func (Focus) event()            {}
func (Edit) event()             {}
func (Blur) event()             {}
func (DeleteNote) event()       {}
func (Resize) event()           {}
func (ToggleIndex) event()      {}
func (JumpTo) event()           {}
func (SnapshotReceived) event() {}
func (WriteCompleted) event()   {}

// WriteOp names a store write issued by the controller.
type WriteOp string

const (
	OpCreate WriteOp = "create"
	OpMove   WriteOp = "move"
	OpText   WriteOp = "text"
	OpRemove WriteOp = "remove"
)
