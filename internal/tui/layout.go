// Package tui is a terminal host for the canvas controller. It maps mouse
// and key input to canvas events and draws controller frames as text.
//
// The controller works in pixels; the terminal grid is treated as cells of
// CellWidth x CellHeight pixels. Row 0 is the header, the last row the
// footer, and everything between is the canvas container.
package tui

import (
	"math"

	"github.com/kuitang/sticky-canvas/internal/canvas"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

const (
	CellWidth  = 8
	CellHeight = 16

	headerRows = 1
	footerRows = 1
)

var (
	noteCols = int(math.Round(viewport.NoteWidth / CellWidth))
	noteRows = int(math.Round(viewport.NoteHeight / CellHeight))
)

// layout is the terminal geometry for one window size.
type layout struct {
	width  int
	height int
}

func (l layout) canvasRows() int {
	return max(0, l.height-headerRows-footerRows)
}


func (l layout) inCanvas(row int) bool {
	return row >= headerRows && row < headerRows+l.canvasRows()
}

// container is the canvas area in screen pixels.
func (l layout) container() viewport.Rect {
	return viewport.Rect{
		Left:   0,
		Top:    headerRows * CellHeight,
		Width:  float64(l.width * CellWidth),
		Height: float64(l.canvasRows() * CellHeight),
	}
}

// cellCenter is the screen pixel at the middle of a terminal cell.
func cellCenter(col, row int) viewport.Point {
	return viewport.Point{
		X: float64(col*CellWidth) + CellWidth/2,
		Y: float64(row*CellHeight) + CellHeight/2,
	}
}

// cellOf is the terminal cell containing a screen pixel.
func cellOf(p viewport.Point) (col, row int) {
	return int(math.Floor(p.X / CellWidth)), int(math.Floor(p.Y / CellHeight))
}

// noteBox is a note's footprint in terminal cells.
type noteBox struct {
	col, row   int
	cols, rows int
}

func boxOf(n canvas.NoteFrame) noteBox {
	col, row := cellOf(viewport.Point{X: n.Screen.Left, Y: n.Screen.Top})
	return noteBox{col: col, row: row, cols: noteCols, rows: noteRows}
}

func (b noteBox) contains(col, row int) bool {
	return col >= b.col && col < b.col+b.cols && row >= b.row && row < b.row+b.rows
}

// onBorder reports whether the cell is on the frame of the box, which is
// the drag handle. The interior is the editable text.
func (b noteBox) onBorder(col, row int) bool {
	return row == b.row || row == b.row+b.rows-1 || col == b.col || col == b.col+b.cols-1
}

// drawOrder returns notes bottom to top: by id, with the note the user is
// working with raised above the rest.
func drawOrder(fr canvas.Frame) []canvas.NoteFrame {
	out := make([]canvas.NoteFrame, 0, len(fr.Notes))
	var raised []canvas.NoteFrame
	for _, n := range fr.Notes {
		if n.Dragging || n.Editing || n.ID == fr.LastInteracted {
			raised = append(raised, n)
			continue
		}
		out = append(out, n)
	}
	return append(out, raised...)
}

// hitTest resolves the topmost target under a cell.
func hitTest(fr canvas.Frame, col, row int) canvas.Target {
	order := drawOrder(fr)
	for i := len(order) - 1; i >= 0; i-- {
		b := boxOf(order[i])
		if !b.contains(col, row) {
			continue
		}
		if b.onBorder(col, row) {
			return canvas.Surface(order[i].ID)
		}
		return canvas.Content(order[i].ID)
	}
	return canvas.Background
}
