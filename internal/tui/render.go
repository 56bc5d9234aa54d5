package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/kuitang/sticky-canvas/internal/canvas"
	"github.com/kuitang/sticky-canvas/internal/index"
)

type class uint8

const (
	clsEmpty class = iota
	clsGrid
	clsNote
	clsNoteActive
	clsNoteDragging
	clsCursor
	clsEntry
)

type styles struct {
	cells  map[class]lipgloss.Style
	header lipgloss.Style
	zoom   lipgloss.Style
	footer lipgloss.Style
	err    lipgloss.Style
	status lipgloss.Style
	editor lipgloss.Style
	label  lipgloss.Style
	prompt lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		cells: map[class]lipgloss.Style{
			clsEmpty:        lipgloss.NewStyle(),
			clsGrid:         lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
			clsNote:         lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("229")),
			clsNoteActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("222")).Bold(true),
			clsNoteDragging: lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("215")),
			clsCursor:       lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("111")),
			clsEntry:        lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")),
		},
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Background(lipgloss.Color("24")),
		zoom:   lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("24")),
		footer: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		editor: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("215")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("215")).Bold(true),
		prompt: lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("203")).Padding(1, 3),
	}
}

type cell struct {
	r rune
	k class
}

// buffer is the canvas area as a grid of styled runes.
type buffer struct {
	width, rows int
	// top is the terminal row of buffer row 0.
	top   int
	cells [][]cell
}

func newBuffer(width, rows, top int) *buffer {
	b := &buffer{width: width, rows: rows, top: top, cells: make([][]cell, rows)}
	for i := range b.cells {
		b.cells[i] = make([]cell, width)
		for j := range b.cells[i] {
			b.cells[i][j] = cell{r: ' '}
		}
	}
	return b
}

// set writes at a terminal cell, ignoring anything outside the buffer.
func (b *buffer) set(col, row int, r rune, k class) {
	y := row - b.top
	if y < 0 || y >= b.rows || col < 0 || col >= b.width {
		return
	}
	b.cells[y][col] = cell{r: r, k: k}
}

func (b *buffer) text(col, row int, s string, k class) {
	for _, r := range s {
		b.set(col, row, r, k)
		col++
	}
}

func (b *buffer) lines(st styles) []string {
	out := make([]string, b.rows)
	var sb strings.Builder
	for y, row := range b.cells {
		sb.Reset()
		start := 0
		for x := 1; x <= len(row); x++ {
			if x < len(row) && row[x].k == row[start].k {
				continue
			}
			run := make([]rune, 0, x-start)
			for _, c := range row[start:x] {
				run = append(run, c.r)
			}
			sb.WriteString(st.cells[row[start].k].Render(string(run)))
			start = x
		}
		out[y] = sb.String()
	}
	return out
}

// drawGrid marks cells crossed by both a vertical and a horizontal grid
// line. Grids denser than two cells are skipped.
func drawGrid(b *buffer, fr canvas.Frame) {
	step := fr.Viewport.GridStep()
	if step < 2*CellWidth || step < CellHeight {
		return
	}
	onLine := func(offset, size float64) bool {
		m := math.Mod(offset, step)
		if m < 0 {
			m += step
		}
		return m < size
	}
	for y := 0; y < b.rows; y++ {
		top := float64((b.top+y)*CellHeight) - fr.Container.Top + fr.Viewport.ScrollY
		if !onLine(top, CellHeight) {
			continue
		}
		for x := 0; x < b.width; x++ {
			left := float64(x*CellWidth) - fr.Container.Left + fr.Viewport.ScrollX
			if onLine(left, CellWidth) {
				b.set(x, b.top+y, '·', clsGrid)
			}
		}
	}
}

func drawNote(b *buffer, n canvas.NoteFrame, active bool) {
	box := boxOf(n)
	k := clsNote
	switch {
	case n.Dragging:
		k = clsNoteDragging
	case active || n.Editing:
		k = clsNoteActive
	}
	right := box.col + box.cols - 1
	bottom := box.row + box.rows - 1
	for x := box.col + 1; x < right; x++ {
		b.set(x, box.row, '─', k)
		b.set(x, bottom, '─', k)
	}
	for y := box.row + 1; y < bottom; y++ {
		b.set(box.col, y, '│', k)
		b.set(right, y, '│', k)
		for x := box.col + 1; x < right; x++ {
			b.set(x, y, ' ', k)
		}
	}
	b.set(box.col, box.row, '╭', k)
	b.set(right, box.row, '╮', k)
	b.set(box.col, bottom, '╰', k)
	b.set(right, bottom, '╯', k)

	var marks string
	if n.Editing {
		marks += "✎"
	}
	if n.HasPendingRemote {
		marks += "*"
	}
	if marks != "" {
		b.text(box.col+2, box.row, marks, k)
	}

	for i, line := range wrapText(n.Text, box.cols-2, box.rows-2) {
		b.text(box.col+1, box.row+1+i, line, k)
	}
}

// wrapText hard-wraps text into at most rows lines of width runes. A cut
// is marked with an ellipsis on the last line.
func wrapText(text string, width, rows int) []string {
	if width <= 0 || rows <= 0 {
		return nil
	}
	var out []string
	truncated := false
	for _, para := range strings.Split(text, "\n") {
		r := []rune(para)
		for {
			if len(out) == rows {
				truncated = true
				break
			}
			if len(r) <= width {
				out = append(out, string(r))
				break
			}
			out = append(out, string(r[:width]))
			r = r[width:]
		}
		if truncated {
			break
		}
	}
	if truncated {
		last := []rune(out[rows-1])
		if len(last) >= width {
			last = last[:width-1]
		}
		out[rows-1] = string(last) + "…"
	}
	return out
}

func (m Model) View() string {
	if m.layout.width <= 0 || m.layout.height <= 0 {
		return ""
	}
	lines := make([]string, 0, m.layout.height)
	lines = append(lines, m.headerLine())
	lines = append(lines, m.canvasLines()...)
	lines = append(lines, m.footerLine())
	return strings.Join(lines, "\n")
}

func (m Model) headerLine() string {
	left := " sticky-canvas"
	if m.opts.User != "" {
		left += " · " + m.opts.User
	}
	left += fmt.Sprintf(" · %d notes ▾", len(m.frame.Notes))
	right := fmt.Sprintf(" Zoom: %d%% ", m.frame.Viewport.ZoomPercent())
	gap := max(0, m.layout.width-lipgloss.Width(left)-lipgloss.Width(right))
	return m.styles.header.Render(left+strings.Repeat(" ", gap)) + m.styles.zoom.Render(right)
}

func (m Model) footerLine() string {
	var line string
	switch {
	case m.frame.LastError != "":
		line = m.styles.err.Render(" " + m.frame.LastError)
	case m.status != "":
		line = m.styles.status.Render(" " + m.status)
	case !m.frame.Loaded:
		line = m.styles.footer.Render(" Loading canvas…")
	default:
		line = m.styles.footer.Render(" " + helpLine(m.keys.canvasHelp()))
	}
	return lipgloss.NewStyle().MaxWidth(m.layout.width).Render(line)
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " · ")
}

func (m Model) canvasLines() []string {
	rows := m.layout.canvasRows()
	if rows == 0 {
		return nil
	}
	if m.frame.AuthRequired {
		return strings.Split(lipgloss.Place(m.layout.width, rows, lipgloss.Center, lipgloss.Center,
			m.styles.prompt.Render("Sign-in required\n\nYour session is no longer valid.\nSign in again and restart the client. Press q to quit.")), "\n")
	}

	b := newBuffer(m.layout.width, rows, headerRows)
	drawGrid(b, m.frame)
	for _, n := range drawOrder(m.frame) {
		drawNote(b, n, n.ID == m.frame.LastInteracted)
	}
	if m.frame.IndexOpen {
		m.drawIndex(b)
	}
	lines := b.lines(m.styles)
	if m.frame.IndexOpen && len(lines) > 0 {
		lines[0] = lipgloss.NewStyle().Width(m.layout.width).MaxWidth(m.layout.width).Render(m.filter.View())
	}
	if m.editingID != "" {
		panel := m.editorPanel()
		if start := len(lines) - len(panel); start >= 0 {
			copy(lines[start:], panel)
		}
	}
	return lines
}

// drawIndex paints the notes dropdown over the top of the canvas. The first
// row is left for the filter input.
func (m Model) drawIndex(b *buffer) {
	entries := m.indexEntries()
	for x := 0; x < b.width; x++ {
		b.set(x, headerRows, ' ', clsEntry)
	}
	if len(entries) == 0 {
		row := headerRows + 1
		for x := 0; x < b.width; x++ {
			b.set(x, row, ' ', clsEntry)
		}
		b.text(2, row, "No notes", clsEntry)
		return
	}
	for i, e := range entries[:min(len(entries), maxIndexRows)] {
		row := headerRows + 1 + i
		k := clsEntry
		if i == m.indexCursor {
			k = clsCursor
		}
		for x := 0; x < b.width; x++ {
			b.set(x, row, ' ', k)
		}
		meta := fmt.Sprintf("(%.0f, %.0f)", e.X, e.Y)
		if !e.LastModified.IsZero() {
			meta += " " + e.LastModified.Local().Format("Jan 2 15:04")
		}
		b.text(2, row, index.Preview(e.Text, max(1, b.width-len(meta)-6)), k)
		b.text(max(0, b.width-len(meta)-1), row, meta, k)
	}
}

func (m Model) editorPanel() []string {
	label := m.styles.label.Render(" Editing note · esc to save")
	box := m.styles.editor.Width(max(1, m.layout.width-2)).Render(m.editor.View())
	return append([]string{label}, strings.Split(box, "\n")...)
}
