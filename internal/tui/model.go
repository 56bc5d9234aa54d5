package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kuitang/sticky-canvas/internal/canvas"
	"github.com/kuitang/sticky-canvas/internal/errs"
	"github.com/kuitang/sticky-canvas/internal/index"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

const (
	doubleClickWindow = 400 * time.Millisecond
	exportTimeout     = 30 * time.Second
	// panCells is how far one arrow key pans.
	panCells = 4
	// wheelPixels is the scroll delta of one wheel notch.
	wheelPixels = 3 * CellHeight

	maxIndexRows = 8
	editorRows   = 3
)

// Poster accepts controller events. *canvas.Controller implements it.
type Poster interface {
	Post(canvas.Event) bool
}

// Options configures the terminal host.
type Options struct {
	// User is shown in the header.
	User string
	// Export writes a snapshot to object storage and returns its URL.
	Export func(ctx context.Context) (string, error)
	Now    func() time.Time
}

type click struct {
	at       time.Time
	col, row int
}

type exportDoneMsg struct {
	url string
	err error
}

// Model is the bubbletea model of the terminal host. It never touches
// controller state directly: input becomes events posted to the
// controller, and the controller's frames come back as FrameMsg.
type Model struct {
	events Poster
	opts   Options
	keys   keyMap
	styles styles

	layout layout
	frame  canvas.Frame

	editor    textarea.Model
	editingID string

	filter      textinput.Model
	indexCursor int

	pressed   bool
	lastClick click
	status    string
}

// New returns a model that posts input to events.
func New(events Poster, opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	editor := textarea.New()
	editor.ShowLineNumbers = false
	editor.CharLimit = notes.MaxTextBytes
	editor.SetHeight(editorRows)

	filter := textinput.New()
	filter.Prompt = "Find: "
	filter.Placeholder = "type to filter notes"
	filter.CharLimit = 200

	return Model{
		events: events,
		opts:   opts,
		keys:   defaultKeyMap(),
		styles: defaultStyles(),
		editor: editor,
		filter: filter,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = layout{width: msg.Width, height: msg.Height}
		m.editor.SetWidth(max(10, msg.Width-4))
		m.filter.Width = max(10, msg.Width-len(m.filter.Prompt)-2)
		m.post(canvas.Resize{Container: m.layout.container()})
		return m, nil

	case FrameMsg:
		m.frame = canvas.Frame(msg)
		m.syncOverlays()
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.status = "Export failed: " + errs.MessageOf(msg.err)
		} else {
			m.status = "Exported to " + msg.url
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		cmd := m.handleMouse(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) post(ev canvas.Event) {
	if m.events != nil {
		m.events.Post(ev)
	}
}

// syncOverlays follows controller state the host mirrors: a note deleted
// under the editor closes it, and the index dropdown owns the filter input.
func (m *Model) syncOverlays() {
	if m.editingID != "" {
		if _, ok := m.frame.Note(m.editingID); !ok {
			m.closeEditor()
			m.status = "The note you were editing was deleted."
		}
	}
	switch {
	case m.frame.IndexOpen && !m.filter.Focused():
		m.filter.Reset()
		m.filter.Focus()
		m.indexCursor = 0
	case !m.frame.IndexOpen && m.filter.Focused():
		m.filter.Blur()
	}
	if n := len(m.indexEntries()); m.indexCursor >= n {
		m.indexCursor = max(0, n-1)
	}
}

func (m Model) indexEntries() []index.Entry {
	return index.FilterEntries(m.frame.Index, m.filter.Value())
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.commitEdit()
		return m, tea.Quit
	}
	if m.frame.AuthRequired {
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.editingID != "" {
		return m.handleEditorKey(msg)
	}
	if m.frame.IndexOpen {
		return m.handleIndexKey(msg)
	}

	center := m.layout.container().Center()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ZoomIn):
		m.post(canvas.Key{Key: "=", Modifier: true})
	case key.Matches(msg, m.keys.ZoomOut):
		m.post(canvas.Key{Key: "-", Modifier: true})
	case key.Matches(msg, m.keys.ZoomReset):
		m.post(canvas.Key{Key: "0", Modifier: true})
	case key.Matches(msg, m.keys.Index):
		m.post(canvas.ToggleIndex{})
	case key.Matches(msg, m.keys.NewNote):
		m.post(canvas.DoubleClick{Screen: center, Target: canvas.Background})
	case key.Matches(msg, m.keys.EditNote):
		if id := m.frame.LastInteracted; id != "" {
			cmd := m.startEdit(id)
			return m, cmd
		}
	case key.Matches(msg, m.keys.Delete):
		if id := m.frame.LastInteracted; id != "" {
			m.post(canvas.DeleteNote{NoteID: id})
		}
	case key.Matches(msg, m.keys.Export):
		return m, m.export()
	case key.Matches(msg, m.keys.PanLeft):
		m.post(canvas.Wheel{Screen: center, DeltaX: -panCells * CellWidth})
	case key.Matches(msg, m.keys.PanRight):
		m.post(canvas.Wheel{Screen: center, DeltaX: panCells * CellWidth})
	case key.Matches(msg, m.keys.PanUp):
		m.post(canvas.Wheel{Screen: center, DeltaY: -panCells * CellHeight})
	case key.Matches(msg, m.keys.PanDown):
		m.post(canvas.Wheel{Screen: center, DeltaY: panCells * CellHeight})
	}
	return m, nil
}

func (m Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Save) {
		m.commitEdit()
		return m, nil
	}
	before := m.editor.Value()
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	if after := m.editor.Value(); after != before {
		m.post(canvas.Edit{NoteID: m.editingID, Text: after})
	}
	return m, cmd
}

func (m Model) handleIndexKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := m.indexEntries()
	switch {
	case key.Matches(msg, m.keys.Close):
		m.post(canvas.Key{Key: "Escape"})
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.indexCursor > 0 {
			m.indexCursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.indexCursor < len(entries)-1 {
			m.indexCursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Select):
		if m.indexCursor < len(entries) {
			m.post(canvas.JumpTo{NoteID: entries[m.indexCursor].ID})
		}
		return m, nil
	}
	before := m.filter.Value()
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	if m.filter.Value() != before {
		m.indexCursor = 0
	}
	return m, cmd
}

func (m *Model) startEdit(id string) tea.Cmd {
	n, ok := m.frame.Note(id)
	if !ok {
		return nil
	}
	if m.editingID == id {
		return nil
	}
	m.commitEdit()
	m.post(canvas.Focus{NoteID: id})
	m.editingID = id
	m.editor.SetValue(n.Text)
	m.status = ""
	return m.editor.Focus()
}

// commitEdit ends editing and sends the editor text as the note's final
// text.
func (m *Model) commitEdit() {
	if m.editingID == "" {
		return
	}
	m.post(canvas.Blur{NoteID: m.editingID, Text: m.editor.Value()})
	m.closeEditor()
}

func (m *Model) closeEditor() {
	m.editingID = ""
	m.editor.Blur()
	m.editor.Reset()
}

func (m Model) export() tea.Cmd {
	if m.opts.Export == nil {
		return nil
	}
	export := m.opts.Export
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		url, err := export(ctx)
		return exportDoneMsg{url: url, err: err}
	}
}

func (m *Model) handleMouse(msg tea.MouseMsg) tea.Cmd {
	if m.frame.AuthRequired {
		return nil
	}
	p := cellCenter(msg.X, msg.Y)

	switch msg.Button {
	case tea.MouseButtonWheelUp, tea.MouseButtonWheelDown, tea.MouseButtonWheelLeft, tea.MouseButtonWheelRight:
		if !m.layout.inCanvas(msg.Y) {
			return nil
		}
		m.post(wheelEvent(msg, p))
		return nil
	}

	switch msg.Action {
	case tea.MouseActionMotion:
		if m.pressed {
			m.post(canvas.PointerMove{Screen: p})
		}
		return nil
	case tea.MouseActionRelease:
		if m.pressed {
			m.pressed = false
			m.post(canvas.PointerUp{Screen: p})
		}
		return nil
	case tea.MouseActionPress:
	default:
		return nil
	}

	if msg.Y < headerRows {
		if msg.Button == tea.MouseButtonLeft {
			m.post(canvas.ToggleIndex{})
		}
		return nil
	}
	if !m.layout.inCanvas(msg.Y) {
		return nil
	}
	if m.frame.IndexOpen {
		return m.pressIndex(msg)
	}
	if m.editingID != "" && m.inEditorPanel(msg.Y) {
		return nil
	}

	target := hitTest(m.frame, msg.X, msg.Y)
	switch msg.Button {
	case tea.MouseButtonRight:
		if target.NoteID != "" {
			m.post(canvas.DeleteNote{NoteID: target.NoteID})
		}
		return nil
	case tea.MouseButtonLeft:
	default:
		return nil
	}

	if m.editingID != "" && target.NoteID != m.editingID {
		m.commitEdit()
	}
	double := m.registerClick(msg.X, msg.Y)
	switch target.Kind {
	case canvas.TargetNoteContent:
		return m.startEdit(target.NoteID)
	case canvas.TargetBackground:
		if double {
			m.post(canvas.DoubleClick{Screen: p, Target: target})
			return nil
		}
	}
	m.pressed = true
	m.post(canvas.PointerDown{Screen: p, Target: target})
	return nil
}

func wheelEvent(msg tea.MouseMsg, p viewport.Point) canvas.Wheel {
	ev := canvas.Wheel{Screen: p, Modifier: msg.Ctrl || msg.Alt}
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		ev.DeltaY = -wheelPixels
	case tea.MouseButtonWheelDown:
		ev.DeltaY = wheelPixels
	case tea.MouseButtonWheelLeft:
		ev.DeltaX = -wheelPixels
	case tea.MouseButtonWheelRight:
		ev.DeltaX = wheelPixels
	}
	if msg.Shift && ev.DeltaX == 0 {
		ev.DeltaX, ev.DeltaY = ev.DeltaY, 0
	}
	return ev
}

// registerClick records a left press and reports whether it completes a
// double click on the same cell.
func (m *Model) registerClick(col, row int) bool {
	now := m.opts.Now()
	prev := m.lastClick
	m.lastClick = click{at: now, col: col, row: row}
	if prev.at.IsZero() || prev.col != col || prev.row != row {
		return false
	}
	if now.Sub(prev.at) > doubleClickWindow {
		return false
	}
	m.lastClick = click{}
	return true
}

func (m *Model) pressIndex(msg tea.MouseMsg) tea.Cmd {
	// Row headerRows holds the filter input; entries follow.
	i := msg.Y - headerRows - 1
	entries := m.indexEntries()
	if msg.Button != tea.MouseButtonLeft || i < 0 || i >= min(len(entries), maxIndexRows) {
		m.post(canvas.Key{Key: "Escape"})
		return nil
	}
	m.post(canvas.JumpTo{NoteID: entries[i].ID})
	return nil
}

func (m Model) editorPanelRows() int {
	return editorRows + 3
}

func (m Model) inEditorPanel(row int) bool {
	last := headerRows + m.layout.canvasRows()
	return row >= last-m.editorPanelRows() && row < last
}
