package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit      key.Binding
	ZoomIn    key.Binding
	ZoomOut   key.Binding
	ZoomReset key.Binding
	Index     key.Binding
	NewNote   key.Binding
	EditNote  key.Binding
	Delete    key.Binding
	Export    key.Binding
	PanLeft   key.Binding
	PanRight  key.Binding
	PanUp     key.Binding
	PanDown   key.Binding

	Save   key.Binding
	Close  key.Binding
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		ZoomIn:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		ZoomOut:   key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "zoom out")),
		ZoomReset: key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "reset zoom")),
		Index:     key.NewBinding(key.WithKeys("tab", "/"), key.WithHelp("/", "notes")),
		NewNote:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		EditNote:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		Delete:    key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "delete")),
		Export:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		PanLeft:   key.NewBinding(key.WithKeys("left", "h")),
		PanRight:  key.NewBinding(key.WithKeys("right", "l")),
		PanUp:     key.NewBinding(key.WithKeys("up", "k")),
		PanDown:   key.NewBinding(key.WithKeys("down", "j")),

		Save:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "save")),
		Close:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
		Up:     key.NewBinding(key.WithKeys("up", "ctrl+p")),
		Down:   key.NewBinding(key.WithKeys("down", "ctrl+n")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "jump")),
	}
}

func (k keyMap) canvasHelp() []key.Binding {
	return []key.Binding{k.NewNote, k.EditNote, k.Delete, k.Index, k.ZoomIn, k.ZoomOut, k.ZoomReset, k.Export, k.Quit}
}
