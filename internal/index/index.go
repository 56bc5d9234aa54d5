// Package index keeps the recency-ordered list of notes shown in the
// canvas's jump-to-note dropdown.
package index

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// Entry is one row of the index.
type Entry struct {
	ID           string
	Text         string
	X            float64
	Y            float64
	LastModified time.Time
}

// Center returns the logical center of the entry's note.
func (e Entry) Center() viewport.Point {
	return viewport.Point{X: e.X + viewport.NoteWidth/2, Y: e.Y + viewport.NoteHeight/2}
}

// Build orders notes by LastModified, newest first. Notes without a
// timestamp sort after all others; ties break by id.
func Build(ns []notes.Note) []Entry {
	entries := make([]Entry, 0, len(ns))
	for _, n := range ns {
		entries = append(entries, Entry{
			ID:           n.ID,
			Text:         n.Text,
			X:            n.X,
			Y:            n.Y,
			LastModified: n.LastModified,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].LastModified, entries[j].LastModified
		switch {
		case a.IsZero() != b.IsZero():
			return b.IsZero()
		case !a.Equal(b):
			return a.After(b)
		default:
			return entries[i].ID < entries[j].ID
		}
	})
	return entries
}

// Index is the dropdown state: its entries and whether it is open.
type Index struct {
	entries []Entry
	open    bool
}

// Rebuild replaces the entries from the canonical note set.
func (x *Index) Rebuild(ns []notes.Note) {
	x.entries = Build(ns)
}

// Entries returns the current entries, newest first.
func (x *Index) Entries() []Entry {
	return x.entries
}

// Newest returns the most recently modified entry.
func (x *Index) Newest() (Entry, bool) {
	if len(x.entries) == 0 {
		return Entry{}, false
	}
	return x.entries[0], true
}

// Filter returns entries whose text contains query, case-insensitively,
// preserving order. An empty query returns everything.
func (x *Index) Filter(query string) []Entry {
	return FilterEntries(x.entries, query)
}

// FilterEntries is Filter over an arbitrary entry list.
func FilterEntries(entries []Entry, query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Text), q) {
			out = append(out, e)
		}
	}
	return out
}

func (x *Index) Open()        { x.open = true }
func (x *Index) Close()       { x.open = false }
func (x *Index) Toggle()      { x.open = !x.open }
func (x *Index) IsOpen() bool { return x.open }

// Select looks up an entry and closes the dropdown when it exists.
func (x *Index) Select(id string) (Entry, bool) {
	for _, e := range x.entries {
		if e.ID == id {
			x.open = false
			return e, true
		}
	}
	return Entry{}, false
}

// JumpTo zooms to FocusZoom (unless already there) and centers the note.
func JumpTo(vp *viewport.Viewport, container viewport.Rect, e Entry) {
	vp.SetZoom(viewport.FocusZoom, nil, container)
	vp.CenterOn(e.Center(), container)
}

// Preview returns a single-line label of at most n runes for the dropdown.
// Empty notes are shown as "(empty)".
func Preview(text string, n int) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i]) + " …"
	}
	if line == "" {
		return "(empty)"
	}
	if n <= 0 || utf8.RuneCountInString(line) <= n {
		return line
	}
	runes := []rune(line)
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
