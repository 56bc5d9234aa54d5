package notes

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// DefaultText is the placeholder text of a freshly created note.
const DefaultText = "New Note"

// Note is one sticky note as stored in the canvas collection.
type Note struct {
	ID   string  `json:"id"`
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	// CreatedAt is assigned by the store on creation and never changes.
	// The zero value means the store has not assigned it.
	CreatedAt time.Time `json:"createdAt,omitzero"`
	// LastModified is refreshed by the store on every write.
	LastModified time.Time `json:"lastModified,omitzero"`
}

// Position returns the note's top-left anchor.
func (n Note) Position() viewport.Point {
	return viewport.Point{X: n.X, Y: n.Y}
}

// Fields is a partial write. Nil fields are left unchanged by the store.
type Fields struct {
	Text *string  `json:"text,omitempty"`
	X    *float64 `json:"x,omitempty"`
	Y    *float64 `json:"y,omitempty"`
}

// TextField builds a text-only write.
func TextField(text string) Fields {
	return Fields{Text: &text}
}

// PositionFields builds a position-only write.
func PositionFields(p viewport.Point) Fields {
	return Fields{X: &p.X, Y: &p.Y}
}

// Empty reports whether the write would change nothing.
func (f Fields) Empty() bool {
	return f.Text == nil && f.X == nil && f.Y == nil
}

// Apply merges f into n. Timestamps are the store's concern and untouched.
func (f Fields) Apply(n Note) Note {
	if f.Text != nil {
		n.Text = *f.Text
	}
	if f.X != nil {
		n.X = *f.X
	}
	if f.Y != nil {
		n.Y = *f.Y
	}
	return n
}

// ChangeType tags a note in a snapshot.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one document change carried by a snapshot.
type Change struct {
	Type ChangeType `json:"type"`
	Note Note       `json:"note"`
}

// Snapshot is the full current state of a canvas collection together with
// the changes since the previous snapshot delivered to the same subscriber.
type Snapshot struct {
	Notes   []Note   `json:"notes"`
	Changes []Change `json:"changes,omitempty"`
}

// NewSnapshot orders notes by id and attaches changes.
func NewSnapshot(notes []Note, changes ...Change) Snapshot {
	sorted := make([]Note, len(notes))
	copy(sorted, notes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return Snapshot{Notes: sorted, Changes: changes}
}

// Initial returns a snapshot in which every note is tagged added, which is
// what a fresh subscriber receives first.
func Initial(notes []Note) Snapshot {
	s := NewSnapshot(notes)
	s.Changes = make([]Change, 0, len(s.Notes))
	for _, n := range s.Notes {
		s.Changes = append(s.Changes, Change{Type: ChangeAdded, Note: n})
	}
	return s
}

// Lookup returns the note with the given id.
func (s Snapshot) Lookup(id string) (Note, bool) {
	i := sort.Search(len(s.Notes), func(i int) bool { return s.Notes[i].ID >= id })
	if i < len(s.Notes) && s.Notes[i].ID == id {
		return s.Notes[i], true
	}
	return Note{}, false
}

// UnmarshalJSON decodes a stored document leniently: missing or
// non-numeric coordinates become 0, missing text becomes "", and missing or
// malformed timestamps stay unset.
func (n *Note) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Note{
		ID:           decodeString(raw["id"]),
		Text:         decodeString(raw["text"]),
		X:            decodeNumber(raw["x"]),
		Y:            decodeNumber(raw["y"]),
		CreatedAt:    decodeTime(raw["createdAt"]),
		LastModified: decodeTime(raw["lastModified"]),
	}
	return nil
}

func decodeString(msg json.RawMessage) string {
	var s string
	if len(msg) == 0 || json.Unmarshal(msg, &s) != nil {
		return ""
	}
	return s
}

func decodeNumber(msg json.RawMessage) float64 {
	var f float64
	if len(msg) == 0 || json.Unmarshal(msg, &f) != nil {
		return 0
	}
	return f
}

func decodeTime(msg json.RawMessage) time.Time {
	var t time.Time
	if len(msg) == 0 || json.Unmarshal(msg, &t) != nil {
		return time.Time{}
	}
	return t
}
