package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/kuitang/sticky-canvas/internal/notes"
)

var (
	// ErrNotFound is returned by Get for a missing note.
	ErrNotFound = errors.New("note not found")

	// ErrInvalidScope is returned for an unusable app or user id.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrInvalidNote is returned for an unusable note id or write.
	ErrInvalidNote = errors.New("invalid note")
)

// Repository persists note collections. Implementations must make Upsert
// and Delete atomic per document. Callers validate and clamp fields first.
type Repository interface {
	// List returns every note in the collection, ordered by id.
	List(ctx context.Context, s Scope) ([]notes.Note, error)
	// Get returns one note or ErrNotFound.
	Get(ctx context.Context, s Scope, id string) (notes.Note, error)
	// Upsert merges f into the note, creating it with defaults for missing
	// fields. now becomes LastModified, and CreatedAt on creation.
	Upsert(ctx context.Context, s Scope, id string, f notes.Fields, now time.Time) (n notes.Note, created bool, err error)
	// Delete removes a note and reports whether it existed.
	Delete(ctx context.Context, s Scope, id string) (notes.Note, bool, error)
	// Count returns how many notes the collection holds.
	Count(ctx context.Context, s Scope) (int, error)
}
