package notes

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// MaxTextBytes bounds the text of a single note.
const MaxTextBytes = 10000

// MaxNotesPerCanvas bounds how many notes one user's canvas may hold.
const MaxNotesPerCanvas = 5000

var (
	// ErrTextTooLong is returned when a write carries more than MaxTextBytes.
	ErrTextTooLong = errors.New("note text too long")

	// ErrInvalidText is returned for text that is not valid UTF-8.
	ErrInvalidText = errors.New("note text is not valid UTF-8")

	// ErrInvalidCoordinate is returned for NaN or infinite coordinates.
	ErrInvalidCoordinate = errors.New("note coordinate must be finite")

	// ErrCanvasFull is returned when creating a note would exceed MaxNotesPerCanvas.
	ErrCanvasFull = errors.New("canvas note limit reached")
)

// ValidateFields checks a write before it reaches storage.
func ValidateFields(f Fields) error {
	if f.Text != nil {
		if len(*f.Text) > MaxTextBytes {
			return fmt.Errorf("%w (%d bytes, limit %d)", ErrTextTooLong, len(*f.Text), MaxTextBytes)
		}
		if !utf8.ValidString(*f.Text) {
			return ErrInvalidText
		}
	}
	for _, c := range []*float64{f.X, f.Y} {
		if c != nil && (math.IsNaN(*c) || math.IsInf(*c, 0)) {
			return ErrInvalidCoordinate
		}
	}
	return nil
}

// CheckNoteLimit checks whether a canvas holding count notes may gain one.
func CheckNoteLimit(count int) error {
	if count >= MaxNotesPerCanvas {
		return fmt.Errorf("%w (limit %d)", ErrCanvasFull, MaxNotesPerCanvas)
	}
	return nil
}
