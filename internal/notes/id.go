package notes

import (
	"strings"

	"github.com/google/uuid"
)

// IDPrefix starts every client-generated note id.
const IDPrefix = "textbox-"

// NewID returns a fresh note id. Ids are random; a collision would merge
// into the existing document.
func NewID() string {
	return IDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidID reports whether id is usable as a document key: non-empty, at most
// 128 bytes, and free of path separators and control characters.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}
