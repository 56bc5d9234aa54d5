// Package docstore is the server-side document store for canvas notes. It
// holds one collection per (application, user), applies partial-merge
// upserts and hard deletes, and fans every change out to live subscribers.
package docstore

import (
	"fmt"
	"strings"
	"time"
)

// Scope names one user's note collection within one application.
type Scope struct {
	AppID  string
	UserID string
}

// CollectionPath is the document path of the collection. It is used for
// logging and export keys; storage layouts are up to the repository.
func (s Scope) CollectionPath() string {
	return fmt.Sprintf("artifacts/%s/users/%s/textboxes", s.AppID, s.UserID)
}

// ExportPrefix is the object key prefix of the scope's exports.
func (s Scope) ExportPrefix() string {
	return fmt.Sprintf("artifacts/%s/users/%s/exports/", s.AppID, s.UserID)
}

// ExportKey is the object key of a snapshot export taken at t.
func (s Scope) ExportKey(t time.Time) string {
	return fmt.Sprintf("%s%d.json", s.ExportPrefix(), t.UnixNano())
}

// Validate rejects scopes that cannot address a collection.
func (s Scope) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is empty", ErrInvalidScope)
	}
	if len(s.UserID) > 256 || strings.ContainsAny(s.UserID, "/\\\x00") {
		return fmt.Errorf("%w: invalid user id", ErrInvalidScope)
	}
	if s.AppID == "" || len(s.AppID) > 128 || s.AppID == "." || s.AppID == ".." {
		return fmt.Errorf("%w: invalid app id %q", ErrInvalidScope, s.AppID)
	}
	for _, r := range s.AppID {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("%w: invalid app id %q", ErrInvalidScope, s.AppID)
		}
	}
	return nil
}

func (s Scope) String() string {
	return s.AppID + "/" + s.UserID
}
