package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kuitang/sticky-canvas/internal/db"
	"github.com/kuitang/sticky-canvas/internal/errs"
)

// MaxDisplayNameRunes bounds a display name.
const MaxDisplayNameRunes = 80

// ProfileService stores display-name overrides in the accounts database.
type ProfileService struct {
	accounts *db.AccountsDB
	clock    Clock
}

// NewProfileService creates a profile service.
func NewProfileService(accounts *db.AccountsDB) *ProfileService {
	return &ProfileService{accounts: accounts, clock: systemClock{}}
}

// DisplayName returns the stored override, or "" when none is set.
func (s *ProfileService) DisplayName(ctx context.Context, uid string) (string, error) {
	p, err := s.accounts.GetProfile(ctx, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return p.DisplayName, nil
}

// UpdateDisplayName stores a trimmed display name of 1 to 80 runes.
func (s *ProfileService) UpdateDisplayName(ctx context.Context, uid, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.New(errs.InvalidArgument, "display name is required")
	}
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > MaxDisplayNameRunes {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("display name must be at most %d characters", MaxDisplayNameRunes))
	}
	err := s.accounts.UpsertProfile(ctx, db.Profile{
		UserID:      uid,
		DisplayName: name,
		UpdatedAt:   s.clock.Now().Unix(),
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// Resolve applies the stored display name to id.
func (s *ProfileService) Resolve(ctx context.Context, id Identity) (Identity, error) {
	name, err := s.DisplayName(ctx, id.UID)
	if err != nil {
		return id, err
	}
	if name != "" {
		id.DisplayName = name
	}
	return id, nil
}
