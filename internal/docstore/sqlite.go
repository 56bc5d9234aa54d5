package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kuitang/sticky-canvas/internal/db"
	"github.com/kuitang/sticky-canvas/internal/notes"
	"github.com/kuitang/sticky-canvas/internal/viewport"
)

// KeyProvider returns the database key of a user, creating it on first use.
type KeyProvider interface {
	GetOrCreateUserDEK(ctx context.Context, userID string) ([]byte, error)
}

// CanvasOpener returns the canvas database of a scope.
type CanvasOpener func(ctx context.Context, s Scope) (*db.CanvasDB, error)

// SQLiteRepository stores each scope in its own SQLCipher database, keyed
// by the owner's DEK.
type SQLiteRepository struct {
	open CanvasOpener
}

// NewSQLiteRepository opens per-user canvas databases under
// db.DataDirectory with keys from keys.
func NewSQLiteRepository(keys KeyProvider) *SQLiteRepository {
	return NewSQLiteRepositoryWithOpener(func(ctx context.Context, s Scope) (*db.CanvasDB, error) {
		dek, err := keys.GetOrCreateUserDEK(ctx, s.UserID)
		if err != nil {
			return nil, fmt.Errorf("canvas key for %s: %w", s, err)
		}
		return db.OpenCanvasDBWithDEK(db.CanvasKey{AppID: s.AppID, UserID: s.UserID}, dek)
	})
}

// NewSQLiteRepositoryWithOpener uses open to reach canvas databases.
func NewSQLiteRepositoryWithOpener(open CanvasOpener) *SQLiteRepository {
	return &SQLiteRepository{open: open}
}

type noteRow struct {
	ID           string  `db:"id"`
	Text         string  `db:"text"`
	X            float64 `db:"x"`
	Y            float64 `db:"y"`
	CreatedAt    int64   `db:"created_at"`
	LastModified int64   `db:"last_modified"`
}

func (r noteRow) note() notes.Note {
	return notes.Note{
		ID:           r.ID,
		Text:         r.Text,
		X:            r.X,
		Y:            r.Y,
		CreatedAt:    time.UnixMicro(r.CreatedAt).UTC(),
		LastModified: time.UnixMicro(r.LastModified).UTC(),
	}
}

const selectNoteSQL = `SELECT id, text, x, y, created_at, last_modified FROM textboxes`

func (r *SQLiteRepository) List(ctx context.Context, s Scope) ([]notes.Note, error) {
	cdb, err := r.open(ctx, s)
	if err != nil {
		return nil, err
	}
	var rows []noteRow
	if err := cdb.DB().SelectContext(ctx, &rows, selectNoteSQL+` ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	out := make([]notes.Note, len(rows))
	for i, row := range rows {
		out[i] = row.note()
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, s Scope, id string) (notes.Note, error) {
	cdb, err := r.open(ctx, s)
	if err != nil {
		return notes.Note{}, err
	}
	return getNote(ctx, cdb.DB(), id)
}

func getNote(ctx context.Context, q sqlx.QueryerContext, id string) (notes.Note, error) {
	var row noteRow
	err := sqlx.GetContext(ctx, q, &row, selectNoteSQL+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, ErrNotFound
	}
	if err != nil {
		return notes.Note{}, fmt.Errorf("get note: %w", err)
	}
	return row.note(), nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, s Scope, id string, f notes.Fields, now time.Time) (notes.Note, bool, error) {
	cdb, err := r.open(ctx, s)
	if err != nil {
		return notes.Note{}, false, err
	}

	tx, err := cdb.DB().BeginTxx(ctx, nil)
	if err != nil {
		return notes.Note{}, false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = getNote(ctx, tx, id)
	created := errors.Is(err, ErrNotFound)
	if err != nil && !created {
		return notes.Note{}, false, err
	}

	ts := now.UnixMicro()
	maxX, maxY := viewport.CanvasWidth-viewport.NoteWidth, viewport.CanvasHeight-viewport.NoteHeight
	if created {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO textboxes (id, text, x, y, created_at, last_modified)
			 VALUES (?, COALESCE(?, ''), canvas_clamp(CAST(COALESCE(?, 0) AS REAL), 0.0, ?), canvas_clamp(CAST(COALESCE(?, 0) AS REAL), 0.0, ?), ?, ?)`,
			id, nullString(f.Text), nullFloat(f.X), maxX, nullFloat(f.Y), maxY, ts, ts)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE textboxes SET
			     text = COALESCE(?, text),
			     x = canvas_clamp(CAST(COALESCE(?, x) AS REAL), 0.0, ?),
			     y = canvas_clamp(CAST(COALESCE(?, y) AS REAL), 0.0, ?),
			     last_modified = ?
			 WHERE id = ?`,
			nullString(f.Text), nullFloat(f.X), maxX, nullFloat(f.Y), maxY, ts, id)
	}
	if err != nil {
		return notes.Note{}, false, fmt.Errorf("upsert note: %w", err)
	}

	n, err := getNote(ctx, tx, id)
	if err != nil {
		return notes.Note{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return notes.Note{}, false, fmt.Errorf("commit upsert: %w", err)
	}
	return n, created, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, s Scope, id string) (notes.Note, bool, error) {
	cdb, err := r.open(ctx, s)
	if err != nil {
		return notes.Note{}, false, err
	}

	var row noteRow
	found := true
	err = db.WithTx(ctx, cdb.DB().DB, nil, func(ctx context.Context, tx db.DBTX) error {
		err := tx.QueryRowContext(ctx, selectNoteSQL+` WHERE id = ?`, id).
			Scan(&row.ID, &row.Text, &row.X, &row.Y, &row.CreatedAt, &row.LastModified)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("get note: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM textboxes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		return nil
	})
	if err != nil || !found {
		return notes.Note{}, false, err
	}
	return row.note(), true, nil
}

func (r *SQLiteRepository) Count(ctx context.Context, s Scope) (int, error) {
	cdb, err := r.open(ctx, s)
	if err != nil {
		return 0, err
	}
	var n int
	if err := cdb.DB().GetContext(ctx, &n, `SELECT COUNT(*) FROM textboxes`); err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
