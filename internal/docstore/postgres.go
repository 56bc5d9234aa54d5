package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/sticky-canvas/internal/db"
	"github.com/kuitang/sticky-canvas/internal/notes"
)

// PostgresRepository stores every scope in one shared textboxes table,
// created by the migrations in internal/db/migrations.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository wraps an open connection.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const pgNoteColumns = `id, text, x, y, created_at, last_modified`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPGNote(row rowScanner, extra ...any) (notes.Note, error) {
	var n notes.Note
	dest := append([]any{&n.ID, &n.Text, &n.X, &n.Y, &n.CreatedAt, &n.LastModified}, extra...)
	if err := row.Scan(dest...); err != nil {
		return notes.Note{}, err
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.LastModified = n.LastModified.UTC()
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, s Scope) ([]notes.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgNoteColumns+` FROM textboxes WHERE app_id = $1 AND user_id = $2 ORDER BY id`,
		s.AppID, s.UserID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []notes.Note
	for rows.Next() {
		n, err := scanPGNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, s Scope, id string) (notes.Note, error) {
	n, err := scanPGNote(r.db.QueryRowContext(ctx,
		`SELECT `+pgNoteColumns+` FROM textboxes WHERE app_id = $1 AND user_id = $2 AND id = $3`,
		s.AppID, s.UserID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, ErrNotFound
	}
	if err != nil {
		return notes.Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// upsertNoteSQL merges in one statement; xmax is zero only for a row the
// statement inserted.
const upsertNoteSQL = `
INSERT INTO textboxes (app_id, user_id, id, text, x, y, created_at, last_modified)
VALUES ($1, $2, $3, COALESCE($4::text, ''), COALESCE($5::double precision, 0), COALESCE($6::double precision, 0), $7, $7)
ON CONFLICT (app_id, user_id, id) DO UPDATE SET
    text = COALESCE($4::text, textboxes.text),
    x = COALESCE($5::double precision, textboxes.x),
    y = COALESCE($6::double precision, textboxes.y),
    last_modified = $7
RETURNING ` + pgNoteColumns + `, (xmax = 0) AS created`

func (r *PostgresRepository) Upsert(ctx context.Context, s Scope, id string, f notes.Fields, now time.Time) (notes.Note, bool, error) {
	var created bool
	n, err := scanPGNote(r.db.QueryRowContext(ctx, upsertNoteSQL,
		s.AppID, s.UserID, id, nullString(f.Text), nullFloat(f.X), nullFloat(f.Y), now.UTC()), &created)
	if err != nil {
		return notes.Note{}, false, fmt.Errorf("upsert note: %w", err)
	}
	return n, created, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, s Scope, id string) (notes.Note, bool, error) {
	n, err := scanPGNote(r.db.QueryRowContext(ctx,
		`DELETE FROM textboxes WHERE app_id = $1 AND user_id = $2 AND id = $3 RETURNING `+pgNoteColumns,
		s.AppID, s.UserID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return notes.Note{}, false, nil
	}
	if err != nil {
		return notes.Note{}, false, fmt.Errorf("delete note: %w", err)
	}
	return n, true, nil
}

func (r *PostgresRepository) Count(ctx context.Context, s Scope) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM textboxes WHERE app_id = $1 AND user_id = $2`,
		s.AppID, s.UserID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}
