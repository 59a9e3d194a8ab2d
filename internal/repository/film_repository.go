package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// CreateFilm inserts a film and fills in its generated id.
func (t *sqlTx) CreateFilm(ctx context.Context, f *model.Film) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `INSERT INTO films (title, duration_minutes, is_active, created_at) VALUES (?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, f.Title, f.DurationMinutes, f.IsActive, f.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)
	return nil
}

// GetFilm returns ErrNotFound when no film has the id.
func (t *sqlTx) GetFilm(ctx context.Context, id uint64) (*model.Film, error) {
	const q = `SELECT id, title, duration_minutes, is_active, created_at FROM films WHERE id = ?`
	var f model.Film
	err := t.tx.QueryRowContext(ctx, q, id).Scan(&f.ID, &f.Title, &f.DurationMinutes, &f.IsActive, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (t *sqlTx) SetFilmActive(ctx context.Context, id uint64, active bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE films SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow maps an UPDATE that matched nothing to ErrNotFound.  The DSN
// sets clientFoundRows so that unchanged rows still count as matched.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
