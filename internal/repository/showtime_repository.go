package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

const showtimeColumns = `id, film_id, room_id, starts_at, ends_at, price_cents, is_active, created_at, updated_at`

func scanShowtime(sc interface{ Scan(...interface{}) error }, s *model.Showtime) error {
	return sc.Scan(&s.ID, &s.FilmID, &s.RoomID, &s.StartsAt, &s.EndsAt, &s.PriceCents, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
}

// CreateShowtime inserts a showtime.  The caller is expected to hold the
// room lock and to have checked for overlaps.
func (t *sqlTx) CreateShowtime(ctx context.Context, s *model.Showtime) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `INSERT INTO showtimes (film_id, room_id, starts_at, ends_at, price_cents, is_active, created_at, updated_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, s.FilmID, s.RoomID, s.StartsAt.UTC(), s.EndsAt.UTC(), s.PriceCents, s.IsActive,
		s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// UpdateShowtime overwrites the mutable columns.  The room never changes.
func (t *sqlTx) UpdateShowtime(ctx context.Context, s *model.Showtime) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `UPDATE showtimes
			   SET film_id = ?, starts_at = ?, ends_at = ?, price_cents = ?, is_active = ?, updated_at = ?
			   WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, s.FilmID, s.StartsAt.UTC(), s.EndsAt.UTC(), s.PriceCents, s.IsActive, s.UpdatedAt.UTC(), s.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	var s model.Showtime
	err := scanShowtime(t.tx.QueryRowContext(ctx, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ?`, id), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (t *sqlTx) GetShowtimeForUpdate(ctx context.Context, id uint64) (*model.Showtime, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	var s model.Showtime
	err := scanShowtime(t.tx.QueryRowContext(ctx, `SELECT `+showtimeColumns+` FROM showtimes WHERE id = ? FOR UPDATE`, id), &s)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// ListShowtimes returns showtimes of a room, or of every room when roomID is
// zero, ordered by start time.
func (t *sqlTx) ListShowtimes(ctx context.Context, roomID uint64) ([]model.Showtime, error) {
	q := `SELECT ` + showtimeColumns + ` FROM showtimes`
	var args []interface{}
	if roomID != 0 {
		q += ` WHERE room_id = ?`
		args = append(args, roomID)
	}
	q += ` ORDER BY starts_at ASC, id ASC`
	return t.queryShowtimes(ctx, q, args...)
}

// FindOverlapping uses the half-open rule: two windows overlap unless one
// ends at or before the other starts.
func (t *sqlTx) FindOverlapping(ctx context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	const q = `SELECT ` + showtimeColumns + `
			   FROM showtimes
			   WHERE room_id = ? AND is_active = 1 AND id <> ?
				 AND NOT (ends_at <= ? OR starts_at >= ?)
			   ORDER BY starts_at ASC`
	return t.queryShowtimes(ctx, q, roomID, excludeID, start.UTC(), end.UTC())
}

func (t *sqlTx) queryShowtimes(ctx context.Context, q string, args ...interface{}) ([]model.Showtime, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Showtime
	for rows.Next() {
		var s model.Showtime
		if err := scanShowtime(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
