package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// CreateRoom inserts a room.  Seats are inserted separately with CreateSeats
// in the same transaction.
func (t *sqlTx) CreateRoom(ctx context.Context, r *model.Room) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `INSERT INTO rooms (name, seat_rows, seats_per_row, is_active, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, r.Name, r.SeatRows, r.SeatsPerRow, r.IsActive, r.CreatedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return nil
}

func (t *sqlTx) GetRoom(ctx context.Context, id uint64) (*model.Room, error) {
	const q = `SELECT id, name, seat_rows, seats_per_row, is_active, created_at FROM rooms WHERE id = ?`
	var r model.Room
	err := t.tx.QueryRowContext(ctx, q, id).Scan(&r.ID, &r.Name, &r.SeatRows, &r.SeatsPerRow, &r.IsActive, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (t *sqlTx) SetRoomActive(ctx context.Context, id uint64, active bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE rooms SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE seats SET is_active = ? WHERE room_id = ?`, active, id)
	return err
}

// CreateSeats inserts all seats with a single multi-row INSERT.  The ids are
// consecutive from LastInsertId under InnoDB's default lock mode for a
// single statement, which is how they are assigned back.
func (t *sqlTx) CreateSeats(ctx context.Context, seats []model.Seat) error {
	if err := t.writable(); err != nil {
		return err
	}
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (room_id, row_label, seat_number, seat_class, is_active) VALUES `
	args := make([]interface{}, 0, len(seats)*5)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, s.RoomID, s.RowLabel, s.SeatNumber, s.SeatClass, s.IsActive)
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for i := range seats {
		seats[i].ID = uint64(first) + uint64(i)
	}
	return nil
}

// ListSeats returns the seats of a room ordered by row then number.
func (t *sqlTx) ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	const q = `SELECT id, room_id, row_label, seat_number, seat_class, is_active
			   FROM seats WHERE room_id = ?
			   ORDER BY CHAR_LENGTH(row_label), row_label, seat_number`
	rows, err := t.tx.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.RoomID, &s.RowLabel, &s.SeatNumber, &s.SeatClass, &s.IsActive); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}
