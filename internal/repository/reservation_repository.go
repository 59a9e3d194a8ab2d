package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

const reservationColumns = `id, number, showtime_id, user_id, holder_ref, contact_name, contact_email, contact_phone,
	seat_ids, quantity, unit_price_cents, total_cents, currency, status, payment_ref, refund_status, cancel_reason,
	expires_at, created_at, confirmed_at, cancelled_at`

func scanReservation(sc interface{ Scan(...interface{}) error }) (*model.Reservation, error) {
	var (
		r                                  model.Reservation
		user, payRef, reason               sql.NullString
		seats                              []byte
		expires, confirmedAt, cancelledAt sql.NullTime
	)
	err := sc.Scan(&r.ID, &r.Number, &r.ShowtimeID, &user, &r.HolderRef, &r.Contact.Name, &r.Contact.Email, &r.Contact.Phone,
		&seats, &r.Quantity, &r.UnitPriceCents, &r.TotalCents, &r.Currency, &r.Status, &payRef, &r.RefundStatus, &reason,
		&expires, &r.CreatedAt, &confirmedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	r.UserID = ptrString(user)
	r.PaymentRef = ptrString(payRef)
	r.CancelReason = ptrString(reason)
	r.ExpiresAt = ptrTime(expires)
	r.ConfirmedAt = ptrTime(confirmedAt)
	r.CancelledAt = ptrTime(cancelledAt)
	if len(seats) > 0 {
		if err := json.Unmarshal(seats, &r.SeatIDs); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// CreateReservation inserts a reservation.  A reused number is reported as
// ErrDuplicate.
func (t *sqlTx) CreateReservation(ctx context.Context, r *model.Reservation) error {
	if err := t.writable(); err != nil {
		return err
	}
	seats, err := json.Marshal(seatIDsOrEmpty(r.SeatIDs))
	if err != nil {
		return err
	}
	const q = `INSERT INTO reservations (number, showtime_id, user_id, holder_ref, contact_name, contact_email, contact_phone,
				   seat_ids, quantity, unit_price_cents, total_cents, currency, status, payment_ref, refund_status, cancel_reason,
				   expires_at, created_at, confirmed_at, cancelled_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, r.Number, r.ShowtimeID, nullString(r.UserID), r.HolderRef, r.Contact.Name,
		r.Contact.Email, r.Contact.Phone, seats, r.Quantity, r.UnitPriceCents, r.TotalCents, r.Currency, r.Status,
		nullString(r.PaymentRef), r.RefundStatus, nullString(r.CancelReason), nullTime(r.ExpiresAt), r.CreatedAt.UTC(),
		nullTime(r.ConfirmedAt), nullTime(r.CancelledAt))
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

// UpdateReservation persists the state-machine columns.  Identity, showtime,
// seats and price snapshot are immutable once created.
func (t *sqlTx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `UPDATE reservations
			   SET total_cents = ?, status = ?, payment_ref = ?, refund_status = ?, cancel_reason = ?,
				   expires_at = ?, confirmed_at = ?, cancelled_at = ?
			   WHERE id = ?`
	res, err := t.tx.ExecContext(ctx, q, r.TotalCents, r.Status, nullString(r.PaymentRef), r.RefundStatus,
		nullString(r.CancelReason), nullTime(r.ExpiresAt), nullTime(r.ConfirmedAt), nullTime(r.CancelledAt), r.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	return t.getReservation(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
}

func (t *sqlTx) GetReservationByNumber(ctx context.Context, number string) (*model.Reservation, error) {
	return t.getReservation(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE number = ?`, number)
}

func (t *sqlTx) getReservation(ctx context.Context, q string, arg interface{}) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (t *sqlTx) ReservationNumberExists(ctx context.Context, number string) (bool, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE number = ?`, number).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListReservations returns matching reservations newest first.
func (t *sqlTx) ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error) {
	q := `SELECT ` + reservationColumns + ` FROM reservations WHERE 1 = 1`
	var args []interface{}
	if f.UserID != "" {
		q += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.ShowtimeID != 0 {
		q += ` AND showtime_id = ?`
		args = append(args, f.ShowtimeID)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (t *sqlTx) ExpiredPendingReservations(ctx context.Context, now time.Time) ([]uint64, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id FROM reservations WHERE status = 'PENDING' AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY id`,
		now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
