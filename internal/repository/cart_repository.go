package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

const cartColumns = `id, session_id, user_id, showtime_id, seat_class, quantity, unit_price_cents, seat_ids, created_at, expires_at`

func scanCartItem(sc interface{ Scan(...interface{}) error }) (*model.CartItem, error) {
	var (
		it    model.CartItem
		user  sql.NullString
		seats []byte
	)
	if err := sc.Scan(&it.ID, &it.SessionID, &user, &it.ShowtimeID, &it.SeatClass, &it.Quantity, &it.UnitPriceCents,
		&seats, &it.CreatedAt, &it.ExpiresAt); err != nil {
		return nil, err
	}
	it.UserID = ptrString(user)
	if len(seats) > 0 {
		if err := json.Unmarshal(seats, &it.SeatIDs); err != nil {
			return nil, err
		}
	}
	return &it, nil
}

func (t *sqlTx) InsertCartItem(ctx context.Context, it *model.CartItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	seats, err := json.Marshal(seatIDsOrEmpty(it.SeatIDs))
	if err != nil {
		return err
	}
	const q = `INSERT INTO cart_items (session_id, user_id, showtime_id, seat_class, quantity, unit_price_cents, seat_ids, created_at, expires_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, it.SessionID, nullString(it.UserID), it.ShowtimeID, it.SeatClass, it.Quantity,
		it.UnitPriceCents, seats, it.CreatedAt.UTC(), it.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.ID = uint64(id)
	return nil
}

func (t *sqlTx) GetCartItem(ctx context.Context, id uint64) (*model.CartItem, error) {
	it, err := scanCartItem(t.tx.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM cart_items WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return it, nil
}

// ListCartItems returns the cart in insertion order.
func (t *sqlTx) ListCartItems(ctx context.Context, key CartKey) ([]model.CartItem, error) {
	q := `SELECT ` + cartColumns + ` FROM cart_items WHERE `
	var arg string
	switch {
	case key.SessionID != "":
		q += `session_id = ?`
		arg = key.SessionID
	case key.UserID != "":
		q += `user_id = ?`
		arg = key.UserID
	default:
		return nil, nil
	}
	q += ` ORDER BY id`
	rows, err := t.tx.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.CartItem
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (t *sqlTx) UpdateCartItem(ctx context.Context, it *model.CartItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	seats, err := json.Marshal(seatIDsOrEmpty(it.SeatIDs))
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE cart_items SET quantity = ?, seat_ids = ?, expires_at = ? WHERE id = ?`,
		it.Quantity, seats, it.ExpiresAt.UTC(), it.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) DeleteCartItem(ctx context.Context, id uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (t *sqlTx) TouchCart(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `UPDATE cart_items SET expires_at = ? WHERE session_id = ?`, expiresAt.UTC(), sessionID)
	return err
}

func (t *sqlTx) ExpiredCartSessions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT DISTINCT session_id FROM cart_items WHERE expires_at <= ? ORDER BY session_id`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func seatIDsOrEmpty(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
