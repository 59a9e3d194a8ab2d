package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

const claimColumns = `showtime_id, seat_id, state, holder, reservation_id, expires_at, created_at`

// ListClaims reads claims for a showtime.  Expired rows are returned too.
func (t *sqlTx) ListClaims(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.SeatClaim, error) {
	q := `SELECT ` + claimColumns + ` FROM seat_claims WHERE showtime_id = ?`
	args := []interface{}{showtimeID}
	if len(seatIDs) > 0 {
		q += ` AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
		args = append(args, uint64Args(seatIDs)...)
	}
	q += ` ORDER BY seat_id`
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var claims []model.SeatClaim
	for rows.Next() {
		var (
			c       model.SeatClaim
			resID   sql.NullInt64
			expires sql.NullTime
		)
		if err := rows.Scan(&c.ShowtimeID, &c.SeatID, &c.State, &c.Holder, &resID, &expires, &c.CreatedAt); err != nil {
			return nil, err
		}
		if resID.Valid {
			id := uint64(resID.Int64)
			c.ReservationID = &id
		}
		if expires.Valid {
			e := expires.Time
			c.ExpiresAt = &e
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// InsertClaims adds claims in one statement.  A clash on the
// (showtime_id, seat_id) key is reported as ErrDuplicate and inserts nothing.
func (t *sqlTx) InsertClaims(ctx context.Context, claims []model.SeatClaim) error {
	if err := t.writable(); err != nil {
		return err
	}
	if len(claims) == 0 {
		return nil
	}
	query := `INSERT INTO seat_claims (` + claimColumns + `) VALUES `
	args := make([]interface{}, 0, len(claims)*7)
	for i, c := range claims {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, c.ShowtimeID, c.SeatID, c.State, c.Holder, nullID(c.ReservationID), nullTime(c.ExpiresAt), c.CreatedAt.UTC())
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateClaims rewrites state, holder, reservation and expiry of existing
// claims, keyed by showtime and seat.
func (t *sqlTx) UpdateClaims(ctx context.Context, claims []model.SeatClaim) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `UPDATE seat_claims SET state = ?, holder = ?, reservation_id = ?, expires_at = ?
			   WHERE showtime_id = ? AND seat_id = ?`
	for _, c := range claims {
		res, err := t.tx.ExecContext(ctx, q, c.State, c.Holder, nullID(c.ReservationID), nullTime(c.ExpiresAt), c.ShowtimeID, c.SeatID)
		if err != nil {
			return err
		}
		if err := requireRow(res); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) DeleteClaims(ctx context.Context, showtimeID uint64, seatIDs []uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if len(seatIDs) == 0 {
		return nil
	}
	q := `DELETE FROM seat_claims WHERE showtime_id = ? AND seat_id IN (` + placeholders(len(seatIDs)) + `)`
	args := append([]interface{}{showtimeID}, uint64Args(seatIDs)...)
	_, err := t.tx.ExecContext(ctx, q, args...)
	return err
}

// DeleteExpiredClaims removes lapsed holds and payment windows for one
// showtime and returns the seat ids that became free.
func (t *sqlTx) DeleteExpiredClaims(ctx context.Context, showtimeID uint64, now time.Time) ([]uint64, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT seat_id FROM seat_claims
		 WHERE showtime_id = ? AND state IN ('HELD', 'RESERVED') AND expires_at IS NOT NULL AND expires_at <= ?`,
		showtimeID, now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	var expired []uint64
	for rows.Next() {
		var sid uint64
		if scanErr := rows.Scan(&sid); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		expired = append(expired, sid)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return []uint64{}, nil
	}
	if err := t.DeleteClaims(ctx, showtimeID, expired); err != nil {
		return nil, err
	}
	return expired, nil
}

func (t *sqlTx) ShowtimesWithExpiredClaims(ctx context.Context, now time.Time) ([]uint64, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT DISTINCT showtime_id FROM seat_claims
		 WHERE state IN ('HELD', 'RESERVED') AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY showtime_id`,
		now.UTC(),
	)
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

func nullID(p *uint64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: p.UTC(), Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptrString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func ptrTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
