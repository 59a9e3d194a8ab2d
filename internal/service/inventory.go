package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// Hold is the result of a successful PlaceHold.
type Hold struct {
	ShowtimeID uint64    `json:"showtime_id"`
	SeatIDs    []uint64  `json:"seat_ids"`
	Holder     string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Availability summarises a showtime's seats.  Expired claims count as free.
type Availability struct {
	ShowtimeID uint64 `json:"showtime_id"`
	Total      int    `json:"total"`
	Available  int    `json:"available"`
	Occupied   int    `json:"occupied"`
}

// SeatStatus is one cell of a showtime seat map.
type SeatStatus struct {
	model.Seat
	Status string `json:"status"`
}

// Inventory tracks seat claims per showtime.  Every mutation runs inside
// the showtime lock, so a batch either lands whole or not at all and two
// holders can never both see a seat as free.
type Inventory struct {
	store         repository.Store
	clock         Clock
	paymentWindow time.Duration
	log           *zap.Logger
}

func NewInventory(store repository.Store, clock Clock, paymentWindow time.Duration, log *zap.Logger) *Inventory {
	return &Inventory{store: store, clock: clock, paymentWindow: paymentWindow, log: log}
}

// PlaceHold claims every seat for holder until now+ttl, or fails with a
// SeatUnavailableError naming each seat somebody else has.  Seats the
// holder already holds are re-held with the new expiry.
func (inv *Inventory) PlaceHold(ctx context.Context, showtimeID uint64, seatIDs []uint64, holder string, ttl time.Duration) (*Hold, error) {
	var h *Hold
	err := inv.store.LockShowtimes(ctx, []uint64{showtimeID}, func(tx repository.Tx) error {
		var err error
		h, err = inv.placeHoldTx(ctx, tx, showtimeID, seatIDs, holder, ttl)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", showtimeID)
	}
	if err != nil {
		return nil, internal("place hold", err)
	}
	inv.log.Debug("seats held", zap.Uint64("showtime_id", showtimeID), zap.Uint64s("seat_ids", h.SeatIDs),
		zap.String("holder", holder), zap.Time("expires_at", h.ExpiresAt))
	return h, nil
}

func (inv *Inventory) placeHoldTx(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64, holder string, ttl time.Duration) (*Hold, error) {
	if strings.TrimSpace(holder) == "" {
		return nil, invalid("holder", "is required")
	}
	if ttl < 0 {
		return nil, invalid("ttl", "must not be negative")
	}
	seats := dedupeIDs(seatIDs)
	if len(seats) == 0 {
		return nil, invalid("seat_ids", "at least one seat is required")
	}
	if _, err := inv.bookableSeats(ctx, tx, showtimeID, seats); err != nil {
		return nil, err
	}
	now := inv.clock.Now()
	if _, err := tx.DeleteExpiredClaims(ctx, showtimeID, now); err != nil {
		return nil, err
	}
	claims, err := tx.ListClaims(ctx, showtimeID, seats)
	if err != nil {
		return nil, err
	}
	expires := now.Add(ttl)
	var (
		taken   []uint64
		refresh []model.SeatClaim
		mine    = map[uint64]bool{}
	)
	for _, c := range claims {
		if c.State == model.ClaimHeld && c.Holder == holder {
			c.ExpiresAt = &expires
			refresh = append(refresh, c)
			mine[c.SeatID] = true
			continue
		}
		taken = append(taken, c.SeatID)
	}
	if len(taken) > 0 {
		return nil, &SeatUnavailableError{ShowtimeID: showtimeID, SeatIDs: sortIDs(taken)}
	}
	fresh := make([]model.SeatClaim, 0, len(seats))
	for _, sid := range seats {
		if mine[sid] {
			continue
		}
		e := expires
		fresh = append(fresh, model.SeatClaim{
			ShowtimeID: showtimeID, SeatID: sid, State: model.ClaimHeld,
			Holder: holder, ExpiresAt: &e, CreatedAt: now,
		})
	}
	if err := tx.UpdateClaims(ctx, refresh); err != nil {
		return nil, err
	}
	if err := tx.InsertClaims(ctx, fresh); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, &SeatUnavailableError{ShowtimeID: showtimeID, SeatIDs: seats}
		}
		return nil, err
	}
	return &Hold{ShowtimeID: showtimeID, SeatIDs: seats, Holder: holder, ExpiresAt: expires}, nil
}

// ReleaseHold drops the holder's HELD claims on the given seats, or on every
// seat of the showtime when seatIDs is empty.  Seats not held by holder are
// ignored.  It returns the released seat ids.
func (inv *Inventory) ReleaseHold(ctx context.Context, showtimeID uint64, seatIDs []uint64, holder string) ([]uint64, error) {
	var released []uint64
	err := inv.store.LockShowtimes(ctx, []uint64{showtimeID}, func(tx repository.Tx) error {
		var err error
		released, err = inv.releaseHoldTx(ctx, tx, showtimeID, seatIDs, holder)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", showtimeID)
	}
	return released, internal("release hold", err)
}

func (inv *Inventory) releaseHoldTx(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64, holder string) ([]uint64, error) {
	claims, err := tx.ListClaims(ctx, showtimeID, dedupeIDs(seatIDs))
	if err != nil {
		return nil, err
	}
	released := []uint64{}
	for _, c := range claims {
		if c.State == model.ClaimHeld && c.Holder == holder {
			released = append(released, c.SeatID)
		}
	}
	if err := tx.DeleteClaims(ctx, showtimeID, released); err != nil {
		return nil, err
	}
	return released, nil
}

// extendHoldsTx pushes the expiry of the holder's live holds forward.
func (inv *Inventory) extendHoldsTx(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64, holder string, until time.Time) error {
	if len(seatIDs) == 0 {
		return nil
	}
	now := inv.clock.Now()
	claims, err := tx.ListClaims(ctx, showtimeID, seatIDs)
	if err != nil {
		return err
	}
	var upd []model.SeatClaim
	for _, c := range claims {
		if c.State != model.ClaimHeld || c.Holder != holder || c.Expired(now) {
			continue
		}
		u := until
		c.ExpiresAt = &u
		upd = append(upd, c)
	}
	return tx.UpdateClaims(ctx, upd)
}

// PromoteToReserved converts the holder's live holds into RESERVED claims
// owned by reservationID, valid for the payment window.  If any seat is not
// held by holder any more, nothing changes and a StaleHoldError lists them.
func (inv *Inventory) PromoteToReserved(ctx context.Context, showtimeID uint64, seatIDs []uint64, holder string, reservationID uint64) error {
	err := inv.store.LockShowtimes(ctx, []uint64{showtimeID}, func(tx repository.Tx) error {
		_, err := inv.promoteToReservedTx(ctx, tx, showtimeID, seatIDs, holder, reservationID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("showtime", showtimeID)
	}
	return internal("promote to reserved", err)
}

// promoteToReservedTx returns the payment deadline stamped on the claims.
func (inv *Inventory) promoteToReservedTx(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64, holder string, reservationID uint64) (time.Time, error) {
	seats := dedupeIDs(seatIDs)
	now := inv.clock.Now()
	deadline := now.Add(inv.paymentWindow)
	if len(seats) == 0 {
		return deadline, invalid("seat_ids", "at least one seat is required")
	}
	claims, err := tx.ListClaims(ctx, showtimeID, seats)
	if err != nil {
		return deadline, err
	}
	live := map[uint64]model.SeatClaim{}
	for _, c := range claims {
		if c.State == model.ClaimHeld && c.Holder == holder && !c.Expired(now) {
			live[c.SeatID] = c
		}
	}
	var stale []uint64
	upd := make([]model.SeatClaim, 0, len(seats))
	for _, sid := range seats {
		c, ok := live[sid]
		if !ok {
			stale = append(stale, sid)
			continue
		}
		rid, d := reservationID, deadline
		c.State = model.ClaimReserved
		c.ReservationID = &rid
		c.ExpiresAt = &d
		upd = append(upd, c)
	}
	if len(stale) > 0 {
		return deadline, &StaleHoldError{ShowtimeID: showtimeID, SeatIDs: sortIDs(stale)}
	}
	return deadline, tx.UpdateClaims(ctx, upd)
}

// PromoteToSold finalizes the reservation's RESERVED claims.  Seats already
// SOLD to the same reservation are left alone, so replays are no-ops.
func (inv *Inventory) PromoteToSold(ctx context.Context, showtimeID uint64, seatIDs []uint64, reservationID uint64) error {
	err := inv.store.LockShowtimes(ctx, []uint64{showtimeID}, func(tx repository.Tx) error {
		return inv.promoteToSoldTx(ctx, tx, showtimeID, seatIDs, reservationID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("showtime", showtimeID)
	}
	return internal("promote to sold", err)
}

func (inv *Inventory) promoteToSoldTx(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64, reservationID uint64) error {
	seats := dedupeIDs(seatIDs)
	now := inv.clock.Now()
	if _, err := tx.DeleteExpiredClaims(ctx, showtimeID, now); err != nil {
		return err
	}
	claims, err := tx.ListClaims(ctx, showtimeID, seats)
	if err != nil {
		return err
	}
	byID := map[uint64]model.SeatClaim{}
	for _, c := range claims {
		byID[c.SeatID] = c
	}
	var (
		lost []uint64
		upd  []model.SeatClaim
	)
	for _, sid := range seats {
		c, ok := byID[sid]
		switch {
		case !ok || !c.OwnedBy(reservationID):
			lost = append(lost, sid)
		case c.State == model.ClaimSold:
		case c.State == model.ClaimReserved:
			c.State = model.ClaimSold
			c.ExpiresAt = nil
			upd = append(upd, c)
		default:
			lost = append(lost, sid)
		}
	}
	if len(lost) > 0 {
		return &SeatUnavailableError{ShowtimeID: showtimeID, SeatIDs: sortIDs(lost)}
	}
	return tx.UpdateClaims(ctx, upd)
}

// Release frees the RESERVED or SOLD claims that belong to reservationID.
// Claims held by anyone else, including seats that were re-held after the
// reservation's own claim expired, are never touched.
func (inv *Inventory) Release(ctx context.Context, showtimeID uint64, seatIDs []uint64, reservationID uint64) ([]uint64, error) {
	var released []uint64
	err := inv.store.LockShowtimes(ctx, []uint64{showtimeID}, func(tx repository.Tx) error {
		var err error
		released, err = inv.releaseTx(ctx, tx, showtimeID, seatIDs, reservationID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", showtimeID)
	}
	return released, internal("release", err)
}

func (inv *Inventory) releaseTx(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64, reservationID uint64) ([]uint64, error) {
	claims, err := tx.ListClaims(ctx, showtimeID, dedupeIDs(seatIDs))
	if err != nil {
		return nil, err
	}
	released := []uint64{}
	for _, c := range claims {
		if c.OwnedBy(reservationID) && (c.State == model.ClaimReserved || c.State == model.ClaimSold) {
			released = append(released, c.SeatID)
		}
	}
	if err := tx.DeleteClaims(ctx, showtimeID, released); err != nil {
		return nil, err
	}
	return released, nil
}

// AvailabilityCount is the number of active seats of the showtime's room
// without a live claim.
func (inv *Inventory) AvailabilityCount(ctx context.Context, showtimeID uint64) (int, error) {
	a, err := inv.Availability(ctx, showtimeID)
	if err != nil {
		return 0, err
	}
	return a.Available, nil
}

// Availability reports total, free and occupied seats for a showtime.  It
// only reads; expired claims are ignored rather than reaped.
func (inv *Inventory) Availability(ctx context.Context, showtimeID uint64) (*Availability, error) {
	cells, err := inv.SeatMap(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	a := &Availability{ShowtimeID: showtimeID}
	for _, c := range cells {
		if !c.IsActive {
			continue
		}
		a.Total++
		if c.Status == model.SeatStatusFree {
			a.Available++
		} else {
			a.Occupied++
		}
	}
	return a, nil
}

// SeatMap returns every seat of the showtime's room with its current status.
func (inv *Inventory) SeatMap(ctx context.Context, showtimeID uint64) ([]SeatStatus, error) {
	var cells []SeatStatus
	err := inv.store.View(ctx, func(tx repository.Tx) error {
		st, err := tx.GetShowtime(ctx, showtimeID)
		if err != nil {
			return err
		}
		seats, err := tx.ListSeats(ctx, st.RoomID)
		if err != nil {
			return err
		}
		claims, err := tx.ListClaims(ctx, showtimeID, nil)
		if err != nil {
			return err
		}
		now := inv.clock.Now()
		state := make(map[uint64]string, len(claims))
		for _, c := range claims {
			if !c.Expired(now) {
				state[c.SeatID] = c.State
			}
		}
		cells = make([]SeatStatus, 0, len(seats))
		for _, s := range seats {
			status, ok := state[s.ID]
			if !ok {
				status = model.SeatStatusFree
			}
			cells = append(cells, SeatStatus{Seat: s, Status: status})
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", showtimeID)
	}
	return cells, internal("seat map", err)
}

// ReapExpired deletes lapsed HELD and RESERVED claims of one showtime and
// returns the freed seats.
func (inv *Inventory) ReapExpired(ctx context.Context, showtimeID uint64) ([]uint64, error) {
	var freed []uint64
	err := inv.store.LockShowtimes(ctx, []uint64{showtimeID}, func(tx repository.Tx) error {
		var err error
		freed, err = tx.DeleteExpiredClaims(ctx, showtimeID, inv.clock.Now())
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return freed, internal("reap expired claims", err)
}

// bookableSeats checks that the showtime is active and that every seat
// belongs to its room and is active.
func (inv *Inventory) bookableSeats(ctx context.Context, tx repository.Tx, showtimeID uint64, seatIDs []uint64) (*model.Showtime, error) {
	st, err := tx.GetShowtime(ctx, showtimeID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", showtimeID)
	}
	if err != nil {
		return nil, err
	}
	if !st.IsActive {
		return nil, notFound("showtime", showtimeID)
	}
	roomSeats, err := tx.ListSeats(ctx, st.RoomID)
	if err != nil {
		return nil, err
	}
	active := make(map[uint64]bool, len(roomSeats))
	for _, s := range roomSeats {
		if s.IsActive {
			active[s.ID] = true
		}
	}
	var missing []uint64
	for _, sid := range seatIDs {
		if !active[sid] {
			missing = append(missing, sid)
		}
	}
	if len(missing) > 0 {
		return nil, &NotFoundError{Entity: "seat", ID: joinIDs(sortIDs(missing))}
	}
	return st, nil
}

// dedupeIDs drops zero and repeated ids, keeping first-seen order.
func dedupeIDs(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortIDs(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
