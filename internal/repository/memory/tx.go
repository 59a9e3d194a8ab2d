package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

type tx struct {
	st       *state
	readOnly bool
}

var _ repository.Tx = (*tx)(nil)

func (t *tx) writable() error {
	if t.readOnly {
		return repository.ErrReadOnly
	}
	return nil
}

// films

func (t *tx) CreateFilm(_ context.Context, f *model.Film) error {
	if err := t.writable(); err != nil {
		return err
	}
	f.ID = t.st.nextID()
	t.st.films[f.ID] = *f
	return nil
}

func (t *tx) GetFilm(_ context.Context, id uint64) (*model.Film, error) {
	f, ok := t.st.films[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (t *tx) SetFilmActive(_ context.Context, id uint64, active bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	f, ok := t.st.films[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.IsActive = active
	t.st.films[id] = f
	return nil
}

// rooms and seats

func (t *tx) CreateRoom(_ context.Context, r *model.Room) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.st.rooms {
		if existing.Name == r.Name {
			return repository.ErrDuplicate
		}
	}
	r.ID = t.st.nextID()
	t.st.rooms[r.ID] = *r
	return nil
}

func (t *tx) GetRoom(_ context.Context, id uint64) (*model.Room, error) {
	r, ok := t.st.rooms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (t *tx) SetRoomActive(_ context.Context, id uint64, active bool) error {
	if err := t.writable(); err != nil {
		return err
	}
	r, ok := t.st.rooms[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.IsActive = active
	t.st.rooms[id] = r
	for sid, s := range t.st.seats {
		if s.RoomID == id {
			s.IsActive = active
			t.st.seats[sid] = s
		}
	}
	return nil
}

func (t *tx) CreateSeats(_ context.Context, seats []model.Seat) error {
	if err := t.writable(); err != nil {
		return err
	}
	type pos struct {
		room uint64
		row  string
		num  uint32
	}
	taken := map[pos]bool{}
	for _, s := range t.st.seats {
		taken[pos{s.RoomID, s.RowLabel, s.SeatNumber}] = true
	}
	for _, s := range seats {
		p := pos{s.RoomID, s.RowLabel, s.SeatNumber}
		if taken[p] {
			return repository.ErrDuplicate
		}
		taken[p] = true
	}
	for i := range seats {
		seats[i].ID = t.st.nextID()
		t.st.seats[seats[i].ID] = seats[i]
	}
	return nil
}

func (t *tx) ListSeats(_ context.Context, roomID uint64) ([]model.Seat, error) {
	var out []model.Seat
	for _, s := range t.st.seats {
		if s.RoomID == roomID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if len(a.RowLabel) != len(b.RowLabel) {
			return len(a.RowLabel) < len(b.RowLabel)
		}
		if a.RowLabel != b.RowLabel {
			return a.RowLabel < b.RowLabel
		}
		return a.SeatNumber < b.SeatNumber
	})
	return out, nil
}

// showtimes

func (t *tx) CreateShowtime(_ context.Context, s *model.Showtime) error {
	if err := t.writable(); err != nil {
		return err
	}
	s.ID = t.st.nextID()
	t.st.showtimes[s.ID] = *s
	return nil
}

func (t *tx) UpdateShowtime(_ context.Context, s *model.Showtime) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.st.showtimes[s.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := *s
	next.RoomID = cur.RoomID
	next.CreatedAt = cur.CreatedAt
	t.st.showtimes[s.ID] = next
	return nil
}

func (t *tx) GetShowtime(_ context.Context, id uint64) (*model.Showtime, error) {
	s, ok := t.st.showtimes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

// GetShowtimeForUpdate needs no row lock here: writers are already
// serialized by the store mutex.
func (t *tx) GetShowtimeForUpdate(ctx context.Context, id uint64) (*model.Showtime, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.GetShowtime(ctx, id)
}

func (t *tx) ListShowtimes(_ context.Context, roomID uint64) ([]model.Showtime, error) {
	var out []model.Showtime
	for _, s := range t.st.showtimes {
		if roomID == 0 || s.RoomID == roomID {
			out = append(out, s)
		}
	}
	sortShowtimes(out)
	return out, nil
}

func (t *tx) FindOverlapping(_ context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	var out []model.Showtime
	for _, s := range t.st.showtimes {
		if s.RoomID != roomID || !s.IsActive || s.ID == excludeID {
			continue
		}
		if s.Overlaps(start, end) {
			out = append(out, s)
		}
	}
	sortShowtimes(out)
	return out, nil
}

func sortShowtimes(s []model.Showtime) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].StartsAt.Equal(s[j].StartsAt) {
			return s[i].StartsAt.Before(s[j].StartsAt)
		}
		return s[i].ID < s[j].ID
	})
}

// claims

func (t *tx) ListClaims(_ context.Context, showtimeID uint64, seatIDs []uint64) ([]model.SeatClaim, error) {
	var out []model.SeatClaim
	if len(seatIDs) > 0 {
		for _, sid := range seatIDs {
			if c, ok := t.st.claims[claimKey{showtimeID, sid}]; ok {
				out = append(out, cloneClaim(c))
			}
		}
	} else {
		for k, c := range t.st.claims {
			if k.showtimeID == showtimeID {
				out = append(out, cloneClaim(c))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

func (t *tx) InsertClaims(_ context.Context, claims []model.SeatClaim) error {
	if err := t.writable(); err != nil {
		return err
	}
	seen := map[claimKey]bool{}
	for _, c := range claims {
		k := claimKey{c.ShowtimeID, c.SeatID}
		if _, ok := t.st.claims[k]; ok || seen[k] {
			return repository.ErrDuplicate
		}
		seen[k] = true
	}
	for _, c := range claims {
		t.st.claims[claimKey{c.ShowtimeID, c.SeatID}] = cloneClaim(c)
	}
	return nil
}

func (t *tx) UpdateClaims(_ context.Context, claims []model.SeatClaim) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, c := range claims {
		k := claimKey{c.ShowtimeID, c.SeatID}
		cur, ok := t.st.claims[k]
		if !ok {
			return repository.ErrNotFound
		}
		next := cloneClaim(c)
		next.CreatedAt = cur.CreatedAt
		t.st.claims[k] = next
	}
	return nil
}

func (t *tx) DeleteClaims(_ context.Context, showtimeID uint64, seatIDs []uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, sid := range seatIDs {
		delete(t.st.claims, claimKey{showtimeID, sid})
	}
	return nil
}

func (t *tx) DeleteExpiredClaims(_ context.Context, showtimeID uint64, now time.Time) ([]uint64, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	freed := []uint64{}
	for k, c := range t.st.claims {
		if k.showtimeID == showtimeID && c.State != model.ClaimSold && c.Expired(now) {
			delete(t.st.claims, k)
			freed = append(freed, k.seatID)
		}
	}
	sort.Slice(freed, func(i, j int) bool { return freed[i] < freed[j] })
	return freed, nil
}

func (t *tx) ShowtimesWithExpiredClaims(_ context.Context, now time.Time) ([]uint64, error) {
	set := map[uint64]bool{}
	for k, c := range t.st.claims {
		if c.State != model.ClaimSold && c.Expired(now) {
			set[k.showtimeID] = true
		}
	}
	return sortedKeys(set), nil
}

// cart

func (t *tx) InsertCartItem(_ context.Context, it *model.CartItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	it.ID = t.st.nextID()
	t.st.cart[it.ID] = cloneCartItem(*it)
	return nil
}

func (t *tx) GetCartItem(_ context.Context, id uint64) (*model.CartItem, error) {
	it, ok := t.st.cart[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneCartItem(it)
	return &c, nil
}

func (t *tx) ListCartItems(_ context.Context, key repository.CartKey) ([]model.CartItem, error) {
	var out []model.CartItem
	for _, it := range t.st.cart {
		switch {
		case key.SessionID != "":
			if it.SessionID != key.SessionID {
				continue
			}
		case key.UserID != "":
			if it.UserID == nil || *it.UserID != key.UserID {
				continue
			}
		default:
			continue
		}
		out = append(out, cloneCartItem(it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) UpdateCartItem(_ context.Context, it *model.CartItem) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.st.cart[it.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Quantity = it.Quantity
	cur.SeatIDs = append([]uint64(nil), it.SeatIDs...)
	cur.ExpiresAt = it.ExpiresAt
	t.st.cart[it.ID] = cur
	return nil
}

func (t *tx) DeleteCartItem(_ context.Context, id uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.cart[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.st.cart, id)
	return nil
}

func (t *tx) TouchCart(_ context.Context, sessionID string, expiresAt time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	for id, it := range t.st.cart {
		if it.SessionID == sessionID {
			it.ExpiresAt = expiresAt
			t.st.cart[id] = it
		}
	}
	return nil
}

func (t *tx) ExpiredCartSessions(_ context.Context, now time.Time) ([]string, error) {
	set := map[string]bool{}
	for _, it := range t.st.cart {
		if !now.Before(it.ExpiresAt) {
			set[it.SessionID] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// reservations

func (t *tx) CreateReservation(_ context.Context, r *model.Reservation) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.st.reservations {
		if existing.Number == r.Number {
			return repository.ErrDuplicate
		}
	}
	r.ID = t.st.nextID()
	t.st.reservations[r.ID] = r.Clone()
	return nil
}

func (t *tx) UpdateReservation(_ context.Context, r *model.Reservation) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.st.reservations[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	src := r.Clone()
	next := cur.Clone()
	next.TotalCents = src.TotalCents
	next.Status = src.Status
	next.PaymentRef = src.PaymentRef
	next.RefundStatus = src.RefundStatus
	next.CancelReason = src.CancelReason
	next.ExpiresAt = src.ExpiresAt
	next.ConfirmedAt = src.ConfirmedAt
	next.CancelledAt = src.CancelledAt
	t.st.reservations[r.ID] = next
	return nil
}

func (t *tx) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	r, ok := t.st.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (t *tx) GetReservationByNumber(_ context.Context, number string) (*model.Reservation, error) {
	for _, r := range t.st.reservations {
		if r.Number == number {
			c := r.Clone()
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) ReservationNumberExists(_ context.Context, number string) (bool, error) {
	for _, r := range t.st.reservations {
		if r.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) ListReservations(_ context.Context, f repository.ReservationFilter) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range t.st.reservations {
		if f.UserID != "" && (r.UserID == nil || *r.UserID != f.UserID) {
			continue
		}
		if f.ShowtimeID != 0 && r.ShowtimeID != f.ShowtimeID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *tx) ExpiredPendingReservations(_ context.Context, now time.Time) ([]uint64, error) {
	set := map[uint64]bool{}
	for id, r := range t.st.reservations {
		if r.Status == model.ReservationPending && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
			set[id] = true
		}
	}
	return sortedKeys(set), nil
}

// invoices

func (t *tx) CreateInvoice(_ context.Context, inv *model.Invoice) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.st.invoices[inv.ReservationID]; ok {
		return repository.ErrDuplicate
	}
	inv.ID = t.st.nextID()
	t.st.invoices[inv.ReservationID] = *inv
	return nil
}

func (t *tx) GetInvoiceByReservation(_ context.Context, reservationID uint64) (*model.Invoice, error) {
	inv, ok := t.st.invoices[reservationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func cloneClaim(c model.SeatClaim) model.SeatClaim {
	if c.ReservationID != nil {
		id := *c.ReservationID
		c.ReservationID = &id
	}
	if c.ExpiresAt != nil {
		e := *c.ExpiresAt
		c.ExpiresAt = &e
	}
	return c
}

func cloneCartItem(it model.CartItem) model.CartItem {
	it.SeatIDs = append([]uint64(nil), it.SeatIDs...)
	if it.UserID != nil {
		u := *it.UserID
		it.UserID = &u
	}
	return it
}

func sortedKeys(set map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
