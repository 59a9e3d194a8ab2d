package repository

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// CartKey selects a cart either by guest session or by signed-in user.
// SessionID wins when both are set.
type CartKey struct {
	SessionID string
	UserID    string
}

// ReservationFilter narrows ListReservations.  Zero values match everything.
type ReservationFilter struct {
	UserID     string
	ShowtimeID uint64
	Status     string
}

// Tx is the set of operations available inside a store transaction.  All
// reads observe the transaction's own writes.  Times passed in are supplied
// by the caller's clock so that expiry never depends on the database clock.
type Tx interface {
	CreateFilm(ctx context.Context, f *model.Film) error
	GetFilm(ctx context.Context, id uint64) (*model.Film, error)
	SetFilmActive(ctx context.Context, id uint64, active bool) error

	CreateRoom(ctx context.Context, r *model.Room) error
	GetRoom(ctx context.Context, id uint64) (*model.Room, error)
	// SetRoomActive flips the room and all of its seats.
	SetRoomActive(ctx context.Context, id uint64, active bool) error
	CreateSeats(ctx context.Context, seats []model.Seat) error
	ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error)

	CreateShowtime(ctx context.Context, s *model.Showtime) error
	UpdateShowtime(ctx context.Context, s *model.Showtime) error
	GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error)
	// GetShowtimeForUpdate reads the latest committed row and holds its lock
	// until the transaction ends.
	GetShowtimeForUpdate(ctx context.Context, id uint64) (*model.Showtime, error)
	ListShowtimes(ctx context.Context, roomID uint64) ([]model.Showtime, error)
	// FindOverlapping returns active showtimes in roomID whose window
	// intersects [start, end), skipping excludeID.
	FindOverlapping(ctx context.Context, roomID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error)

	// ListClaims returns claims of the showtime for the given seats, or all
	// claims of the showtime when seatIDs is empty.  Expired rows are
	// included; callers decide what expiry means.
	ListClaims(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]model.SeatClaim, error)
	InsertClaims(ctx context.Context, claims []model.SeatClaim) error
	UpdateClaims(ctx context.Context, claims []model.SeatClaim) error
	DeleteClaims(ctx context.Context, showtimeID uint64, seatIDs []uint64) error
	// DeleteExpiredClaims removes HELD and RESERVED claims whose deadline is
	// at or before now and returns the freed seat ids.
	DeleteExpiredClaims(ctx context.Context, showtimeID uint64, now time.Time) ([]uint64, error)
	ShowtimesWithExpiredClaims(ctx context.Context, now time.Time) ([]uint64, error)

	InsertCartItem(ctx context.Context, item *model.CartItem) error
	GetCartItem(ctx context.Context, id uint64) (*model.CartItem, error)
	ListCartItems(ctx context.Context, key CartKey) ([]model.CartItem, error)
	// UpdateCartItem rewrites quantity, seat ids and expiry of the line.
	UpdateCartItem(ctx context.Context, item *model.CartItem) error
	DeleteCartItem(ctx context.Context, id uint64) error
	// TouchCart moves the expiry of every item in the session's cart.
	TouchCart(ctx context.Context, sessionID string, expiresAt time.Time) error
	ExpiredCartSessions(ctx context.Context, now time.Time) ([]string, error)

	CreateReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	GetReservationByNumber(ctx context.Context, number string) (*model.Reservation, error)
	ReservationNumberExists(ctx context.Context, number string) (bool, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]model.Reservation, error)
	ExpiredPendingReservations(ctx context.Context, now time.Time) ([]uint64, error)

	CreateInvoice(ctx context.Context, inv *model.Invoice) error
	GetInvoiceByReservation(ctx context.Context, reservationID uint64) (*model.Invoice, error)
}

// Store runs functions inside transactions.  A function returning an error
// rolls back every write it made.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	// LockShowtimes runs fn in a write transaction that is serialized with
	// every other LockShowtimes call naming any of the same showtimes.
	// Missing showtimes yield ErrNotFound.
	LockShowtimes(ctx context.Context, showtimeIDs []uint64, fn func(tx Tx) error) error
	// LockRoom is LockShowtimes for scheduling: it serializes writers of the
	// room's timetable.
	LockRoom(ctx context.Context, roomID uint64, fn func(tx Tx) error) error
	Close() error
}
