// Package memory is an in-process implementation of repository.Store.  It
// serializes every writer behind one mutex and applies a transaction's
// writes to a private copy of the state, which replaces the live state only
// when the transaction function succeeds.  It backs the test suites and the
// STORE_DRIVER=memory mode of the server.
package memory

import (
	"context"
	"sync"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

type claimKey struct {
	showtimeID uint64
	seatID     uint64
}

type state struct {
	films        map[uint64]model.Film
	rooms        map[uint64]model.Room
	seats        map[uint64]model.Seat
	showtimes    map[uint64]model.Showtime
	claims       map[claimKey]model.SeatClaim
	cart         map[uint64]model.CartItem
	reservations map[uint64]model.Reservation
	invoices     map[uint64]model.Invoice // keyed by reservation id

	lastID uint64
}

func newState() *state {
	return &state{
		films:        map[uint64]model.Film{},
		rooms:        map[uint64]model.Room{},
		seats:        map[uint64]model.Seat{},
		showtimes:    map[uint64]model.Showtime{},
		claims:       map[claimKey]model.SeatClaim{},
		cart:         map[uint64]model.CartItem{},
		reservations: map[uint64]model.Reservation{},
		invoices:     map[uint64]model.Invoice{},
	}
}

func (s *state) nextID() uint64 {
	s.lastID++
	return s.lastID
}

func (s *state) clone() *state {
	c := newState()
	c.lastID = s.lastID
	for k, v := range s.films {
		c.films[k] = v
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.showtimes {
		c.showtimes[k] = v
	}
	for k, v := range s.claims {
		c.claims[k] = cloneClaim(v)
	}
	for k, v := range s.cart {
		c.cart[k] = cloneCartItem(v)
	}
	for k, v := range s.reservations {
		c.reservations[k] = v.Clone()
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	return c
}

// Store is the in-memory repository.Store.
type Store struct {
	mu sync.RWMutex
	st *state
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store { return &Store{st: newState()} }

func (s *Store) Close() error { return nil }

func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.st, readOnly: true})
}

func (s *Store) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.update(ctx, func(st *state) error { return nil }, fn)
}

func (s *Store) LockShowtimes(ctx context.Context, showtimeIDs []uint64, fn func(tx repository.Tx) error) error {
	return s.update(ctx, func(st *state) error {
		for _, id := range showtimeIDs {
			if _, ok := st.showtimes[id]; !ok {
				return repository.ErrNotFound
			}
		}
		return nil
	}, fn)
}

func (s *Store) LockRoom(ctx context.Context, roomID uint64, fn func(tx repository.Tx) error) error {
	return s.update(ctx, func(st *state) error {
		if _, ok := st.rooms[roomID]; !ok {
			return repository.ErrNotFound
		}
		return nil
	}, fn)
}

func (s *Store) update(ctx context.Context, pre func(st *state) error, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := pre(s.st); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}
