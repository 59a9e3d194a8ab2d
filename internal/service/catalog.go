package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// maxRows and maxSeatsPerRow bound generated seat grids.
const (
	maxRows        = 52
	maxSeatsPerRow = 100
)

// FilmInput describes a film to register.
type FilmInput struct {
	Title           string
	DurationMinutes uint32
}

// RoomInput describes a room and its seat grid.  The last VIPRows rows are
// generated as VIP seats.
type RoomInput struct {
	Name        string
	Rows        uint32
	SeatsPerRow uint32
	VIPRows     uint32
}

// Catalog owns films, rooms and seats.  Other components only read it.
type Catalog struct {
	store repository.Store
	clock Clock
	log   *zap.Logger
}

func NewCatalog(store repository.Store, clock Clock, log *zap.Logger) *Catalog {
	return &Catalog{store: store, clock: clock, log: log}
}

func (c *Catalog) CreateFilm(ctx context.Context, in FilmInput) (*model.Film, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, invalid("title", "is required")
	}
	if in.DurationMinutes == 0 {
		return nil, invalid("duration_minutes", "must be positive")
	}
	f := &model.Film{Title: title, DurationMinutes: in.DurationMinutes, IsActive: true, CreatedAt: c.clock.Now()}
	err := c.store.Update(ctx, func(tx repository.Tx) error { return tx.CreateFilm(ctx, f) })
	if err != nil {
		return nil, internal("create film", err)
	}
	c.log.Info("film created", zap.Uint64("film_id", f.ID), zap.String("title", f.Title))
	return f, nil
}

// GetFilm returns the film whether or not it is active.
func (c *Catalog) GetFilm(ctx context.Context, id uint64) (*model.Film, error) {
	var f *model.Film
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		f, err = tx.GetFilm(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("film", id)
	}
	return f, internal("get film", err)
}

// DeactivateFilm stops the film from being scheduled.  Existing showtimes
// are untouched.
func (c *Catalog) DeactivateFilm(ctx context.Context, id uint64) error {
	err := c.store.Update(ctx, func(tx repository.Tx) error { return tx.SetFilmActive(ctx, id, false) })
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("film", id)
	}
	return internal("deactivate film", err)
}

// CreateRoom creates the room and its full seat grid in one transaction.
func (c *Catalog) CreateRoom(ctx context.Context, in RoomInput) (*model.Room, []model.Seat, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return nil, nil, invalid("name", "is required")
	case in.Rows == 0 || in.Rows > maxRows:
		return nil, nil, invalid("rows", "must be between 1 and 52")
	case in.SeatsPerRow == 0 || in.SeatsPerRow > maxSeatsPerRow:
		return nil, nil, invalid("seats_per_row", "must be between 1 and 100")
	case in.VIPRows > in.Rows:
		return nil, nil, invalid("vip_rows", "cannot exceed rows")
	}
	room := &model.Room{Name: name, SeatRows: in.Rows, SeatsPerRow: in.SeatsPerRow, IsActive: true, CreatedAt: c.clock.Now()}
	var seats []model.Seat
	err := c.store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.CreateRoom(ctx, room); err != nil {
			return err
		}
		seats = generateSeats(room.ID, in.Rows, in.SeatsPerRow, in.VIPRows)
		return tx.CreateSeats(ctx, seats)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, nil, invalid("name", "a room with this name already exists")
	}
	if err != nil {
		return nil, nil, internal("create room", err)
	}
	c.log.Info("room created", zap.Uint64("room_id", room.ID), zap.Int("seats", len(seats)))
	return room, seats, nil
}

func (c *Catalog) GetRoom(ctx context.Context, id uint64) (*model.Room, error) {
	var r *model.Room
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		r, err = tx.GetRoom(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("room", id)
	}
	return r, internal("get room", err)
}

// ListSeats returns every seat of the room, active or not.
func (c *Catalog) ListSeats(ctx context.Context, roomID uint64) ([]model.Seat, error) {
	var seats []model.Seat
	err := c.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetRoom(ctx, roomID); err != nil {
			return err
		}
		var err error
		seats, err = tx.ListSeats(ctx, roomID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("room", roomID)
	}
	return seats, internal("list seats", err)
}

// DeactivateRoom deactivates the room and its seats.  Showtimes already
// scheduled there keep running; no new holds can be placed on inactive seats.
func (c *Catalog) DeactivateRoom(ctx context.Context, id uint64) error {
	err := c.store.LockRoom(ctx, id, func(tx repository.Tx) error { return tx.SetRoomActive(ctx, id, false) })
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("room", id)
	}
	return internal("deactivate room", err)
}

func generateSeats(roomID uint64, rows, perRow, vipRows uint32) []model.Seat {
	seats := make([]model.Seat, 0, rows*perRow)
	for r := uint32(0); r < rows; r++ {
		class := model.SeatClassStandard
		if r >= rows-vipRows {
			class = model.SeatClassVIP
		}
		label := indexToRowLabel(int(r))
		for n := uint32(1); n <= perRow; n++ {
			seats = append(seats, model.Seat{RoomID: roomID, RowLabel: label, SeatNumber: n, SeatClass: class, IsActive: true})
		}
	}
	return seats
}

// indexToRowLabel converts a zero-based index to an alphabetical row label
// like A, B, ..., Z, AA.
func indexToRowLabel(i int) string {
	if i < 0 {
		return ""
	}
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}
