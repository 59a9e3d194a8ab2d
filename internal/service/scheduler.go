package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// ShowtimeInput schedules a film in a room.
type ShowtimeInput struct {
	FilmID     uint64
	RoomID     uint64
	StartsAt   time.Time
	PriceCents uint32
}

// ShowtimePatch changes a scheduled showtime.  Nil fields keep their value.
// The room cannot be changed; deactivate and create instead.
type ShowtimePatch struct {
	FilmID     *uint64
	StartsAt   *time.Time
	PriceCents *uint32
}

// Scheduler places showtimes in rooms so that no two active showtimes of a
// room occupy it at the same time.  Occupancy runs from the start until the
// film ends plus the cleanup buffer, as a half-open interval.
type Scheduler struct {
	store  repository.Store
	clock  Clock
	buffer time.Duration
	log    *zap.Logger
}

func NewScheduler(store repository.Store, clock Clock, cleanupBuffer time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{store: store, clock: clock, buffer: cleanupBuffer, log: log}
}

// CreateShowtime runs under the room lock so concurrent requests for the
// same room are checked one after the other.
func (s *Scheduler) CreateShowtime(ctx context.Context, in ShowtimeInput) (*model.Showtime, error) {
	if in.StartsAt.IsZero() {
		return nil, invalid("starts_at", "is required")
	}
	var st *model.Showtime
	err := s.store.LockRoom(ctx, in.RoomID, func(tx repository.Tx) error {
		room, err := tx.GetRoom(ctx, in.RoomID)
		if err != nil {
			return err
		}
		if !room.IsActive {
			return notFound("room", in.RoomID)
		}
		film, err := activeFilm(ctx, tx, in.FilmID)
		if err != nil {
			return err
		}
		start := in.StartsAt.UTC()
		end := start.Add(film.Duration() + s.buffer)
		if err := s.checkOverlap(ctx, tx, in.RoomID, start, end, 0); err != nil {
			return err
		}
		now := s.clock.Now()
		st = &model.Showtime{
			FilmID: in.FilmID, RoomID: in.RoomID, StartsAt: start, EndsAt: end,
			PriceCents: in.PriceCents, IsActive: true, CreatedAt: now, UpdatedAt: now,
		}
		return tx.CreateShowtime(ctx, st)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("room", in.RoomID)
	}
	if err != nil {
		return nil, internal("create showtime", err)
	}
	s.log.Info("showtime scheduled",
		zap.Uint64("showtime_id", st.ID), zap.Uint64("room_id", st.RoomID),
		zap.Time("starts_at", st.StartsAt), zap.Time("ends_at", st.EndsAt))
	return st, nil
}

// UpdateShowtime re-validates the occupancy window, excluding the showtime
// itself from the overlap check.  The current cleanup buffer applies.
func (s *Scheduler) UpdateShowtime(ctx context.Context, id uint64, p ShowtimePatch) (*model.Showtime, error) {
	cur, err := s.GetShowtime(ctx, id)
	if err != nil {
		return nil, err
	}
	var st *model.Showtime
	err = s.store.LockRoom(ctx, cur.RoomID, func(tx repository.Tx) error {
		// Row lock after the room lock: a concurrent deactivation either
		// commits first and is seen here, or waits for this update.
		existing, err := tx.GetShowtimeForUpdate(ctx, id)
		if err != nil {
			return notFound("showtime", id)
		}
		if !existing.IsActive {
			return notFound("showtime", id)
		}
		next := *existing
		var film *model.Film
		if p.FilmID != nil && *p.FilmID != existing.FilmID {
			if film, err = activeFilm(ctx, tx, *p.FilmID); err != nil {
				return err
			}
			next.FilmID = *p.FilmID
		} else if film, err = tx.GetFilm(ctx, existing.FilmID); err != nil {
			return internal("load film", err)
		}
		if p.StartsAt != nil {
			if p.StartsAt.IsZero() {
				return invalid("starts_at", "must not be empty")
			}
			next.StartsAt = p.StartsAt.UTC()
		}
		if p.PriceCents != nil {
			next.PriceCents = *p.PriceCents
		}
		next.EndsAt = next.StartsAt.Add(film.Duration() + s.buffer)
		if err := s.checkOverlap(ctx, tx, next.RoomID, next.StartsAt, next.EndsAt, id); err != nil {
			return err
		}
		next.UpdatedAt = s.clock.Now()
		st = &next
		return tx.UpdateShowtime(ctx, st)
	})
	if err != nil {
		return nil, internal("update showtime", err)
	}
	s.log.Info("showtime updated", zap.Uint64("showtime_id", id),
		zap.Time("starts_at", st.StartsAt), zap.Time("ends_at", st.EndsAt))
	return st, nil
}

// DeactivateShowtime soft-deletes the showtime.  Claims already placed stay
// as they are; new holds are refused.  Repeating the call is a no-op.
func (s *Scheduler) DeactivateShowtime(ctx context.Context, id uint64) error {
	err := s.store.LockShowtimes(ctx, []uint64{id}, func(tx repository.Tx) error {
		st, err := tx.GetShowtime(ctx, id)
		if err != nil {
			return err
		}
		if !st.IsActive {
			return nil
		}
		st.IsActive = false
		st.UpdatedAt = s.clock.Now()
		return tx.UpdateShowtime(ctx, st)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("showtime", id)
	}
	if err != nil {
		return internal("deactivate showtime", err)
	}
	s.log.Info("showtime deactivated", zap.Uint64("showtime_id", id))
	return nil
}

func (s *Scheduler) GetShowtime(ctx context.Context, id uint64) (*model.Showtime, error) {
	var st *model.Showtime
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		st, err = tx.GetShowtime(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", id)
	}
	return st, internal("get showtime", err)
}

// ListShowtimes lists a room's showtimes, or all showtimes for roomID 0.
func (s *Scheduler) ListShowtimes(ctx context.Context, roomID uint64) ([]model.Showtime, error) {
	var out []model.Showtime
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListShowtimes(ctx, roomID)
		return err
	})
	return out, internal("list showtimes", err)
}

func (s *Scheduler) checkOverlap(ctx context.Context, tx repository.Tx, roomID uint64, start, end time.Time, excludeID uint64) error {
	clash, err := tx.FindOverlapping(ctx, roomID, start, end, excludeID)
	if err != nil {
		return err
	}
	if len(clash) == 0 {
		return nil
	}
	ids := make([]uint64, len(clash))
	for i, c := range clash {
		ids[i] = c.ID
	}
	return &ConflictError{RoomID: roomID, ShowtimeIDs: ids}
}

func activeFilm(ctx context.Context, tx repository.Tx, id uint64) (*model.Film, error) {
	f, err := tx.GetFilm(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("film", id)
	}
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, notFound("film", id)
	}
	return f, nil
}
