package model

import "time"

// Showtime is a scheduled screening of a film in a room.  EndsAt is the end
// of the occupancy window: start plus the film duration plus the cleanup
// buffer in force when the showtime was last scheduled.  Two active
// showtimes in the same room never have intersecting [StartsAt, EndsAt)
// windows.
type Showtime struct {
	ID         uint64    `json:"id"`          // showtimes.id
	FilmID     uint64    `json:"film_id"`     // showtimes.film_id
	RoomID     uint64    `json:"room_id"`     // showtimes.room_id
	StartsAt   time.Time `json:"starts_at"`   // showtimes.starts_at
	EndsAt     time.Time `json:"ends_at"`     // showtimes.ends_at
	PriceCents uint32    `json:"price_cents"` // showtimes.price_cents
	IsActive   bool      `json:"is_active"`   // showtimes.is_active
	CreatedAt  time.Time `json:"created_at"`  // showtimes.created_at
	UpdatedAt  time.Time `json:"updated_at"`  // showtimes.updated_at
}

// Overlaps reports whether the half-open windows [start, end) of s and
// [start, end) intersect.  Touching windows do not overlap.
func (s Showtime) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && start.Before(s.EndsAt)
}
