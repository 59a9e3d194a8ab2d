package model

import "time"

// Film is the catalog entry a showtime screens.  Only the duration matters to
// scheduling; the rest of the catalog lives outside the booking engine.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – display title.
//  DurationMinutes – running time used to compute the occupancy window.
//  IsActive        – inactive films cannot be scheduled.
type Film struct {
	ID              uint64    `json:"id"`               // films.id
	Title           string    `json:"title"`            // films.title
	DurationMinutes uint32    `json:"duration_minutes"` // films.duration_minutes
	IsActive        bool      `json:"is_active"`        // films.is_active
	CreatedAt       time.Time `json:"created_at"`       // films.created_at
}

// Duration returns the running time as a time.Duration.
func (f Film) Duration() time.Duration {
	return time.Duration(f.DurationMinutes) * time.Minute
}
