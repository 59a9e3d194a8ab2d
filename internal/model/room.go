package model

import "time"

// Room represents a physical screening room.  The seat grid is generated once
// when the room is created; a different capacity means a new room.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – display name.
//  SeatRows    – number of seating rows.
//  SeatsPerRow – number of seats per row.
//  IsActive    – inactive rooms cannot host new showtimes.
//  CreatedAt   – creation timestamp.
type Room struct {
	ID          uint64    `json:"id"`            // rooms.id
	Name        string    `json:"name"`          // rooms.name
	SeatRows    uint32    `json:"seat_rows"`     // rooms.seat_rows
	SeatsPerRow uint32    `json:"seats_per_row"` // rooms.seats_per_row
	IsActive    bool      `json:"is_active"`     // rooms.is_active
	CreatedAt   time.Time `json:"created_at"`    // rooms.created_at
}

// Capacity is the number of seats generated for the room.
func (r Room) Capacity() int { return int(r.SeatRows) * int(r.SeatsPerRow) }
