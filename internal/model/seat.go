package model

import "strconv"

// Seat classes.
const (
	SeatClassStandard = "STANDARD"
	SeatClassVIP      = "VIP"
)

// Seat describes a physical seat in a room.  Seats are uniquely identified by
// their room, row label and seat number and are never deleted; they are
// deactivated together with their room.
type Seat struct {
	ID         uint64 `json:"id"`          // seats.id
	RoomID     uint64 `json:"room_id"`     // seats.room_id
	RowLabel   string `json:"row_label"`   // seats.row_label
	SeatNumber uint32 `json:"seat_number"` // seats.seat_number
	SeatClass  string `json:"seat_class"`  // seats.seat_class
	IsActive   bool   `json:"is_active"`   // seats.is_active
}

// Label renders the seat as row label plus number, e.g. "C7".
func (s Seat) Label() string {
	return s.RowLabel + strconv.FormatUint(uint64(s.SeatNumber), 10)
}
