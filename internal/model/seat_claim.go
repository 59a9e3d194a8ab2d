package model

import "time"

// Claim states.  A seat with no claim row is free.
const (
	ClaimHeld     = "HELD"
	ClaimReserved = "RESERVED"
	ClaimSold     = "SOLD"
)

// SeatStatusFree is reported for seats without a live claim.
const SeatStatusFree = "FREE"

// SeatClaim records that a seat of a showtime is taken.  At most one claim
// exists per (ShowtimeID, SeatID); releasing a claim deletes it.
//
// Fields:
//  Holder        – opaque holder reference (session or user) for HELD claims.
//  ReservationID – owning reservation for RESERVED and SOLD claims.
//  ExpiresAt     – hold or payment deadline; nil for SOLD.
type SeatClaim struct {
	ShowtimeID    uint64     `json:"showtime_id"`              // seat_claims.showtime_id
	SeatID        uint64     `json:"seat_id"`                  // seat_claims.seat_id
	State         string     `json:"state"`                    // seat_claims.state
	Holder        string     `json:"holder,omitempty"`         // seat_claims.holder
	ReservationID *uint64    `json:"reservation_id,omitempty"` // seat_claims.reservation_id
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`     // seat_claims.expires_at
	CreatedAt     time.Time  `json:"created_at"`               // seat_claims.created_at
}

// Expired reports whether the claim no longer counts at instant now.
func (c SeatClaim) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// OwnedBy reports whether the claim belongs to the given reservation.
func (c SeatClaim) OwnedBy(reservationID uint64) bool {
	return c.ReservationID != nil && *c.ReservationID == reservationID
}
