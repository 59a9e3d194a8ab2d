package model

import "time"

// Reservation statuses.  CANCELLED is terminal.
const (
	ReservationPending   = "PENDING"
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

// Refund outcomes recorded on cancellation.
const (
	RefundNone      = "NONE"
	RefundSucceeded = "SUCCEEDED"
	RefundFailed    = "FAILED"
)

// Contact is the customer contact captured at checkout.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Reservation records a customer's booking of seats for one showtime.
// SeatIDs is an audit copy; the seat claims are authoritative.
//
// Fields:
//  Number         – unique human readable reference (RES + timestamp + digits).
//  HolderRef      – holder whose seat holds were promoted when opening.
//  UnitPriceCents – price captured when the seats entered the cart.
//  TotalCents     – Quantity × UnitPriceCents, fixed on confirmation.
//  PaymentRef     – processor reference stamped by Confirm.
//  ExpiresAt      – end of the payment window while PENDING.
type Reservation struct {
	ID             uint64     `json:"id"`                      // reservations.id
	Number         string     `json:"number"`                  // reservations.number
	ShowtimeID     uint64     `json:"showtime_id"`             // reservations.showtime_id
	UserID         *string    `json:"user_id,omitempty"`       // reservations.user_id
	HolderRef      string     `json:"-"`                       // reservations.holder_ref
	Contact        Contact    `json:"contact"`                 // reservations.contact_*
	SeatIDs        []uint64   `json:"seat_ids"`                // reservations.seat_ids (JSON)
	Quantity       uint32     `json:"quantity"`                // reservations.quantity
	UnitPriceCents uint32     `json:"unit_price_cents"`        // reservations.unit_price_cents
	TotalCents     uint64     `json:"total_cents"`             // reservations.total_cents
	Currency       string     `json:"currency"`                // reservations.currency
	Status         string     `json:"status"`                  // reservations.status
	PaymentRef     *string    `json:"payment_ref,omitempty"`   // reservations.payment_ref
	RefundStatus   string     `json:"refund_status"`           // reservations.refund_status
	CancelReason   *string    `json:"cancel_reason,omitempty"` // reservations.cancel_reason
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`    // reservations.expires_at
	CreatedAt      time.Time  `json:"created_at"`              // reservations.created_at
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`  // reservations.confirmed_at
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`  // reservations.cancelled_at
}

// Clone returns a deep copy so callers cannot alias stored slices or pointers.
func (r Reservation) Clone() Reservation {
	out := r
	out.SeatIDs = append([]uint64(nil), r.SeatIDs...)
	out.UserID = cloneStr(r.UserID)
	out.PaymentRef = cloneStr(r.PaymentRef)
	out.CancelReason = cloneStr(r.CancelReason)
	out.ExpiresAt = cloneTime(r.ExpiresAt)
	out.ConfirmedAt = cloneTime(r.ConfirmedAt)
	out.CancelledAt = cloneTime(r.CancelledAt)
	return out
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
