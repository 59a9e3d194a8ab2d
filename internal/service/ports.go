package service

import (
	"context"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// ChargeRequest asks the payment collaborator to take money for a
// reservation.
type ChargeRequest struct {
	ReservationID     uint64
	ReservationNumber string
	AmountCents       uint64
	Currency          string
	CustomerEmail     string
}

// PaymentOutcome is the final answer of the collaborator.  Ref is set on
// success; Reason on failure.
type PaymentOutcome struct {
	Succeeded bool
	Ref       string
	Reason    string
}

// Payments is the external payment processor.  The engine never retries a
// call; an error means the outcome is unknown and nothing was decided.
type Payments interface {
	Charge(ctx context.Context, req ChargeRequest) (PaymentOutcome, error)
	Refund(ctx context.Context, paymentRef string) (PaymentOutcome, error)
}

// ReservationNotice carries what a customer-facing message needs without
// another lookup.
type ReservationNotice struct {
	ReservationID     uint64
	ReservationNumber string
	Status            string
	FilmTitle         string
	RoomName          string
	ShowtimeID        uint64
	StartsAt          time.Time
	SeatLabels        []string
	Quantity          uint32
	AmountCents       uint64
	Currency          string
	Contact           model.Contact
	UserID            string
	Reason            string
	OccurredAt        time.Time
}

// Notifier learns about terminal reservation outcomes.  Calls are
// fire-and-forget: an error is logged and never undoes the state change.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, n ReservationNotice) error
	ReservationCancelled(ctx context.Context, n ReservationNotice) error
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) ReservationConfirmed(context.Context, ReservationNotice) error { return nil }
func (NopNotifier) ReservationCancelled(context.Context, ReservationNotice) error { return nil }
