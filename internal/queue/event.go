// Package queue carries reservation outcomes over RabbitMQ.  The server
// publishes one message per confirmed or cancelled reservation; the notifier
// worker consumes them, appends them to logs/booking.log and e-mails the
// customer.
package queue

import (
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// Queue names.  Both queues are durable and messages persistent.
const (
	QueueConfirmed = "booking.confirmed"
	QueueCancelled = "booking.cancelled"
)

// ReservationEvent is the message body on both queues.  It contains enough
// for downstream consumers to log or notify without querying the database.
type ReservationEvent struct {
	ReservationID     uint64   `json:"reservation_id"`
	ReservationNumber string   `json:"reservation_number"`
	Status            string   `json:"status"`
	UserID            string   `json:"user_id,omitempty"`
	ShowtimeID        uint64   `json:"showtime_id"`
	FilmTitle         string   `json:"film_title"`
	RoomName          string   `json:"room_name"`
	StartsAt          string   `json:"starts_at"`
	SeatLabels        []string `json:"seats"`
	Quantity          uint32   `json:"quantity"`
	AmountCents       uint64   `json:"amount_cents"`
	Currency          string   `json:"currency"`
	ContactName       string   `json:"contact_name,omitempty"`
	ContactEmail      string   `json:"contact_email,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	OccurredAt        string   `json:"occurred_at"`
}

// EventFromNotice flattens a notice into the wire format.  Times are RFC 3339
// in UTC.
func EventFromNotice(n service.ReservationNotice) ReservationEvent {
	return ReservationEvent{
		ReservationID:     n.ReservationID,
		ReservationNumber: n.ReservationNumber,
		Status:            n.Status,
		UserID:            n.UserID,
		ShowtimeID:        n.ShowtimeID,
		FilmTitle:         n.FilmTitle,
		RoomName:          n.RoomName,
		StartsAt:          n.StartsAt.UTC().Format(time.RFC3339),
		SeatLabels:        append([]string(nil), n.SeatLabels...),
		Quantity:          n.Quantity,
		AmountCents:       n.AmountCents,
		Currency:          n.Currency,
		ContactName:       n.Contact.Name,
		ContactEmail:      n.Contact.Email,
		Reason:            n.Reason,
		OccurredAt:        n.OccurredAt.UTC().Format(time.RFC3339),
	}
}
