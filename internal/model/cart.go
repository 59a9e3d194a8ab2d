package model

import "time"

// CartItem is a line in a customer's cart.  UnitPriceCents is captured when the
// item is added and never follows later price changes.  SeatIDs lists the
// seats already held for the line; it may be shorter than Quantity while the
// customer is still choosing.
type CartItem struct {
	ID             uint64    `json:"id"`                // cart_items.id
	SessionID      string    `json:"session_id"`        // cart_items.session_id
	UserID         *string   `json:"user_id,omitempty"` // cart_items.user_id
	ShowtimeID     uint64    `json:"showtime_id"`       // cart_items.showtime_id
	SeatClass      string    `json:"seat_class"`        // cart_items.seat_class
	Quantity       uint32    `json:"quantity"`          // cart_items.quantity
	UnitPriceCents uint32    `json:"unit_price_cents"`  // cart_items.unit_price_cents
	SeatIDs        []uint64  `json:"seat_ids"`          // cart_items.seat_ids (JSON)
	CreatedAt      time.Time `json:"created_at"`        // cart_items.created_at
	ExpiresAt      time.Time `json:"expires_at"`        // cart_items.expires_at
}

// LineTotalCents is quantity times the captured unit price.
func (i CartItem) LineTotalCents() uint64 {
	return uint64(i.Quantity) * uint64(i.UnitPriceCents)
}

// CartTotal summarises a cart.
type CartTotal struct {
	Items      []CartItem `json:"items"`
	ItemCount  uint32     `json:"item_count"`
	TotalCents uint64     `json:"total_cents"`
}
