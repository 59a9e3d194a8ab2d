package model

import "time"

// Invoice is issued exactly once, when a reservation is confirmed.  It is
// append-only and snapshots the parties and amount at confirmation time.
type Invoice struct {
	ID            uint64    `json:"id"`             // invoices.id
	Number        string    `json:"number"`         // invoices.number
	ReservationID uint64    `json:"reservation_id"` // invoices.reservation_id (unique)
	AmountCents   uint64    `json:"amount_cents"`   // invoices.amount_cents
	Currency      string    `json:"currency"`       // invoices.currency
	ClientID      string    `json:"client_id"`      // invoices.client_id
	ClientName    string    `json:"client_name"`    // invoices.client_name
	ClientEmail   string    `json:"client_email"`   // invoices.client_email
	SupplierName  string    `json:"supplier_name"`  // invoices.supplier_name
	SupplierEmail string    `json:"supplier_email"` // invoices.supplier_email
	PaymentRef    string    `json:"payment_ref"`    // invoices.payment_ref
	IssuedAt      time.Time `json:"issued_at"`      // invoices.issued_at
}
