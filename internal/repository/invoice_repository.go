package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
)

// CreateInvoice inserts an invoice.  reservation_id is unique, so a second
// invoice for the same reservation yields ErrDuplicate.
func (t *sqlTx) CreateInvoice(ctx context.Context, inv *model.Invoice) error {
	if err := t.writable(); err != nil {
		return err
	}
	const q = `INSERT INTO invoices (number, reservation_id, amount_cents, currency, client_id, client_name, client_email,
				   supplier_name, supplier_email, payment_ref, issued_at)
			   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, inv.Number, inv.ReservationID, inv.AmountCents, inv.Currency, inv.ClientID,
		inv.ClientName, inv.ClientEmail, inv.SupplierName, inv.SupplierEmail, inv.PaymentRef, inv.IssuedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inv.ID = uint64(id)
	return nil
}

func (t *sqlTx) GetInvoiceByReservation(ctx context.Context, reservationID uint64) (*model.Invoice, error) {
	const q = `SELECT id, number, reservation_id, amount_cents, currency, client_id, client_name, client_email,
				   supplier_name, supplier_email, payment_ref, issued_at
			   FROM invoices WHERE reservation_id = ?`
	var inv model.Invoice
	err := t.tx.QueryRowContext(ctx, q, reservationID).Scan(&inv.ID, &inv.Number, &inv.ReservationID, &inv.AmountCents,
		&inv.Currency, &inv.ClientID, &inv.ClientName, &inv.ClientEmail, &inv.SupplierName, &inv.SupplierEmail,
		&inv.PaymentRef, &inv.IssuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}
