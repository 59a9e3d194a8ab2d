package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// numberAttempts bounds reservation number generation: one try plus one
// retry with fresh digits.
const numberAttempts = 2

// OrchestratorConfig carries the booking settings the orchestrator needs.
type OrchestratorConfig struct {
	Currency      string
	SupplierName  string
	SupplierEmail string
}

// Orchestrator drives a reservation from opening through payment to its
// terminal state.  Every step runs under the showtime lock and is safe to
// repeat.
type Orchestrator struct {
	store    repository.Store
	inv      *Inventory
	cart     *Cart
	clock    Clock
	payments Payments
	notifier Notifier
	numbers  NumberGenerator
	cfg      OrchestratorConfig
	log      *zap.Logger
}

// OrchestratorDeps groups the collaborators of NewOrchestrator.  Notifier and
// Numbers fall back to NopNotifier and RandomNumbers.
type OrchestratorDeps struct {
	Store    repository.Store
	Inv      *Inventory
	Cart     *Cart
	Clock    Clock
	Payments Payments
	Notifier Notifier
	Numbers  NumberGenerator
	Config   OrchestratorConfig
	Log      *zap.Logger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Notifier == nil {
		d.Notifier = NopNotifier{}
	}
	if d.Numbers == nil {
		d.Numbers = RandomNumbers{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	d.Config.Currency = strings.ToLower(d.Config.Currency)
	return &Orchestrator{
		store: d.Store, inv: d.Inv, cart: d.Cart, clock: d.Clock, payments: d.Payments,
		notifier: d.Notifier, numbers: d.Numbers, cfg: d.Config, log: d.Log,
	}
}

// OpenInput opens a reservation over seats the holder currently holds.
// A nil UnitPriceCents snapshots the showtime's current price.
type OpenInput struct {
	ShowtimeID     uint64
	SeatIDs        []uint64
	Holder         string
	UserID         string
	Contact        model.Contact
	UnitPriceCents *uint32
}

// CheckoutInput turns a session's cart into reservations.
type CheckoutInput struct {
	SessionID string
	UserID    string
	Contact   model.Contact
}

// CancelInput describes why a reservation ends.  Refund records the outcome
// of a refund the caller already attempted, if any.
type CancelInput struct {
	Reason string
	Refund *PaymentOutcome
}

// OpenReservation promotes the holder's holds to RESERVED claims and records
// a PENDING reservation that expires at the end of the payment window.
func (o *Orchestrator) OpenReservation(ctx context.Context, in OpenInput) (*model.Reservation, error) {
	in.Holder = strings.TrimSpace(in.Holder)
	if in.Holder == "" {
		return nil, invalid("holder", "is required")
	}
	if len(dedupeIDs(in.SeatIDs)) == 0 {
		return nil, invalid("seat_ids", "at least one seat is required")
	}
	var res *model.Reservation
	err := o.store.LockShowtimes(ctx, []uint64{in.ShowtimeID}, func(tx repository.Tx) error {
		var err error
		res, err = o.openTx(ctx, tx, in)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", in.ShowtimeID)
	}
	if err != nil {
		return nil, internal("open reservation", err)
	}
	o.log.Info("reservation opened", zap.Uint64("reservation_id", res.ID), zap.String("number", res.Number),
		zap.Uint64("showtime_id", res.ShowtimeID), zap.Int("seats", len(res.SeatIDs)))
	return res, nil
}

func (o *Orchestrator) openTx(ctx context.Context, tx repository.Tx, in OpenInput) (*model.Reservation, error) {
	seats := dedupeIDs(in.SeatIDs)
	st, err := o.inv.bookableSeats(ctx, tx, in.ShowtimeID, seats)
	if err != nil {
		return nil, err
	}
	if _, err := activeFilm(ctx, tx, st.FilmID); err != nil {
		return nil, err
	}
	room, err := tx.GetRoom(ctx, st.RoomID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !room.IsActive) {
		return nil, notFound("room", st.RoomID)
	}
	if err != nil {
		return nil, err
	}

	price := st.PriceCents
	if in.UnitPriceCents != nil {
		price = *in.UnitPriceCents
	}
	now := o.clock.Now()
	res := &model.Reservation{
		ShowtimeID:     in.ShowtimeID,
		HolderRef:      in.Holder,
		Contact:        in.Contact,
		SeatIDs:        seats,
		Quantity:       uint32(len(seats)),
		UnitPriceCents: price,
		Currency:       o.cfg.Currency,
		Status:         model.ReservationPending,
		RefundStatus:   model.RefundNone,
		CreatedAt:      now,
	}
	if in.UserID != "" {
		uid := in.UserID
		res.UserID = &uid
	}
	if err := o.insertWithNumber(ctx, tx, res, now); err != nil {
		return nil, err
	}

	deadline, err := o.inv.promoteToReservedTx(ctx, tx, in.ShowtimeID, seats, in.Holder, res.ID)
	var stale *StaleHoldError
	if errors.As(err, &stale) {
		return nil, &SeatUnavailableError{ShowtimeID: stale.ShowtimeID, SeatIDs: stale.SeatIDs}
	}
	if err != nil {
		return nil, err
	}
	res.ExpiresAt = &deadline
	if err := tx.UpdateReservation(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// insertWithNumber stores res under a fresh reservation number.  A collision
// either on the lookup or on the insert itself gets one retry.
func (o *Orchestrator) insertWithNumber(ctx context.Context, tx repository.Tx, res *model.Reservation, now time.Time) error {
	for i := 0; i < numberAttempts; i++ {
		num := o.numbers.Next(now)
		taken, err := tx.ReservationNumberExists(ctx, num)
		if err != nil {
			return err
		}
		if taken {
			o.log.Warn("reservation number collision", zap.String("number", num), zap.Int("attempt", i+1))
			continue
		}
		res.Number = num
		err = tx.CreateReservation(ctx, res)
		if errors.Is(err, repository.ErrDuplicate) {
			o.log.Warn("reservation number collision", zap.String("number", num), zap.Int("attempt", i+1))
			continue
		}
		return err
	}
	return &InternalError{Op: "generate reservation number", Err: errors.New("no unused number after retry")}
}

// Checkout opens one reservation per cart item and removes the items, all
// in one transaction over every showtime in the cart.  If any item cannot be
// opened nothing changes.
func (o *Orchestrator) Checkout(ctx context.Context, in CheckoutInput) ([]model.Reservation, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return nil, invalid("session_id", "is required")
	}
	if err := o.cart.dropIfExpired(ctx, in.SessionID); err != nil {
		return nil, err
	}
	key := repository.CartKey{SessionID: in.SessionID}
	items, err := o.cart.list(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, invalid("cart", "is empty")
	}
	locked := make(map[uint64]bool, len(items))
	for _, it := range items {
		locked[it.ShowtimeID] = true
	}

	var opened []model.Reservation
	err = o.store.LockShowtimes(ctx, showtimeIDs(items), func(tx repository.Tx) error {
		current, err := tx.ListCartItems(ctx, key)
		if err != nil {
			return err
		}
		if len(current) == 0 {
			return invalid("cart", "is empty")
		}
		opened = make([]model.Reservation, 0, len(current))
		for _, it := range current {
			if !locked[it.ShowtimeID] {
				return invalid("cart", "changed during checkout")
			}
			if uint32(len(it.SeatIDs)) != it.Quantity {
				return invalid("seat_ids", "cart item "+joinIDs([]uint64{it.ID})+" has unchosen seats")
			}
			price := it.UnitPriceCents
			res, err := o.openTx(ctx, tx, OpenInput{
				ShowtimeID: it.ShowtimeID, SeatIDs: it.SeatIDs, Holder: in.SessionID,
				UserID: in.UserID, Contact: in.Contact, UnitPriceCents: &price,
			})
			if err != nil {
				return err
			}
			if err := tx.DeleteCartItem(ctx, it.ID); err != nil {
				return err
			}
			opened = append(opened, *res)
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", items[0].ShowtimeID)
	}
	if err != nil {
		return nil, internal("checkout", err)
	}
	o.log.Info("cart checked out", zap.String("session_id", in.SessionID), zap.Int("reservations", len(opened)))
	return opened, nil
}

// Confirm sells the reservation's seats and issues its invoice.  Confirming
// again with the same payment reference returns the reservation unchanged.
func (o *Orchestrator) Confirm(ctx context.Context, id uint64, paymentRef string) (*model.Reservation, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, invalid("payment_ref", "is required")
	}
	cur, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		res    *model.Reservation
		notice *ReservationNotice
	)
	err = o.store.LockShowtimes(ctx, []uint64{cur.ShowtimeID}, func(tx repository.Tx) error {
		var err error
		res, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		switch res.Status {
		case model.ReservationConfirmed:
			if res.PaymentRef != nil && *res.PaymentRef == paymentRef {
				return nil
			}
			return &InvalidStateError{ReservationID: id, Status: res.Status, Op: "confirm", Detail: "already confirmed with a different payment reference"}
		case model.ReservationCancelled:
			return &InvalidStateError{ReservationID: id, Status: res.Status, Op: "confirm"}
		}

		if err := o.inv.promoteToSoldTx(ctx, tx, res.ShowtimeID, res.SeatIDs, res.ID); err != nil {
			return err
		}
		now := o.clock.Now()
		ref := paymentRef
		res.Status = model.ReservationConfirmed
		res.PaymentRef = &ref
		res.TotalCents = uint64(res.Quantity) * uint64(res.UnitPriceCents)
		res.ConfirmedAt = &now
		res.ExpiresAt = nil
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		if err := tx.CreateInvoice(ctx, o.invoiceFor(res, now)); err != nil {
			return err
		}
		notice, err = o.noticeTx(ctx, tx, res, "")
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("reservation", id)
	}
	if err != nil {
		return nil, internal("confirm reservation", err)
	}
	if notice != nil {
		o.log.Info("reservation confirmed", zap.Uint64("reservation_id", id), zap.String("number", res.Number),
			zap.Uint64("total_cents", res.TotalCents))
		if err := o.notifier.ReservationConfirmed(ctx, *notice); err != nil {
			o.log.Error("confirmation notice failed", zap.Uint64("reservation_id", id), zap.Error(err))
		}
	}
	return res, nil
}

func (o *Orchestrator) invoiceFor(res *model.Reservation, now time.Time) *model.Invoice {
	inv := &model.Invoice{
		Number:        "INV-" + strings.ToUpper(uuid.NewString()[:8]),
		ReservationID: res.ID,
		AmountCents:   res.TotalCents,
		Currency:      res.Currency,
		ClientName:    res.Contact.Name,
		ClientEmail:   res.Contact.Email,
		SupplierName:  o.cfg.SupplierName,
		SupplierEmail: o.cfg.SupplierEmail,
		IssuedAt:      now,
	}
	if res.UserID != nil {
		inv.ClientID = *res.UserID
	} else {
		inv.ClientID = res.HolderRef
	}
	if res.PaymentRef != nil {
		inv.PaymentRef = *res.PaymentRef
	}
	return inv
}

// Cancel ends a PENDING or CONFIRMED reservation and releases whatever claims
// it still owns.  Cancelling a cancelled reservation is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id uint64, in CancelInput) (*model.Reservation, error) {
	return o.cancel(ctx, id, in, nil)
}

// cancel applies Cancel when guard, evaluated under the lock, allows it.
func (o *Orchestrator) cancel(ctx context.Context, id uint64, in CancelInput, guard func(*model.Reservation) bool) (*model.Reservation, error) {
	cur, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var (
		res    *model.Reservation
		notice *ReservationNotice
	)
	err = o.store.LockShowtimes(ctx, []uint64{cur.ShowtimeID}, func(tx repository.Tx) error {
		var err error
		res, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if res.Status == model.ReservationCancelled || (guard != nil && !guard(res)) {
			return nil
		}
		if _, err := o.inv.releaseTx(ctx, tx, res.ShowtimeID, res.SeatIDs, res.ID); err != nil {
			return err
		}
		now := o.clock.Now()
		res.Status = model.ReservationCancelled
		res.CancelledAt = &now
		res.ExpiresAt = nil
		if in.Reason != "" {
			reason := in.Reason
			res.CancelReason = &reason
		}
		if in.Refund != nil {
			if in.Refund.Succeeded {
				res.RefundStatus = model.RefundSucceeded
			} else {
				res.RefundStatus = model.RefundFailed
			}
		}
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		notice, err = o.noticeTx(ctx, tx, res, in.Reason)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("reservation", id)
	}
	if err != nil {
		return nil, internal("cancel reservation", err)
	}
	if notice != nil {
		o.log.Info("reservation cancelled", zap.Uint64("reservation_id", id), zap.String("number", res.Number),
			zap.String("reason", in.Reason), zap.String("refund_status", res.RefundStatus))
		if err := o.notifier.ReservationCancelled(ctx, *notice); err != nil {
			o.log.Error("cancellation notice failed", zap.Uint64("reservation_id", id), zap.Error(err))
		}
	}
	return res, nil
}

// Pay charges the reservation's amount and settles it with the outcome.
// A confirmed reservation is returned as is.
func (o *Orchestrator) Pay(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case model.ReservationConfirmed:
		return res, nil
	case model.ReservationCancelled:
		return nil, &InvalidStateError{ReservationID: id, Status: res.Status, Op: "pay"}
	}
	if res.ExpiresAt != nil && !o.clock.Now().Before(*res.ExpiresAt) {
		if _, err := o.cancel(ctx, id, CancelInput{Reason: "payment window expired"}, pendingOnly); err != nil {
			return nil, err
		}
		return nil, &InvalidStateError{ReservationID: id, Status: model.ReservationCancelled, Op: "pay", Detail: "payment window expired"}
	}

	out, err := o.payments.Charge(ctx, ChargeRequest{
		ReservationID:     res.ID,
		ReservationNumber: res.Number,
		AmountCents:       uint64(res.Quantity) * uint64(res.UnitPriceCents),
		Currency:          res.Currency,
		CustomerEmail:     res.Contact.Email,
	})
	if err != nil {
		return nil, &InternalError{Op: "charge reservation", Err: err}
	}
	return o.HandlePaymentOutcome(ctx, id, out)
}

// HandlePaymentOutcome settles a PENDING reservation with a payment result.
// A success whose seats can no longer be sold is refunded and cancelled.
func (o *Orchestrator) HandlePaymentOutcome(ctx context.Context, id uint64, out PaymentOutcome) (*model.Reservation, error) {
	if !out.Succeeded {
		reason := out.Reason
		if reason == "" {
			reason = "declined"
		}
		if _, err := o.cancel(ctx, id, CancelInput{Reason: "payment failed: " + reason}, pendingOnly); err != nil {
			return nil, err
		}
		return nil, &PaymentDeclinedError{ReservationID: id, Reason: reason}
	}

	res, err := o.Confirm(ctx, id, out.Ref)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrSeatUnavailable) && !errors.Is(err, ErrInvalidState) {
		return nil, err
	}
	o.log.Warn("payment succeeded but reservation could not be confirmed; refunding",
		zap.Uint64("reservation_id", id), zap.String("payment_ref", out.Ref), zap.Error(err))
	refund, rerr := o.payments.Refund(ctx, out.Ref)
	if rerr != nil {
		o.log.Error("compensating refund failed", zap.Uint64("reservation_id", id), zap.Error(rerr))
		refund = PaymentOutcome{Reason: rerr.Error()}
	}
	if !refund.Succeeded {
		o.log.Error("compensating refund declined", zap.Uint64("reservation_id", id), zap.String("reason", refund.Reason))
	}
	if _, cerr := o.cancel(ctx, id, CancelInput{Reason: "seats lost before payment settled", Refund: &refund}, pendingOnly); cerr != nil {
		o.log.Error("compensating cancel failed", zap.Uint64("reservation_id", id), zap.Error(cerr))
	}
	return nil, err
}

// Refund returns the money of a confirmed reservation and cancels it.  The
// seats are released whatever the processor answers; the outcome is kept on
// the reservation.  PENDING reservations are simply cancelled.
func (o *Orchestrator) Refund(ctx context.Context, id uint64, reason string) (*model.Reservation, error) {
	res, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "refunded"
	}
	switch res.Status {
	case model.ReservationCancelled:
		return res, nil
	case model.ReservationPending:
		return o.Cancel(ctx, id, CancelInput{Reason: reason})
	}
	out := PaymentOutcome{Reason: "missing payment reference"}
	if res.PaymentRef != nil {
		out, err = o.payments.Refund(ctx, *res.PaymentRef)
		if err != nil {
			o.log.Error("refund call failed", zap.Uint64("reservation_id", id), zap.Error(err))
			out = PaymentOutcome{Reason: err.Error()}
		}
	}
	return o.Cancel(ctx, id, CancelInput{Reason: reason, Refund: &out})
}

// ExpirePending cancels PENDING reservations whose payment window has passed
// and returns how many were cancelled.
func (o *Orchestrator) ExpirePending(ctx context.Context) (int, error) {
	var ids []uint64
	err := o.store.View(ctx, func(tx repository.Tx) error {
		var err error
		ids, err = tx.ExpiredPendingReservations(ctx, o.clock.Now())
		return err
	})
	if err != nil {
		return 0, internal("list expired reservations", err)
	}
	n := 0
	var errs []error
	for _, id := range ids {
		res, err := o.cancel(ctx, id, CancelInput{Reason: "payment window expired"}, o.pendingExpired)
		if err != nil {
			o.log.Error("expire reservation failed", zap.Uint64("reservation_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if res.Status == model.ReservationCancelled {
			n++
		}
	}
	return n, errors.Join(errs...)
}

func (o *Orchestrator) pendingExpired(r *model.Reservation) bool {
	return r.Status == model.ReservationPending && r.ExpiresAt != nil && !o.clock.Now().Before(*r.ExpiresAt)
}

func pendingOnly(r *model.Reservation) bool { return r.Status == model.ReservationPending }

func (o *Orchestrator) Get(ctx context.Context, id uint64) (*model.Reservation, error) {
	var res *model.Reservation
	err := o.store.View(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.GetReservation(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("reservation", id)
	}
	if err != nil {
		return nil, internal("get reservation", err)
	}
	return res, nil
}

func (o *Orchestrator) GetByNumber(ctx context.Context, number string) (*model.Reservation, error) {
	var res *model.Reservation
	err := o.store.View(ctx, func(tx repository.Tx) error {
		var err error
		res, err = tx.GetReservationByNumber(ctx, strings.TrimSpace(number))
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Entity: "reservation", ID: number}
	}
	if err != nil {
		return nil, internal("get reservation", err)
	}
	return res, nil
}

func (o *Orchestrator) List(ctx context.Context, f repository.ReservationFilter) ([]model.Reservation, error) {
	var out []model.Reservation
	err := o.store.View(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListReservations(ctx, f)
		return err
	})
	if err != nil {
		return nil, internal("list reservations", err)
	}
	if out == nil {
		out = []model.Reservation{}
	}
	return out, nil
}

// Invoice returns the invoice issued when the reservation was confirmed.
func (o *Orchestrator) Invoice(ctx context.Context, reservationID uint64) (*model.Invoice, error) {
	var inv *model.Invoice
	err := o.store.View(ctx, func(tx repository.Tx) error {
		var err error
		inv, err = tx.GetInvoiceByReservation(ctx, reservationID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Entity: "invoice for reservation", ID: joinIDs([]uint64{reservationID})}
	}
	if err != nil {
		return nil, internal("get invoice", err)
	}
	return inv, nil
}

func (o *Orchestrator) noticeTx(ctx context.Context, tx repository.Tx, res *model.Reservation, reason string) (*ReservationNotice, error) {
	st, err := tx.GetShowtime(ctx, res.ShowtimeID)
	if err != nil {
		return nil, err
	}
	film, err := tx.GetFilm(ctx, st.FilmID)
	if err != nil {
		return nil, err
	}
	room, err := tx.GetRoom(ctx, st.RoomID)
	if err != nil {
		return nil, err
	}
	seats, err := tx.ListSeats(ctx, st.RoomID)
	if err != nil {
		return nil, err
	}
	labels := make(map[uint64]string, len(seats))
	for _, s := range seats {
		labels[s.ID] = s.Label()
	}
	n := &ReservationNotice{
		ReservationID:     res.ID,
		ReservationNumber: res.Number,
		Status:            res.Status,
		FilmTitle:         film.Title,
		RoomName:          room.Name,
		ShowtimeID:        st.ID,
		StartsAt:          st.StartsAt,
		Quantity:          res.Quantity,
		AmountCents:       uint64(res.Quantity) * uint64(res.UnitPriceCents),
		Currency:          res.Currency,
		Contact:           res.Contact,
		Reason:            reason,
		OccurredAt:        o.clock.Now(),
	}
	for _, sid := range res.SeatIDs {
		n.SeatLabels = append(n.SeatLabels, labels[sid])
	}
	if res.UserID != nil {
		n.UserID = *res.UserID
	}
	return n, nil
}
