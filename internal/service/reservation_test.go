package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

func TestOpenReservation(t *testing.T) {
	f := newFixture(t)
	res := f.open(t, "sess", 0, 1)

	if res.Status != model.ReservationPending || res.Quantity != 2 || res.UnitPriceCents != 1250 {
		t.Fatalf("unexpected reservation %+v", res)
	}
	if res.Currency != "cad" {
		t.Fatalf("currency %q", res.Currency)
	}
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(f.clock.Now().Add(paymentWindow)) {
		t.Fatalf("expires at %v", res.ExpiresAt)
	}
	if len(res.Number) != len("RES")+14+4 || res.Number[:3] != "RES" || res.Number[3:17] != "20300101120000" {
		t.Fatalf("number %q", res.Number)
	}
	if f.status(t, 0) != model.ClaimReserved {
		t.Fatal("seat not reserved")
	}
}

func TestOpenReservation_WithoutHoldIsUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(0), "sess", holdTTL); err != nil {
		t.Fatal(err)
	}
	_, err := f.orch.OpenReservation(ctx, service.OpenInput{ShowtimeID: f.showtime.ID, SeatIDs: f.seatIDs(0, 1), Holder: "sess"})
	var su *service.SeatUnavailableError
	if !errors.As(err, &su) || len(su.SeatIDs) != 1 || su.SeatIDs[0] != f.seats[1].ID {
		t.Fatalf("expected SeatUnavailableError naming A2, got %v", err)
	}
	list, err := f.orch.List(ctx, repository.ReservationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatal("failed open left a reservation behind")
	}
	if f.status(t, 0) != model.ClaimHeld {
		t.Fatal("failed open changed the held seat")
	}
}

func TestOpenReservation_NumberCollision(t *testing.T) {
	numbers := []string{"RES1", "RES1", "RES2", "RES2", "RES2"}
	next := 0
	f := newFixtureWith(t, service.NumberFunc(func(time.Time) string {
		n := numbers[next]
		next++
		return n
	}))

	first := f.open(t, "a", 0)
	if first.Number != "RES1" {
		t.Fatalf("first number %q", first.Number)
	}
	second := f.open(t, "b", 1)
	if second.Number != "RES2" {
		t.Fatalf("retry should use fresh digits, got %q", second.Number)
	}

	ctx := context.Background()
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(2), "c", holdTTL); err != nil {
		t.Fatal(err)
	}
	_, err := f.orch.OpenReservation(ctx, service.OpenInput{ShowtimeID: f.showtime.ID, SeatIDs: f.seatIDs(2), Holder: "c"})
	var ie *service.InternalError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InternalError after two collisions, got %v", err)
	}
	if f.status(t, 2) != model.ClaimHeld {
		t.Fatal("failed open consumed the hold")
	}
}

func TestConfirm_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0, 1)

	confirmed, err := f.orch.Confirm(ctx, res.ID, "pay_1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != model.ReservationConfirmed || confirmed.TotalCents != 2500 {
		t.Fatalf("confirmed %+v", confirmed)
	}
	if f.status(t, 0) != model.ClaimSold {
		t.Fatal("seat not sold")
	}
	inv, err := f.orch.Invoice(ctx, res.ID)
	if err != nil {
		t.Fatalf("Invoice: %v", err)
	}

	f.clock.Advance(time.Minute)
	again, err := f.orch.Confirm(ctx, res.ID, "pay_1")
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if !again.ConfirmedAt.Equal(*confirmed.ConfirmedAt) || again.TotalCents != confirmed.TotalCents {
		t.Fatal("replay changed the reservation")
	}
	inv2, err := f.orch.Invoice(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if inv2.ID != inv.ID || inv2.Number != inv.Number {
		t.Fatal("replay issued a second invoice")
	}
	if len(f.notifier.confirmed) != 1 {
		t.Fatalf("%d confirmation notices, want 1", len(f.notifier.confirmed))
	}
	n := f.notifier.confirmed[0]
	if n.FilmTitle != "Dune" || n.RoomName != "R1" || len(n.SeatLabels) != 2 || n.SeatLabels[0] != "A1" || n.AmountCents != 2500 {
		t.Fatalf("notice %+v", n)
	}

	if _, err := f.orch.Confirm(ctx, res.ID, "pay_2"); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("confirm with another ref: got %v", err)
	}
}

func TestConfirm_CancelledIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0)
	if _, err := f.orch.Cancel(ctx, res.ID, service.CancelInput{Reason: "changed mind"}); err != nil {
		t.Fatal(err)
	}
	_, err := f.orch.Confirm(ctx, res.ID, "pay_1")
	var ise *service.InvalidStateError
	if !errors.As(err, &ise) || ise.Status != model.ReservationCancelled {
		t.Fatalf("got %v", err)
	}
	if _, err := f.orch.Confirm(ctx, 9999, "pay_1"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown reservation: got %v", err)
	}
}

func TestConfirm_NotifierFailureDoesNotUndo(t *testing.T) {
	f := newFixture(t)
	f.notifier.ConfirmedFunc = func(context.Context, service.ReservationNotice) error {
		return errors.New("broker down")
	}
	res := f.open(t, "sess", 0)
	got, err := f.orch.Confirm(context.Background(), res.ID, "pay_1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Status != model.ReservationConfirmed {
		t.Fatalf("status %s", got.Status)
	}
}

func TestConfirm_AfterPaymentWindowLosesSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0)
	f.clock.Advance(paymentWindow)
	if _, err := f.orch.Confirm(ctx, res.ID, "pay_1"); !errors.Is(err, service.ErrSeatUnavailable) {
		t.Fatalf("got %v", err)
	}
	cur, err := f.orch.Get(ctx, res.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Status != model.ReservationPending {
		t.Fatalf("status %s, want PENDING", cur.Status)
	}
}

func TestCancel_ReleasesSeatsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0, 1)
	if _, err := f.orch.Confirm(ctx, res.ID, "pay_1"); err != nil {
		t.Fatal(err)
	}
	out := service.PaymentOutcome{Succeeded: true}
	got, err := f.orch.Cancel(ctx, res.ID, service.CancelInput{Reason: "show cancelled", Refund: &out})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != model.ReservationCancelled || got.RefundStatus != model.RefundSucceeded {
		t.Fatalf("cancelled %+v", got)
	}
	if got.CancelReason == nil || *got.CancelReason != "show cancelled" {
		t.Fatal("reason not kept")
	}
	if f.status(t, 0) != model.SeatStatusFree || f.status(t, 1) != model.SeatStatusFree {
		t.Fatal("seats not released")
	}

	// Someone else takes A1; a replayed cancel must not free it.
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(0), "other", holdTTL); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Cancel(ctx, res.ID, service.CancelInput{Reason: "again"}); err != nil {
		t.Fatalf("Cancel replay: %v", err)
	}
	if f.status(t, 0) != model.ClaimHeld {
		t.Fatal("replayed cancel released another holder's seat")
	}
	if len(f.notifier.cancelled) != 1 {
		t.Fatalf("%d cancellation notices, want 1", len(f.notifier.cancelled))
	}
}

func TestCancel_PendingWithExpiredClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0)
	f.clock.Advance(paymentWindow + time.Minute)
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(0), "other", holdTTL); err != nil {
		t.Fatalf("expired reserved seat not free: %v", err)
	}
	got, err := f.orch.Cancel(ctx, res.ID, service.CancelInput{Reason: "late"})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != model.ReservationCancelled || got.RefundStatus != model.RefundNone {
		t.Fatalf("cancelled %+v", got)
	}
	if f.status(t, 0) != model.ClaimHeld {
		t.Fatal("cancel released a seat it no longer owned")
	}
}

func TestPay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0, 1)
	got, err := f.orch.Pay(ctx, res.ID)
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if got.Status != model.ReservationConfirmed || got.PaymentRef == nil || *got.PaymentRef != "pay_"+res.Number {
		t.Fatalf("paid %+v", got)
	}
	if len(f.payments.charges) != 1 || f.payments.charges[0].AmountCents != 2500 || f.payments.charges[0].Currency != "cad" {
		t.Fatalf("charges %+v", f.payments.charges)
	}
	if _, err := f.orch.Pay(ctx, res.ID); err != nil {
		t.Fatalf("Pay on confirmed reservation: %v", err)
	}
	if len(f.payments.charges) != 1 {
		t.Fatal("confirmed reservation charged twice")
	}
}

func TestPay_Declined(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.ChargeFunc = func(context.Context, service.ChargeRequest) (service.PaymentOutcome, error) {
		return service.PaymentOutcome{Reason: "insufficient funds"}, nil
	}
	res := f.open(t, "sess", 0)
	_, err := f.orch.Pay(ctx, res.ID)
	var pd *service.PaymentDeclinedError
	if !errors.As(err, &pd) || pd.Reason != "insufficient funds" {
		t.Fatalf("got %v", err)
	}
	cur, _ := f.orch.Get(ctx, res.ID)
	if cur.Status != model.ReservationCancelled {
		t.Fatalf("status %s", cur.Status)
	}
	if f.status(t, 0) != model.SeatStatusFree {
		t.Fatal("declined payment kept the seat")
	}
}

func TestPay_ProcessorErrorLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.ChargeFunc = func(context.Context, service.ChargeRequest) (service.PaymentOutcome, error) {
		return service.PaymentOutcome{}, errors.New("timeout")
	}
	res := f.open(t, "sess", 0)
	if _, err := f.orch.Pay(ctx, res.ID); !errors.Is(err, service.ErrInternal) {
		t.Fatalf("got %v", err)
	}
	cur, _ := f.orch.Get(ctx, res.ID)
	if cur.Status != model.ReservationPending {
		t.Fatalf("status %s", cur.Status)
	}
}

func TestPay_SeatsLostDuringChargeAreRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.ChargeFunc = func(_ context.Context, req service.ChargeRequest) (service.PaymentOutcome, error) {
		f.clock.Advance(paymentWindow)
		return service.PaymentOutcome{Succeeded: true, Ref: "pay_late"}, nil
	}
	res := f.open(t, "sess", 0)
	if _, err := f.orch.Pay(ctx, res.ID); !errors.Is(err, service.ErrSeatUnavailable) {
		t.Fatalf("got %v", err)
	}
	if len(f.payments.refunds) != 1 || f.payments.refunds[0] != "pay_late" {
		t.Fatalf("refunds %v", f.payments.refunds)
	}
	cur, _ := f.orch.Get(ctx, res.ID)
	if cur.Status != model.ReservationCancelled || cur.RefundStatus != model.RefundSucceeded {
		t.Fatalf("reservation %+v", cur)
	}
}

func TestPay_ExpiredWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0)
	f.clock.Advance(paymentWindow)
	if _, err := f.orch.Pay(ctx, res.ID); !errors.Is(err, service.ErrInvalidState) {
		t.Fatalf("got %v", err)
	}
	if len(f.payments.charges) != 0 {
		t.Fatal("expired reservation was charged")
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.payments.RefundFunc = func(context.Context, string) (service.PaymentOutcome, error) {
		return service.PaymentOutcome{Reason: "card closed"}, nil
	}
	res := f.open(t, "sess", 0)
	if _, err := f.orch.Confirm(ctx, res.ID, "pay_1"); err != nil {
		t.Fatal(err)
	}
	got, err := f.orch.Refund(ctx, res.ID, "")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if got.Status != model.ReservationCancelled || got.RefundStatus != model.RefundFailed {
		t.Fatalf("refunded %+v", got)
	}
	if f.status(t, 0) != model.SeatStatusFree {
		t.Fatal("seat release must not depend on the refund outcome")
	}
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(21, 0), PriceCents: 900})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 2, SeatIDs: f.seatIDs(0, 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: second.ID, Quantity: 1, SeatIDs: f.seatIDs(5)}); err != nil {
		t.Fatal(err)
	}

	opened, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess", UserID: "u1", Contact: model.Contact{Email: "u1@example.com"}})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(opened) != 2 {
		t.Fatalf("%d reservations, want 2", len(opened))
	}
	if opened[0].UnitPriceCents != 1250 || opened[1].UnitPriceCents != 900 {
		t.Fatalf("prices %d, %d", opened[0].UnitPriceCents, opened[1].UnitPriceCents)
	}
	if opened[0].UserID == nil || *opened[0].UserID != "u1" {
		t.Fatal("user not recorded")
	}
	total, _ := f.cart.GetTotal(ctx, repository.CartKey{SessionID: "sess"})
	if len(total.Items) != 0 {
		t.Fatal("cart not emptied")
	}
	mine, err := f.orch.List(ctx, repository.ReservationFilter{UserID: "u1"})
	if err != nil || len(mine) != 2 {
		t.Fatalf("List: %d %v", len(mine), err)
	}
}

func TestCheckout_UsesCartPriceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(0)}); err != nil {
		t.Fatal(err)
	}
	price := uint32(4000)
	if _, err := f.sched.UpdateShowtime(ctx, f.showtime.ID, service.ShowtimePatch{PriceCents: &price}); err != nil {
		t.Fatal(err)
	}
	opened, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.orch.Confirm(ctx, opened[0].ID, "pay_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalCents != 1250 {
		t.Fatalf("total %d, want the price captured at add time", got.TotalCents)
	}
}

func TestCheckout_FailingItemChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(21, 0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: second.ID, Quantity: 1, SeatIDs: f.seatIDs(0)}); err != nil {
		t.Fatal(err)
	}
	if err := f.sched.DeactivateShowtime(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess"}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	list, _ := f.orch.List(ctx, repository.ReservationFilter{})
	if len(list) != 0 {
		t.Fatal("failed checkout left reservations")
	}
	total, _ := f.cart.GetTotal(ctx, repository.CartKey{SessionID: "sess"})
	if len(total.Items) != 2 || f.status(t, 0) != model.ClaimHeld {
		t.Fatal("failed checkout changed the cart")
	}
}

func TestCheckout_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess"}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("empty cart: got %v", err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 2, SeatIDs: f.seatIDs(0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess"}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("unchosen seats: got %v", err)
	}
}

func TestExpirePendingAndSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale := f.open(t, "a", 0)
	paid := f.open(t, "b", 1)
	if _, err := f.orch.Confirm(ctx, paid.ID, "pay_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "c", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(2)}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(3), "d", time.Minute); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(paymentWindow)
	r, err := f.sweeper.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if r.ExpiredReservations != 1 || r.ClearedCarts != 1 || r.FreedSeats != 1 {
		t.Fatalf("sweep %+v", r)
	}
	cur, _ := f.orch.Get(ctx, stale.ID)
	if cur.Status != model.ReservationCancelled {
		t.Fatalf("stale reservation %s", cur.Status)
	}
	cur, _ = f.orch.Get(ctx, paid.ID)
	if cur.Status != model.ReservationConfirmed {
		t.Fatalf("paid reservation %s", cur.Status)
	}
	if n, _ := f.inv.AvailabilityCount(ctx, f.showtime.ID); n != 39 {
		t.Fatalf("available %d, want 39", n)
	}

	r, err = f.sweeper.RunOnce(ctx)
	if err != nil || r != (service.SweepResult{}) {
		t.Fatalf("second sweep %+v %v", r, err)
	}
}

func TestGetByNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.open(t, "sess", 0)
	got, err := f.orch.GetByNumber(ctx, res.Number)
	if err != nil || got.ID != res.ID {
		t.Fatalf("GetByNumber: %+v %v", got, err)
	}
	if _, err := f.orch.GetByNumber(ctx, "RES0"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
	if _, err := f.orch.Invoice(ctx, res.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("invoice before confirm: got %v", err)
	}
}
