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

func TestCart_AddItemHoldsSeatsAndSnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.cart.AddItem(ctx, service.CartItemInput{
		SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 2, SeatIDs: f.seatIDs(0, 1),
	})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if item.UnitPriceCents != 1250 || item.SeatClass != model.SeatClassStandard {
		t.Fatalf("unexpected item %+v", item)
	}
	if f.status(t, 0) != model.ClaimHeld {
		t.Fatal("cart seat not held")
	}

	price := uint32(2000)
	if _, err := f.sched.UpdateShowtime(ctx, f.showtime.ID, service.ShowtimePatch{PriceCents: &price}); err != nil {
		t.Fatalf("UpdateShowtime: %v", err)
	}
	total, err := f.cart.GetTotal(ctx, repository.CartKey{SessionID: "sess"})
	if err != nil {
		t.Fatalf("GetTotal: %v", err)
	}
	if total.TotalCents != 2500 || total.ItemCount != 2 {
		t.Fatalf("total %+v, want 2500 cents for 2 seats", total)
	}
}

func TestCart_AddItemRejectsTakenSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(1), "someone", holdTTL); err != nil {
		t.Fatal(err)
	}
	_, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 2, SeatIDs: f.seatIDs(0, 1)})
	if !errors.Is(err, service.ErrSeatUnavailable) {
		t.Fatalf("got %v", err)
	}
	total, err := f.cart.GetTotal(ctx, repository.CartKey{SessionID: "sess"})
	if err != nil {
		t.Fatal(err)
	}
	if len(total.Items) != 0 || f.status(t, 0) != model.SeatStatusFree {
		t.Fatal("failed add left state behind")
	}
}

func TestCart_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   service.CartItemInput
		want error
	}{
		{"no session", service.CartItemInput{ShowtimeID: f.showtime.ID, Quantity: 1}, service.ErrValidation},
		{"zero quantity", service.CartItemInput{SessionID: "s", ShowtimeID: f.showtime.ID}, service.ErrValidation},
		{"too many seats", service.CartItemInput{SessionID: "s", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(0, 1)}, service.ErrValidation},
		{"bad class", service.CartItemInput{SessionID: "s", ShowtimeID: f.showtime.ID, Quantity: 1, SeatClass: "BALCONY"}, service.ErrValidation},
		{"class mismatch", service.CartItemInput{SessionID: "s", ShowtimeID: f.showtime.ID, Quantity: 1, SeatClass: "VIP", SeatIDs: f.seatIDs(0)}, service.ErrValidation},
		{"unknown showtime", service.CartItemInput{SessionID: "s", ShowtimeID: 9999, Quantity: 1}, service.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.cart.AddItem(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCart_RollingExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.CartKey{SessionID: "sess"}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(0)}); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(8 * time.Minute)
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(1)}); err != nil {
		t.Fatal(err)
	}
	// The first line's hold rolled forward with the second add.
	f.clock.Advance(8 * time.Minute)
	total, err := f.cart.GetTotal(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(total.Items) != 2 || f.status(t, 0) != model.ClaimHeld {
		t.Fatalf("cart lost items before its expiry: %+v", total)
	}

	f.clock.Advance(2 * time.Minute)
	total, err = f.cart.GetTotal(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if len(total.Items) != 0 || total.TotalCents != 0 {
		t.Fatalf("expired cart still has items: %+v", total)
	}
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(0, 1), "other", holdTTL); err != nil {
		t.Fatalf("seats of expired cart not free: %v", err)
	}
}

func TestCart_RemoveAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.CartKey{SessionID: "sess"}
	a, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 3, SeatIDs: f.seatIDs(1)}); err != nil {
		t.Fatal(err)
	}
	if err := f.cart.RemoveItem(ctx, "intruder", a.ID); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("foreign session removed an item: %v", err)
	}
	if err := f.cart.RemoveItem(ctx, "sess", a.ID); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if f.status(t, 0) != model.SeatStatusFree {
		t.Fatal("removed item kept its hold")
	}
	items, err := f.cart.Items(ctx, key)
	if err != nil || len(items) != 1 || items[0].Quantity != 3 {
		t.Fatalf("Items after remove: %+v %v", items, err)
	}
	total, _ := f.cart.GetTotal(ctx, key)
	if total.ItemCount != 3 || total.TotalCents != 3750 {
		t.Fatalf("total after remove %+v", total)
	}

	if err := f.cart.Clear(ctx, key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if f.status(t, 1) != model.SeatStatusFree {
		t.Fatal("cleared cart kept its hold")
	}
	if err := f.cart.Clear(ctx, key); err != nil {
		t.Fatalf("Clear on empty cart: %v", err)
	}
}

func TestCart_SeatCannotBackTwoItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := repository.CartKey{SessionID: "sess"}
	a, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(0)})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 2, SeatIDs: f.seatIDs(1, 0)})
	var su *service.SeatUnavailableError
	if !errors.As(err, &su) || len(su.SeatIDs) != 1 || su.SeatIDs[0] != f.seats[0].ID {
		t.Fatalf("second line on the same seat: got %v", err)
	}
	if f.status(t, 1) != model.SeatStatusFree {
		t.Fatal("refused line kept a hold")
	}

	b, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 1, SeatIDs: f.seatIDs(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.cart.UpdateItem(ctx, service.CartItemUpdate{SessionID: "sess", ItemID: b.ID, Quantity: 1, SeatIDs: f.seatIDs(0)}); !errors.Is(err, service.ErrSeatUnavailable) {
		t.Fatalf("moving a line onto a seat of another line: got %v", err)
	}
	if f.status(t, 1) != model.ClaimHeld {
		t.Fatal("refused update dropped the line's own seat")
	}

	total, err := f.cart.GetTotal(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if total.ItemCount != 2 || total.TotalCents != 2500 {
		t.Fatalf("total %+v", total)
	}
	if err := f.cart.RemoveItem(ctx, "sess", a.ID); err != nil {
		t.Fatal(err)
	}
	if f.status(t, 1) != model.ClaimHeld {
		t.Fatal("removing one line released another line's seat")
	}
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(1), "other", holdTTL); !errors.Is(err, service.ErrSeatUnavailable) {
		t.Fatalf("other session took a carted seat: %v", err)
	}
	if _, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess", Contact: model.Contact{Email: "ada@example.com"}}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
}

func TestCart_UpdateItemChoosesSeatsLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contact := model.Contact{Email: "ada@example.com"}
	item, err := f.cart.AddItem(ctx, service.CartItemInput{SessionID: "sess", ShowtimeID: f.showtime.ID, Quantity: 2, SeatIDs: f.seatIDs(0)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess", Contact: contact}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("checkout with unchosen seats: got %v", err)
	}

	if _, err := f.cart.UpdateItem(ctx, service.CartItemUpdate{SessionID: "intruder", ItemID: item.ID, Quantity: 2}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("foreign session updated an item: %v", err)
	}
	if _, err := f.cart.UpdateItem(ctx, service.CartItemUpdate{SessionID: "sess", ItemID: item.ID, Quantity: 1, SeatIDs: f.seatIDs(0, 1)}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("more seats than quantity: %v", err)
	}

	f.clock.Advance(8 * time.Minute)
	upd, err := f.cart.UpdateItem(ctx, service.CartItemUpdate{SessionID: "sess", ItemID: item.ID, Quantity: 2, SeatIDs: f.seatIDs(1, 2)})
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if upd.Quantity != 2 || len(upd.SeatIDs) != 2 || upd.UnitPriceCents != 1250 {
		t.Fatalf("updated item %+v", upd)
	}
	if f.status(t, 0) != model.SeatStatusFree || f.status(t, 1) != model.ClaimHeld || f.status(t, 2) != model.ClaimHeld {
		t.Fatal("holds do not follow the new seat choice")
	}

	// The update rolled the cart forward.
	f.clock.Advance(8 * time.Minute)
	items, err := f.cart.Items(ctx, repository.CartKey{SessionID: "sess"})
	if err != nil || len(items) != 1 {
		t.Fatalf("cart lost its line: %+v %v", items, err)
	}

	opened, err := f.orch.Checkout(ctx, service.CheckoutInput{SessionID: "sess", Contact: contact})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(opened) != 1 || len(opened[0].SeatIDs) != 2 || f.status(t, 1) != model.ClaimReserved {
		t.Fatalf("opened %+v", opened)
	}
}
