package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

func TestCreateShowtime_OccupancyWindow(t *testing.T) {
	f := newFixture(t)
	if !f.showtime.EndsAt.Equal(at(20, 30)) {
		t.Fatalf("ends at %v, want 20:30", f.showtime.EndsAt)
	}
	ctx := context.Background()

	_, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(20, 0), PriceCents: 900})
	var conflict *service.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.ShowtimeIDs) != 1 || conflict.ShowtimeIDs[0] != f.showtime.ID {
		t.Fatalf("conflict names %v, want [%d]", conflict.ShowtimeIDs, f.showtime.ID)
	}
	if !errors.Is(err, service.ErrConflict) {
		t.Fatal("ConflictError should match ErrConflict")
	}

	// Touching windows do not overlap.
	st, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(20, 30), PriceCents: 900})
	if err != nil {
		t.Fatalf("back-to-back showtime: %v", err)
	}
	if !st.EndsAt.Equal(at(23, 0)) {
		t.Fatalf("ends at %v, want 23:00", st.EndsAt)
	}

	// A window ending exactly at T1's start is fine as well.
	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(15, 30)}); err != nil {
		t.Fatalf("showtime ending at 18:00: %v", err)
	}
}

func TestCreateShowtime_OtherRoomDoesNotConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r2, _, err := f.catalog.CreateRoom(ctx, service.RoomInput{Name: "R2", Rows: 1, SeatsPerRow: 5})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: r2.ID, StartsAt: at(18, 0)}); err != nil {
		t.Fatalf("same time in another room: %v", err)
	}
}

func TestCreateShowtime_InactiveReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: 999, RoomID: f.room.ID, StartsAt: at(9, 0)}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown film: got %v", err)
	}
	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: 999, StartsAt: at(9, 0)}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("unknown room: got %v", err)
	}
	if err := f.catalog.DeactivateFilm(ctx, f.film.ID); err != nil {
		t.Fatalf("DeactivateFilm: %v", err)
	}
	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(9, 0)}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("inactive film: got %v", err)
	}
}

func TestDeactivatedShowtimeFreesTheRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.sched.DeactivateShowtime(ctx, f.showtime.ID); err != nil {
		t.Fatalf("DeactivateShowtime: %v", err)
	}
	if err := f.sched.DeactivateShowtime(ctx, f.showtime.ID); err != nil {
		t.Fatalf("second DeactivateShowtime: %v", err)
	}
	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(19, 0)}); err != nil {
		t.Fatalf("slot of a deactivated showtime: %v", err)
	}
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(0), "s1", holdTTL); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("hold on inactive showtime: got %v", err)
	}
}

func TestUpdateShowtime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	later, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(21, 0)})
	if err != nil {
		t.Fatalf("CreateShowtime: %v", err)
	}

	// Moving within its own window never conflicts with itself.
	start := at(18, 15)
	st, err := f.sched.UpdateShowtime(ctx, f.showtime.ID, service.ShowtimePatch{StartsAt: &start})
	if err != nil {
		t.Fatalf("UpdateShowtime: %v", err)
	}
	if !st.EndsAt.Equal(at(20, 45)) {
		t.Fatalf("ends at %v, want 20:45", st.EndsAt)
	}

	start = at(19, 0)
	_, err = f.sched.UpdateShowtime(ctx, f.showtime.ID, service.ShowtimePatch{StartsAt: &start})
	var conflict *service.ConflictError
	if !errors.As(err, &conflict) || conflict.ShowtimeIDs[0] != later.ID {
		t.Fatalf("expected conflict with %d, got %v", later.ID, err)
	}

	price := uint32(1500)
	st, err = f.sched.UpdateShowtime(ctx, f.showtime.ID, service.ShowtimePatch{PriceCents: &price})
	if err != nil {
		t.Fatalf("price update: %v", err)
	}
	if st.PriceCents != 1500 || !st.StartsAt.Equal(at(18, 15)) {
		t.Fatalf("unexpected showtime after price update: %+v", st)
	}
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if len(f.seats) != 40 {
		t.Fatalf("seats = %d, want 40", len(f.seats))
	}
	if f.seats[0].Label() != "A1" || f.seats[39].Label() != "D10" {
		t.Fatalf("labels %s..%s", f.seats[0].Label(), f.seats[39].Label())
	}
	if f.seats[29].SeatClass != "STANDARD" || f.seats[30].SeatClass != "VIP" {
		t.Fatal("last row should be VIP")
	}
	if _, _, err := f.catalog.CreateRoom(ctx, service.RoomInput{Name: "R1", Rows: 1, SeatsPerRow: 1}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("duplicate room name: got %v", err)
	}
	if _, _, err := f.catalog.CreateRoom(ctx, service.RoomInput{Name: "big", Rows: 53, SeatsPerRow: 1}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("too many rows: got %v", err)
	}
}

func TestDeactivateRoomHidesSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.catalog.DeactivateRoom(ctx, f.room.ID); err != nil {
		t.Fatalf("DeactivateRoom: %v", err)
	}
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, f.seatIDs(0), "s1", holdTTL); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("hold in inactive room: got %v", err)
	}
	if _, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(9, 0)}); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("schedule in inactive room: got %v", err)
	}
}

func TestCreateShowtime_ConcurrentOverlapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Every start lies inside every other window, so at most one may win.
	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []uint64
		refused []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{
				FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(9, 0).Add(time.Duration(i) * 5 * time.Minute),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				refused = append(refused, err)
				return
			}
			created = append(created, st.ID)
		}(i)
	}
	wg.Wait()

	if len(created) != 1 {
		t.Fatalf("%d overlapping showtimes created, want 1", len(created))
	}
	for _, err := range refused {
		var conflict *service.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected ConflictError, got %v", err)
		}
		if len(conflict.ShowtimeIDs) != 1 || conflict.ShowtimeIDs[0] != created[0] {
			t.Fatalf("conflict names %v, want [%d]", conflict.ShowtimeIDs, created[0])
		}
	}
	all, err := f.sched.ListShowtimes(ctx, f.room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("room has %d showtimes, want 2", len(all))
	}
}

func TestUpdateShowtime_NeverRevivesDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		st, err := f.sched.CreateShowtime(ctx, service.ShowtimeInput{FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(9, 0)})
		if err != nil {
			t.Fatalf("round %d: CreateShowtime: %v", round, err)
		}
		price := uint32(round)
		var wg sync.WaitGroup
		var updateErr, deactivateErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, updateErr = f.sched.UpdateShowtime(ctx, st.ID, service.ShowtimePatch{PriceCents: &price})
		}()
		go func() {
			defer wg.Done()
			deactivateErr = f.sched.DeactivateShowtime(ctx, st.ID)
		}()
		wg.Wait()

		if deactivateErr != nil {
			t.Fatalf("round %d: DeactivateShowtime: %v", round, deactivateErr)
		}
		if updateErr != nil && !errors.Is(updateErr, service.ErrNotFound) {
			t.Fatalf("round %d: UpdateShowtime: %v", round, updateErr)
		}
		got, err := f.sched.GetShowtime(ctx, st.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.IsActive {
			t.Fatalf("round %d: deactivated showtime is active again", round)
		}
	}
}
