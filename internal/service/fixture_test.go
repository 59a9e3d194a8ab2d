package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository/memory"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

const (
	holdTTL       = 10 * time.Minute
	paymentWindow = 15 * time.Minute
	cleanupBuffer = 30 * time.Minute
)

var day = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MockPayments is a hand-written payments fake.  Unset funcs succeed.
type MockPayments struct {
	mu         sync.Mutex
	charges    []service.ChargeRequest
	refunds    []string
	ChargeFunc func(ctx context.Context, req service.ChargeRequest) (service.PaymentOutcome, error)
	RefundFunc func(ctx context.Context, ref string) (service.PaymentOutcome, error)
}

func (m *MockPayments) Charge(ctx context.Context, req service.ChargeRequest) (service.PaymentOutcome, error) {
	m.mu.Lock()
	m.charges = append(m.charges, req)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, req)
	}
	return service.PaymentOutcome{Succeeded: true, Ref: "pay_" + req.ReservationNumber}, nil
}

func (m *MockPayments) Refund(ctx context.Context, ref string) (service.PaymentOutcome, error) {
	m.mu.Lock()
	m.refunds = append(m.refunds, ref)
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, ref)
	}
	return service.PaymentOutcome{Succeeded: true, Ref: "re_" + ref}, nil
}

// MockNotifier records notices and returns whatever the funcs return.
type MockNotifier struct {
	mu            sync.Mutex
	confirmed     []service.ReservationNotice
	cancelled     []service.ReservationNotice
	ConfirmedFunc func(ctx context.Context, n service.ReservationNotice) error
	CancelledFunc func(ctx context.Context, n service.ReservationNotice) error
}

func (m *MockNotifier) ReservationConfirmed(ctx context.Context, n service.ReservationNotice) error {
	m.mu.Lock()
	m.confirmed = append(m.confirmed, n)
	m.mu.Unlock()
	if m.ConfirmedFunc != nil {
		return m.ConfirmedFunc(ctx, n)
	}
	return nil
}

func (m *MockNotifier) ReservationCancelled(ctx context.Context, n service.ReservationNotice) error {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, n)
	m.mu.Unlock()
	if m.CancelledFunc != nil {
		return m.CancelledFunc(ctx, n)
	}
	return nil
}

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	catalog  *service.Catalog
	sched    *service.Scheduler
	inv      *service.Inventory
	cart     *service.Cart
	orch     *service.Orchestrator
	sweeper  *service.Sweeper
	payments *MockPayments
	notifier *MockNotifier

	film     *model.Film
	room     *model.Room
	seats    []model.Seat // 4 rows of 10, row D is VIP
	showtime *model.Showtime
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith builds the engine over an in-memory store with one film
// (120 min), one 40-seat room R1 and one showtime at 18:00 for 1250 cents.
func newFixtureWith(t *testing.T, numbers service.NumberGenerator) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()
	f := &fixture{
		store:    memory.New(),
		clock:    &fakeClock{now: day.Add(12 * time.Hour)},
		payments: &MockPayments{},
		notifier: &MockNotifier{},
	}
	f.catalog = service.NewCatalog(f.store, f.clock, log)
	f.sched = service.NewScheduler(f.store, f.clock, cleanupBuffer, log)
	f.inv = service.NewInventory(f.store, f.clock, paymentWindow, log)
	f.cart = service.NewCart(f.store, f.inv, f.clock, holdTTL, log)
	f.orch = service.NewOrchestrator(service.OrchestratorDeps{
		Store: f.store, Inv: f.inv, Cart: f.cart, Clock: f.clock,
		Payments: f.payments, Notifier: f.notifier, Numbers: numbers,
		Config: service.OrchestratorConfig{Currency: "CAD", SupplierName: "Cinema", SupplierEmail: "box@cinema.test"},
		Log:    log,
	})
	f.sweeper = service.NewSweeper(f.store, f.inv, f.cart, f.orch, f.clock, time.Minute, log)

	var err error
	if f.film, err = f.catalog.CreateFilm(ctx, service.FilmInput{Title: "Dune", DurationMinutes: 120}); err != nil {
		t.Fatalf("CreateFilm: %v", err)
	}
	if f.room, f.seats, err = f.catalog.CreateRoom(ctx, service.RoomInput{Name: "R1", Rows: 4, SeatsPerRow: 10, VIPRows: 1}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if f.showtime, err = f.sched.CreateShowtime(ctx, service.ShowtimeInput{
		FilmID: f.film.ID, RoomID: f.room.ID, StartsAt: at(18, 0), PriceCents: 1250,
	}); err != nil {
		t.Fatalf("CreateShowtime: %v", err)
	}
	return f
}

func at(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

func (f *fixture) seatIDs(idx ...int) []uint64 {
	out := make([]uint64, len(idx))
	for i, n := range idx {
		out[i] = f.seats[n].ID
	}
	return out
}

// open holds the seats for holder and opens a reservation over them.
func (f *fixture) open(t *testing.T, holder string, idx ...int) *model.Reservation {
	t.Helper()
	ctx := context.Background()
	seats := f.seatIDs(idx...)
	if _, err := f.inv.PlaceHold(ctx, f.showtime.ID, seats, holder, holdTTL); err != nil {
		t.Fatalf("PlaceHold: %v", err)
	}
	res, err := f.orch.OpenReservation(ctx, service.OpenInput{
		ShowtimeID: f.showtime.ID, SeatIDs: seats, Holder: holder,
		Contact: model.Contact{Name: "Ada", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("OpenReservation: %v", err)
	}
	return res
}

func (f *fixture) status(t *testing.T, seatIdx int) string {
	t.Helper()
	cells, err := f.inv.SeatMap(context.Background(), f.showtime.ID)
	if err != nil {
		t.Fatalf("SeatMap: %v", err)
	}
	for _, c := range cells {
		if c.ID == f.seats[seatIdx].ID {
			return c.Status
		}
	}
	t.Fatalf("seat %d not in map", seatIdx)
	return ""
}
