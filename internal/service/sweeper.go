package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// SweepResult counts what one sweep cleaned up.
type SweepResult struct {
	FreedSeats          int
	ClearedCarts        int
	ExpiredReservations int
}

// Sweeper periodically reaps lapsed claims, clears expired carts and cancels
// PENDING reservations past their payment window.  Reads already ignore
// expired state, so the sweeper only keeps storage tidy.
type Sweeper struct {
	store    repository.Store
	inv      *Inventory
	cart     *Cart
	orch     *Orchestrator
	clock    Clock
	interval time.Duration
	log      *zap.Logger

	sched gocron.Scheduler
}

func NewSweeper(store repository.Store, inv *Inventory, cart *Cart, orch *Orchestrator, clock Clock, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{store: store, inv: inv, cart: cart, orch: orch, clock: clock, interval: interval, log: log}
}

// Start schedules RunOnce every interval until Stop.
func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return err
	}
	s.sched = sched
	sched.Start()
	s.log.Info("sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}

// RunOnce performs a single sweep.  Reservations are expired first so their
// claims are released before the claim reaper runs.  A failing item is
// logged and skipped; the returned error joins every failure.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	var (
		r    SweepResult
		errs []error
		err  error
	)
	if r.ExpiredReservations, err = s.orch.ExpirePending(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.ClearedCarts, err = s.cart.ClearExpired(ctx); err != nil {
		errs = append(errs, err)
	}

	var showtimes []uint64
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		showtimes, err = tx.ShowtimesWithExpiredClaims(ctx, s.clock.Now())
		return err
	})
	if err != nil {
		errs = append(errs, internal("list showtimes with expired claims", err))
	}
	for _, id := range showtimes {
		freed, err := s.inv.ReapExpired(ctx, id)
		if err != nil {
			s.log.Error("reap expired claims failed", zap.Uint64("showtime_id", id), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		r.FreedSeats += len(freed)
	}
	if r.FreedSeats+r.ClearedCarts+r.ExpiredReservations > 0 {
		s.log.Info("sweep done", zap.Int("freed_seats", r.FreedSeats), zap.Int("cleared_carts", r.ClearedCarts),
			zap.Int("expired_reservations", r.ExpiredReservations))
	}
	return r, errors.Join(errs...)
}
