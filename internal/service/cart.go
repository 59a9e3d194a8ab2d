package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
)

// CartItemInput adds a line to a session's cart.  SeatIDs may list fewer
// seats than Quantity; the rest are chosen before checkout.
type CartItemInput struct {
	SessionID  string
	UserID     string
	ShowtimeID uint64
	SeatClass  string
	Quantity   uint32
	SeatIDs    []uint64
}

// CartItemUpdate replaces the quantity and chosen seats of a cart line.
type CartItemUpdate struct {
	SessionID string
	ItemID    uint64
	Quantity  uint32
	SeatIDs   []uint64
}

// Cart keeps per-session cart lines and the seat holds behind them.  All
// lines of a session share one rolling expiry that every AddItem and
// UpdateItem pushes forward; a seat backs at most one line; once it passes, the whole cart is dropped and its holds released
// in a single transaction.
type Cart struct {
	store repository.Store
	inv   *Inventory
	clock Clock
	ttl   time.Duration
	log   *zap.Logger
}

func NewCart(store repository.Store, inv *Inventory, clock Clock, ttl time.Duration, log *zap.Logger) *Cart {
	return &Cart{store: store, inv: inv, clock: clock, ttl: ttl, log: log}
}

// AddItem snapshots the showtime price, holds the chosen seats for the
// session and extends the session's cart and holds.
func (c *Cart) AddItem(ctx context.Context, in CartItemInput) (*model.CartItem, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return nil, invalid("session_id", "is required")
	}
	if in.Quantity == 0 {
		return nil, invalid("quantity", "must be at least 1")
	}
	seats := dedupeIDs(in.SeatIDs)
	if uint32(len(seats)) > in.Quantity {
		return nil, invalid("seat_ids", "more seats than quantity")
	}
	class := strings.ToUpper(strings.TrimSpace(in.SeatClass))
	if class == "" {
		class = model.SeatClassStandard
	}
	if class != model.SeatClassStandard && class != model.SeatClassVIP {
		return nil, invalid("seat_class", "must be STANDARD or VIP")
	}
	if err := c.dropIfExpired(ctx, in.SessionID); err != nil {
		return nil, err
	}
	existing, err := c.list(ctx, repository.CartKey{SessionID: in.SessionID})
	if err != nil {
		return nil, err
	}
	lock := []uint64{in.ShowtimeID}
	for _, it := range existing {
		lock = append(lock, it.ShowtimeID)
	}

	var item *model.CartItem
	err = c.store.LockShowtimes(ctx, lock, func(tx repository.Tx) error {
		st, err := tx.GetShowtime(ctx, in.ShowtimeID)
		if err != nil {
			return err
		}
		if !st.IsActive {
			return notFound("showtime", in.ShowtimeID)
		}
		now := c.clock.Now()
		expires := now.Add(c.ttl)
		current, err := tx.ListCartItems(ctx, repository.CartKey{SessionID: in.SessionID})
		if err != nil {
			return err
		}
		if len(seats) > 0 {
			if err := seatsFreeInCart(current, in.ShowtimeID, seats, 0); err != nil {
				return err
			}
			if err := checkSeatClass(ctx, tx, st.RoomID, seats, class); err != nil {
				return err
			}
			if _, err := c.inv.placeHoldTx(ctx, tx, in.ShowtimeID, seats, in.SessionID, c.ttl); err != nil {
				return err
			}
		}
		item = &model.CartItem{
			SessionID: in.SessionID, ShowtimeID: in.ShowtimeID, SeatClass: class, Quantity: in.Quantity,
			UnitPriceCents: st.PriceCents, SeatIDs: seats, CreatedAt: now, ExpiresAt: expires,
		}
		if in.UserID != "" {
			uid := in.UserID
			item.UserID = &uid
		}
		if err := tx.InsertCartItem(ctx, item); err != nil {
			return err
		}
		return c.rollTx(ctx, tx, in.SessionID, current, lock, expires)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("showtime", in.ShowtimeID)
	}
	if err != nil {
		return nil, internal("add cart item", err)
	}
	c.log.Debug("cart item added", zap.String("session_id", in.SessionID), zap.Uint64("item_id", item.ID),
		zap.Uint64("showtime_id", item.ShowtimeID), zap.Uint32("quantity", item.Quantity))
	return item, nil
}

// UpdateItem changes a line's quantity and seat choice.  Newly chosen seats
// are held and dropped ones released in the same transaction, and the
// session's cart rolls forward as on AddItem.
func (c *Cart) UpdateItem(ctx context.Context, in CartItemUpdate) (*model.CartItem, error) {
	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return nil, invalid("session_id", "is required")
	}
	if in.Quantity == 0 {
		return nil, invalid("quantity", "must be at least 1")
	}
	seats := dedupeIDs(in.SeatIDs)
	if uint32(len(seats)) > in.Quantity {
		return nil, invalid("seat_ids", "more seats than quantity")
	}
	if err := c.dropIfExpired(ctx, in.SessionID); err != nil {
		return nil, err
	}
	existing, err := c.list(ctx, repository.CartKey{SessionID: in.SessionID})
	if err != nil {
		return nil, err
	}
	var lock []uint64
	found := false
	for _, it := range existing {
		lock = append(lock, it.ShowtimeID)
		found = found || it.ID == in.ItemID
	}
	if !found {
		return nil, notFound("cart item", in.ItemID)
	}

	var item *model.CartItem
	err = c.store.LockShowtimes(ctx, lock, func(tx repository.Tx) error {
		current, err := tx.ListCartItems(ctx, repository.CartKey{SessionID: in.SessionID})
		if err != nil {
			return err
		}
		for i := range current {
			if current[i].ID == in.ItemID {
				it := current[i]
				item = &it
			}
		}
		if item == nil {
			return notFound("cart item", in.ItemID)
		}
		had := make(map[uint64]bool, len(item.SeatIDs))
		for _, id := range item.SeatIDs {
			had[id] = true
		}
		keep := make(map[uint64]bool, len(seats))
		var added, dropped []uint64
		for _, id := range seats {
			keep[id] = true
			if !had[id] {
				added = append(added, id)
			}
		}
		for _, id := range item.SeatIDs {
			if !keep[id] {
				dropped = append(dropped, id)
			}
		}
		if len(dropped) > 0 {
			if _, err := c.inv.releaseHoldTx(ctx, tx, item.ShowtimeID, dropped, in.SessionID); err != nil {
				return err
			}
		}
		if len(added) > 0 {
			if err := seatsFreeInCart(current, item.ShowtimeID, added, item.ID); err != nil {
				return err
			}
			st, err := tx.GetShowtime(ctx, item.ShowtimeID)
			if err != nil {
				return err
			}
			if err := checkSeatClass(ctx, tx, st.RoomID, added, item.SeatClass); err != nil {
				return err
			}
			if _, err := c.inv.placeHoldTx(ctx, tx, item.ShowtimeID, added, in.SessionID, c.ttl); err != nil {
				return err
			}
		}
		expires := c.clock.Now().Add(c.ttl)
		item.Quantity = in.Quantity
		item.SeatIDs = seats
		item.ExpiresAt = expires
		if err := tx.UpdateCartItem(ctx, item); err != nil {
			return err
		}
		return c.rollTx(ctx, tx, in.SessionID, current, lock, expires)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("cart item", in.ItemID)
	}
	if err != nil {
		return nil, internal("update cart item", err)
	}
	c.log.Debug("cart item updated", zap.String("session_id", in.SessionID), zap.Uint64("item_id", item.ID),
		zap.Uint32("quantity", item.Quantity), zap.Int("seats", len(item.SeatIDs)))
	return item, nil
}

// rollTx moves the session's cart expiry and the live holds behind the
// given lines to expires.  Lines on showtimes outside lock are skipped.
func (c *Cart) rollTx(ctx context.Context, tx repository.Tx, sessionID string, items []model.CartItem, lock []uint64, expires time.Time) error {
	if err := tx.TouchCart(ctx, sessionID, expires); err != nil {
		return err
	}
	locked := make(map[uint64]bool, len(lock))
	for _, id := range lock {
		locked[id] = true
	}
	for _, it := range items {
		if !locked[it.ShowtimeID] {
			continue
		}
		if err := c.inv.extendHoldsTx(ctx, tx, it.ShowtimeID, it.SeatIDs, sessionID, expires); err != nil {
			return err
		}
	}
	return nil
}

// RemoveItem deletes the line and releases its holds together.
func (c *Cart) RemoveItem(ctx context.Context, sessionID string, itemID uint64) error {
	var item *model.CartItem
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		item, err = tx.GetCartItem(ctx, itemID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) || (err == nil && item.SessionID != sessionID) {
		return notFound("cart item", itemID)
	}
	if err != nil {
		return internal("remove cart item", err)
	}
	err = c.store.LockShowtimes(ctx, []uint64{item.ShowtimeID}, func(tx repository.Tx) error {
		if _, err := c.inv.releaseHoldTx(ctx, tx, item.ShowtimeID, item.SeatIDs, sessionID); err != nil {
			return err
		}
		return tx.DeleteCartItem(ctx, itemID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("cart item", itemID)
	}
	return internal("remove cart item", err)
}

// GetTotal sums quantity × captured unit price over the cart.  An expired
// session cart is dropped first and reported empty.
func (c *Cart) GetTotal(ctx context.Context, key repository.CartKey) (*model.CartTotal, error) {
	if key.SessionID != "" {
		if err := c.dropIfExpired(ctx, key.SessionID); err != nil {
			return nil, err
		}
	}
	items, err := c.list(ctx, key)
	if err != nil {
		return nil, err
	}
	total := &model.CartTotal{Items: items}
	if total.Items == nil {
		total.Items = []model.CartItem{}
	}
	for _, it := range items {
		total.ItemCount += it.Quantity
		total.TotalCents += it.LineTotalCents()
	}
	return total, nil
}

// Items lists the cart lines, dropping an expired session cart first.
func (c *Cart) Items(ctx context.Context, key repository.CartKey) ([]model.CartItem, error) {
	total, err := c.GetTotal(ctx, key)
	if err != nil {
		return nil, err
	}
	return total.Items, nil
}

// Clear empties the cart and releases every hold behind it.
func (c *Cart) Clear(ctx context.Context, key repository.CartKey) error {
	items, err := c.list(ctx, key)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	err = c.store.LockShowtimes(ctx, showtimeIDs(items), func(tx repository.Tx) error {
		current, err := tx.ListCartItems(ctx, key)
		if err != nil {
			return err
		}
		return c.clearTx(ctx, tx, current)
	})
	return internal("clear cart", err)
}

// ClearExpired drops every cart whose rolling expiry has passed and returns
// how many sessions were cleared.
func (c *Cart) ClearExpired(ctx context.Context) (int, error) {
	var sessions []string
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		sessions, err = tx.ExpiredCartSessions(ctx, c.clock.Now())
		return err
	})
	if err != nil {
		return 0, internal("list expired carts", err)
	}
	n := 0
	var errs []error
	for _, s := range sessions {
		if err := c.dropIfExpired(ctx, s); err != nil {
			c.log.Error("clear expired cart failed", zap.String("session_id", s), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// dropIfExpired clears the session cart when its expiry has passed.  The
// expiry is re-checked under the locks so a concurrent AddItem that rolled
// the cart forward wins.
func (c *Cart) dropIfExpired(ctx context.Context, sessionID string) error {
	key := repository.CartKey{SessionID: sessionID}
	items, err := c.list(ctx, key)
	if err != nil {
		return err
	}
	if !cartExpired(items, c.clock.Now()) {
		return nil
	}
	err = c.store.LockShowtimes(ctx, showtimeIDs(items), func(tx repository.Tx) error {
		current, err := tx.ListCartItems(ctx, key)
		if err != nil {
			return err
		}
		if !cartExpired(current, c.clock.Now()) {
			return nil
		}
		return c.clearTx(ctx, tx, current)
	})
	if err != nil {
		return internal("drop expired cart", err)
	}
	c.log.Info("expired cart cleared", zap.String("session_id", sessionID), zap.Int("items", len(items)))
	return nil
}

func (c *Cart) clearTx(ctx context.Context, tx repository.Tx, items []model.CartItem) error {
	for _, it := range items {
		if _, err := c.inv.releaseHoldTx(ctx, tx, it.ShowtimeID, it.SeatIDs, it.SessionID); err != nil {
			return err
		}
		if err := tx.DeleteCartItem(ctx, it.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cart) list(ctx context.Context, key repository.CartKey) ([]model.CartItem, error) {
	var items []model.CartItem
	err := c.store.View(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.ListCartItems(ctx, key)
		return err
	})
	return items, internal("list cart", err)
}

// cartExpired treats the cart as expired when any line has lapsed; lines
// share one expiry, so this only differs for carts left half-written.
func cartExpired(items []model.CartItem, now time.Time) bool {
	for _, it := range items {
		if !now.Before(it.ExpiresAt) {
			return true
		}
	}
	return false
}

func checkSeatClass(ctx context.Context, tx repository.Tx, roomID uint64, seatIDs []uint64, class string) error {
	seats, err := tx.ListSeats(ctx, roomID)
	if err != nil {
		return err
	}
	classOf := make(map[uint64]string, len(seats))
	for _, s := range seats {
		classOf[s.ID] = s.SeatClass
	}
	for _, sid := range seatIDs {
		if got, ok := classOf[sid]; ok && got != class {
			return invalid("seat_ids", "seat "+joinIDs([]uint64{sid})+" is not "+class)
		}
	}
	return nil
}

// seatsFreeInCart rejects seats another line of the same cart already
// claims for the showtime.  skipID names the line being edited.
func seatsFreeInCart(items []model.CartItem, showtimeID uint64, seatIDs []uint64, skipID uint64) error {
	inCart := map[uint64]bool{}
	for _, it := range items {
		if it.ShowtimeID != showtimeID || it.ID == skipID {
			continue
		}
		for _, id := range it.SeatIDs {
			inCart[id] = true
		}
	}
	var dup []uint64
	for _, id := range seatIDs {
		if inCart[id] {
			dup = append(dup, id)
		}
	}
	if len(dup) > 0 {
		return &SeatUnavailableError{ShowtimeID: showtimeID, SeatIDs: sortIDs(dup)}
	}
	return nil
}

func showtimeIDs(items []model.CartItem) []uint64 {
	ids := make([]uint64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ShowtimeID)
	}
	return ids
}
