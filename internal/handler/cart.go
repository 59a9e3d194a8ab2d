package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// CartHandler serves the session cart.  Every route acts on the session
// resolved by middleware.Session.
type CartHandler struct {
	Cart         *service.Cart
	Orchestrator *service.Orchestrator
	Log          *zap.Logger
}

func NewCartHandler(cart *service.Cart, orch *service.Orchestrator, log *zap.Logger) *CartHandler {
	if cart == nil || orch == nil {
		panic("nil service passed to NewCartHandler")
	}
	return &CartHandler{Cart: cart, Orchestrator: orch, Log: log}
}

type addItemReq struct {
	ShowtimeID uint64   `json:"showtime_id" validate:"required"`
	SeatClass  string   `json:"seat_class" validate:"omitempty,oneof=STANDARD VIP standard vip"`
	Quantity   uint32   `json:"quantity" validate:"required,min=1,max=20"`
	SeatIDs    []uint64 `json:"seat_ids" validate:"omitempty,dive,gt=0"`
}

type updateItemReq struct {
	Quantity uint32   `json:"quantity" validate:"required,min=1,max=20"`
	SeatIDs  []uint64 `json:"seat_ids" validate:"omitempty,dive,gt=0"`
}

type contactReq struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

func (r contactReq) toContact() model.Contact {
	return model.Contact{Name: r.Name, Email: r.Email, Phone: r.Phone}
}

type checkoutReq struct {
	Contact contactReq `json:"contact"`
}

// Get handles GET /v1/cart.
func (h *CartHandler) Get(c echo.Context) error {
	total, err := h.Cart.GetTotal(c.Request().Context(), repository.CartKey{SessionID: middleware.SessionID(c)})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, total)
}

// Items handles GET /v1/cart/items.
func (h *CartHandler) Items(c echo.Context) error {
	items, err := h.Cart.Items(c.Request().Context(), repository.CartKey{SessionID: middleware.SessionID(c)})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, items)
}

// AddItem handles POST /v1/cart/items.
func (h *CartHandler) AddItem(c echo.Context) error {
	var req addItemReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	item, err := h.Cart.AddItem(c.Request().Context(), service.CartItemInput{
		SessionID:  middleware.SessionID(c),
		UserID:     middleware.UserID(c),
		ShowtimeID: req.ShowtimeID,
		SeatClass:  req.SeatClass,
		Quantity:   req.Quantity,
		SeatIDs:    req.SeatIDs,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// UpdateItem handles PATCH /v1/cart/items/:id. The body replaces the
// line's quantity and seat choice.
func (h *CartHandler) UpdateItem(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid cart item id")
	}
	var req updateItemReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	item, err := h.Cart.UpdateItem(c.Request().Context(), service.CartItemUpdate{
		SessionID: middleware.SessionID(c),
		ItemID:    id,
		Quantity:  req.Quantity,
		SeatIDs:   req.SeatIDs,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, item)
}

// RemoveItem handles DELETE /v1/cart/items/:id.
func (h *CartHandler) RemoveItem(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid cart item id")
	}
	if err := h.Cart.RemoveItem(c.Request().Context(), middleware.SessionID(c), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Clear handles DELETE /v1/cart.
func (h *CartHandler) Clear(c echo.Context) error {
	if err := h.Cart.Clear(c.Request().Context(), repository.CartKey{SessionID: middleware.SessionID(c)}); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Checkout handles POST /v1/cart/checkout.  Each cart line becomes one
// PENDING reservation; either all of them open or none.
func (h *CartHandler) Checkout(c echo.Context) error {
	var req checkoutReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	list, err := h.Orchestrator.Checkout(c.Request().Context(), service.CheckoutInput{
		SessionID: middleware.SessionID(c),
		UserID:    middleware.UserID(c),
		Contact:   req.Contact.toContact(),
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, list)
}
