package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// ShowtimeHandler schedules showtimes and manages seat holds on them.
type ShowtimeHandler struct {
	Scheduler *service.Scheduler
	Inventory *service.Inventory
	HoldTTL   time.Duration
	Log       *zap.Logger
}

func NewShowtimeHandler(s *service.Scheduler, inv *service.Inventory, holdTTL time.Duration, log *zap.Logger) *ShowtimeHandler {
	if s == nil || inv == nil {
		panic("nil service passed to NewShowtimeHandler")
	}
	return &ShowtimeHandler{Scheduler: s, Inventory: inv, HoldTTL: holdTTL, Log: log}
}

type createShowtimeReq struct {
	FilmID     uint64    `json:"film_id" validate:"required"`
	RoomID     uint64    `json:"room_id" validate:"required"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	PriceCents uint32    `json:"price_cents"`
}

type updateShowtimeReq struct {
	FilmID     *uint64    `json:"film_id" validate:"omitempty,gt=0"`
	StartsAt   *time.Time `json:"starts_at"`
	PriceCents *uint32    `json:"price_cents"`
}

type seatsReq struct {
	SeatIDs []uint64 `json:"seat_ids" validate:"required,min=1,dive,gt=0"`
}

type releaseReq struct {
	SeatIDs []uint64 `json:"seat_ids"`
}

// CreateShowtime handles POST /v1/showtimes.
func (h *ShowtimeHandler) CreateShowtime(c echo.Context) error {
	var req createShowtimeReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	st, err := h.Scheduler.CreateShowtime(c.Request().Context(), service.ShowtimeInput{
		FilmID: req.FilmID, RoomID: req.RoomID, StartsAt: req.StartsAt, PriceCents: req.PriceCents,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, st)
}

// UpdateShowtime handles PATCH and PUT /v1/showtimes/:id.  Omitted fields
// keep their value.
func (h *ShowtimeHandler) UpdateShowtime(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var req updateShowtimeReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	st, err := h.Scheduler.UpdateShowtime(c.Request().Context(), id, service.ShowtimePatch{
		FilmID: req.FilmID, StartsAt: req.StartsAt, PriceCents: req.PriceCents,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// DeactivateShowtime handles DELETE /v1/showtimes/:id.
func (h *ShowtimeHandler) DeactivateShowtime(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	if err := h.Scheduler.DeactivateShowtime(c.Request().Context(), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetShowtime handles GET /v1/showtimes/:id.
func (h *ShowtimeHandler) GetShowtime(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	st, err := h.Scheduler.GetShowtime(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// ListShowtimes handles GET /v1/showtimes?room_id=.  Without a room every
// showtime is listed.
func (h *ShowtimeHandler) ListShowtimes(c echo.Context) error {
	var roomID uint64
	if s := c.QueryParam("room_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badRequest(c, "invalid room_id")
		}
		roomID = n
	}
	list, err := h.Scheduler.ListShowtimes(c.Request().Context(), roomID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Hold handles POST /v1/showtimes/:id/hold.  Seats are held for the
// caller's session.
func (h *ShowtimeHandler) Hold(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var req seatsReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	hold, err := h.Inventory.PlaceHold(c.Request().Context(), id, req.SeatIDs, middleware.SessionID(c), h.HoldTTL)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, hold)
}

// ReleaseHold handles DELETE /v1/showtimes/:id/hold.  An empty seat list
// releases every seat the session holds on the showtime.
func (h *ShowtimeHandler) ReleaseHold(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	var req releaseReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	released, err := h.Inventory.ReleaseHold(c.Request().Context(), id, req.SeatIDs, middleware.SessionID(c))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": released})
}

// Availability handles GET /v1/showtimes/:id/availability.
func (h *ShowtimeHandler) Availability(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	a, err := h.Inventory.Availability(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, a)
}

// SeatMap handles GET /v1/showtimes/:id/seats.  Status is FREE, HELD,
// RESERVED or SOLD.
func (h *ShowtimeHandler) SeatMap(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid showtime id")
	}
	cells, err := h.Inventory.SeatMap(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, cells)
}
