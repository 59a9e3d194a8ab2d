package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/model"
	"github.com/iliyamo/cinema-booking-engine/internal/repository"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// ReservationHandler drives reservations through the orchestrator.
// Customers see only reservations of their user or session; owners see all.
type ReservationHandler struct {
	Orchestrator *service.Orchestrator
	Log          *zap.Logger
}

func NewReservationHandler(orch *service.Orchestrator, log *zap.Logger) *ReservationHandler {
	if orch == nil {
		panic("nil orchestrator passed to NewReservationHandler")
	}
	return &ReservationHandler{Orchestrator: orch, Log: log}
}

type openReservationReq struct {
	ShowtimeID uint64     `json:"showtime_id" validate:"required"`
	SeatIDs    []uint64   `json:"seat_ids" validate:"required,min=1,dive,gt=0"`
	Contact    contactReq `json:"contact"`
}

type confirmReq struct {
	PaymentRef string `json:"payment_ref" validate:"required,max=128"`
}

type reasonReq struct {
	Reason string `json:"reason" validate:"max=255"`
}

// Open handles POST /v1/reservations.  The seats must be held by the
// caller's session; they become RESERVED until the payment window closes.
func (h *ReservationHandler) Open(c echo.Context) error {
	var req openReservationReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	res, err := h.Orchestrator.OpenReservation(c.Request().Context(), service.OpenInput{
		ShowtimeID: req.ShowtimeID,
		SeatIDs:    req.SeatIDs,
		Holder:     middleware.SessionID(c),
		UserID:     middleware.UserID(c),
		Contact:    req.Contact.toContact(),
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// List handles GET /v1/reservations.  Owners may filter by user_id,
// showtime_id and status; customers get their own reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	f := repository.ReservationFilter{Status: strings.ToUpper(c.QueryParam("status"))}
	if s := c.QueryParam("showtime_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return badRequest(c, "invalid showtime_id")
		}
		f.ShowtimeID = id
	}
	if isOwner(c) {
		f.UserID = c.QueryParam("user_id")
	} else {
		f.UserID = middleware.UserID(c)
		if f.UserID == "" {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
	}
	list, err := h.Orchestrator.List(c.Request().Context(), f)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, err := h.load(c)
	if err != nil || res == nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// GetByNumber handles GET /v1/reservations/number/:number.
func (h *ReservationHandler) GetByNumber(c echo.Context) error {
	res, err := h.Orchestrator.GetByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	if !canSee(c, res) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	return c.JSON(http.StatusOK, res)
}

// Pay handles POST /v1/reservations/:id/pay: charge, then confirm or
// cancel depending on the outcome.  A decline answers 402.
func (h *ReservationHandler) Pay(c echo.Context) error {
	res, err := h.load(c)
	if err != nil || res == nil {
		return err
	}
	out, err := h.Orchestrator.Pay(c.Request().Context(), res.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Confirm handles POST /v1/reservations/:id/confirm for payments settled
// outside the engine.  Repeating it with the same payment_ref is a no-op.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req confirmReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	res, err := h.Orchestrator.Confirm(c.Request().Context(), id, req.PaymentRef)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel handles POST /v1/reservations/:id/cancel.  Customers may only
// cancel unpaid reservations; paid ones go through Refund.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	res, err := h.load(c)
	if err != nil || res == nil {
		return err
	}
	var req reasonReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	if res.Status == model.ReservationConfirmed && !isOwner(c) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "confirmed reservations can only be refunded"})
	}
	reason := req.Reason
	if reason == "" {
		reason = "cancelled by customer"
		if isOwner(c) {
			reason = "cancelled by box office"
		}
	}
	out, err := h.Orchestrator.Cancel(c.Request().Context(), res.ID, service.CancelInput{Reason: reason})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Refund handles POST /v1/reservations/:id/refund.
func (h *ReservationHandler) Refund(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req reasonReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	res, err := h.Orchestrator.Refund(c.Request().Context(), id, req.Reason)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Invoice handles GET /v1/reservations/:id/invoice.
func (h *ReservationHandler) Invoice(c echo.Context) error {
	res, err := h.load(c)
	if err != nil || res == nil {
		return err
	}
	inv, err := h.Orchestrator.Invoice(c.Request().Context(), res.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, inv)
}

// load fetches the reservation named by :id.  When it returns a nil
// reservation the response has already been written.
func (h *ReservationHandler) load(c echo.Context) (*model.Reservation, error) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, badRequest(c, "invalid reservation id")
	}
	res, err := h.Orchestrator.Get(c.Request().Context(), id)
	if err != nil {
		return nil, fail(c, h.Log, err)
	}
	if !canSee(c, res) {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	return res, nil
}

func canSee(c echo.Context, res *model.Reservation) bool {
	if isOwner(c) {
		return true
	}
	if uid := middleware.UserID(c); uid != "" && res.UserID != nil && *res.UserID == uid {
		return true
	}
	sid := middleware.SessionID(c)
	return sid != "" && res.HolderRef == sid
}
