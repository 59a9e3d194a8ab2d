package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// CatalogHandler serves films, rooms and their seat grids.
type CatalogHandler struct {
	Catalog *service.Catalog
	Log     *zap.Logger
}

func NewCatalogHandler(catalog *service.Catalog, log *zap.Logger) *CatalogHandler {
	if catalog == nil {
		panic("nil catalog passed to NewCatalogHandler")
	}
	return &CatalogHandler{Catalog: catalog, Log: log}
}

type createFilmReq struct {
	Title           string `json:"title" validate:"required,max=255"`
	DurationMinutes uint32 `json:"duration_minutes" validate:"required,min=1,max=1440"`
}

type createRoomReq struct {
	Name        string `json:"name" validate:"required,max=100"`
	Rows        uint32 `json:"rows" validate:"required,min=1"`
	SeatsPerRow uint32 `json:"seats_per_row" validate:"required,min=1"`
	VIPRows     uint32 `json:"vip_rows"`
}

// CreateFilm handles POST /v1/films.
func (h *CatalogHandler) CreateFilm(c echo.Context) error {
	var req createFilmReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	f, err := h.Catalog.CreateFilm(c.Request().Context(), service.FilmInput{
		Title: req.Title, DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, f)
}

// GetFilm handles GET /v1/films/:id.
func (h *CatalogHandler) GetFilm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid film id")
	}
	f, err := h.Catalog.GetFilm(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, f)
}

// DeactivateFilm handles DELETE /v1/films/:id.  Existing showtimes keep
// running; new showtimes and reservations are refused.
func (h *CatalogHandler) DeactivateFilm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid film id")
	}
	if err := h.Catalog.DeactivateFilm(c.Request().Context(), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateRoom handles POST /v1/rooms and returns the room with its seats.
func (h *CatalogHandler) CreateRoom(c echo.Context) error {
	var req createRoomReq
	if msg := bind(c, &req); msg != "" {
		return badRequest(c, msg)
	}
	room, seats, err := h.Catalog.CreateRoom(c.Request().Context(), service.RoomInput{
		Name: req.Name, Rows: req.Rows, SeatsPerRow: req.SeatsPerRow, VIPRows: req.VIPRows,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"room": room, "seats": seats})
}

// GetRoom handles GET /v1/rooms/:id.
func (h *CatalogHandler) GetRoom(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	room, err := h.Catalog.GetRoom(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, room)
}

// ListSeats handles GET /v1/rooms/:id/seats.  The grid never changes after
// the room is created, which is why the route is cached.
func (h *CatalogHandler) ListSeats(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	seats, err := h.Catalog.ListSeats(c.Request().Context(), id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, seats)
}

// DeactivateRoom handles DELETE /v1/rooms/:id.
func (h *CatalogHandler) DeactivateRoom(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid room id")
	}
	if err := h.Catalog.DeactivateRoom(c.Request().Context(), id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
