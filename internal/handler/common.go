// Package handler exposes the booking engine over HTTP with echo.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/middleware"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
	"github.com/iliyamo/cinema-booking-engine/internal/utils"
)

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// bind decodes the body into req and runs the registered validator.  It
// returns the message to send back, or "".
func bind(c echo.Context, req interface{}) string {
	if err := c.Bind(req); err != nil {
		return "invalid body"
	}
	if err := c.Validate(req); err != nil {
		return err.Error()
	}
	return ""
}

// errorStatus maps an engine error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrSeatUnavailable),
		errors.Is(err, service.ErrStaleHold),
		errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, service.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": ...}, adding the offending seat or showtime
// ids when the error names them.  Internal details are logged, not returned.
func fail(c echo.Context, log *zap.Logger, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("route", c.Path()), zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	body := echo.Map{"error": err.Error()}
	var su *service.SeatUnavailableError
	if errors.As(err, &su) {
		body["seat_ids"] = su.SeatIDs
		body["showtime_id"] = su.ShowtimeID
	}
	var ce *service.ConflictError
	if errors.As(err, &ce) {
		body["showtime_ids"] = ce.ShowtimeIDs
	}
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	return c.JSON(status, body)
}

func isOwner(c echo.Context) bool { return middleware.Role(c) == utils.RoleOwner }
