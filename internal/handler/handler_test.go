package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&service.ValidationError{Field: "seat_ids", Msg: "is required"}, http.StatusBadRequest},
		{&service.NotFoundError{Entity: "showtime", ID: "3"}, http.StatusNotFound},
		{&service.ConflictError{RoomID: 1, ShowtimeIDs: []uint64{2}}, http.StatusConflict},
		{&service.SeatUnavailableError{ShowtimeID: 1, SeatIDs: []uint64{5}}, http.StatusConflict},
		{&service.InvalidStateError{ReservationID: 1, Status: "CANCELLED", Op: "confirm"}, http.StatusConflict},
		{&service.PaymentDeclinedError{ReservationID: 1, Reason: "card"}, http.StatusPaymentRequired},
		{&service.InternalError{Op: "x", Err: errors.New("db")}, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", &service.NotFoundError{Entity: "film", ID: "1"}), http.StatusNotFound},
	}
	for _, tc := range cases {
		if got := errorStatus(tc.err); got != tc.want {
			t.Errorf("%v: got %d, want %d", tc.err, got, tc.want)
		}
	}
}

func respond(t *testing.T, err error) (int, map[string]any) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if ferr := fail(c, zap.NewNop(), err); ferr != nil {
		t.Fatalf("fail: %v", ferr)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestFailNamesSeatsAndShowtimes(t *testing.T) {
	code, body := respond(t, &service.SeatUnavailableError{ShowtimeID: 4, SeatIDs: []uint64{7, 9}})
	if code != http.StatusConflict {
		t.Fatalf("status %d", code)
	}
	seats, _ := body["seat_ids"].([]any)
	if len(seats) != 2 || seats[0].(float64) != 7 {
		t.Fatalf("seat_ids %v", body["seat_ids"])
	}

	_, body = respond(t, &service.ConflictError{RoomID: 1, ShowtimeIDs: []uint64{11}})
	if ids, _ := body["showtime_ids"].([]any); len(ids) != 1 || ids[0].(float64) != 11 {
		t.Fatalf("showtime_ids %v", body["showtime_ids"])
	}
}

func TestFailHidesInternalDetails(t *testing.T) {
	code, body := respond(t, &service.InternalError{Op: "open reservation", Err: errors.New("dial tcp 10.0.0.5:3306")})
	if code != http.StatusInternalServerError || body["error"] != "internal error" {
		t.Fatalf("got %d %v", code, body)
	}
}

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&openReservationReq{SeatIDs: []uint64{0}, Contact: contactReq{Name: "Ada", Email: "nope"}})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"showtime_id is required", "seat_ids[0] must be greater than 0", "contact.email must be a valid e-mail address"} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q lacks %q", msg, want)
		}
	}

	ok := &openReservationReq{ShowtimeID: 1, SeatIDs: []uint64{3}, Contact: contactReq{Name: "Ada", Email: "ada@example.com"}}
	if err := v.Validate(ok); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestCallbackWithoutSecretRejectsEverything(t *testing.T) {
	h := &PaymentHandler{Log: zap.NewNop()}
	body := `{"reference":"RES203001011200001234","id":"x","status":"succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/callback", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Callback(echo.New().NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned callback answered %d", rec.Code)
	}
}
