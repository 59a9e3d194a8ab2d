package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/payment"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

const maxCallbackBody = 64 << 10

// PaymentHandler receives asynchronous outcomes from the payment processor.
type PaymentHandler struct {
	Orchestrator *service.Orchestrator
	Secret       string
	Log          *zap.Logger
}

func NewPaymentHandler(orch *service.Orchestrator, secret string, log *zap.Logger) *PaymentHandler {
	if orch == nil {
		panic("nil orchestrator passed to NewPaymentHandler")
	}
	return &PaymentHandler{Orchestrator: orch, Secret: secret, Log: log}
}

type callbackReq struct {
	Reference     string `json:"reference"`
	PaymentID     string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

// Callback handles POST /v1/payments/callback.  The body is signed with
// the shared webhook secret.  Outcomes the engine has settled, including
// declines and refunds after lost seats, answer 200 so the processor stops
// retrying; only internal failures ask for a retry.
func (h *PaymentHandler) Callback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody))
	if err != nil {
		return badRequest(c, "invalid body")
	}
	if !payment.VerifySignature(h.Secret, body, c.Request().Header.Get(payment.SignatureHeader)) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}
	var req callbackReq
	if err := json.Unmarshal(body, &req); err != nil || req.Reference == "" {
		return badRequest(c, "invalid body")
	}
	var out service.PaymentOutcome
	switch strings.ToLower(req.Status) {
	case payment.StatusSucceeded:
		if req.PaymentID == "" {
			return badRequest(c, "id is required")
		}
		out = service.PaymentOutcome{Succeeded: true, Ref: req.PaymentID}
	case payment.StatusFailed:
		out = service.PaymentOutcome{Reason: req.FailureReason}
	default:
		return badRequest(c, "unknown status")
	}

	ctx := c.Request().Context()
	res, err := h.Orchestrator.GetByNumber(ctx, req.Reference)
	if err != nil {
		return fail(c, h.Log, err)
	}
	settled, err := h.Orchestrator.HandlePaymentOutcome(ctx, res.ID, out)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"reservation_id": settled.ID, "status": settled.Status})
	case errors.Is(err, service.ErrInternal):
		return fail(c, h.Log, err)
	default:
		h.Log.Info("payment callback settled without confirmation",
			zap.String("number", req.Reference), zap.String("status", req.Status), zap.Error(err))
		status := res.Status
		if cur, gerr := h.Orchestrator.Get(ctx, res.ID); gerr == nil {
			status = cur.Status
		}
		return c.JSON(http.StatusOK, echo.Map{"reservation_id": res.ID, "status": status, "error": err.Error()})
	}
}
