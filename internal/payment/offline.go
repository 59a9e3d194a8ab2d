package payment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// Offline approves every charge and refund.  It stands in for the processor
// in development and with the memory store.
type Offline struct {
	Log *zap.Logger
}

var _ service.Payments = Offline{}

func (o Offline) Charge(_ context.Context, req service.ChargeRequest) (service.PaymentOutcome, error) {
	ref := "off_" + uuid.NewString()
	if o.Log != nil {
		o.Log.Warn("offline payment approved", zap.String("reference", req.ReservationNumber),
			zap.Uint64("amount_cents", req.AmountCents), zap.String("payment_ref", ref))
	}
	return service.PaymentOutcome{Succeeded: true, Ref: ref}, nil
}

func (o Offline) Refund(_ context.Context, paymentRef string) (service.PaymentOutcome, error) {
	return service.PaymentOutcome{Succeeded: true, Ref: "re_" + paymentRef}, nil
}
