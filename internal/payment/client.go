// Package payment talks to the external payment processor.  Client is the
// HTTP implementation of service.Payments; Offline approves everything and
// is used when no processor is configured.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// Payment statuses reported by the processor, in responses and callbacks.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client calls a JSON payment API:
//
//	POST {base}/charges  {"reference","amount_cents","currency","email"}
//	POST {base}/refunds  {"payment_id"}
//
// and expects {"id","status","failure_reason"} back.  A 2xx or 402 answer
// is a decided outcome; anything else is an error and the outcome is
// unknown.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
	log    *zap.Logger
}

var _ service.Payments = (*Client)(nil)

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		log:    log,
	}
}

type chargeRequest struct {
	Reference   string `json:"reference"`
	AmountCents uint64 `json:"amount_cents"`
	Currency    string `json:"currency"`
	Email       string `json:"email,omitempty"`
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
}

type result struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

func (c *Client) Charge(ctx context.Context, req service.ChargeRequest) (service.PaymentOutcome, error) {
	body := chargeRequest{
		Reference:   req.ReservationNumber,
		AmountCents: req.AmountCents,
		Currency:    req.Currency,
		Email:       req.CustomerEmail,
	}
	out, err := c.post(ctx, "/charges", "charge-"+req.ReservationNumber, body)
	if err != nil {
		return service.PaymentOutcome{}, err
	}
	c.log.Info("charge answered", zap.String("reference", req.ReservationNumber),
		zap.Bool("succeeded", out.Succeeded), zap.String("payment_ref", out.Ref))
	return out, nil
}

func (c *Client) Refund(ctx context.Context, paymentRef string) (service.PaymentOutcome, error) {
	out, err := c.post(ctx, "/refunds", "refund-"+paymentRef, refundRequest{PaymentID: paymentRef})
	if err != nil {
		return service.PaymentOutcome{}, err
	}
	c.log.Info("refund answered", zap.String("payment_ref", paymentRef), zap.Bool("succeeded", out.Succeeded))
	return out, nil
}

// post sends one request.  The idempotency key lets the processor collapse
// duplicates if the caller retries after an unknown outcome.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload any) (service.PaymentOutcome, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return service.PaymentOutcome{}, fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return service.PaymentOutcome{}, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return service.PaymentOutcome{}, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return service.PaymentOutcome{}, fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var r result
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return service.PaymentOutcome{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	switch strings.ToLower(r.Status) {
	case StatusSucceeded:
		return service.PaymentOutcome{Succeeded: true, Ref: r.ID}, nil
	case StatusFailed:
		reason := r.FailureReason
		if reason == "" {
			reason = "declined"
		}
		return service.PaymentOutcome{Ref: r.ID, Reason: reason}, nil
	default:
		return service.PaymentOutcome{}, fmt.Errorf("%s: unknown payment status %q", path, r.Status)
	}
}
