package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/payment"
	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

func TestClientCharge(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/charges" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing api key")
		}
		if r.Header.Get("Idempotency-Key") != "charge-RES1" {
			t.Errorf("idempotency key %q", r.Header.Get("Idempotency-Key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"pay_123","status":"succeeded"}`))
	}))
	defer srv.Close()

	c := payment.NewClient(srv.URL+"/", "key", time.Second, zap.NewNop())
	out, err := c.Charge(context.Background(), service.ChargeRequest{ReservationNumber: "RES1", AmountCents: 2500, Currency: "cad"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if !out.Succeeded || out.Ref != "pay_123" {
		t.Fatalf("outcome %+v", out)
	}
	if got["amount_cents"] != float64(2500) || got["currency"] != "cad" || got["reference"] != "RES1" {
		t.Fatalf("body %+v", got)
	}
}

func TestClientDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"id":"pay_9","status":"failed","failure_reason":"card declined"}`))
	}))
	defer srv.Close()

	c := payment.NewClient(srv.URL, "", time.Second, zap.NewNop())
	out, err := c.Charge(context.Background(), service.ChargeRequest{ReservationNumber: "RES1"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if out.Succeeded || out.Reason != "card declined" {
		t.Fatalf("outcome %+v", out)
	}
}

func TestClientServerErrorIsUnknownOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := payment.NewClient(srv.URL, "", time.Second, zap.NewNop())
	if _, err := c.Refund(context.Background(), "pay_1"); err == nil {
		t.Fatal("expected an error for a 503")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"reservation_id":1}`)
	sig := payment.Sign("s3cret", body)
	if !payment.VerifySignature("s3cret", body, sig) {
		t.Fatal("valid signature rejected")
	}
	if !payment.VerifySignature("s3cret", body, "sha256="+sig) {
		t.Fatal("prefixed signature rejected")
	}
	if payment.VerifySignature("s3cret", []byte(`{}`), sig) {
		t.Fatal("signature of another body accepted")
	}
	if payment.VerifySignature("s3cret", body, "zz") {
		t.Fatal("garbage accepted")
	}
	if payment.VerifySignature("", body, "") || payment.VerifySignature("", body, payment.Sign("", body)) {
		t.Fatal("callback accepted without a configured secret")
	}
}
