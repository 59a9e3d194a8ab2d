package mailer_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/iliyamo/cinema-booking-engine/internal/mailer"
	"github.com/iliyamo/cinema-booking-engine/internal/queue"
)

type MockSender struct {
	sent []*gomail.Message
	Err  error
}

func (m *MockSender) DialAndSend(msgs ...*gomail.Message) error {
	m.sent = append(m.sent, msgs...)
	return m.Err
}

func event() queue.ReservationEvent {
	return queue.ReservationEvent{
		ReservationNumber: "RES202401311830451234",
		Status:            "CONFIRMED",
		FilmTitle:         "Dune",
		RoomName:          "R1",
		StartsAt:          "2024-01-31T18:00:00Z",
		SeatLabels:        []string{"A1", "A2"},
		AmountCents:       2505,
		Currency:          "cad",
		ContactName:       "Ada",
		ContactEmail:      "ada@example.com",
	}
}

func raw(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.String()
}

func TestSendConfirmation(t *testing.T) {
	s := &MockSender{}
	m := mailer.NewWithSender("box@cinema.test", s, zap.NewNop())
	if err := m.SendConfirmation(context.Background(), event()); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("%d messages", len(s.sent))
	}
	msg := s.sent[0]
	if got := msg.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "RES202401311830451234") {
		t.Fatalf("subject %v", got)
	}
	out := raw(t, msg)
	for _, want := range []string{"cid:ticket.png", "ticket.png", "image/png"} {
		if !strings.Contains(out, want) {
			t.Fatalf("message lacks %q", want)
		}
	}
}

func TestSendCancellationPropagatesErrors(t *testing.T) {
	s := &MockSender{Err: errors.New("refused")}
	m := mailer.NewWithSender("box@cinema.test", s, zap.NewNop())
	ev := event()
	ev.Reason = "payment failed"
	if err := m.SendCancellation(context.Background(), ev); err == nil {
		t.Fatal("expected send error")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := mailer.FormatAmount(2505, "cad"); got != "25.05 CAD" {
		t.Fatalf("got %q", got)
	}
	if got := mailer.FormatAmount(7, "eur"); got != "0.07 EUR" {
		t.Fatalf("got %q", got)
	}
}
