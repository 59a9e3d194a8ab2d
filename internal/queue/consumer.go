package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Mailer sends customer e-mail for a consumed event.
type Mailer interface {
	SendConfirmation(ctx context.Context, ev ReservationEvent) error
	SendCancellation(ctx context.Context, ev ReservationEvent) error
}

// Consumer reads both reservation queues, appends every event to
// <LogDir>/booking.log and, when a Mailer is set, e-mails the contact.
type Consumer struct {
	URL    string
	LogDir string
	Mailer Mailer
	Log    *zap.Logger

	mu sync.Mutex // serialises writes to the log file
}

// Run keeps a connection to the broker until ctx is cancelled, reconnecting
// with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("booking consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("booking consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("booking consumer: set QoS failed", zap.Error(err))
	}
	deliveries := make(chan amqp.Delivery)
	var wg sync.WaitGroup
	for _, q := range []string{QueueConfirmed, QueueCancelled} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", q, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					_ = d.Nack(false, true)
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(deliveries)
	}()

	c.Log.Info("booking consumer: waiting for messages", zap.Strings("queues", []string{QueueConfirmed, QueueCancelled}))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				c.Log.Error("booking consumer: handle message failed", zap.String("queue", d.RoutingKey), zap.Error(err))
				_ = d.Nack(false, false) // reject without requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body from queue.  A mail failure is logged
// but does not fail the message; the log line is already written.
func (c *Consumer) Handle(ctx context.Context, queue string, body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := c.appendLine(FormatLine(queue, ev)); err != nil {
		return err
	}
	if c.Mailer == nil || ev.ContactEmail == "" {
		return nil
	}
	var err error
	switch queue {
	case QueueConfirmed:
		err = c.Mailer.SendConfirmation(ctx, ev)
	case QueueCancelled:
		err = c.Mailer.SendCancellation(ctx, ev)
	}
	if err != nil {
		c.Log.Error("booking consumer: e-mail failed", zap.String("number", ev.ReservationNumber), zap.Error(err))
	}
	return nil
}

func (c *Consumer) appendLine(line string) error {
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders one event as a single human-friendly log line.
func FormatLine(queue string, ev ReservationEvent) string {
	verb := "confirmed"
	if queue == QueueCancelled {
		verb = "cancelled"
	}
	line := fmt.Sprintf("[%s] Reservation %s | number=%s | reservation_id=%d | user_id=%s | showtime_id=%d | room=%q | film=%q | starts_at=%s | total=%d %s cents | seats=[%s]",
		ev.OccurredAt, verb, ev.ReservationNumber, ev.ReservationID, orDash(ev.UserID), ev.ShowtimeID,
		ev.RoomName, ev.FilmTitle, ev.StartsAt, ev.AmountCents, ev.Currency, strings.Join(ev.SeatLabels, ","))
	if ev.Reason != "" {
		line += fmt.Sprintf(" | reason=%q", ev.Reason)
	}
	return line + "\n"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
