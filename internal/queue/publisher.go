package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking-engine/internal/service"
)

// ErrPublisherClosed is returned for notices sent after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Publisher is the RabbitMQ service.Notifier.  Notices are published in the
// background so a slow broker never delays the request that settled the
// reservation.  Each notice opens its own connection, declares the queue
// and publishes a persistent JSON message; failures are logged and never
// retried here.
type Publisher struct {
	url     string
	timeout time.Duration
	log     *zap.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

var _ service.Notifier = (*Publisher)(nil)

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, timeout: 5 * time.Second, log: log}
}

func (p *Publisher) ReservationConfirmed(ctx context.Context, n service.ReservationNotice) error {
	return p.send(ctx, QueueConfirmed, EventFromNotice(n))
}

func (p *Publisher) ReservationCancelled(ctx context.Context, n service.ReservationNotice) error {
	return p.send(ctx, QueueCancelled, EventFromNotice(n))
}

// Close stops accepting notices and waits for those in flight, or for ctx.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) send(ctx context.Context, queue string, ev ReservationEvent) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	// The request context ends with the response; the publish must not.
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer p.inflight.Done()
		if err := p.publish(ctx, queue, ev); err != nil {
			p.log.Error("booking event not published", zap.String("queue", queue),
				zap.String("number", ev.ReservationNumber), zap.Error(err))
		}
	}()
	return nil
}

func (p *Publisher) publish(ctx context.Context, queue string, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", queue, err)
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	p.log.Debug("event published", zap.String("queue", queue), zap.String("number", ev.ReservationNumber))
	return nil
}
