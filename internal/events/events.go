// Package events publishes domain events after a transaction commits.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Routing keys
const (
	SaleCompleted  = "sale.completed"
	SaleReturned   = "sale.returned"
	PaymentApplied = "sale.payment_applied"
)

// Event is the message body for every sales event. Tenant identifies which
// isolated database the document lives in.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Tenant     string          `json:"tenant"`
	Number     string          `json:"number"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent stamps an event with an id and the current time
func NewEvent(eventType, tenant, number string, amount decimal.Decimal) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Tenant:     tenant,
		Number:     number,
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("event publisher is closed")

// channel is the part of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPPublisher publishes to a topic exchange through a small pool of channels,
// since an amqp channel must not be shared by concurrent publishers.
type AMQPPublisher struct {
	exchange  string
	channels  chan channel
	open      func() (channel, error)
	closeConn func() error

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// NewAMQPPublisher dials the broker, declares the exchange and opens size channels.
func NewAMQPPublisher(url, exchange string, size int) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	ch.Close()

	open := func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	p, err := newPublisher(exchange, size, open, conn.Close)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(exchange string, size int, open func() (channel, error), closeConn func() error) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		exchange:  exchange,
		channels:  make(chan channel, size),
		open:      open,
		closeConn: closeConn,
	}
	for i := 0; i < size; i++ {
		ch, err := open()
		if err != nil {
			close(p.channels)
			for ch := range p.channels {
				ch.Close()
			}
			return nil, fmt.Errorf("open amqp channel: %w", err)
		}
		p.channels <- ch
	}
	return p, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPublisherClosed
	}
	p.inflight.Add(1)
	p.mu.RUnlock()
	defer p.inflight.Done()

	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	var ch channel
	select {
	case ch = <-p.channels:
	case <-ctx.Done():
		return ctx.Err()
	}
	ch = p.usable(ch)
	defer func() { p.channels <- p.usable(ch) }()

	return ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
}

// usable replaces a channel the broker closed after an error. When reopening
// fails the dead channel goes back and the next release tries again.
func (p *AMQPPublisher) usable(ch channel) channel {
	if !ch.IsClosed() {
		return ch
	}
	fresh, err := p.open()
	if err != nil {
		return ch
	}
	return fresh
}

// Close waits for in-flight publishes, then closes the pool and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()
	close(p.channels)
	for ch := range p.channels {
		ch.Close()
	}
	return p.closeConn()
}

// PublishAsync sends e in the background with a short deadline. Failures are
// logged only; a sale is never affected by the broker.
func PublishAsync(pub Publisher, log *zap.Logger, e Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pub.Publish(ctx, e); err != nil {
			log.Warn("Event not published",
				zap.String("type", e.Type), zap.String("tenant", e.Tenant),
				zap.String("number", e.Number), zap.Error(err))
		}
	}()
}
