package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher sends booking messages somewhere.
type Publisher interface {
	Publish(ctx context.Context, m BookingMessage) error
}

// AMQPPublisher publishes JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPPublisher dials RabbitMQ and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends m with its Kind as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, m BookingMessage) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, m.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    m.OccurredAt,
		Body:         body,
	})
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Nop discards every message. It is used when AMQP_URL is empty.
type Nop struct{}

func (Nop) Publish(context.Context, BookingMessage) error { return nil }

// Notifier publishes on a best-effort basis: failures are logged and dropped.
type Notifier struct {
	pub     Publisher
	log     zerolog.Logger
	timeout time.Duration
}

// NewNotifier wraps pub. A nil pub behaves like Nop.
func NewNotifier(pub Publisher, log zerolog.Logger) *Notifier {
	if pub == nil {
		pub = Nop{}
	}
	return &Notifier{pub: pub, log: log, timeout: 5 * time.Second}
}

// Notify publishes m detached from the caller's cancellation.
func (n *Notifier) Notify(ctx context.Context, m BookingMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.pub.Publish(ctx, m); err != nil {
		n.log.Error().Err(err).
			Str("kind", m.Kind).
			Int64("booking_id", m.BookingID).
			Int64("event_id", m.EventID).
			Msg("publish booking message failed")
		return
	}
	n.log.Debug().Str("kind", m.Kind).Int64("booking_id", m.BookingID).Msg("booking message published")
}
