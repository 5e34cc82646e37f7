package notify

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one decoded booking message.
type Handler interface {
	Handle(ctx context.Context, m BookingMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, m BookingMessage) error

func (f HandlerFunc) Handle(ctx context.Context, m BookingMessage) error { return f(ctx, m) }

// ConsumerConfig names the exchange, queue and bindings to consume.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Bindings []string
	Prefetch int
}

// Consumer reads booking messages from a durable queue.
type Consumer struct {
	cfg     ConsumerConfig
	handler Handler
	log     zerolog.Logger

	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer dials RabbitMQ, declares the topology and applies QoS.
func NewConsumer(cfg ConsumerConfig, h Handler, log zerolog.Logger) (*Consumer, error) {
	if len(cfg.Bindings) == 0 {
		cfg.Bindings = []string{BindingAll}
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(op string, err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	for _, key := range cfg.Bindings {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			return fail("bind "+key, err)
		}
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fail("set qos", err)
	}

	cfg.Queue = q.Name
	return &Consumer{cfg: cfg, handler: h, log: log, conn: conn, ch: ch}, nil
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info().Str("queue", c.cfg.Queue).Strs("bindings", c.cfg.Bindings).Msg("booking consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			dispatch(ctx, d, c.handler, c.log)
		}
	}
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// dispatch acks handled messages, drops malformed ones and requeues handler failures.
func dispatch(ctx context.Context, d amqp.Delivery, h Handler, log zerolog.Logger) {
	m, err := Decode(d.RoutingKey, d.Body)
	if err != nil {
		log.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("dropping malformed message")
		_ = d.Nack(false, false)
		return
	}
	if err := h.Handle(ctx, m); err != nil {
		requeue := !errors.Is(err, ErrMalformed) && !d.Redelivered
		log.Error().Err(err).Str("kind", m.Kind).Int64("booking_id", m.BookingID).Bool("requeue", requeue).Msg("handle booking message")
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

// MailLogger stands in for a mailer: it logs the confirmation it would send.
type MailLogger struct {
	Log zerolog.Logger
}

func (m MailLogger) Handle(_ context.Context, msg BookingMessage) error {
	subject := "Your EnjoyCity booking is confirmed"
	if msg.Kind == KeyBookingCancelled {
		subject = "Your EnjoyCity booking was cancelled"
	}
	m.Log.Info().
		Str("mail", "booking").
		Str("subject", subject).
		Int64("user_id", msg.UserID).
		Int64("booking_id", msg.BookingID).
		Int64("event_id", msg.EventID).
		Int("quantity", msg.Quantity).
		Str("reference", msg.Reference).
		Time("occurred_at", msg.OccurredAt).
		Msg("mail sent")
	return nil
}
