// Package notify publishes booking lifecycle messages to RabbitMQ and
// consumes them to send confirmation mails.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Routing keys on the bookings topic exchange.
const (
	KeyBookingCreated   = "booking.created"
	KeyBookingCancelled = "booking.cancelled"

	// BindingAll matches every booking message.
	BindingAll = "booking.*"
)

// ErrMalformed is returned when a delivery cannot be decoded.
var ErrMalformed = errors.New("malformed booking message")

// BookingMessage is the JSON body of a booking.* message.
type BookingMessage struct {
	Kind       string    `json:"kind"`
	BookingID  int64     `json:"booking_id"`
	EventID    int64     `json:"event_id"`
	UserID     int64     `json:"user_id"`
	Quantity   int       `json:"quantity"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Decode parses a delivery body and checks that the routing key agrees with it.
func Decode(routingKey string, body []byte) (BookingMessage, error) {
	var m BookingMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return BookingMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch m.Kind {
	case KeyBookingCreated, KeyBookingCancelled:
	default:
		return BookingMessage{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	if routingKey != "" && routingKey != m.Kind {
		return BookingMessage{}, fmt.Errorf("%w: routing key %q does not match kind %q", ErrMalformed, routingKey, m.Kind)
	}
	if m.BookingID <= 0 || m.EventID <= 0 || m.UserID <= 0 {
		return BookingMessage{}, fmt.Errorf("%w: missing identifiers", ErrMalformed)
	}
	return m, nil
}
