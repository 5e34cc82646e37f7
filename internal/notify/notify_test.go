package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}
func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func validBody(t *testing.T, kind string) []byte {
	t.Helper()
	b, err := json.Marshal(BookingMessage{
		Kind: kind, BookingID: 1, EventID: 2, UserID: 3, Quantity: 2,
		OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		body    []byte
		wantErr bool
	}{
		{name: "created", key: KeyBookingCreated, body: validBody(t, KeyBookingCreated)},
		{name: "cancelled", key: KeyBookingCancelled, body: validBody(t, KeyBookingCancelled)},
		{name: "not json", key: KeyBookingCreated, body: []byte("{"), wantErr: true},
		{name: "unknown kind", key: "booking.paid", body: validBody(t, "booking.paid"), wantErr: true},
		{name: "key mismatch", key: KeyBookingCancelled, body: validBody(t, KeyBookingCreated), wantErr: true},
		{name: "missing ids", key: KeyBookingCreated, body: []byte(`{"kind":"booking.created"}`), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode(tt.key, tt.body)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if m.BookingID != 1 || m.Quantity != 2 {
				t.Fatalf("unexpected message: %+v", m)
			}
		})
	}
}

func TestDispatch(t *testing.T) {
	okHandler := HandlerFunc(func(context.Context, BookingMessage) error { return nil })
	failHandler := HandlerFunc(func(context.Context, BookingMessage) error { return errors.New("smtp down") })

	t.Run("acks handled message", func(t *testing.T) {
		ack := &ackRecorder{}
		d := amqp.Delivery{Acknowledger: ack, RoutingKey: KeyBookingCreated, Body: validBody(t, KeyBookingCreated)}
		dispatch(context.Background(), d, okHandler, zerolog.Nop())
		if !ack.acked || ack.nacked {
			t.Fatalf("expected ack, got %+v", ack)
		}
	})

	t.Run("drops malformed message", func(t *testing.T) {
		ack := &ackRecorder{}
		d := amqp.Delivery{Acknowledger: ack, RoutingKey: KeyBookingCreated, Body: []byte("nope")}
		dispatch(context.Background(), d, okHandler, zerolog.Nop())
		if !ack.nacked || ack.requeue {
			t.Fatalf("expected nack without requeue, got %+v", ack)
		}
	})

	t.Run("requeues handler failure once", func(t *testing.T) {
		ack := &ackRecorder{}
		d := amqp.Delivery{Acknowledger: ack, RoutingKey: KeyBookingCreated, Body: validBody(t, KeyBookingCreated)}
		dispatch(context.Background(), d, failHandler, zerolog.Nop())
		if !ack.nacked || !ack.requeue {
			t.Fatalf("expected nack with requeue, got %+v", ack)
		}

		again := &ackRecorder{}
		d.Acknowledger = again
		d.Redelivered = true
		dispatch(context.Background(), d, failHandler, zerolog.Nop())
		if !again.nacked || again.requeue {
			t.Fatalf("expected redelivered failure to be dropped, got %+v", again)
		}
	})
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, BookingMessage) error {
	p.calls++
	return errors.New("connection reset")
}

func TestNotifier_LogsAndSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	pub := &failingPublisher{}
	n := NewNotifier(pub, zerolog.New(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Notify(ctx, BookingMessage{Kind: KeyBookingCreated, BookingID: 9, EventID: 4})

	if pub.calls != 1 {
		t.Fatalf("expected one publish attempt even with cancelled ctx, got %d", pub.calls)
	}
	if !strings.Contains(buf.String(), "publish booking message failed") || !strings.Contains(buf.String(), `"booking_id":9`) {
		t.Fatalf("expected failure log, got %q", buf.String())
	}
}

func TestNotifier_NilPublisherIsNop(t *testing.T) {
	n := NewNotifier(nil, zerolog.Nop())
	n.Notify(context.Background(), BookingMessage{Kind: KeyBookingCreated})
}

func TestMailLogger(t *testing.T) {
	var buf bytes.Buffer
	h := MailLogger{Log: zerolog.New(&buf)}
	if err := h.Handle(context.Background(), BookingMessage{Kind: KeyBookingCancelled, BookingID: 5, EventID: 6, UserID: 7}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "was cancelled") {
		t.Fatalf("expected cancellation subject, got %q", buf.String())
	}
}
