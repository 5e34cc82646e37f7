package ticket

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
)

func TestPayloadRoundTrip(t *testing.T) {
	iss := NewIssuer("s3cret")
	want := Claims{BookingID: 12, EventID: 34, UserID: 56}

	payload := iss.Payload(want)
	if !strings.HasPrefix(payload, "12|34|56|") {
		t.Fatalf("unexpected payload %q", payload)
	}
	got, err := iss.Verify(payload)
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestVerify_Rejects(t *testing.T) {
	iss := NewIssuer("s3cret")
	valid := iss.Payload(Claims{BookingID: 1, EventID: 2, UserID: 3})
	sig := valid[strings.LastIndex(valid, "|")+1:]

	tests := map[string]string{
		"empty":         "",
		"missing parts": "1|2|" + sig,
		"tampered ids":  "1|2|4|" + sig,
		"other secret":  NewIssuer("other").Payload(Claims{BookingID: 1, EventID: 2, UserID: 3}),
		"non numeric":   "a|2|3|" + sig,
		"extra segment": valid + "|x",
		"bad signature": "1|2|3|AAAA",
	}
	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := iss.Verify(payload); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestRender(t *testing.T) {
	iss := NewIssuer("s3cret")
	b := &model.BookingDetail{
		Booking: model.Booking{
			ID:        7,
			UserID:    3,
			EventID:   9,
			Quantity:  2,
			Reference: "4b1d0a0e-5b0f-4c4e-9a53-1c8f0f1e2d3c",
		},
		EventTitle:    "Concerto al Teatro Regio",
		EventVenue:    "Piazza Castello 215",
		EventStartsAt: time.Date(2026, 7, 1, 21, 0, 0, 0, time.UTC),
		PriceCents:    2500,
		UserName:      "Zoë",
	}

	var buf bytes.Buffer
	if err := iss.Render(&buf, b); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected a PDF, got %q", buf.Bytes()[:min(16, buf.Len())])
	}
	if buf.Len() < 1000 {
		t.Fatalf("PDF suspiciously small: %d bytes", buf.Len())
	}
}
