package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
)

type sample struct {
	Title    string    `form:"title" validate:"notblank,min=3,max=10"`
	Email    string    `json:"email" validate:"omitempty,email"`
	Seats    *int      `form:"total_seats" validate:"omitempty,gte=0,lte=100"`
	StartsAt time.Time `form:"starts_at" validate:"future"`
	Code     string    `form:"code" validate:"maxbytes=4"`
}

func TestValidator_Struct(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := New(clock.NewFixed(now))
	seats := func(n int) *int { return &n }

	tests := []struct {
		name      string
		in        sample
		wantField string
		wantMsg   string
	}{
		{name: "valid", in: sample{Title: "Jazz", StartsAt: now.Add(time.Hour)}},
		{name: "blank title", in: sample{Title: "   ", StartsAt: now.Add(time.Hour)}, wantField: "title", wantMsg: "is required"},
		{name: "short title", in: sample{Title: "ab", StartsAt: now.Add(time.Hour)}, wantField: "title", wantMsg: "must be at least 3 characters"},
		{name: "bad email", in: sample{Title: "Jazz", Email: "nope", StartsAt: now.Add(time.Hour)}, wantField: "email", wantMsg: "must be a valid email address"},
		{name: "too many seats", in: sample{Title: "Jazz", Seats: seats(101), StartsAt: now.Add(time.Hour)}, wantField: "total_seats", wantMsg: "must be at most 100"},
		{name: "multibyte code", in: sample{Title: "Jazz", Code: "ééé", StartsAt: now.Add(time.Hour)}, wantField: "code", wantMsg: "must be at most 4 bytes"},
		{name: "past start", in: sample{Title: "Jazz", StartsAt: now}, wantField: "starts_at", wantMsg: "must be in the future"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(context.Background(), tt.in)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if verr.Field != tt.wantField || verr.Message != tt.wantMsg {
				t.Fatalf("expected %s %q, got %s %q", tt.wantField, tt.wantMsg, verr.Field, verr.Message)
			}
		})
	}
}
