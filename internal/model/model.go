// Package model defines the core domain types for EnjoyCity.
package model

import (
	"fmt"
	"time"
)

// Role distinguishes regular users from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// EventStatus is the moderation state of an event.
type EventStatus string

const (
	StatusPending  EventStatus = "pending"
	StatusApproved EventStatus = "approved"
	StatusRejected EventStatus = "rejected"
)

// MinQuantity and MaxQuantity bound the seats a single booking may hold.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

// Event is a bookable or informational activity.
type Event struct {
	ID              int64       `json:"id"`
	OwnerID         int64       `json:"owner_id"`
	CategoryID      int64       `json:"category_id"`
	CategoryName    string      `json:"category_name,omitempty"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Venue           string      `json:"venue"`
	Latitude        *float64    `json:"latitude,omitempty"`
	Longitude       *float64    `json:"longitude,omitempty"`
	StartsAt        time.Time   `json:"starts_at"`
	EndsAt          *time.Time  `json:"ends_at,omitempty"`
	TotalSeats      *int        `json:"total_seats,omitempty"`
	BookedCount     int         `json:"booked_count"`
	PriceCents      int64       `json:"price_cents"`
	ImagePath       string      `json:"image_path,omitempty"`
	Status          EventStatus `json:"status"`
	RejectionReason string      `json:"rejection_reason,omitempty"`
	Cancelled       bool        `json:"cancelled"`
	Archived        bool        `json:"archived"`
	CreatedAt       time.Time   `json:"created_at"`

	// DistanceKm is only populated when listing by distance.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Bookable reports whether the event takes bookings at all
// (positive capacity and a price), ignoring its schedule and moderation state.
func (e *Event) Bookable() bool {
	return e.TotalSeats != nil && *e.TotalSeats > 0 && e.PriceCents > 0
}

// Remaining returns the number of available seats according to the cached
// counter, or 0 for informational events.
func (e *Event) Remaining() int {
	if e.TotalSeats == nil {
		return 0
	}
	if r := *e.TotalSeats - e.BookedCount; r > 0 {
		return r
	}
	return 0
}

// Price renders the price as a decimal string, e.g. "5.00".
func (e *Event) Price() string {
	return FormatCents(e.PriceCents)
}

// Visible reports whether the event belongs in the public listing at now.
func (e *Event) Visible(now time.Time) bool {
	return e.Status == StatusApproved && !e.Cancelled && !e.Archived && !e.StartsAt.Before(now)
}

// FormatCents renders an amount of cents with two decimals.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// EventSnapshot is the subset of an event read under the booking row lock.
type EventSnapshot struct {
	ID         int64
	Status     EventStatus
	Cancelled  bool
	Archived   bool
	StartsAt   time.Time
	TotalSeats *int
	PriceCents int64
}

// Booking is a user's reservation of seats on an event.
type Booking struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	EventID   int64     `json:"event_id"`
	Quantity  int       `json:"quantity"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingDetail joins a booking with the event fields shown on "my bookings".
type BookingDetail struct {
	Booking
	EventTitle    string    `json:"event_title"`
	EventVenue    string    `json:"event_venue"`
	EventStartsAt time.Time `json:"event_starts_at"`
	PriceCents    int64     `json:"price_cents"`
	UserName      string    `json:"user_name"`
}

// Total returns the amount due for the booking.
func (b *BookingDetail) Total() string {
	return FormatCents(b.PriceCents * int64(b.Quantity))
}

// User is an account holder.
type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name"`
	PasswordHash     string     `json:"-"`
	Role             Role       `json:"role"`
	BlockedPermanent bool       `json:"blocked_permanent"`
	BlockedUntil     *time.Time `json:"blocked_until,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BlockStatus evaluates the user's block state at now.
func (u *User) BlockStatus(now time.Time) BlockStatus {
	if u.BlockedPermanent {
		return BlockStatus{Blocked: true}
	}
	if u.BlockedUntil != nil && u.BlockedUntil.After(now) {
		until := *u.BlockedUntil
		return BlockStatus{Blocked: true, Until: &until}
	}
	return BlockStatus{}
}

// BlockStatus describes whether a user is barred from booking.
// Until is nil for permanent blocks.
type BlockStatus struct {
	Blocked bool
	Until   *time.Time
}

// Category groups events by theme.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SortMode selects the ordering of the public listing.
type SortMode string

const (
	SortDate        SortMode = "date"
	SortDistance    SortMode = "distance"
	SortPreferences SortMode = "preferences"
)

// PriceFilter narrows the listing to free or paid events.
type PriceFilter string

const (
	PriceAny  PriceFilter = ""
	PriceFree PriceFilter = "free"
	PricePaid PriceFilter = "paid"
)

// Listing page bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter describes a public listing query.
type ListFilter struct {
	Query      string
	CategoryID int64
	From       *time.Time
	To         *time.Time
	Price      PriceFilter
	Lat        *float64
	Lng        *float64
	Sort       SortMode

	// UserID drives SortPreferences; zero means anonymous.
	UserID int64
	Now    time.Time
	Limit  int
	Offset int
}

// Normalize clamps paging and falls back to date ordering when the requested
// sort cannot be honoured.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.Sort {
	case SortDistance:
		if f.Lat == nil || f.Lng == nil {
			f.Sort = SortDate
		}
	case SortPreferences:
		if f.UserID == 0 {
			f.Sort = SortDate
		}
	case SortDate:
	default:
		f.Sort = SortDate
	}
	return f
}
