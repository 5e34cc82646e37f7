package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingRepository handles persistence for bookings and the event counter
// they maintain.
//
// Callers serialise concurrent bookings on the same event by running
// LockEvent first inside WithTx: SELECT … FOR UPDATE blocks every other
// transaction that tries to lock the same row until COMMIT or ROLLBACK, so
// the sum-then-insert sequence that follows cannot interleave. Bookings on
// different events lock different rows and never wait on each other.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx runs fn in a transaction carried by the context passed to fn.
func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// LockEvent takes an exclusive row lock on the event and returns the fields
// the booking checks need. It must run inside WithTx.
func (r *BookingRepository) LockEvent(ctx context.Context, eventID int64) (*model.EventSnapshot, error) {
	var s model.EventSnapshot
	err := conn(ctx, r.db).QueryRow(ctx, `
SELECT id, status, is_cancelled, is_archived, starts_at, total_seats, price_cents
FROM events
WHERE id = $1
FOR UPDATE`,
		eventID,
	).Scan(&s.ID, &s.Status, &s.Cancelled, &s.Archived, &s.StartsAt, &s.TotalSeats, &s.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return &s, nil
}

// FindBooking returns the user's booking for the event, or nil when there is none.
func (r *BookingRepository) FindBooking(ctx context.Context, userID, eventID int64) (*model.Booking, error) {
	b, err := r.scanOne(ctx, `
SELECT id, user_id, event_id, quantity, reference::text, created_at
FROM bookings
WHERE user_id = $1 AND event_id = $2`, userID, eventID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return b, err
}

// SumQuantities returns the number of seats held by all bookings of the event.
func (r *BookingRepository) SumQuantities(ctx context.Context, eventID int64) (int, error) {
	var sum int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM bookings WHERE event_id = $1`,
		eventID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum booking quantities: %w", err)
	}
	return sum, nil
}

// Insert stores b and fills in its ID and CreatedAt. A second booking for the
// same (user, event) yields ErrDuplicate.
func (r *BookingRepository) Insert(ctx context.Context, b *model.Booking) error {
	err := conn(ctx, r.db).QueryRow(ctx, `
INSERT INTO bookings (user_id, event_id, quantity, reference)
VALUES ($1, $2, $3, $4::uuid)
RETURNING id, created_at`,
		b.UserID, b.EventID, b.Quantity, b.Reference,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// SetBookedCount overwrites the cached counter of the event.
func (r *BookingRepository) SetBookedCount(ctx context.Context, eventID int64, count int) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE events SET booked_count = $2, updated_at = NOW() WHERE id = $1`,
		eventID, count,
	)
	if err != nil {
		return fmt.Errorf("update booked_count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a booking or ErrNotFound.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	return r.scanOne(ctx, `
SELECT id, user_id, event_id, quantity, reference::text, created_at
FROM bookings
WHERE id = $1`, id)
}

// Delete removes a booking. The caller recomputes the event counter.
func (r *BookingRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const bookingDetailQuery = `
SELECT b.id, b.user_id, b.event_id, b.quantity, b.reference::text, b.created_at,
	e.title, e.venue, e.starts_at, e.price_cents, u.display_name
FROM bookings b
JOIN events e ON e.id = b.event_id
JOIN users u ON u.id = b.user_id`

func scanDetail(row pgx.Row, d *model.BookingDetail) error {
	return row.Scan(
		&d.ID, &d.UserID, &d.EventID, &d.Quantity, &d.Reference, &d.CreatedAt,
		&d.EventTitle, &d.EventVenue, &d.EventStartsAt, &d.PriceCents, &d.UserName,
	)
}

// GetDetail returns a booking joined with its event and user, or ErrNotFound.
func (r *BookingRepository) GetDetail(ctx context.Context, id int64) (*model.BookingDetail, error) {
	var d model.BookingDetail
	if err := scanDetail(conn(ctx, r.db).QueryRow(ctx, bookingDetailQuery+` WHERE b.id = $1`, id), &d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking detail: %w", err)
	}
	return &d, nil
}

// ListByUser returns the user's bookings, latest event first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64) ([]model.BookingDetail, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		bookingDetailQuery+` WHERE b.user_id = $1 ORDER BY e.starts_at DESC, b.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []model.BookingDetail
	for rows.Next() {
		var d model.BookingDetail
		if err := scanDetail(rows, &d); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *BookingRepository) scanOne(ctx context.Context, sql string, args ...any) (*model.Booking, error) {
	var b model.Booking
	err := conn(ctx, r.db).QueryRow(ctx, sql, args...).
		Scan(&b.ID, &b.UserID, &b.EventID, &b.Quantity, &b.Reference, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}
