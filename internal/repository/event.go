package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx runs fn in a transaction shared by every repository call made with its context.
func (r *EventRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

const eventColumns = `e.id, e.owner_id, e.category_id, c.name, e.title, e.description, e.venue,
	e.latitude, e.longitude, e.starts_at, e.ends_at, e.total_seats, e.booked_count,
	e.price_cents, e.image_path, e.status, e.rejection_reason, e.is_cancelled,
	e.is_archived, e.created_at`

func eventDest(e *model.Event) []any {
	return []any{
		&e.ID, &e.OwnerID, &e.CategoryID, &e.CategoryName, &e.Title, &e.Description, &e.Venue,
		&e.Latitude, &e.Longitude, &e.StartsAt, &e.EndsAt, &e.TotalSeats, &e.BookedCount,
		&e.PriceCents, &e.ImagePath, &e.Status, &e.RejectionReason, &e.Cancelled,
		&e.Archived, &e.CreatedAt,
	}
}

func collectEvents(rows pgx.Rows, withDistance bool) ([]model.Event, error) {
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		dest := eventDest(&e)
		if withDistance {
			dest = append(dest, &e.DistanceKm)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create inserts a new event and fills in its generated ID and timestamps.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	if e.Status == "" {
		e.Status = model.StatusPending
	}
	err := conn(ctx, r.db).QueryRow(ctx, `
INSERT INTO events (owner_id, category_id, title, description, venue, latitude, longitude,
	starts_at, ends_at, total_seats, price_cents, image_path, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING id, booked_count, created_at`,
		e.OwnerID, e.CategoryID, e.Title, e.Description, e.Venue, e.Latitude, e.Longitude,
		e.StartsAt, e.EndsAt, e.TotalSeats, e.PriceCents, e.ImagePath, e.Status,
	).Scan(&e.ID, &e.BookedCount, &e.CreatedAt)
	if err != nil {
		if isFKViolation(err) {
			return ErrUnknownReference
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetByID returns a single event in any state, or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate is GetByID with a row lock held until the surrounding transaction ends.
func (r *EventRepository) GetForUpdate(ctx context.Context, id int64) (*model.Event, error) {
	return r.get(ctx, id, true)
}

func (r *EventRepository) get(ctx context.Context, id int64, lock bool) (*model.Event, error) {
	q := `SELECT ` + eventColumns + `
FROM events e JOIN categories c ON c.id = e.category_id
WHERE e.id = $1`
	if lock {
		q += ` FOR UPDATE OF e`
	}

	var e model.Event
	if err := conn(ctx, r.db).QueryRow(ctx, q, id).Scan(eventDest(&e)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}

// haversineKm is the great-circle distance between the event and ($lat, $lng).
// It evaluates to NULL for events without coordinates.
// The ASIN argument is clamped since rounding can push it past 1 near antipodes.
const haversineKm = `6371 * 2 * ASIN(LEAST(1, SQRT(
	POWER(SIN(RADIANS(e.latitude - %[1]s) / 2), 2) +
	COS(RADIANS(%[1]s)) * COS(RADIANS(e.latitude)) *
	POWER(SIN(RADIANS(e.longitude - %[2]s) / 2), 2))))`

// List returns the public listing: approved, live events that start at or after f.Now.
func (r *EventRepository) List(ctx context.Context, f model.ListFilter) ([]model.Event, error) {
	f = f.Normalize()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where = append(where,
		"e.status = 'approved'",
		"NOT e.is_cancelled",
		"NOT e.is_archived",
		"e.starts_at >= "+arg(f.Now),
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf("(e.title ILIKE %[1]s OR e.description ILIKE %[1]s OR e.venue ILIKE %[1]s)", p))
	}
	if f.CategoryID != 0 {
		where = append(where, "e.category_id = "+arg(f.CategoryID))
	}
	if f.From != nil {
		where = append(where, "e.starts_at >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "e.starts_at <= "+arg(*f.To))
	}
	switch f.Price {
	case model.PriceFree:
		where = append(where, "e.price_cents = 0")
	case model.PricePaid:
		where = append(where, "e.price_cents > 0")
	}

	var (
		selectExtra string
		join        string
		orderBy     string
	)
	switch f.Sort {
	case model.SortDistance:
		lat := arg(*f.Lat) + "::float8"
		lng := arg(*f.Lng) + "::float8"
		selectExtra = ", " + fmt.Sprintf(haversineKm, lat, lng) + " AS distance_km"
		orderBy = "distance_km ASC NULLS LAST, e.starts_at ASC, e.id ASC"
	case model.SortPreferences:
		join = " LEFT JOIN user_category_preferences p ON p.category_id = e.category_id AND p.user_id = " + arg(f.UserID)
		orderBy = "p.position ASC NULLS LAST, e.starts_at ASC, e.id ASC"
	default:
		orderBy = "e.starts_at ASC, e.id ASC"
	}

	q := `SELECT ` + eventColumns + selectExtra + `
FROM events e JOIN categories c ON c.id = e.category_id` + join + `
WHERE ` + strings.Join(where, " AND ") + `
ORDER BY ` + orderBy + `
LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := conn(ctx, r.db).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows, f.Sort == model.SortDistance)
}

// ListByOwner returns every event proposed by ownerID, newest first.
func (r *EventRepository) ListByOwner(ctx context.Context, ownerID int64) ([]model.Event, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+eventColumns+`
FROM events e JOIN categories c ON c.id = e.category_id
WHERE e.owner_id = $1
ORDER BY e.created_at DESC, e.id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner events: %w", err)
	}
	return collectEvents(rows, false)
}

// ListPending returns the moderation queue, oldest proposal first.
func (r *EventRepository) ListPending(ctx context.Context) ([]model.Event, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+eventColumns+`
FROM events e JOIN categories c ON c.id = e.category_id
WHERE e.status = 'pending'
ORDER BY e.created_at ASC, e.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	return collectEvents(rows, false)
}

// ListAll returns every event for the admin dashboard, latest start first.
func (r *EventRepository) ListAll(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 || limit > model.MaxPageSize {
		limit = model.MaxPageSize
	}
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+eventColumns+`
FROM events e JOIN categories c ON c.id = e.category_id
ORDER BY e.starts_at DESC, e.id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows, false)
}

// SetModeration writes the moderation status and reason.
func (r *EventRepository) SetModeration(ctx context.Context, id int64, status model.EventStatus, reason string) error {
	return r.execOne(ctx, "set moderation",
		`UPDATE events SET status = $2, rejection_reason = $3, updated_at = NOW() WHERE id = $1`,
		id, status, reason)
}

// SetCancelled flags the event as cancelled.
func (r *EventRepository) SetCancelled(ctx context.Context, id int64) error {
	return r.execOne(ctx, "cancel event",
		`UPDATE events SET is_cancelled = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

// SetArchived flags the event as archived.
func (r *EventRepository) SetArchived(ctx context.Context, id int64) error {
	return r.execOne(ctx, "archive event",
		`UPDATE events SET is_archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

// BookedSeats sums the quantities of every booking of the event.
func (r *EventRepository) BookedSeats(ctx context.Context, id int64) (int, error) {
	var sum int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM bookings WHERE event_id = $1`, id,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum booked seats: %w", err)
	}
	return sum, nil
}

// Update overwrites the editable fields of an event and its booked_count.
// Callers hold the row lock and pass a freshly summed count.
func (r *EventRepository) Update(ctx context.Context, e *model.Event) error {
	err := r.execOne(ctx, "update event", `
UPDATE events SET category_id = $2, title = $3, description = $4, venue = $5,
	latitude = $6, longitude = $7, starts_at = $8, ends_at = $9, total_seats = $10,
	price_cents = $11, image_path = $12, booked_count = $13, updated_at = NOW()
WHERE id = $1`,
		e.ID, e.CategoryID, e.Title, e.Description, e.Venue, e.Latitude, e.Longitude,
		e.StartsAt, e.EndsAt, e.TotalSeats, e.PriceCents, e.ImagePath, e.BookedCount)
	if isFKViolation(err) {
		return ErrUnknownReference
	}
	return err
}

func (r *EventRepository) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := conn(ctx, r.db).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
