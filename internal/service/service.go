// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
	"github.com/Shivanand-hulikatti/enjoycity/internal/validate"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("event is not awaiting moderation")
	ErrCapacityBelowBooked = errors.New("capacity is below the seats already booked")
	ErrUnknownCategory     = errors.New("unknown category")
	ErrCategoryInUse       = errors.New("category is still used by events")
	ErrDuplicateName       = errors.New("name already taken")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrEmailTaken          = errors.New("email already registered")
	ErrSelfBlock           = errors.New("admins cannot block themselves")
)

// EventStore is the event persistence used by the catalog and moderation.
type EventStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Event, error)
	List(ctx context.Context, f model.ListFilter) ([]model.Event, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Event, error)
	ListPending(ctx context.Context) ([]model.Event, error)
	ListAll(ctx context.Context, limit int) ([]model.Event, error)
	SetModeration(ctx context.Context, id int64, status model.EventStatus, reason string) error
	SetCancelled(ctx context.Context, id int64) error
	SetArchived(ctx context.Context, id int64) error
	Update(ctx context.Context, e *model.Event) error
	BookedSeats(ctx context.Context, id int64) (int, error)
}

// CategoryStore is the category persistence.
type CategoryStore interface {
	List(ctx context.Context) ([]model.Category, error)
	GetByID(ctx context.Context, id int64) (*model.Category, error)
	Create(ctx context.Context, name string) (*model.Category, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}

// ImageStore persists uploaded event images and returns their public path.
type ImageStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Remove(path string) error
}

// EventInput is the proposal/edit form of an event.
type EventInput struct {
	CategoryID  int64      `form:"category_id" validate:"gt=0"`
	Title       string     `form:"title" validate:"notblank,min=3,max=200"`
	Description string     `form:"description" validate:"max=5000"`
	Venue       string     `form:"venue" validate:"max=300"`
	Latitude    *float64   `form:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64   `form:"longitude" validate:"omitempty,gte=-180,lte=180"`
	StartsAt    time.Time  `form:"starts_at" validate:"future"`
	EndsAt      *time.Time `form:"ends_at"`
	TotalSeats  *int       `form:"total_seats" validate:"omitempty,gte=0,lte=100000"`
	PriceCents  int64      `form:"price" validate:"gte=0"`
}

func (in *EventInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Venue = strings.TrimSpace(in.Venue)
}

func (in *EventInput) check(ctx context.Context, v *validate.Validator) error {
	in.normalize()
	if err := v.Struct(ctx, in); err != nil {
		return err
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return &validate.Error{Field: "longitude", Message: "must be given together with latitude"}
	}
	if in.EndsAt != nil && !in.EndsAt.After(in.StartsAt) {
		return &validate.Error{Field: "ends_at", Message: "must be after starts_at"}
	}
	return nil
}

func (in *EventInput) apply(e *model.Event) {
	e.CategoryID = in.CategoryID
	e.Title = in.Title
	e.Description = in.Description
	e.Venue = in.Venue
	e.Latitude = in.Latitude
	e.Longitude = in.Longitude
	e.StartsAt = in.StartsAt.UTC()
	e.EndsAt = in.EndsAt
	e.TotalSeats = in.TotalSeats
	e.PriceCents = in.PriceCents
}

// EventService orchestrates the public catalog and event proposals.
type EventService struct {
	events     EventStore
	categories CategoryStore
	images     ImageStore
	identity   Identity
	blocks     BlockChecker
	validator  *validate.Validator
	clock      clock.Clock
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(
	events EventStore,
	categories CategoryStore,
	images ImageStore,
	identity Identity,
	blocks BlockChecker,
	v *validate.Validator,
	clk clock.Clock,
) *EventService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if v == nil {
		v = validate.New(clk)
	}
	return &EventService{
		events:     events,
		categories: categories,
		images:     images,
		identity:   identity,
		blocks:     blocks,
		validator:  v,
		clock:      clk,
	}
}

// ListEvents returns the public listing for f. Preference sorting uses the
// current user when f.UserID is unset.
func (s *EventService) ListEvents(ctx context.Context, f model.ListFilter) ([]model.Event, error) {
	f.Now = s.clock.Now()
	if f.UserID == 0 {
		if id, ok := s.identity.CurrentUserID(ctx); ok {
			f.UserID = id
		}
	}
	events, err := s.events.List(ctx, f.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns an event. Unapproved events are only shown to their owner and admins.
func (s *EventService) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event.Status == model.StatusApproved || s.identity.IsAdmin(ctx) {
		return event, nil
	}
	if uid, ok := s.identity.CurrentUserID(ctx); ok && uid == event.OwnerID {
		return event, nil
	}
	return nil, ErrNotFound
}

// ProposeEvent validates in and stores a pending event owned by the caller.
// image may be nil.
func (s *EventService) ProposeEvent(ctx context.Context, in EventInput, image io.Reader) (*model.Event, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	block, err := s.blocks.IsUserBlocked(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("check block: %w", err)
	}
	if block.Blocked {
		return nil, &BookingError{Kind: KindUserBlocked, Until: block.Until}
	}

	if err := in.check(ctx, s.validator); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	event := &model.Event{OwnerID: userID, Status: model.StatusPending}
	in.apply(event)

	if image != nil && s.images != nil {
		path, err := s.images.Save(ctx, image)
		if err != nil {
			return nil, err
		}
		event.ImagePath = path
	}

	if err := s.events.Create(ctx, event); err != nil {
		if event.ImagePath != "" {
			_ = s.images.Remove(event.ImagePath)
		}
		if errors.Is(err, repository.ErrUnknownReference) {
			return nil, ErrUnknownCategory
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// ListByOwner returns the caller's proposals with their moderation state.
func (s *EventService) ListByOwner(ctx context.Context) ([]model.Event, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.events.ListByOwner(ctx, userID)
}

// Categories returns all categories.
func (s *EventService) Categories(ctx context.Context) ([]model.Category, error) {
	return s.categories.List(ctx)
}

func (s *EventService) requireCategory(ctx context.Context, id int64) error {
	if _, err := s.categories.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownCategory
		}
		return fmt.Errorf("get category: %w", err)
	}
	return nil
}
