package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
	"github.com/Shivanand-hulikatti/enjoycity/internal/validate"
)

// AdminService implements moderation, user blocks and category management.
// Every method requires an admin caller.
type AdminService struct {
	events     EventStore
	categories CategoryStore
	users      UserStore
	identity   Identity
	validator  *validate.Validator
	clock      clock.Clock
}

// NewAdminService constructs an AdminService.
func NewAdminService(events EventStore, categories CategoryStore, users UserStore, identity Identity, v *validate.Validator, clk clock.Clock) *AdminService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if v == nil {
		v = validate.New(clk)
	}
	return &AdminService{events: events, categories: categories, users: users, identity: identity, validator: v, clock: clk}
}

func (s *AdminService) requireAdmin(ctx context.Context) (int64, error) {
	id, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return 0, ErrUnauthenticated
	}
	if !s.identity.IsAdmin(ctx) {
		return 0, ErrForbidden
	}
	return id, nil
}

// Dashboard is everything the admin page shows.
type Dashboard struct {
	Pending    []model.Event
	Events     []model.Event
	Users      []model.User
	Categories []model.Category
}

// Dashboard loads the moderation queue, recent events, users and categories.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d   Dashboard
		err error
	)
	if d.Pending, err = s.ListPending(ctx); err != nil {
		return nil, err
	}
	if d.Events, err = s.events.ListAll(ctx, model.MaxPageSize); err != nil {
		return nil, err
	}
	if d.Users, err = s.ListUsers(ctx); err != nil {
		return nil, err
	}
	if d.Categories, err = s.categories.List(ctx); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListPending returns the moderation queue, oldest first.
func (s *AdminService) ListPending(ctx context.Context) ([]model.Event, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.events.ListPending(ctx)
}

// Approve publishes a pending event.
func (s *AdminService) Approve(ctx context.Context, id int64) error {
	return s.moderate(ctx, id, model.StatusApproved, "")
}

// Reject turns a pending event down with a reason shown to its owner.
func (s *AdminService) Reject(ctx context.Context, id int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) > 1000 {
		return &validate.Error{Field: "reason", Message: "must be at most 1000 characters"}
	}
	return s.moderate(ctx, id, model.StatusRejected, reason)
}

func (s *AdminService) moderate(ctx context.Context, id int64, to model.EventStatus, reason string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return s.events.WithTx(ctx, func(txCtx context.Context) error {
		ev, err := s.events.GetForUpdate(txCtx, id)
		if err != nil {
			return mapNotFound(err)
		}
		if ev.Status != model.StatusPending {
			return ErrInvalidTransition
		}
		return s.events.SetModeration(txCtx, id, to, reason)
	})
}

// CancelEvent marks the event cancelled. Existing bookings stay on record.
func (s *AdminService) CancelEvent(ctx context.Context, id int64) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return mapNotFound(s.events.SetCancelled(ctx, id))
}

// ArchiveEvent hides the event from every listing.
func (s *AdminService) ArchiveEvent(ctx context.Context, id int64) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return mapNotFound(s.events.SetArchived(ctx, id))
}

// UpdateEvent edits an event under its row lock. Capacity may not drop
// below the seats already booked, summed afresh from the bookings.
func (s *AdminService) UpdateEvent(ctx context.Context, id int64, in EventInput) (*model.Event, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := in.check(ctx, s.validator); err != nil {
		return nil, err
	}

	var updated *model.Event
	err := s.events.WithTx(ctx, func(txCtx context.Context) error {
		ev, err := s.events.GetForUpdate(txCtx, id)
		if err != nil {
			return mapNotFound(err)
		}
		booked, err := s.events.BookedSeats(txCtx, id)
		if err != nil {
			return err
		}
		if booked > 0 && (in.TotalSeats == nil || *in.TotalSeats < booked) {
			return ErrCapacityBelowBooked
		}
		in.apply(ev)
		ev.BookedCount = booked
		if err := s.events.Update(txCtx, ev); err != nil {
			if errors.Is(err, repository.ErrUnknownReference) {
				return ErrUnknownCategory
			}
			return mapNotFound(err)
		}
		updated = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListUsers returns every account.
func (s *AdminService) ListUsers(ctx context.Context) ([]model.User, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// BlockUser blocks userID until the given instant, or permanently when until is nil.
func (s *AdminService) BlockUser(ctx context.Context, userID int64, until *time.Time) error {
	adminID, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}
	if userID == adminID {
		return ErrSelfBlock
	}
	if until != nil && !until.After(s.clock.Now()) {
		return &validate.Error{Field: "until", Message: "must be in the future"}
	}
	return mapNotFound(s.users.SetBlock(ctx, userID, until))
}

// UnblockUser lifts any block.
func (s *AdminService) UnblockUser(ctx context.Context, userID int64) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	return mapNotFound(s.users.ClearBlock(ctx, userID))
}

// CreateCategory adds a category.
func (s *AdminService) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	name, err := categoryName(name)
	if err != nil {
		return nil, err
	}
	c, err := s.categories.Create(ctx, name)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrDuplicateName
	}
	return c, err
}

// RenameCategory renames a category.
func (s *AdminService) RenameCategory(ctx context.Context, id int64, name string) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	name, err := categoryName(name)
	if err != nil {
		return err
	}
	err = s.categories.Rename(ctx, id, name)
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrDuplicateName
	}
	return mapNotFound(err)
}

// DeleteCategory removes a category no event uses.
func (s *AdminService) DeleteCategory(ctx context.Context, id int64) error {
	if _, err := s.requireAdmin(ctx); err != nil {
		return err
	}
	err := s.categories.Delete(ctx, id)
	if errors.Is(err, repository.ErrInUse) {
		return ErrCategoryInUse
	}
	return mapNotFound(err)
}

func categoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &validate.Error{Field: "name", Message: "is required"}
	}
	if len([]rune(name)) > 80 {
		return "", &validate.Error{Field: "name", Message: "must be at most 80 characters"}
	}
	return name, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
