package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/notify"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
	"github.com/google/uuid"
)

// BookingErrorKind enumerates why a booking operation was refused.
type BookingErrorKind int

const (
	KindUnauthenticated BookingErrorKind = iota + 1
	KindUserBlocked
	KindInvalidQuantity
	KindEventUnavailable
	KindNotBookable
	KindAlreadyBooked
	KindInsufficientCapacity
	KindBookingNotFound
	KindPersistence
)

func (k BookingErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUserBlocked:
		return "user blocked"
	case KindInvalidQuantity:
		return "invalid quantity"
	case KindEventUnavailable:
		return "event unavailable"
	case KindNotBookable:
		return "event not bookable"
	case KindAlreadyBooked:
		return "already booked"
	case KindInsufficientCapacity:
		return "insufficient capacity"
	case KindBookingNotFound:
		return "booking not found"
	case KindPersistence:
		return "persistence failure"
	default:
		return "booking error"
	}
}

// BookingError is returned by every booking operation failure.
// Until is set for temporary blocks; Available for capacity shortfalls.
type BookingError struct {
	Kind      BookingErrorKind
	Until     *time.Time
	Available int
	Err       error
}

func (e *BookingError) Error() string {
	msg := e.Kind.String()
	switch e.Kind {
	case KindUserBlocked:
		if e.Until != nil {
			msg += " until " + e.Until.UTC().Format(time.RFC3339)
		} else {
			msg += " permanently"
		}
	case KindInsufficientCapacity:
		msg += fmt.Sprintf(": %d seats available", e.Available)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BookingError) Unwrap() error { return e.Err }

// Is matches any *BookingError of the same kind, so errors.Is works against
// the exported sentinels regardless of payload.
func (e *BookingError) Is(target error) bool {
	t, ok := target.(*BookingError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is. Use errors.As to read Until or Available.
var (
	ErrUnauthenticated      = &BookingError{Kind: KindUnauthenticated}
	ErrUserBlocked          = &BookingError{Kind: KindUserBlocked}
	ErrInvalidQuantity      = &BookingError{Kind: KindInvalidQuantity}
	ErrEventUnavailable     = &BookingError{Kind: KindEventUnavailable}
	ErrNotBookable          = &BookingError{Kind: KindNotBookable}
	ErrAlreadyBooked        = &BookingError{Kind: KindAlreadyBooked}
	ErrInsufficientCapacity = &BookingError{Kind: KindInsufficientCapacity}
	ErrBookingNotFound      = &BookingError{Kind: KindBookingNotFound}
	ErrPersistence          = &BookingError{Kind: KindPersistence}
)

func bookingErr(kind BookingErrorKind) error {
	return &BookingError{Kind: kind}
}

func persistence(op string, err error) error {
	return &BookingError{Kind: KindPersistence, Err: fmt.Errorf("%s: %w", op, err)}
}

// Identity resolves the caller of a request.
type Identity interface {
	CurrentUserID(ctx context.Context) (int64, bool)
	IsAdmin(ctx context.Context) bool
}

// BlockChecker reports whether a user may currently book.
type BlockChecker interface {
	IsUserBlocked(ctx context.Context, userID int64) (model.BlockStatus, error)
}

// BookingStore is the persistence the booking transaction runs against.
// LockEvent must hold an exclusive lock on the event row until the
// surrounding WithTx returns.
type BookingStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockEvent(ctx context.Context, eventID int64) (*model.EventSnapshot, error)
	FindBooking(ctx context.Context, userID, eventID int64) (*model.Booking, error)
	SumQuantities(ctx context.Context, eventID int64) (int, error)
	Insert(ctx context.Context, b *model.Booking) error
	SetBookedCount(ctx context.Context, eventID int64, count int) error
	GetByID(ctx context.Context, id int64) (*model.Booking, error)
	Delete(ctx context.Context, id int64) error
	GetDetail(ctx context.Context, id int64) (*model.BookingDetail, error)
	ListByUser(ctx context.Context, userID int64) ([]model.BookingDetail, error)
}

// Notifier receives committed booking changes. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, m notify.BookingMessage)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.BookingMessage) {}

// BookingService runs the booking and cancellation transactions.
type BookingService struct {
	store    BookingStore
	identity Identity
	blocks   BlockChecker
	notifier Notifier
	clock    clock.Clock
}

// NewBookingService wires a BookingService. A nil notifier disables messages.
func NewBookingService(store BookingStore, identity Identity, blocks BlockChecker, notifier Notifier, clk clock.Clock) *BookingService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &BookingService{store: store, identity: identity, blocks: blocks, notifier: notifier, clock: clk}
}

// ParseQuantity accepts a decimal integer between MinQuantity and MaxQuantity.
func ParseQuantity(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < model.MinQuantity || n > model.MaxQuantity {
		return 0, bookingErr(KindInvalidQuantity)
	}
	return n, nil
}

// AttemptBooking books quantity seats on the event for the current user and
// returns the new booking id.
//
// Checks run in a fixed order: identity, block state, quantity, then, under
// the event row lock, event state, bookability, duplicates and capacity.
// booked_count is rewritten from SUM(quantity) before commit. Any failure
// rolls the whole transaction back.
func (s *BookingService) AttemptBooking(ctx context.Context, eventID int64, quantity string) (int64, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return 0, bookingErr(KindUnauthenticated)
	}

	block, err := s.blocks.IsUserBlocked(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, bookingErr(KindUnauthenticated)
	}
	if err != nil {
		return 0, persistence("check block", err)
	}
	if block.Blocked {
		return 0, &BookingError{Kind: KindUserBlocked, Until: block.Until}
	}

	qty, err := ParseQuantity(quantity)
	if err != nil {
		return 0, err
	}

	var booking model.Booking
	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		ev, err := s.store.LockEvent(txCtx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return bookingErr(KindEventUnavailable)
			}
			return persistence("lock event", err)
		}

		if ev.Status != model.StatusApproved || ev.Archived || ev.Cancelled || ev.StartsAt.Before(s.clock.Now()) {
			return bookingErr(KindEventUnavailable)
		}
		if ev.TotalSeats == nil || *ev.TotalSeats <= 0 {
			return bookingErr(KindNotBookable)
		}
		if ev.PriceCents <= 0 {
			return bookingErr(KindNotBookable)
		}

		existing, err := s.store.FindBooking(txCtx, userID, eventID)
		if err != nil {
			return persistence("find booking", err)
		}
		if existing != nil {
			return bookingErr(KindAlreadyBooked)
		}

		booked, err := s.store.SumQuantities(txCtx, eventID)
		if err != nil {
			return persistence("sum quantities", err)
		}
		available := *ev.TotalSeats - booked
		if available < qty {
			return &BookingError{Kind: KindInsufficientCapacity, Available: max(available, 0)}
		}

		booking = model.Booking{
			UserID:    userID,
			EventID:   eventID,
			Quantity:  qty,
			Reference: uuid.NewString(),
		}
		if err := s.store.Insert(txCtx, &booking); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return bookingErr(KindAlreadyBooked)
			}
			return persistence("insert booking", err)
		}

		return s.recount(txCtx, eventID)
	})
	if err != nil {
		return 0, asBookingError(err)
	}

	s.notifier.Notify(ctx, message(notify.KeyBookingCreated, booking, s.clock.Now()))
	return booking.ID, nil
}

// CancelBooking deletes one of the caller's bookings and recomputes the event
// counter. Admins may cancel any booking, including on past events.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64) error {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return bookingErr(KindUnauthenticated)
	}
	admin := s.identity.IsAdmin(ctx)

	var booking model.Booking
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		b, err := s.store.GetByID(txCtx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return bookingErr(KindBookingNotFound)
			}
			return persistence("get booking", err)
		}
		if b.UserID != userID && !admin {
			return bookingErr(KindBookingNotFound)
		}

		ev, err := s.store.LockEvent(txCtx, b.EventID)
		if err != nil {
			return persistence("lock event", err)
		}
		if !admin && ev.StartsAt.Before(s.clock.Now()) {
			return bookingErr(KindEventUnavailable)
		}

		if err := s.store.Delete(txCtx, b.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return bookingErr(KindBookingNotFound)
			}
			return persistence("delete booking", err)
		}
		booking = *b
		return s.recount(txCtx, b.EventID)
	})
	if err != nil {
		return asBookingError(err)
	}

	s.notifier.Notify(ctx, message(notify.KeyBookingCancelled, booking, s.clock.Now()))
	return nil
}

// MyBookings lists the current user's bookings.
func (s *BookingService) MyBookings(ctx context.Context) ([]model.BookingDetail, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, bookingErr(KindUnauthenticated)
	}
	out, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistence("list bookings", err)
	}
	return out, nil
}

// Ticket returns the booking details for its owner's ticket.
func (s *BookingService) Ticket(ctx context.Context, bookingID int64) (*model.BookingDetail, error) {
	userID, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, bookingErr(KindUnauthenticated)
	}
	d, err := s.store.GetDetail(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, bookingErr(KindBookingNotFound)
		}
		return nil, persistence("get booking", err)
	}
	if d.UserID != userID {
		return nil, bookingErr(KindBookingNotFound)
	}
	return d, nil
}

func (s *BookingService) recount(ctx context.Context, eventID int64) error {
	total, err := s.store.SumQuantities(ctx, eventID)
	if err != nil {
		return persistence("recount bookings", err)
	}
	if err := s.store.SetBookedCount(ctx, eventID, total); err != nil {
		return persistence("update booked count", err)
	}
	return nil
}

// asBookingError keeps classified failures and files everything else
// (begin, commit, cancelled context) under persistence.
func asBookingError(err error) error {
	var be *BookingError
	if errors.As(err, &be) {
		return be
	}
	return persistence("booking transaction", err)
}

func message(kind string, b model.Booking, now time.Time) notify.BookingMessage {
	return notify.BookingMessage{
		Kind:       kind,
		BookingID:  b.ID,
		EventID:    b.EventID,
		UserID:     b.UserID,
		Quantity:   b.Quantity,
		Reference:  b.Reference,
		OccurredAt: now,
	}
}
