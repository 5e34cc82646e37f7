package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/notify"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
)

type principalKey struct{}

type principal struct {
	id    int64
	admin bool
}

func asUser(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{id: id})
}

func asAdmin(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, principalKey{}, principal{id: id, admin: true})
}

type ctxIdentity struct{}

func (ctxIdentity) CurrentUserID(ctx context.Context) (int64, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p.id, ok
}

func (ctxIdentity) IsAdmin(ctx context.Context) bool {
	p, _ := ctx.Value(principalKey{}).(principal)
	return p.admin
}

type fakeBlocks struct {
	status map[int64]model.BlockStatus
	err    error
	calls  int
}

func (f *fakeBlocks) IsUserBlocked(_ context.Context, userID int64) (model.BlockStatus, error) {
	f.calls++
	if f.err != nil {
		return model.BlockStatus{}, f.err
	}
	return f.status[userID], nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.BookingMessage
}

func (f *fakeNotifier) Notify(_ context.Context, m notify.BookingMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
}

func (f *fakeNotifier) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type fakeTxKey struct{}

// fakeTx buffers writes until commit and holds event row locks until it ends.
type fakeTx struct {
	inserts []model.Booking
	deletes map[int64]bool
	counts  map[int64]int
	locked  []*sync.Mutex
}

// fakeBookingStore emulates the row lock and rollback behaviour of
// repository.BookingRepository in memory.
type fakeBookingStore struct {
	mu       sync.Mutex
	events   map[int64]*model.Event
	bookings map[int64]model.Booking
	rowLocks map[int64]*sync.Mutex
	nextID   int64

	// failOn makes the named operation return an error.
	failOn string
	// afterLock runs while the event lock is held.
	afterLock func()
	lockCalls int
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		events:   map[int64]*model.Event{},
		bookings: map[int64]model.Booking{},
		rowLocks: map[int64]*sync.Mutex{},
	}
}

func (f *fakeBookingStore) addEvent(e model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := e
	f.events[e.ID] = &cp
	f.rowLocks[e.ID] = &sync.Mutex{}
}

func (f *fakeBookingStore) addBooking(b model.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b.ID = f.nextID
	f.bookings[b.ID] = b
	f.events[b.EventID].BookedCount += b.Quantity
}

func (f *fakeBookingStore) bookedCount(eventID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[eventID].BookedCount
}

func (f *fakeBookingStore) sumCommitted(eventID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := 0
	for _, b := range f.bookings {
		if b.EventID == eventID {
			sum += b.Quantity
		}
	}
	return sum
}

func (f *fakeBookingStore) bookingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

func (f *fakeBookingStore) fail(op string) error {
	if f.failOn == op {
		return errors.New(op + " failed")
	}
	return nil
}

func (f *fakeBookingStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := f.fail("begin"); err != nil {
		return err
	}
	tx := &fakeTx{deletes: map[int64]bool{}, counts: map[int64]int{}}
	defer func() {
		for i := len(tx.locked) - 1; i >= 0; i-- {
			tx.locked[i].Unlock()
		}
	}()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, tx)); err != nil {
		return err
	}
	if err := f.fail("commit"); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range tx.deletes {
		delete(f.bookings, id)
	}
	for _, b := range tx.inserts {
		f.bookings[b.ID] = b
	}
	for id, n := range tx.counts {
		f.events[id].BookedCount = n
	}
	return nil
}

func txOf(ctx context.Context) *fakeTx {
	tx, _ := ctx.Value(fakeTxKey{}).(*fakeTx)
	return tx
}

func (f *fakeBookingStore) LockEvent(ctx context.Context, eventID int64) (*model.EventSnapshot, error) {
	if err := f.fail("lock"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.lockCalls++
	row, ok := f.rowLocks[eventID]
	f.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}

	row.Lock()
	if tx := txOf(ctx); tx != nil {
		tx.locked = append(tx.locked, row)
	} else {
		row.Unlock()
	}
	if f.afterLock != nil {
		f.afterLock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.events[eventID]
	return &model.EventSnapshot{
		ID:         e.ID,
		Status:     e.Status,
		Cancelled:  e.Cancelled,
		Archived:   e.Archived,
		StartsAt:   e.StartsAt,
		TotalSeats: e.TotalSeats,
		PriceCents: e.PriceCents,
	}, nil
}

// visible returns committed bookings merged with the transaction's pending writes.
func (f *fakeBookingStore) visible(ctx context.Context) []model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := txOf(ctx)
	var out []model.Booking
	for _, b := range f.bookings {
		if tx != nil && tx.deletes[b.ID] {
			continue
		}
		out = append(out, b)
	}
	if tx != nil {
		out = append(out, tx.inserts...)
	}
	return out
}

func (f *fakeBookingStore) FindBooking(ctx context.Context, userID, eventID int64) (*model.Booking, error) {
	if err := f.fail("find"); err != nil {
		return nil, err
	}
	for _, b := range f.visible(ctx) {
		if b.UserID == userID && b.EventID == eventID {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

func (f *fakeBookingStore) SumQuantities(ctx context.Context, eventID int64) (int, error) {
	if err := f.fail("sum"); err != nil {
		return 0, err
	}
	sum := 0
	for _, b := range f.visible(ctx) {
		if b.EventID == eventID {
			sum += b.Quantity
		}
	}
	return sum, nil
}

func (f *fakeBookingStore) Insert(ctx context.Context, b *model.Booking) error {
	if err := f.fail("insert"); err != nil {
		return err
	}
	for _, existing := range f.visible(ctx) {
		if existing.UserID == b.UserID && existing.EventID == b.EventID {
			return repository.ErrDuplicate
		}
	}
	f.mu.Lock()
	f.nextID++
	b.ID = f.nextID
	f.mu.Unlock()
	b.CreatedAt = time.Now()

	tx := txOf(ctx)
	tx.inserts = append(tx.inserts, *b)
	return nil
}

func (f *fakeBookingStore) SetBookedCount(ctx context.Context, eventID int64, count int) error {
	if err := f.fail("setcount"); err != nil {
		return err
	}
	txOf(ctx).counts[eventID] = count
	return nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id int64) (*model.Booking, error) {
	for _, b := range f.visible(ctx) {
		if b.ID == id {
			b := b
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeBookingStore) Delete(ctx context.Context, id int64) error {
	if err := f.fail("delete"); err != nil {
		return err
	}
	txOf(ctx).deletes[id] = true
	return nil
}

func (f *fakeBookingStore) GetDetail(ctx context.Context, id int64) (*model.BookingDetail, error) {
	b, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.events[b.EventID]
	return &model.BookingDetail{Booking: *b, EventTitle: e.Title, EventStartsAt: e.StartsAt, PriceCents: e.PriceCents}, nil
}

func (f *fakeBookingStore) ListByUser(ctx context.Context, userID int64) ([]model.BookingDetail, error) {
	var out []model.BookingDetail
	for _, b := range f.visible(ctx) {
		if b.UserID == userID {
			out = append(out, model.BookingDetail{Booking: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
