package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
)

type fakeEventStore struct {
	mu      sync.Mutex
	events  map[int64]*model.Event
	booked  map[int64]int
	nextID  int64
	lastQry model.ListFilter
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: map[int64]*model.Event{}, booked: map[int64]int{}}
}

func (f *fakeEventStore) put(e model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == 0 {
		f.nextID++
		e.ID = f.nextID
	}
	cp := e
	f.events[e.ID] = &cp
}

func (f *fakeEventStore) get(id int64) model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.events[id]
}

func (f *fakeEventStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeEventStore) Create(_ context.Context, e *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f *fakeEventStore) GetByID(_ context.Context, id int64) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEventStore) GetForUpdate(ctx context.Context, id int64) (*model.Event, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeEventStore) List(_ context.Context, q model.ListFilter) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQry = q
	var out []model.Event
	for _, e := range f.events {
		if e.Visible(q.Now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (f *fakeEventStore) filter(keep func(*model.Event) bool) []model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, e := range f.events {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeEventStore) ListByOwner(_ context.Context, ownerID int64) ([]model.Event, error) {
	return f.filter(func(e *model.Event) bool { return e.OwnerID == ownerID }), nil
}

func (f *fakeEventStore) ListPending(context.Context) ([]model.Event, error) {
	return f.filter(func(e *model.Event) bool { return e.Status == model.StatusPending }), nil
}

func (f *fakeEventStore) ListAll(context.Context, int) ([]model.Event, error) {
	return f.filter(func(*model.Event) bool { return true }), nil
}

func (f *fakeEventStore) mutate(id int64, fn func(*model.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(e)
	return nil
}

func (f *fakeEventStore) SetModeration(_ context.Context, id int64, status model.EventStatus, reason string) error {
	return f.mutate(id, func(e *model.Event) { e.Status, e.RejectionReason = status, reason })
}

func (f *fakeEventStore) SetCancelled(_ context.Context, id int64) error {
	return f.mutate(id, func(e *model.Event) { e.Cancelled = true })
}

func (f *fakeEventStore) SetArchived(_ context.Context, id int64) error {
	return f.mutate(id, func(e *model.Event) { e.Archived = true })
}

func (f *fakeEventStore) Update(_ context.Context, upd *model.Event) error {
	return f.mutate(upd.ID, func(e *model.Event) { *e = *upd })
}

func (f *fakeEventStore) BookedSeats(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.booked[id], nil
}

type fakeCategoryStore struct {
	mu     sync.Mutex
	cats   map[int64]string
	inUse  map[int64]bool
	nextID int64
}

func newFakeCategoryStore(names ...string) *fakeCategoryStore {
	f := &fakeCategoryStore{cats: map[int64]string{}, inUse: map[int64]bool{}}
	for _, n := range names {
		f.nextID++
		f.cats[f.nextID] = n
	}
	return f
}

func (f *fakeCategoryStore) List(context.Context) ([]model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Category
	for id, n := range f.cats {
		out = append(out, model.Category{ID: id, Name: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeCategoryStore) GetByID(_ context.Context, id int64) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.cats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.Category{ID: id, Name: n}, nil
}

func (f *fakeCategoryStore) taken(name string, except int64) bool {
	for id, n := range f.cats {
		if n == name && id != except {
			return true
		}
	}
	return false
}

func (f *fakeCategoryStore) Create(_ context.Context, name string) (*model.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taken(name, 0) {
		return nil, repository.ErrDuplicate
	}
	f.nextID++
	f.cats[f.nextID] = name
	return &model.Category{ID: f.nextID, Name: name}, nil
}

func (f *fakeCategoryStore) Rename(_ context.Context, id int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cats[id]; !ok {
		return repository.ErrNotFound
	}
	if f.taken(name, id) {
		return repository.ErrDuplicate
	}
	f.cats[id] = name
	return nil
}

func (f *fakeCategoryStore) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cats[id]; !ok {
		return repository.ErrNotFound
	}
	if f.inUse[id] {
		return repository.ErrInUse
	}
	delete(f.cats, id)
	return nil
}

type fakeUserStore struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	prefs  map[int64][]int64
	cats   *fakeCategoryStore
	nextID int64
}

func newFakeUserStore(cats *fakeCategoryStore) *fakeUserStore {
	return &fakeUserStore{users: map[int64]*model.User{}, prefs: map[int64][]int64{}, cats: cats}
}

func (f *fakeUserStore) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserStore) List(context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (f *fakeUserStore) update(id int64, fn func(*model.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUserStore) SetRole(_ context.Context, id int64, role model.Role) error {
	return f.update(id, func(u *model.User) { u.Role = role })
}

func (f *fakeUserStore) SetBlock(_ context.Context, id int64, until *time.Time) error {
	return f.update(id, func(u *model.User) { u.BlockedPermanent, u.BlockedUntil = until == nil, until })
}

func (f *fakeUserStore) ClearBlock(_ context.Context, id int64) error {
	return f.update(id, func(u *model.User) { u.BlockedPermanent, u.BlockedUntil = false, nil })
}

func (f *fakeUserStore) ReplacePreferences(ctx context.Context, userID int64, ids []int64) error {
	for _, id := range ids {
		if _, err := f.cats.GetByID(ctx, id); err != nil {
			return repository.ErrUnknownReference
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs[userID] = append([]int64(nil), ids...)
	return nil
}

func (f *fakeUserStore) Preferences(ctx context.Context, userID int64) ([]model.Category, error) {
	f.mu.Lock()
	ids := append([]int64(nil), f.prefs[userID]...)
	f.mu.Unlock()
	var out []model.Category
	for _, id := range ids {
		c, err := f.cats.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

type fakeImages struct {
	saved   [][]byte
	removed []string
	err     error
}

func (f *fakeImages) Save(_ context.Context, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	f.saved = append(f.saved, buf.Bytes())
	return "/uploads/events/fake.jpg", nil
}

func (f *fakeImages) Remove(path string) error {
	f.removed = append(f.removed, path)
	return nil
}
