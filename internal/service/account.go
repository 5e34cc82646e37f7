package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/repository"
	"github.com/Shivanand-hulikatti/enjoycity/internal/validate"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the account persistence.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetRole(ctx context.Context, id int64, role model.Role) error
	SetBlock(ctx context.Context, userID int64, until *time.Time) error
	ClearBlock(ctx context.Context, userID int64) error
	ReplacePreferences(ctx context.Context, userID int64, categoryIDs []int64) error
	Preferences(ctx context.Context, userID int64) ([]model.Category, error)
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email       string `form:"email" validate:"required,email,max=254"`
	DisplayName string `form:"display_name" validate:"notblank,max=100"`
	Password    string `form:"password" validate:"min=8,maxbytes=72"`
}

// AccountService handles sign-up, login and category preferences.
type AccountService struct {
	users      UserStore
	identity   Identity
	validator  *validate.Validator
	bcryptCost int
}

// AccountServiceOption customises an AccountService.
type AccountServiceOption func(*AccountService)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) AccountServiceOption {
	return func(s *AccountService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// NewAccountService constructs an AccountService.
func NewAccountService(users UserStore, identity Identity, v *validate.Validator, opts ...AccountServiceOption) *AccountService {
	if v == nil {
		v = validate.New(clock.NewSystem())
	}
	s := &AccountService{users: users, identity: identity, validator: v, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a regular user account.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := s.validator.Struct(ctx, in); err != nil {
		return nil, err
	}
	return s.create(ctx, in, model.RoleUser)
}

func (s *AccountService) create(ctx context.Context, in RegisterInput, role model.Role) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login checks credentials. Unknown emails and wrong passwords fail alike.
// Blocked users may still sign in to browse.
func (s *AccountService) Login(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the bootstrap admin account, or promotes it when the
// email already belongs to a regular user.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) (*model.User, error) {
	in := RegisterInput{Email: normalizeEmail(email), DisplayName: "Administrator", Password: password}
	if err := s.validator.Struct(ctx, in); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return s.create(ctx, in, model.RoleAdmin)
	case err != nil:
		return nil, fmt.Errorf("get user: %w", err)
	case u.IsAdmin():
		return u, nil
	}
	if err := s.users.SetRole(ctx, u.ID, model.RoleAdmin); err != nil {
		return nil, fmt.Errorf("promote user: %w", err)
	}
	u.Role = model.RoleAdmin
	return u, nil
}

// CurrentUser loads the caller's account.
func (s *AccountService) CurrentUser(ctx context.Context) (*model.User, error) {
	id, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	return u, err
}

// SetPreferences replaces the caller's ordered category preferences.
// Repeated ids keep their first position.
func (s *AccountService) SetPreferences(ctx context.Context, categoryIDs []int64) error {
	id, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	seen := make(map[int64]bool, len(categoryIDs))
	ordered := make([]int64, 0, len(categoryIDs))
	for _, c := range categoryIDs {
		if c <= 0 {
			return ErrUnknownCategory
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		ordered = append(ordered, c)
	}
	err := s.users.ReplacePreferences(ctx, id, ordered)
	if errors.Is(err, repository.ErrUnknownReference) {
		return ErrUnknownCategory
	}
	return err
}

// Preferences returns the caller's categories in preference order.
func (s *AccountService) Preferences(ctx context.Context) ([]model.Category, error) {
	id, ok := s.identity.CurrentUserID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.users.Preferences(ctx, id)
}
