package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles persistence for accounts, blocks and category preferences.
type UserRepository struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

// NewUserRepository constructs a UserRepository. clk decides when temporary blocks expire.
func NewUserRepository(db *pgxpool.Pool, clk clock.Clock) *UserRepository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &UserRepository{db: db, clock: clk}
}

const userColumns = `id, email, display_name, password_hash, role, blocked_permanent, blocked_until, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Role,
		&u.BlockedPermanent, &u.BlockedUntil, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user. A taken email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	err := conn(ctx, r.db).QueryRow(ctx, `
INSERT INTO users (email, display_name, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`,
		u.Email, u.DisplayName, u.PasswordHash, u.Role,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID returns a user or ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail looks a user up by normalised email, or returns ErrNotFound.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// List returns every user ordered by email.
func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetRole changes the user's role.
func (r *UserRepository) SetRole(ctx context.Context, userID int64, role model.Role) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, userID, role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsUserBlocked reports the user's block state as of now.
func (r *UserRepository) IsUserBlocked(ctx context.Context, userID int64) (model.BlockStatus, error) {
	var (
		permanent bool
		until     *time.Time
	)
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT blocked_permanent, blocked_until FROM users WHERE id = $1`, userID,
	).Scan(&permanent, &until)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BlockStatus{}, ErrNotFound
		}
		return model.BlockStatus{}, fmt.Errorf("read block state: %w", err)
	}
	u := model.User{BlockedPermanent: permanent, BlockedUntil: until}
	return u.BlockStatus(r.clock.Now()), nil
}

// SetBlock blocks the user permanently when until is nil, otherwise until that instant.
func (r *UserRepository) SetBlock(ctx context.Context, userID int64, until *time.Time) error {
	return r.updateBlock(ctx, userID, until == nil, until)
}

// ClearBlock lifts any block on the user.
func (r *UserRepository) ClearBlock(ctx context.Context, userID int64) error {
	return r.updateBlock(ctx, userID, false, nil)
}

func (r *UserRepository) updateBlock(ctx context.Context, userID int64, permanent bool, until *time.Time) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE users SET blocked_permanent = $2, blocked_until = $3 WHERE id = $1`,
		userID, permanent, until,
	)
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplacePreferences stores categoryIDs as the user's ordered preference list.
// Position follows slice order. Unknown categories yield ErrUnknownReference.
func (r *UserRepository) ReplacePreferences(ctx context.Context, userID int64, categoryIDs []int64) error {
	return withTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		if _, err := q.Exec(ctx, `DELETE FROM user_category_preferences WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear preferences: %w", err)
		}
		for pos, id := range categoryIDs {
			_, err := q.Exec(ctx,
				`INSERT INTO user_category_preferences (user_id, category_id, position) VALUES ($1, $2, $3)`,
				userID, id, pos,
			)
			if err != nil {
				if isFKViolation(err) {
					return ErrUnknownReference
				}
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("insert preference: %w", err)
			}
		}
		return nil
	})
}

// Preferences returns the user's preferred categories in rank order.
func (r *UserRepository) Preferences(ctx context.Context, userID int64) ([]model.Category, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
SELECT c.id, c.name
FROM user_category_preferences p
JOIN categories c ON c.id = p.category_id
WHERE p.user_id = $1
ORDER BY p.position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	return collectCategories(rows)
}
