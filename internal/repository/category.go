package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CategoryRepository handles persistence for event categories.
type CategoryRepository struct {
	db *pgxpool.Pool
}

// NewCategoryRepository constructs a CategoryRepository.
func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func collectCategories(rows pgx.Rows) ([]model.Category, error) {
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// List returns all categories by name.
func (r *CategoryRepository) List(ctx context.Context) ([]model.Category, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return collectCategories(rows)
}

// GetByID returns a category or ErrNotFound.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	var c model.Category
	err := conn(ctx, r.db).QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// Create inserts a category. A taken name yields ErrDuplicate.
func (r *CategoryRepository) Create(ctx context.Context, name string) (*model.Category, error) {
	c := model.Category{Name: name}
	err := conn(ctx, r.db).QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return &c, nil
}

// Rename changes a category's name.
func (r *CategoryRepository) Rename(ctx context.Context, id int64, name string) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `UPDATE categories SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("rename category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a category. Categories still used by events yield ErrInUse.
// Preference rows cascade.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	tag, err := conn(ctx, r.db).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isFKViolation(err) {
			return ErrInUse
		}
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
