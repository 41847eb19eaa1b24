package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CategoryRepository reads the category → default SLA mapping.
// Categories themselves are maintained outside this service.
type CategoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetCategorySLADays returns the configured SLA days of a category.
// ok is false when the category is unknown or has no positive SLA configured.
func (r *CategoryRepository) GetCategorySLADays(ctx context.Context, categoryID int64) (days int, ok bool, err error) {
	var sla sql.NullInt64
	err = conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT sla_days FROM categories WHERE category_id = ?`, categoryID).Scan(&sla)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get category SLA: %w", err)
	}
	if !sla.Valid || sla.Int64 <= 0 {
		return 0, false, nil
	}
	return int(sla.Int64), true, nil
}
